package replay

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/danielpatrickdp/trainwatch/internal/config"
	"github.com/danielpatrickdp/trainwatch/internal/dispatch"
	"github.com/danielpatrickdp/trainwatch/internal/hooks"
	"github.com/danielpatrickdp/trainwatch/internal/sink"
	"github.com/danielpatrickdp/trainwatch/internal/trainer"
)

// Tolerance is the absolute difference under which two values match.
const Tolerance = 1e-9

// #region types
// Result captures what a replayed run produced.
type Result struct {
	EpochMeans map[string][]float64
	Best       map[string]float64
	BestEpoch  map[string]int64
	Dispatches map[string][]int
	Logged     []sink.Entry
}

// Counts tallies logged values per name.
func (r *Result) Counts() map[string]int {
	out := make(map[string]int)
	for _, e := range r.Logged {
		out[e.Name]++
	}
	return out
}

// Row is one compared quantity.
type Row struct {
	Metric   string
	Field    string
	Expected string
	Replayed string
	Match    bool
}
// #endregion types

// #region replay
// Replay drives the pipeline cfg describes over recorded batch outputs,
// entirely in memory. Dispatcher actions still run; the run section of cfg
// is ignored.
func Replay(ctx context.Context, cfg *config.Config, epochs [][]any, logger *slog.Logger) (*Result, error) {
	rec := &sink.Recorder{}
	res := &Result{
		EpochMeans: make(map[string][]float64),
		Best:       make(map[string]float64),
		BestEpoch:  make(map[string]int64),
		Dispatches: make(map[string][]int),
	}

	p, err := config.Build(cfg, config.Deps{
		Sinks:  []hooks.Sink{rec},
		Logger: logger,
		OnDispatch: func(d *dispatch.Dispatcher, ev hooks.Event) error {
			res.Dispatches[d.Metric()] = append(res.Dispatches[d.Metric()], ev.Epoch)
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	if err := p.Loop.Run(ctx, trainer.Scripted{Outputs: epochs}); err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	for _, w := range p.Watchers {
		res.EpochMeans[w.Metric()] = w.EpochMeans()
		if v, epoch, ok := w.Best(); ok {
			res.Best[w.Metric()] = v
			res.BestEpoch[w.Metric()] = epoch
		}
	}
	res.Logged = rec.Entries
	return res, nil
}

// ReplayFixture replays f with its own configuration.
func ReplayFixture(ctx context.Context, f *Fixture, logger *slog.Logger) (*Result, error) {
	return Replay(ctx, &f.Config, f.Epochs, logger)
}
// #endregion replay

// #region compare
// Compare lists every quantity exp names against res, in a stable order.
func Compare(res *Result, exp Expected) []Row {
	var rows []Row
	for _, m := range sortedKeys(exp.EpochMeans) {
		want, got := exp.EpochMeans[m], res.EpochMeans[m]
		rows = append(rows, Row{m, "epoch_means", fmt.Sprint(want), fmt.Sprint(got), floatsMatch(want, got)})
	}
	for _, m := range sortedKeys(exp.Best) {
		got, ok := res.Best[m]
		replayed := "-"
		if ok {
			replayed = fmt.Sprint(got)
		}
		rows = append(rows, Row{m, "best", fmt.Sprint(exp.Best[m]), replayed, ok && math.Abs(got-exp.Best[m]) <= Tolerance})
	}
	for _, m := range sortedKeys(exp.BestEpoch) {
		got, ok := res.BestEpoch[m]
		rows = append(rows, Row{m, "best_epoch", fmt.Sprint(exp.BestEpoch[m]), fmt.Sprint(got), ok && got == exp.BestEpoch[m]})
	}
	for _, m := range sortedKeys(exp.Dispatches) {
		want, got := exp.Dispatches[m], res.Dispatches[m]
		rows = append(rows, Row{m, "dispatches", fmt.Sprint(want), fmt.Sprint(got), intsMatch(want, got)})
	}
	counts := res.Counts()
	for _, m := range sortedKeys(exp.Counts) {
		rows = append(rows, Row{m, "count", fmt.Sprint(exp.Counts[m]), fmt.Sprint(counts[m]), counts[m] == exp.Counts[m]})
	}
	return rows
}

// Diverged counts rows that do not match.
func Diverged(rows []Row) int {
	n := 0
	for _, r := range rows {
		if !r.Match {
			n++
		}
	}
	return n
}
// #endregion compare

// #region helpers
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func floatsMatch(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > Tolerance {
			return false
		}
	}
	return true
}

func intsMatch(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
// #endregion helpers
