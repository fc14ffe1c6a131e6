package watch

import (
	"errors"
	"fmt"

	"github.com/danielpatrickdp/trainwatch/internal/best"
	"github.com/danielpatrickdp/trainwatch/internal/hooks"
	"github.com/danielpatrickdp/trainwatch/internal/stats"
)

// #region config
// Config describes one watched metric.
type Config struct {
	Metric    string
	Mode      best.Mode
	TieCounts bool      // applies to both step and epoch tracking
	LogStep   bool      // emit per-batch values and a step-level best
	Extractor Extractor // nil means Identity
}

// DefaultConfig watches metric for a maximum, counting ties, epoch level only.
func DefaultConfig(metric string) Config {
	return Config{
		Metric:    metric,
		Mode:      best.Max,
		TieCounts: true,
		Extractor: Identity(),
	}
}
// #endregion config

// #region watcher
// Watcher averages a batch-level metric over each epoch and tracks the best
// epoch mean for the lifetime of the run. With LogStep it also tracks the
// best single batch value.
type Watcher struct {
	cfg     Config
	names   names
	epoch   *best.Tracker
	step    *best.Tracker // nil unless LogStep
	window  *stats.Average
	values  []float64
	summary []float64
}

type names struct {
	mean, best, step, bestStep string
}

// New validates cfg and builds a watcher.
func New(cfg Config) (*Watcher, error) {
	if cfg.Metric == "" {
		return nil, errors.New("watch: metric name is required")
	}
	mode, err := best.ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", cfg.Metric, err)
	}
	cfg.Mode = mode
	if cfg.Extractor == nil {
		cfg.Extractor = Identity()
	}

	w := &Watcher{
		cfg: cfg,
		names: names{
			mean:     cfg.Metric,
			best:     "best_" + cfg.Metric,
			step:     "step_" + cfg.Metric,
			bestStep: "best_step_" + cfg.Metric,
		},
		epoch:  best.NewTracker(mode, cfg.TieCounts),
		window: stats.NewAverage(),
	}
	if cfg.LogStep {
		w.step = best.NewTracker(mode, cfg.TieCounts)
	}
	return w, nil
}

// OnHook implements hooks.Callback.
func (w *Watcher) OnHook(kind hooks.Kind, h hooks.Host, ev hooks.Event) error {
	switch kind {
	case hooks.EpochStart:
		w.StartEpoch()
	case hooks.BatchEnd:
		return w.observe(h, ev)
	case hooks.EpochEnd:
		w.endEpoch(h, ev)
	}
	return nil
}

// StartEpoch clears the observations of the previous epoch.
func (w *Watcher) StartEpoch() {
	w.values = w.values[:0]
	w.window.Reset()
}

func (w *Watcher) observe(h hooks.Host, ev hooks.Event) error {
	value, err := w.cfg.Extractor.Extract(ev.Output)
	if err != nil {
		return fmt.Errorf("watch %s: batch %d: %w", w.cfg.Metric, ev.Batch, err)
	}
	w.values = append(w.values, value)
	w.window.Append(value)

	if w.step == nil {
		return nil
	}
	w.step.Consider(value, h.GlobalStep())
	h.Log(w.names.step, value)
	h.Log(w.names.bestStep, w.step.Value())
	return nil
}

func (w *Watcher) endEpoch(h hooks.Host, ev hooks.Event) {
	if w.window.Count() == 0 {
		return
	}
	mean, _ := w.window.Summarize()
	w.summary = append(w.summary, mean)
	w.epoch.Consider(mean, int64(ev.Epoch))
	h.Log(w.names.mean, mean)
	h.Log(w.names.best, w.epoch.Value())
}
// #endregion watcher

// #region accessors
func (w *Watcher) Metric() string  { return w.cfg.Metric }
func (w *Watcher) Mode() best.Mode { return w.cfg.Mode }

// Observations returns the batch values of the current epoch.
func (w *Watcher) Observations() []float64 {
	out := make([]float64, len(w.values))
	copy(out, w.values)
	return out
}

// EpochMeans returns every emitted epoch mean in order.
func (w *Watcher) EpochMeans() []float64 {
	out := make([]float64, len(w.summary))
	copy(out, w.summary)
	return out
}

// Best returns the best epoch mean and the epoch it was (re)confirmed at.
func (w *Watcher) Best() (value float64, epoch int64, ok bool) {
	v, ok := w.epoch.Best()
	return v, w.epoch.BestAt(), ok
}

// BestStep returns the best batch value and its global step. ok is false
// when step logging is off or nothing was observed.
func (w *Watcher) BestStep() (value float64, step int64, ok bool) {
	if w.step == nil {
		return 0, -1, false
	}
	v, ok := w.step.Best()
	return v, w.step.BestAt(), ok
}

func (w *Watcher) String() string {
	return fmt.Sprintf("Watcher(metric=%s, mode=%s, ties=%t, log_step=%t)",
		w.cfg.Metric, w.cfg.Mode, w.cfg.TieCounts, w.cfg.LogStep)
}
// #endregion accessors
