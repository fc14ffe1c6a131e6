package config

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/danielpatrickdp/trainwatch/internal/cadence"
	"github.com/danielpatrickdp/trainwatch/internal/dispatch"
	"github.com/danielpatrickdp/trainwatch/internal/hooks"
	"github.com/danielpatrickdp/trainwatch/internal/schedule"
	"github.com/danielpatrickdp/trainwatch/internal/stats"
	"github.com/danielpatrickdp/trainwatch/internal/trainer"
	"github.com/danielpatrickdp/trainwatch/internal/watch"
)

// ScheduleName is the name the configured schedule is registered under.
const ScheduleName = "lr"

// #region types
// Deps are the runtime pieces a Config cannot describe.
type Deps struct {
	Sinks        []hooks.Sink
	Logger       *slog.Logger
	TimerOptions []stats.TimerOption

	// With DB set, every dispatcher firing is also appended to the
	// dispatch log under RunID.
	DB    *sql.DB
	RunID string

	// OnDispatch, if set, runs after each dispatcher's own action.
	OnDispatch dispatch.Action
}

// Pipeline is a loop with every configured callback registered.
type Pipeline struct {
	Loop        *trainer.Loop
	Schedule    schedule.Schedule // nil without a schedule section
	Trigger     *cadence.Trigger  // nil without a cadence section
	Watchers    []*watch.Watcher
	Dispatchers []*dispatch.Dispatcher
}
// #endregion types

// #region build
// Build assembles a Pipeline. Watchers are registered ahead of the trigger
// and dispatchers so a dispatcher sees the value a watcher logged at the same
// hook. Configurations that could only fail once the loop runs are rejected
// before anything is registered.
func Build(cfg *Config, deps Deps) (*Pipeline, error) {
	if err := cfg.checkWiring(deps.DB != nil); err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		Loop: trainer.New(trainer.Options{Sinks: deps.Sinks, Logger: logger, TimerOptions: deps.TimerOptions}),
	}

	if cfg.Schedule != nil {
		s, err := schedule.New(cfg.Schedule.Spec)
		if err != nil {
			return nil, fmt.Errorf("build schedule: %w", err)
		}
		interval := cfg.Schedule.Interval
		if interval == "" {
			interval = hooks.IntervalEpoch
		}
		p.Schedule = s
		p.Loop.AddSchedule(ScheduleName, s, interval, cfg.Schedule.Frequency)
	}

	for _, wc := range cfg.Watchers {
		w, err := watch.New(wc.WatchConfig())
		if err != nil {
			return nil, fmt.Errorf("build watcher: %w", err)
		}
		p.Watchers = append(p.Watchers, w)
		p.Loop.Register(w)
	}

	if cfg.Cadence != nil {
		t, err := cadence.New(cfg.Cadence.Every, cfg.Cadence.SoleAuthority)
		if err != nil {
			return nil, fmt.Errorf("build cadence: %w", err)
		}
		p.Trigger = t
		p.Loop.Register(t)
	}

	for _, dc := range cfg.Dispatchers {
		d, err := dispatch.New(dc.Metric, dc.Mode, dc.On, dispatchAction(dc, deps, logger))
		if err != nil {
			return nil, fmt.Errorf("build dispatcher: %w", err)
		}
		p.Dispatchers = append(p.Dispatchers, d)
		p.Loop.Register(d)
	}
	return p, nil
}

func dispatchAction(dc DispatcherConfig, deps Deps, logger *slog.Logger) dispatch.Action {
	var actions []dispatch.Action
	detail := ""
	switch dc.Action {
	case "log":
		actions = append(actions, dispatch.LogAction(logger))
	case "checkpoint":
		actions = append(actions, dispatch.CheckpointAction(dc.Dir))
		detail = dispatch.CheckpointPath(dc.Dir, dc.Metric)
	}
	if deps.DB != nil || dc.Action == "record" {
		actions = append(actions, dispatch.RecordAction(deps.DB, deps.RunID, dc.Action, detail))
	}
	if deps.OnDispatch != nil {
		actions = append(actions, deps.OnDispatch)
	}
	return dispatch.Chain(actions...)
}
// #endregion build

// #region workload
// Workload is the synthetic workload described by the run section.
func (c *Config) Workload() *trainer.Synthetic {
	return trainer.NewSynthetic(c.Run.Epochs, c.Run.BatchesPerEpoch, c.Run.Noise, c.Run.Seed)
}
// #endregion workload
