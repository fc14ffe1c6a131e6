package trainer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/danielpatrickdp/trainwatch/internal/hooks"
	"github.com/danielpatrickdp/trainwatch/internal/sink"
	"github.com/danielpatrickdp/trainwatch/internal/stats"
)

// #region names
const (
	BatchTimeName = "batch_time"
	RunTimeName   = "run_time"
)
// #endregion names

// #region loop
// Loop is a minimal host: it drives epochs and batches from a Workload,
// owns the global step counter and the learning-rate schedule configs, and
// invokes every registered callback at each lifecycle point, in
// registration order.
type Loop struct {
	callbacks []hooks.Callback
	schedules []*hooks.ScheduleConfig
	sinks     sink.Multi
	logged    map[string]float64
	step      int64
	logger    *slog.Logger

	batchTimer *stats.Timer
	runTimer   *stats.Timer
}

// Options configures a Loop.
type Options struct {
	Sinks  []hooks.Sink
	Logger *slog.Logger
	// TimerOptions are passed to the batch and run timers.
	TimerOptions []stats.TimerOption
}

// New creates a loop with no callbacks.
func New(opts Options) *Loop {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		sinks:      sink.Multi(opts.Sinks),
		logged:     make(map[string]float64),
		logger:     logger,
		batchTimer: stats.AverageTimer(opts.TimerOptions...),
		runTimer:   stats.TotalTimer(opts.TimerOptions...),
	}
}

// Register appends callbacks.
func (l *Loop) Register(cbs ...hooks.Callback) {
	l.callbacks = append(l.callbacks, cbs...)
}

// AddSchedule lets the loop step s itself every frequency steps or epochs.
func (l *Loop) AddSchedule(name string, s hooks.Schedule, interval string, frequency int64) *hooks.ScheduleConfig {
	cfg := &hooks.ScheduleConfig{Name: name, Schedule: s, Interval: interval, Frequency: frequency}
	l.schedules = append(l.schedules, cfg)
	return cfg
}
// #endregion loop

// #region host
func (l *Loop) GlobalStep() int64                  { return l.step }
func (l *Loop) Schedules() []*hooks.ScheduleConfig { return l.schedules }

func (l *Loop) LoggedMetric(name string) (float64, bool) {
	v, ok := l.logged[name]
	return v, ok
}

// Log records the latest value for name and forwards it to every sink.
func (l *Loop) Log(name string, value float64) {
	l.logged[name] = value
	l.sinks.Log(name, value)
}
// #endregion host

// #region run
// Run drives w to completion. The first callback or workload error stops
// the run and is returned; context cancellation is checked between batches.
func (l *Loop) Run(ctx context.Context, w Workload) error {
	stopRun := l.runTimer.Start()

	if err := l.emit(hooks.TrainStart, hooks.Event{Epoch: -1, Batch: -1}); err != nil {
		return err
	}

	for epoch := 0; epoch < w.Epochs(); epoch++ {
		if err := l.runEpoch(ctx, w, epoch); err != nil {
			return err
		}
	}

	if err := l.emit(hooks.TrainEnd, hooks.Event{Epoch: w.Epochs() - 1, Batch: -1}); err != nil {
		return err
	}
	stopRun()
	if total, ok := l.runTimer.Summarize(); ok {
		l.Log(RunTimeName, total)
	}
	l.flush(ctx)
	l.logger.Info("training finished", "epochs", w.Epochs(), "steps", l.step)
	return nil
}

func (l *Loop) runEpoch(ctx context.Context, w Workload, epoch int) error {
	if err := l.emit(hooks.EpochStart, hooks.Event{Epoch: epoch, Batch: -1}); err != nil {
		return err
	}

	batches := w.Batches(epoch)
	for b := 0; b < batches; b++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("epoch %d batch %d: %w", epoch, b, err)
		}

		var out any
		err := l.batchTimer.Time(func() error {
			var err error
			out, err = w.Batch(ctx, epoch, b)
			return err
		})
		if err != nil {
			return fmt.Errorf("epoch %d batch %d: %w", epoch, b, err)
		}

		if err := l.emit(hooks.BeforeOptimizerStep, hooks.Event{Epoch: epoch, Batch: b}); err != nil {
			return err
		}
		l.step++
		l.stepSchedules(hooks.IntervalStep, l.step)

		if err := l.emit(hooks.BatchEnd, hooks.Event{Epoch: epoch, Batch: b, Output: out}); err != nil {
			return err
		}
	}

	l.stepSchedules(hooks.IntervalEpoch, int64(epoch+1))
	if batches > 0 {
		if mean, ok := l.batchTimer.Summarize(); ok {
			l.Log(BatchTimeName, mean)
		}
	}

	if err := l.emit(hooks.EpochEnd, hooks.Event{Epoch: epoch, Batch: -1}); err != nil {
		return err
	}
	l.flush(ctx)
	l.logger.Debug("epoch finished", "epoch", epoch, "batches", batches, "step", l.step)
	return nil
}
// #endregion run

// #region helpers
func (l *Loop) emit(kind hooks.Kind, ev hooks.Event) error {
	ev.Kind = kind
	ev.Step = l.step
	for _, cb := range l.callbacks {
		if err := cb.OnHook(kind, l, ev); err != nil {
			return fmt.Errorf("%s hook: %w", kind, err)
		}
	}
	return nil
}

// stepSchedules advances every config on interval whose frequency divides n.
func (l *Loop) stepSchedules(interval string, n int64) {
	for _, cfg := range l.schedules {
		if cfg.Interval != interval {
			continue
		}
		freq := cfg.Frequency
		if freq <= 0 {
			freq = 1
		}
		if n%freq == 0 {
			cfg.Schedule.Step()
		}
	}
}

func (l *Loop) flush(ctx context.Context) {
	if err := l.sinks.Flush(ctx); err != nil {
		l.logger.Warn("sink flush failed", "step", l.step, "error", err)
	}
}
// #endregion helpers
