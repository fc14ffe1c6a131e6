package stats

import (
	"fmt"
	"log/slog"
	"time"
)

// #region timer
// Timer measures wall time of enclosed scopes and feeds each elapsed
// duration, in seconds, to its Accumulator.
type Timer struct {
	acc Accumulator
	now func() time.Time
}

// TimerOption configures a Timer.
type TimerOption func(*Timer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TimerOption {
	return func(t *Timer) { t.now = now }
}

// NewTimer wraps acc.
func NewTimer(acc Accumulator, opts ...TimerOption) *Timer {
	t := &Timer{acc: acc, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TotalTimer sums elapsed time across all scopes.
func TotalTimer(opts ...TimerOption) *Timer { return NewTimer(Sum(), opts...) }

// AverageTimer reports the mean scope duration since the last Summarize.
func AverageTimer(opts ...TimerOption) *Timer { return NewTimer(NewAverage(), opts...) }

// MaxTimer reports the longest scope seen.
func MaxTimer(opts ...TimerOption) *Timer { return NewTimer(NewMax(), opts...) }

// Start opens a scope. The returned function closes it and must be called
// exactly once, normally via defer:
//
//	defer timer.Start()()
func (t *Timer) Start() func() {
	t0 := t.now()
	return func() {
		t.acc.Observe(t.now().Sub(t0).Seconds())
	}
}

// Time runs fn inside a scope. The duration is recorded even when fn
// returns an error or panics.
func (t *Timer) Time(fn func() error) error {
	defer t.Start()()
	return fn()
}

// Summarize delegates to the owned accumulator.
func (t *Timer) Summarize() (float64, bool) { return t.acc.Summarize() }
// #endregion timer

// #region benchmark
// Benchmark opens a one-shot scope. Closing it writes
// "{desc}: {seconds}(s)" to sink.
//
//	defer stats.Benchmark("load shards", nil)()
func Benchmark(desc string, sink func(msg string)) func() {
	return benchmark(desc, sink, time.Now)
}

func benchmark(desc string, sink func(msg string), now func() time.Time) func() {
	if desc == "" {
		desc = "Time"
	}
	if sink == nil {
		sink = func(msg string) { slog.Info(msg) }
	}
	t0 := now()
	return func() {
		sink(fmt.Sprintf("%s: %.6f(s)", desc, now().Sub(t0).Seconds()))
	}
}
// #endregion benchmark
