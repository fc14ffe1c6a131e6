// Package sink holds destinations for the name/value pairs a training run
// logs. Every sink is fire-and-forget: delivery failures are logged, never
// returned to the training loop.
package sink

import (
	"context"
	"errors"
	"log/slog"

	"github.com/danielpatrickdp/trainwatch/internal/hooks"
)

// Flusher is implemented by sinks that buffer.
type Flusher interface {
	Flush(ctx context.Context) error
}

// #region multi
// Multi fans every pair out to all members in order.
type Multi []hooks.Sink

func (m Multi) Log(name string, value float64) {
	for _, s := range m {
		s.Log(name, value)
	}
}

// Flush flushes every member that buffers and joins their errors.
func (m Multi) Flush(ctx context.Context) error {
	var errs []error
	for _, s := range m {
		if f, ok := s.(Flusher); ok {
			errs = append(errs, f.Flush(ctx))
		}
	}
	return errors.Join(errs...)
}
// #endregion multi

// #region recorder
// Entry is one recorded pair.
type Entry struct {
	Name  string
	Value float64
}

// Recorder keeps every pair in memory.
type Recorder struct {
	Entries []Entry
}

func (r *Recorder) Log(name string, value float64) {
	r.Entries = append(r.Entries, Entry{Name: name, Value: value})
}

// Values returns every value recorded under name.
func (r *Recorder) Values(name string) []float64 {
	var out []float64
	for _, e := range r.Entries {
		if e.Name == name {
			out = append(out, e.Value)
		}
	}
	return out
}
// #endregion recorder

// #region slog
// Slog writes each pair as a structured log record.
type Slog struct {
	Logger *slog.Logger
	Level  slog.Level
}

// NewSlog logs at Info on logger, or slog.Default() when nil.
func NewSlog(logger *slog.Logger) *Slog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Slog{Logger: logger, Level: slog.LevelInfo}
}

func (s *Slog) Log(name string, value float64) {
	s.Logger.Log(context.Background(), s.Level, "metric", "name", name, "value", value)
}
// #endregion slog
