package sink

import (
	"log/slog"

	"github.com/danielpatrickdp/trainwatch/internal/store"
)

// #region store-sink
// Store appends every pair to a run's metric log, tagged with the global
// step reported by step.
type Store struct {
	store  *store.Store
	runID  string
	step   func() int64
	logger *slog.Logger
}

// NewStore writes to s under runID. step may be nil, in which case every
// row is recorded at step zero.
func NewStore(s *store.Store, runID string, step func() int64, logger *slog.Logger) *Store {
	if step == nil {
		step = func() int64 { return 0 }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{store: s, runID: runID, step: step, logger: logger}
}

func (s *Store) Log(name string, value float64) {
	if err := s.store.LogMetric(s.runID, s.step(), name, value); err != nil {
		s.logger.Warn("store sink write failed", "run_id", s.runID, "metric", name, "error", err)
	}
}
// #endregion store-sink
