package best

import (
	"errors"
	"fmt"
	"math"
)

// #region mode
// Mode is the ordering under which a value counts as better.
type Mode string

const (
	Min Mode = "min"
	Max Mode = "max"
)

// ErrInvalidMode is returned for any mode other than min or max.
var ErrInvalidMode = errors.New("mode must be min or max")

// ParseMode validates a mode string. Only the exact lowercase names match.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case Min:
		return Min, nil
	case Max:
		return Max, nil
	}
	return "", fmt.Errorf("%w: got %q", ErrInvalidMode, s)
}

// Worst returns the starting value that any observation beats.
func (m Mode) Worst() float64 {
	if m == Min {
		return math.Inf(1)
	}
	return math.Inf(-1)
}

// Better reports whether value strictly improves on current.
func (m Mode) Better(value, current float64) bool {
	if m == Min {
		return value < current
	}
	return value > current
}
// #endregion mode

// #region tracker
// Tracker keeps the extremum of a stream under a Mode. With tieCounts set, an
// observation equal to the best refreshes the record, so BestAt reports the
// most recent occurrence rather than the first.
type Tracker struct {
	mode      Mode
	tieCounts bool
	best      float64
	bestAt    int64
	seen      bool
}

// NewTracker creates a tracker. mode must already be validated.
func NewTracker(mode Mode, tieCounts bool) *Tracker {
	return &Tracker{
		mode:      mode,
		tieCounts: tieCounts,
		best:      mode.Worst(),
		bestAt:    -1,
	}
}

// Surpasses applies the tracker's comparison without changing state.
func (t *Tracker) Surpasses(value, current float64) bool {
	surpass := t.mode.Better(value, current)
	if t.tieCounts {
		surpass = surpass || value == current
	}
	return surpass
}

// Consider records value observed at position at (a step or epoch index) and
// reports whether the best was updated.
func (t *Tracker) Consider(value float64, at int64) bool {
	if !t.Surpasses(value, t.best) {
		return false
	}
	t.best = value
	t.bestAt = at
	t.seen = true
	return true
}

// Best returns the best value, or ok=false if nothing has been recorded.
func (t *Tracker) Best() (float64, bool) {
	return t.best, t.seen
}

// Value returns the best value including the ±Inf starting point.
func (t *Tracker) Value() float64 { return t.best }

// BestAt returns the position of the latest update, or -1.
func (t *Tracker) BestAt() int64 { return t.bestAt }

func (t *Tracker) Mode() Mode { return t.mode }
// #endregion tracker
