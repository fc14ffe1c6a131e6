package cadence

import (
	"errors"
	"fmt"

	"github.com/danielpatrickdp/trainwatch/internal/hooks"
)

// #region constants
// DisabledFrequency is written into host schedule configs to take stepping
// away from the host. No run reaches it.
const DisabledFrequency int64 = 99999999999999999

// RateName is the metric name learning rates are logged under.
const RateName = "learning_rate"

// ErrInvalidInterval is returned when the cadence interval is not positive.
var ErrInvalidInterval = errors.New("cadence interval must be > 0")
// #endregion constants

// #region trigger
// Trigger steps every host learning-rate schedule once each time the global
// step reaches a nonzero multiple of the interval.
type Trigger struct {
	interval      int64
	soleAuthority bool
	fired         int
}

// New creates a trigger. When soleAuthority is set the trigger disables the
// host's own schedule stepping at train start, so schedules are never
// advanced twice for the same step.
func New(interval int64, soleAuthority bool) (*Trigger, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidInterval, interval)
	}
	return &Trigger{interval: interval, soleAuthority: soleAuthority}, nil
}

// Fires reports whether the trigger acts at step.
func (t *Trigger) Fires(step int64) bool {
	return step != 0 && step%t.interval == 0
}

// OnHook implements hooks.Callback.
func (t *Trigger) OnHook(kind hooks.Kind, h hooks.Host, _ hooks.Event) error {
	switch kind {
	case hooks.TrainStart:
		if t.soleAuthority {
			t.takeOver(h)
		}
	case hooks.BeforeOptimizerStep:
		if !t.Fires(h.GlobalStep()) {
			return nil
		}
		t.fired++
		for _, cfg := range h.Schedules() {
			cfg.Schedule.Step()
			for _, lr := range cfg.Schedule.Rates() {
				h.Log(RateName, lr)
			}
		}
	}
	return nil
}

func (t *Trigger) takeOver(h hooks.Host) {
	for _, cfg := range h.Schedules() {
		cfg.Interval = hooks.IntervalEpoch
		cfg.Frequency = DisabledFrequency
	}
}
// #endregion trigger

// #region accessors
func (t *Trigger) Interval() int64 { return t.interval }

// Fired returns how many times schedules were stepped.
func (t *Trigger) Fired() int { return t.fired }

func (t *Trigger) String() string {
	return fmt.Sprintf("Cadence(every=%d, only=%t)", t.interval, t.soleAuthority)
}
// #endregion accessors
