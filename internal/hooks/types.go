package hooks

import (
	"errors"
	"fmt"
	"strings"
)

// #region kind
// Kind enumerates the lifecycle points at which a host loop invokes callbacks.
type Kind int

const (
	TrainStart Kind = iota
	EpochStart
	BatchEnd
	BeforeOptimizerStep
	EpochEnd
	TrainEnd
)

// ErrUnknownHook is returned when a hook name does not match any Kind.
var ErrUnknownHook = errors.New("unknown lifecycle hook")

var kindNames = map[Kind]string{
	TrainStart:          "train-start",
	EpochStart:          "epoch-start",
	BatchEnd:            "batch-end",
	BeforeOptimizerStep: "before-optimizer-step",
	EpochEnd:            "epoch-end",
	TrainEnd:            "train-end",
}

// aliases maps the on_* callback names used by training frameworks onto a Kind.
var aliases = map[string]Kind{
	"on_train_start":            TrainStart,
	"on_train_end":              TrainEnd,
	"on_epoch_start":            EpochStart,
	"on_train_epoch_start":      EpochStart,
	"on_validation_epoch_start": EpochStart,
	"on_epoch_end":              EpochEnd,
	"on_train_epoch_end":        EpochEnd,
	"on_validation_epoch_end":   EpochEnd,
	"on_batch_end":              BatchEnd,
	"on_train_batch_end":        BatchEnd,
	"on_validation_batch_end":   BatchEnd,
	"on_before_optimizer_step":  BeforeOptimizerStep,
	"pre-optimizer-step":        BeforeOptimizerStep,
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("hook(%d)", int(k))
}

// ParseKind resolves a hook name in either kebab form ("epoch-end") or
// on_* form ("on_validation_epoch_end").
func ParseKind(name string) (Kind, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for k, s := range kindNames {
		if s == n {
			return k, nil
		}
	}
	if k, ok := aliases[n]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownHook, name)
}

// Kinds returns every lifecycle hook in invocation order.
func Kinds() []Kind {
	return []Kind{TrainStart, EpochStart, BatchEnd, BeforeOptimizerStep, EpochEnd, TrainEnd}
}
// #endregion kind

// #region event
// Event carries the host-defined arguments of one hook invocation.
type Event struct {
	Kind   Kind
	Epoch  int
	Batch  int   // -1 outside batch hooks
	Step   int64 // global step at invocation time
	Output any   // batch output, set on BatchEnd only
	Args   []any // extra host arguments passed through untouched
}
// #endregion event

// #region schedule
// Interval values understood by ScheduleConfig.
const (
	IntervalStep  = "step"
	IntervalEpoch = "epoch"
)

// Schedule is a learning-rate schedule owned by the host.
type Schedule interface {
	Step()
	Rates() []float64
}

// ScheduleConfig is the host's mutable stepping policy for one schedule.
// The host steps Schedule itself every Frequency units of Interval.
type ScheduleConfig struct {
	Name      string
	Schedule  Schedule
	Interval  string
	Frequency int64
}
// #endregion schedule

// #region host
// Sink accepts name/value pairs for external recording.
type Sink interface {
	Log(name string, value float64)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(name string, value float64)

func (f SinkFunc) Log(name string, value float64) { f(name, value) }

// Host is the view of the training loop that callbacks may use.
type Host interface {
	Sink
	GlobalStep() int64
	Schedules() []*ScheduleConfig
	LoggedMetric(name string) (float64, bool)
}

// Callback is invoked by the host at every lifecycle point. Implementations
// ignore kinds they are not interested in.
type Callback interface {
	OnHook(kind Kind, h Host, ev Event) error
}
// #endregion host
