package dispatch

import (
	"errors"
	"fmt"

	"github.com/danielpatrickdp/trainwatch/internal/best"
	"github.com/danielpatrickdp/trainwatch/internal/hooks"
)

// #region types
// ErrMetricNotLogged is returned when the watched metric has no logged value
// at the time the hook fires.
var ErrMetricNotLogged = errors.New("metric has not been logged")

// Action runs when the watched metric strictly improves. It receives the
// dispatcher and the hook's event.
type Action func(d *Dispatcher, ev hooks.Event) error
// #endregion types

// #region dispatcher
// Dispatcher runs an Action from one lifecycle hook, only when a logged
// metric strictly beats the best value it has seen. Ties never fire.
type Dispatcher struct {
	metric  string
	mode    best.Mode
	on      hooks.Kind
	action  Action
	current float64
	fired   int
}

// New builds a dispatcher. mode must be "min" or "max" and on must name a
// lifecycle hook; both are checked here rather than when the hook runs.
func New(metric, mode, on string, action Action) (*Dispatcher, error) {
	if metric == "" {
		return nil, errors.New("dispatch: metric name is required")
	}
	if action == nil {
		return nil, errors.New("dispatch: action is required")
	}
	m, err := best.ParseMode(mode)
	if err != nil {
		return nil, fmt.Errorf("dispatch %s: %w", metric, err)
	}
	kind, err := hooks.ParseKind(on)
	if err != nil {
		return nil, fmt.Errorf("dispatch %s: %w", metric, err)
	}
	return &Dispatcher{
		metric:  metric,
		mode:    m,
		on:      kind,
		action:  action,
		current: m.Worst(),
	}, nil
}

// OnHook implements hooks.Callback. Kinds other than the registered one are
// ignored.
func (d *Dispatcher) OnHook(kind hooks.Kind, h hooks.Host, ev hooks.Event) error {
	if kind != d.on {
		return nil
	}
	value, ok := h.LoggedMetric(d.metric)
	if !ok {
		return fmt.Errorf("dispatch on %s: %w: %q", d.on, ErrMetricNotLogged, d.metric)
	}
	if !d.mode.Better(value, d.current) {
		return nil
	}
	d.current = value
	d.fired++
	return d.action(d, ev)
}
// #endregion dispatcher

// #region accessors
func (d *Dispatcher) Metric() string   { return d.metric }
func (d *Dispatcher) Mode() best.Mode  { return d.mode }
func (d *Dispatcher) Hook() hooks.Kind { return d.on }

// Best returns the value that last fired the action, or ±Inf.
func (d *Dispatcher) Best() float64 { return d.current }

// Fired returns how many times the action ran.
func (d *Dispatcher) Fired() int { return d.fired }

func (d *Dispatcher) String() string {
	return fmt.Sprintf("Dispatcher(metric=%s, mode=%s, on=%s)", d.metric, d.mode, d.on)
}
// #endregion accessors
