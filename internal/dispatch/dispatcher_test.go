package dispatch

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/trainwatch/internal/best"
	"github.com/danielpatrickdp/trainwatch/internal/hooks"
	"github.com/danielpatrickdp/trainwatch/internal/hooks/hookstest"
)

func noop(*Dispatcher, hooks.Event) error { return nil }

// #region construction-tests
func TestNew_Validation(t *testing.T) {
	_, err := New("loss", "lowest", "epoch-end", noop)
	assert.ErrorIs(t, err, best.ErrInvalidMode)

	_, err = New("loss", "min", "on_coffee_break", noop)
	assert.ErrorIs(t, err, hooks.ErrUnknownHook)

	_, err = New("", "min", "epoch-end", noop)
	assert.Error(t, err)

	_, err = New("loss", "min", "epoch-end", nil)
	assert.Error(t, err)

	d, err := New("loss", "min", "on_validation_epoch_end", noop)
	require.NoError(t, err)
	assert.Equal(t, hooks.EpochEnd, d.Hook())
	assert.True(t, math.IsInf(d.Best(), 1))
	assert.Equal(t, "Dispatcher(metric=loss, mode=min, on=epoch-end)", d.String())
}
// #endregion construction-tests

// #region gate-tests
func TestDispatcher_StrictImprovementOnly(t *testing.T) {
	h := hookstest.NewHost()
	var firedAt []int
	var firedValues []float64
	d, err := New("loss", "min", "epoch-end", func(d *Dispatcher, ev hooks.Event) error {
		firedAt = append(firedAt, ev.Epoch)
		firedValues = append(firedValues, d.Best())
		return nil
	})
	require.NoError(t, err)

	for i, v := range []float64{5.0, 4.0, 4.0, 3.0, 6.0} {
		h.Log("loss", v)
		require.NoError(t, d.OnHook(hooks.EpochEnd, h, hooks.Event{Kind: hooks.EpochEnd, Epoch: i}))
	}

	// 5.0 improves on +Inf, then 4.0 and 3.0; the repeat and the regression do not.
	assert.Equal(t, []int{0, 1, 3}, firedAt)
	assert.Equal(t, []float64{5.0, 4.0, 3.0}, firedValues)
	assert.Equal(t, 3, d.Fired())
}

func TestDispatcher_MaxMode(t *testing.T) {
	h := hookstest.NewHost()
	count := 0
	d, err := New("acc", "max", "train-end", func(*Dispatcher, hooks.Event) error {
		count++
		return nil
	})
	require.NoError(t, err)

	for _, v := range []float64{0.5, 0.4, 0.5, 0.9} {
		h.Log("acc", v)
		require.NoError(t, d.OnHook(hooks.TrainEnd, h, hooks.Event{}))
	}
	assert.Equal(t, 2, count)
	assert.Equal(t, 0.9, d.Best())
}

func TestDispatcher_OtherHooksIgnored(t *testing.T) {
	h := hookstest.NewHost()
	d, err := New("loss", "min", "epoch-end", func(*Dispatcher, hooks.Event) error {
		t.Fatal("action must not run")
		return nil
	})
	require.NoError(t, err)

	// No value logged: other hooks must not even look the metric up.
	for _, k := range []hooks.Kind{hooks.TrainStart, hooks.EpochStart, hooks.BatchEnd, hooks.TrainEnd} {
		require.NoError(t, d.OnHook(k, h, hooks.Event{}))
	}
}

func TestDispatcher_MissingMetric(t *testing.T) {
	h := hookstest.NewHost()
	d, err := New("val_loss", "min", "epoch-end", noop)
	require.NoError(t, err)

	err = d.OnHook(hooks.EpochEnd, h, hooks.Event{})
	assert.ErrorIs(t, err, ErrMetricNotLogged)
}

func TestDispatcher_ActionErrorPropagates(t *testing.T) {
	h := hookstest.NewHost()
	boom := errors.New("checkpoint write failed")
	d, err := New("loss", "min", "epoch-end", func(*Dispatcher, hooks.Event) error { return boom })
	require.NoError(t, err)

	h.Log("loss", 1)
	err = d.OnHook(hooks.EpochEnd, h, hooks.Event{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1.0, d.Best(), "best is updated before the action runs")
}

func TestDispatcher_PassesEventArgs(t *testing.T) {
	h := hookstest.NewHost()
	var got []any
	d, err := New("loss", "min", "batch-end", func(_ *Dispatcher, ev hooks.Event) error {
		got = ev.Args
		return nil
	})
	require.NoError(t, err)

	h.Log("loss", 2)
	require.NoError(t, d.OnHook(hooks.BatchEnd, h, hooks.Event{Args: []any{"optimizer", 0}}))
	assert.Equal(t, []any{"optimizer", 0}, got)
}
// #endregion gate-tests
