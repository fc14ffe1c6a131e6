package watch

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentity(t *testing.T) {
	cases := []struct {
		in   any
		want float64
	}{
		{2.5, 2.5},
		{float32(2.5), 2.5},
		{3, 3},
		{int64(-3), -3},
		{uint8(7), 7},
	}
	for _, c := range cases {
		got, err := Identity().Extract(c.in)
		require.NoError(t, err, "%T", c.in)
		assert.Equal(t, c.want, got)
	}
	_, err := Identity().Extract("2.5")
	assert.ErrorIs(t, err, ErrNotNumeric)
	_, err = Identity().Extract(nil)
	assert.ErrorIs(t, err, ErrNotNumeric)
}

func TestKey(t *testing.T) {
	got, err := Key("loss").Extract(map[string]float64{"loss": 0.3})
	require.NoError(t, err)
	assert.Equal(t, 0.3, got)

	_, err = Key("acc").Extract(map[string]float64{"loss": 0.3})
	assert.ErrorIs(t, err, ErrKeyNotFound)

	_, err = Key("acc").Extract(map[string]any{"acc": "high"})
	assert.ErrorIs(t, err, ErrNotNumeric)

	_, err = Key("acc").Extract([]float64{1})
	assert.ErrorIs(t, err, ErrNotNumeric)
}

func TestIndex(t *testing.T) {
	got, err := Index(1).Extract([]float64{4, 5})
	require.NoError(t, err)
	assert.Equal(t, 5.0, got)

	got, err = Index(0).Extract([]any{int32(9)})
	require.NoError(t, err)
	assert.Equal(t, 9.0, got)

	_, err = Index(2).Extract([]float64{4, 5})
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = Index(-1).Extract([]any{1.0})
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestCustom(t *testing.T) {
	type batch struct{ correct, total int }
	acc := Custom(func(out any) (float64, error) {
		b := out.(batch)
		return float64(b.correct) / float64(b.total), nil
	})
	got, err := acc.Extract(batch{correct: 3, total: 4})
	require.NoError(t, err)
	assert.Equal(t, 0.75, got)
}

func TestExtractorNames(t *testing.T) {
	assert.Equal(t, "identity", fmt.Sprint(Identity()))
	assert.Equal(t, "key(loss)", fmt.Sprint(Key("loss")))
	assert.Equal(t, "index(2)", fmt.Sprint(Index(2)))
}
