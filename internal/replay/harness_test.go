package replay

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/trainwatch/internal/config"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// #region fixture-tests

// TestFixture_LossCurve is the regression baseline: if averaging, tie
// handling or dispatch gating drift, a row here diverges.
func TestFixture_LossCurve(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "loss_curve.json"))
	require.NoError(t, err)

	res, err := ReplayFixture(context.Background(), f, quiet())
	require.NoError(t, err)

	rows := Compare(res, f.Expected)
	require.Len(t, rows, 13)
	for _, r := range rows {
		assert.True(t, r.Match, "%s %s: expected %s, replayed %s", r.Metric, r.Field, r.Expected, r.Replayed)
	}
}

func TestLoadFixture_Missing(t *testing.T) {
	_, err := LoadFixture(filepath.Join("testdata", "absent.json"))
	assert.Error(t, err)
}

func TestReplayFixture_MiswiredConfigFailsBeforeRunning(t *testing.T) {
	fixture := `{
  "config": {
    "watchers": [{"metric": "loss", "mode": "min", "key": "loss", "index": 0}],
    "dispatchers": [{"metric": "loss", "mode": "min", "on": "epoch-end", "action": "log"}]
  },
  "epochs": [[{"loss": 1.0}]]
}`
	path := filepath.Join(t.TempDir(), "miswired.json")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))

	f, err := LoadFixture(path)
	require.NoError(t, err)
	_, err = ReplayFixture(context.Background(), f, quiet())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key and index are exclusive")
	assert.NotContains(t, err.Error(), "hook")
}

// #endregion fixture-tests

// #region replay-tests

func TestReplay_IdentityWatcher(t *testing.T) {
	cfg := &config.Config{
		Watchers:    []config.WatcherConfig{{Metric: "loss", Mode: "min"}},
		Dispatchers: []config.DispatcherConfig{{Metric: "loss", Mode: "min", On: "epoch-end", Action: "log"}},
	}
	epochs := [][]any{{2.0, 4.0}, {1.0}, {1.0}}

	res, err := Replay(context.Background(), cfg, epochs, quiet())
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1, 1}, res.EpochMeans["loss"])
	assert.Equal(t, []int{0, 1}, res.Dispatches["loss"])
	// Ties count by default, so the best moves to the later epoch.
	assert.Equal(t, int64(2), res.BestEpoch["loss"])
}

func TestReplay_ExtractionError(t *testing.T) {
	cfg := &config.Config{
		Watchers: []config.WatcherConfig{{Metric: "acc", Mode: "max", Key: "acc"}},
	}
	_, err := Replay(context.Background(), cfg, [][]any{{map[string]any{"loss": 1.0}}}, quiet())
	assert.Error(t, err, "a missing key stops the replay")
}

func TestReplay_InvalidPipeline(t *testing.T) {
	tests := []struct {
		name string
		dc   config.DispatcherConfig
	}{
		{"invalid mode", config.DispatcherConfig{Metric: "loss", Mode: "median", On: "epoch-end", Action: "log"}},
		{"record without database", config.DispatcherConfig{Metric: "loss", Mode: "min", On: "epoch-end", Action: "record"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				Watchers:    []config.WatcherConfig{{Metric: "loss", Mode: "min"}},
				Dispatchers: []config.DispatcherConfig{tt.dc},
			}
			_, err := Replay(context.Background(), cfg, [][]any{{1.0}}, quiet())
			require.Error(t, err)
			assert.NotContains(t, err.Error(), "replay:", "must fail while building, not while running")
		})
	}
}

// #endregion replay-tests

// #region compare-tests

func TestCompare_Divergence(t *testing.T) {
	res := &Result{
		EpochMeans: map[string][]float64{"loss": {1, 2}},
		Best:       map[string]float64{},
		BestEpoch:  map[string]int64{},
		Dispatches: map[string][]int{"loss": {0}},
	}
	exp := Expected{
		EpochMeans: map[string][]float64{"loss": {1, 2 + 1e-12}},
		Best:       map[string]float64{"loss": 1},
		Dispatches: map[string][]int{"loss": {0, 1}},
		Counts:     map[string]int{"loss": 0},
	}

	rows := Compare(res, exp)
	require.Len(t, rows, 4)
	assert.True(t, rows[0].Match, "epoch means within tolerance should match")
	assert.False(t, rows[1].Match, "missing best should diverge")
	assert.Equal(t, "-", rows[1].Replayed)
	assert.False(t, rows[2].Match, "dispatch lists of different length should diverge")
	assert.True(t, rows[3].Match, "zero count should match an absent name")
	assert.Equal(t, 2, Diverged(rows))
}

// #endregion compare-tests
