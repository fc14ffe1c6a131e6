package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/trainwatch/internal/best"
	"github.com/danielpatrickdp/trainwatch/internal/watch"
)

const sample = `
run:
  epochs: 5
  batches_per_epoch: 20
  seed: 3
  noise: 0.02
schedule:
  kind: step
  base_lr: 0.1
  step_size: 2
  gamma: 0.5
  interval: epoch
  frequency: 1
cadence:
  every: 10
  sole_authority: true
watchers:
  - metric: val_loss
    mode: min
    key: loss
    log_step: true
  - metric: val_acc
    mode: max
    key: acc
    tie_counts: false
dispatchers:
  - metric: val_loss
    mode: min
    on: epoch-end
    action: checkpoint
    dir: ckpt
  - metric: val_acc
    mode: max
    on: on_epoch_end
    action: log
sinks:
  sqlite: runs.db
  metrics_addr: ":9108"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trainwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Sample(t *testing.T) {
	t.Setenv(EnvDB, "")
	t.Setenv(EnvRemoteAddr, "")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, RunConfig{Epochs: 5, BatchesPerEpoch: 20, Seed: 3, Noise: 0.02}, cfg.Run)
	require.NotNil(t, cfg.Schedule)
	assert.Equal(t, "step", cfg.Schedule.Kind)
	assert.Equal(t, 2, cfg.Schedule.StepSize)
	assert.Equal(t, "epoch", cfg.Schedule.Interval)
	require.NotNil(t, cfg.Cadence)
	assert.Equal(t, int64(10), cfg.Cadence.Every)
	assert.True(t, cfg.Cadence.SoleAuthority)
	require.Len(t, cfg.Watchers, 2)
	require.Len(t, cfg.Dispatchers, 2)
	assert.Equal(t, "runs.db", cfg.Sinks.SQLite)
	assert.Equal(t, ":9108", cfg.Sinks.MetricsAddr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvDB, "/tmp/override.db")
	t.Setenv(EnvRemoteAddr, "collector:7070")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", cfg.Sinks.SQLite)
	assert.Equal(t, "collector:7070", cfg.Sinks.Remote)
}

func TestLoad_OverridesWinOverEnv(t *testing.T) {
	t.Setenv(EnvDB, "/tmp/override.db")

	cfg, err := Load(writeConfig(t, sample), func(c *Config) { c.Sinks.SQLite = "flag.db" })
	require.NoError(t, err)
	assert.Equal(t, "flag.db", cfg.Sinks.SQLite)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse(strings.NewReader("run:\n  epochs: 1\n  batchez: 2\n"))
	assert.Error(t, err)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Error(t, cfg.Validate(), "zero epochs must not validate")
}

func TestValidate_Rejects(t *testing.T) {
	base := func() *Config {
		cfg, err := Parse(strings.NewReader(sample))
		require.NoError(t, err)
		return cfg
	}
	idx := 0

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero epochs", func(c *Config) { c.Run.Epochs = 0 }},
		{"negative noise", func(c *Config) { c.Run.Noise = -1 }},
		{"bad schedule kind", func(c *Config) { c.Schedule.Kind = "linear" }},
		{"bad schedule interval", func(c *Config) { c.Schedule.Interval = "batch" }},
		{"zero cadence", func(c *Config) { c.Cadence.Every = 0 }},
		{"bad watcher mode", func(c *Config) { c.Watchers[0].Mode = "avg" }},
		{"watcher without metric", func(c *Config) { c.Watchers[1].Metric = "" }},
		{"key and index", func(c *Config) { c.Watchers[0].Index = &idx }},
		{"unknown hook", func(c *Config) { c.Dispatchers[1].On = "on_step" }},
		{"unknown action", func(c *Config) { c.Dispatchers[1].Action = "email" }},
		{"checkpoint without dir", func(c *Config) { c.Dispatchers[0].Dir = "" }},
		{"record without sqlite", func(c *Config) {
			c.Dispatchers[1].Action = "record"
			c.Sinks.SQLite = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWatcherConfig_WatchConfig(t *testing.T) {
	no := false
	two := 2

	got := WatcherConfig{Metric: "val_loss", Mode: "min", LogStep: true, Key: "loss"}.WatchConfig()
	assert.Equal(t, "val_loss", got.Metric)
	assert.Equal(t, best.Min, got.Mode)
	assert.True(t, got.TieCounts, "ties count unless disabled")
	assert.True(t, got.LogStep)
	assert.Equal(t, watch.Key("loss"), got.Extractor)

	got = WatcherConfig{Metric: "top1", Mode: "max", TieCounts: &no, Index: &two}.WatchConfig()
	assert.False(t, got.TieCounts)
	assert.Equal(t, watch.Index(2), got.Extractor)

	got = WatcherConfig{Metric: "acc", Mode: "max"}.WatchConfig()
	assert.Equal(t, watch.Identity(), got.Extractor)
}
