package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/trainwatch/internal/sink"
	"github.com/danielpatrickdp/trainwatch/internal/store"
)

// #region helpers
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.Execute()
	return stdout.String(), err
}

const runConfig = `
run:
  epochs: 3
  batches_per_epoch: 4
  seed: 11
watchers:
  - metric: val_loss
    mode: min
    key: loss
dispatchers:
  - metric: val_loss
    mode: min
    on: epoch-end
    action: record
`
// #endregion helpers

// #region logger-tests
func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn", "json")
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "k", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = newLogger(&buf, "loud", "text")
	assert.Error(t, err)
	_, err = newLogger(&buf, "info", "xml")
	assert.Error(t, err)
}

func TestNewLogger_AutoFormatOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "info", "auto")
	require.NoError(t, err)
	logger.Info("piped")
	assert.Contains(t, buf.String(), `"msg":"piped"`)
	assert.False(t, isTerminal(&buf))
}
// #endregion logger-tests

// #region replay-tests
func TestReplayCommand_Fixture(t *testing.T) {
	out, err := execute(t, "replay", "--fixture", filepath.Join("..", "..", "internal", "replay", "testdata", "loss_curve.json"))
	require.NoError(t, err)
	assert.Contains(t, out, "Summary: 13 total, 13 match, 0 diverge")
}

func TestReplayCommand_DivergenceExitsOne(t *testing.T) {
	fixture := `{
  "config": {"watchers": [{"metric": "loss", "mode": "min"}]},
  "epochs": [[1.0, 3.0]],
  "expected": {"epoch_means": {"loss": [1.5]}}
}`
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))

	out, err := execute(t, "replay", "--fixture", path)
	require.Error(t, err)
	var ee *exitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, 1, ee.code)
	assert.Contains(t, out, "DIFF")
}

func TestReplayCommand_RequiresFixture(t *testing.T) {
	_, err := execute(t, "replay")
	assert.Error(t, err)
}
// #endregion replay-tests

// #region run-inspect-tests
func TestRunThenInspect(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "trainwatch.yaml")
	dbPath := filepath.Join(dir, "runs.db")
	require.NoError(t, os.WriteFile(cfgPath, []byte(runConfig), 0o644))
	t.Setenv("TRAINWATCH_DB", "")
	t.Setenv("TRAINWATCH_REMOTE_ADDR", "")

	out, err := execute(t, "run", "--config", cfgPath, "--db", dbPath, "--quiet")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "Run: "), out)
	runID := strings.TrimSpace(strings.SplitN(strings.TrimPrefix(out, "Run: "), "\n", 2)[0])
	assert.Contains(t, out, "val_loss")
	assert.Contains(t, out, "Dispatcher(metric=val_loss, mode=min, on=epoch-end) fired")

	out, err = execute(t, "inspect", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, runID)

	out, err = execute(t, "inspect", "--db", dbPath, "--run", runID, "--json")
	require.NoError(t, err)
	var detail detailOutput
	require.NoError(t, json.Unmarshal([]byte(out), &detail))
	assert.Equal(t, runID, detail.RunID)
	assert.Contains(t, detail.Latest, "val_loss")
	assert.Contains(t, detail.Latest, "best_val_loss")
	assert.Contains(t, detail.Latest, "run_time")
	require.NotEmpty(t, detail.Dispatches)
	assert.Equal(t, 0, detail.Dispatches[0].Epoch)
	assert.Equal(t, "record", detail.Dispatches[0].Action)
	assert.NotEmpty(t, detail.Config)
}

func TestInspect_UnknownRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	_, err := execute(t, "inspect", "--db", dbPath, "--run", "missing")
	assert.Error(t, err)
}

func TestRun_InvalidConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "trainwatch.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("run:\n  epochs: 0\n"), 0o644))
	_, err := execute(t, "run", "--config", cfgPath)
	assert.Error(t, err)
}
// #endregion run-inspect-tests

// #region collect-tests
func TestCollector_StoresBatches(t *testing.T) {
	st, err := store.NewStore(filepath.Join(t.TempDir(), "collect.db"))
	require.NoError(t, err)
	defer st.Close()

	c := newCollector(st, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()
	require.NoError(t, c.Record(ctx, "run-a", []sink.Entry{{Name: "loss", Value: 2}}))
	require.NoError(t, c.Record(ctx, "run-a", []sink.Entry{{Name: "loss", Value: 1}}))
	require.NoError(t, c.Record(ctx, "run-b", []sink.Entry{{Name: "acc", Value: 0.5}}))

	hist, err := st.History("run-a", "loss")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, int64(0), hist[0].Step)
	assert.Equal(t, int64(1), hist[1].Step)
	assert.Equal(t, 1.0, hist[1].Value)

	runs, err := st.Runs()
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestCollector_LogOnly(t *testing.T) {
	c := newCollector(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.NoError(t, c.Record(context.Background(), "run", []sink.Entry{{Name: "loss", Value: 1}}))
}
// #endregion collect-tests
