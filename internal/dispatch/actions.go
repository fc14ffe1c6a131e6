package dispatch

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/danielpatrickdp/trainwatch/internal/hooks"
	"github.com/danielpatrickdp/trainwatch/internal/logging"
)

// #region chain
// Chain runs actions in order and stops at the first error.
func Chain(actions ...Action) Action {
	return func(d *Dispatcher, ev hooks.Event) error {
		for _, a := range actions {
			if err := a(d, ev); err != nil {
				return err
			}
		}
		return nil
	}
}
// #endregion chain

// #region log-action
// LogAction reports each improvement at Info.
func LogAction(logger *slog.Logger) Action {
	if logger == nil {
		logger = slog.Default()
	}
	return func(d *Dispatcher, ev hooks.Event) error {
		logger.Info("metric improved",
			"metric", d.Metric(),
			"mode", string(d.Mode()),
			"value", d.Best(),
			"hook", d.Hook().String(),
			"epoch", ev.Epoch,
			"step", ev.Step,
		)
		return nil
	}
}
// #endregion log-action

// #region checkpoint-action
// Checkpoint is the JSON document CheckpointAction writes.
type Checkpoint struct {
	Metric string  `json:"metric"`
	Mode   string  `json:"mode"`
	Value  float64 `json:"value"`
	Epoch  int     `json:"epoch"`
	Step   int64   `json:"step"`
}

// CheckpointAction writes best-{metric}.json into dir on every improvement,
// replacing the previous file atomically.
func CheckpointAction(dir string) Action {
	return func(d *Dispatcher, ev hooks.Event) error {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("checkpoint dir: %w", err)
		}
		data, err := json.MarshalIndent(Checkpoint{
			Metric: d.Metric(),
			Mode:   string(d.Mode()),
			Value:  d.Best(),
			Epoch:  ev.Epoch,
			Step:   ev.Step,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal checkpoint: %w", err)
		}
		path := CheckpointPath(dir, d.Metric())
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			return fmt.Errorf("write checkpoint: %w", err)
		}
		if err := os.Rename(tmp, path); err != nil {
			return fmt.Errorf("commit checkpoint: %w", err)
		}
		return nil
	}
}

// CheckpointPath is where CheckpointAction writes for metric.
func CheckpointPath(dir, metric string) string {
	return filepath.Join(dir, "best-"+metric+".json")
}

// LoadCheckpoint reads a file written by CheckpointAction.
func LoadCheckpoint(path string) (Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("read checkpoint %s: %w", path, err)
	}
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return Checkpoint{}, fmt.Errorf("parse checkpoint %s: %w", path, err)
	}
	return c, nil
}
// #endregion checkpoint-action

// #region record-action
// RecordAction appends each firing to the dispatch_log table of db under
// runID. name identifies the action being recorded, detail is free text.
func RecordAction(db *sql.DB, runID, name, detail string) Action {
	return func(d *Dispatcher, ev hooks.Event) error {
		if db == nil {
			return errors.New("record action: no database")
		}
		return logging.LogDispatch(db, logging.DispatchEntry{
			RunID:  runID,
			Metric: d.Metric(),
			Mode:   string(d.Mode()),
			Hook:   d.Hook().String(),
			Value:  d.Best(),
			Epoch:  ev.Epoch,
			Step:   ev.Step,
			Action: name,
			Detail: detail,
		})
	}
}
// #endregion record-action
