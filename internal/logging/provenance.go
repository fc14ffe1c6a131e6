package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// #region log-dispatch
// LogDispatch writes a dispatch entry to the dispatch_log table.
func LogDispatch(db *sql.DB, entry DispatchEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO dispatch_log (run_id, metric, mode, hook, value, epoch, step, action, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		entry.Metric,
		entry.Mode,
		entry.Hook,
		entry.Value,
		entry.Epoch,
		entry.Step,
		entry.Action,
		nullIfEmpty(entry.Detail),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log dispatch: %w", err)
	}
	return nil
}
// #endregion log-dispatch

// #region dispatches
// Dispatches returns the dispatch history of a run, oldest first.
func Dispatches(db *sql.DB, runID string) ([]DispatchEntry, error) {
	rows, err := db.Query(
		`SELECT run_id, metric, mode, hook, value, epoch, step, action, COALESCE(detail, ''), created_at
		 FROM dispatch_log WHERE run_id = ? ORDER BY id ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query dispatches: %w", err)
	}
	defer rows.Close()

	var out []DispatchEntry
	for rows.Next() {
		var e DispatchEntry
		var created string
		if err := rows.Scan(&e.RunID, &e.Metric, &e.Mode, &e.Hook, &e.Value, &e.Epoch, &e.Step, &e.Action, &e.Detail, &created); err != nil {
			return nil, fmt.Errorf("scan dispatch: %w", err)
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
// #endregion dispatches

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
// #endregion helpers
