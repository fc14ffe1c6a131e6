package logging

import "time"

// #region dispatch-entry
// DispatchEntry is a single row in the dispatch_log table: one firing of a
// conditional action.
type DispatchEntry struct {
	RunID     string
	Metric    string
	Mode      string // "min" | "max"
	Hook      string
	Value     float64 // the improving value that fired the action
	Epoch     int
	Step      int64
	Action    string
	Detail    string
	CreatedAt time.Time
}
// #endregion dispatch-entry
