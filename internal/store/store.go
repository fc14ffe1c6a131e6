package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	config_json TEXT,
	started_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS metric_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	step        INTEGER NOT NULL,
	name        TEXT NOT NULL,
	value       REAL NOT NULL,
	created_at  TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE INDEX IF NOT EXISTS idx_metric_log_run_name ON metric_log(run_id, name);

CREATE TABLE IF NOT EXISTS dispatch_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	metric      TEXT NOT NULL,
	mode        TEXT NOT NULL,
	hook        TEXT NOT NULL,
	value       REAL NOT NULL,
	epoch       INTEGER NOT NULL,
	step        INTEGER NOT NULL,
	action      TEXT NOT NULL,
	detail      TEXT,
	created_at  TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`
// #endregion schema

// #region types
// Run is one row of the runs table.
type Run struct {
	RunID      string
	ConfigJSON string
	StartedAt  time.Time
}

// Point is one logged metric value.
type Point struct {
	Step      int64
	Name      string
	Value     float64
	CreatedAt time.Time
}
// #endregion types

// #region store-struct
// Store persists training runs and their logged metrics in SQLite.
type Store struct {
	db *sql.DB
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Pragmas are per connection; one connection keeps them in force.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}
// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}
// #endregion close

// #region runs
// CreateRun registers a new run and returns its generated ID.
func (s *Store) CreateRun(configJSON string) (Run, error) {
	run := Run{
		RunID:      uuid.New().String(),
		ConfigJSON: configJSON,
		StartedAt:  time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, config_json, started_at) VALUES (?, ?, ?)`,
		run.RunID, nullIfEmpty(configJSON), run.StartedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// EnsureRun registers runID if it is not already known. Collectors use it
// for runs created in another process.
func (s *Store) EnsureRun(runID string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO runs (run_id, config_json, started_at) VALUES (?, NULL, ?)`,
		runID, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("ensure run: %w", err)
	}
	return nil
}

// Runs lists every run, newest first.
func (s *Store) Runs() ([]Run, error) {
	rows, err := s.db.Query(`SELECT run_id, COALESCE(config_json, ''), started_at FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started string
		if err := rows.Scan(&r.RunID, &r.ConfigJSON, &started); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, err = time.Parse(time.RFC3339Nano, started)
		if err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
// #endregion runs

// #region metrics
// LogMetric appends one value to the run's metric log.
func (s *Store) LogMetric(runID string, step int64, name string, value float64) error {
	_, err := s.db.Exec(
		`INSERT INTO metric_log (run_id, step, name, value, created_at) VALUES (?, ?, ?, ?, ?)`,
		runID, step, name, value, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log metric %s: %w", name, err)
	}
	return nil
}

// History returns every value logged under name for the run, oldest first.
func (s *Store) History(runID, name string) ([]Point, error) {
	rows, err := s.db.Query(
		`SELECT step, name, value, created_at FROM metric_log
		 WHERE run_id = ? AND name = ? ORDER BY id ASC`,
		runID, name,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	return scanPoints(rows)
}

// Latest returns the most recent value of every metric logged in the run,
// ordered by name.
func (s *Store) Latest(runID string) ([]Point, error) {
	rows, err := s.db.Query(
		`SELECT m.step, m.name, m.value, m.created_at FROM metric_log m
		 JOIN (SELECT name, MAX(id) AS id FROM metric_log WHERE run_id = ? GROUP BY name) last
		   ON m.id = last.id
		 ORDER BY m.name ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query latest: %w", err)
	}
	defer rows.Close()
	return scanPoints(rows)
}
// #endregion metrics

// #region helpers
func scanPoints(rows *sql.Rows) ([]Point, error) {
	var out []Point
	for rows.Next() {
		var p Point
		var created string
		if err := rows.Scan(&p.Step, &p.Name, &p.Value, &created); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		p.CreatedAt = t
		out = append(out, p)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
// #endregion helpers
