package eventsink

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const createTaskEventsTable = `
CREATE TABLE IF NOT EXISTS task_events (
    task_id     TEXT NOT NULL,
    worker_id   TEXT NOT NULL,
    method      TEXT NOT NULL,
    path        TEXT NOT NULL,
    success     INTEGER NOT NULL,
    error_kind  TEXT,
    duration_ms INTEGER NOT NULL,
    finished_at DATETIME NOT NULL
)`

// Compile-time interface satisfaction check.
var _ Sink = (*SQLiteSink)(nil)

// SQLiteSink persists task events to a local SQLite file, mirroring the
// teacher's SQLiteStore: WAL journal mode and a bounded busy timeout so
// concurrent writers from many dispatch goroutines don't trip SQLITE_BUSY.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens the SQLite database at dbPath and runs migrations.
func NewSQLiteSink(dbPath string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(createTaskEventsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create task_events table: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

// Record inserts one task event row.
func (s *SQLiteSink) Record(ctx context.Context, evt TaskEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_events (
			task_id, worker_id, method, path, success, error_kind,
			duration_ms, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		evt.TaskID, evt.WorkerID, evt.Method, evt.Path, evt.Success, evt.ErrorKind,
		evt.DurationMS, evt.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task event: %w", err)
	}
	return nil
}

// Stats computes aggregate counts over every recorded event.
func (s *SQLiteSink) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{CountByKind: make(map[string]int)}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*), COALESCE(AVG(duration_ms), 0) FROM task_events").
		Scan(&stats.Total, &stats.AvgDurationMS); err != nil {
		return nil, fmt.Errorf("aggregate task events: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(NULLIF(error_kind, ''), 'success') AS kind, COUNT(*) FROM task_events GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("count by kind: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("scan kind count: %w", err)
		}
		stats.CountByKind[kind] = count
	}
	return stats, rows.Err()
}

// Close closes the underlying database connection.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
