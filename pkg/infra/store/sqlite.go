// Package store provides the SQLite-backed persistence layer for
// alerts, delivery obligations, and subscriber preferences.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the shared SQLite handle. All tables live in one file so a
// single WAL checkpoint covers the whole system.
type DB struct {
	db *sql.DB
}

func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	// WAL mode for better concurrency between the ingest path and the
	// dispatcher's polling reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	d := &DB{db: db}
	if err := d.initSchema(); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return d, nil
}

func (d *DB) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		device_id TEXT NOT NULL,
		parameter TEXT NOT NULL,
		severity TEXT NOT NULL,
		status TEXT NOT NULL,
		current_value REAL NOT NULL,
		threshold TEXT,
		occurrence_count INTEGER NOT NULL,
		first_occurrence INTEGER NOT NULL,
		last_occurrence INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		acknowledged_at INTEGER,
		resolved_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_key ON alerts(device_id, parameter, status);
	CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
	CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at);

	CREATE TABLE IF NOT EXISTS obligations (
		id TEXT PRIMARY KEY,
		alert_id TEXT NOT NULL,
		subscriber_id TEXT NOT NULL,
		channel TEXT NOT NULL,
		attempt INTEGER NOT NULL,
		next_attempt_at INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		last_error TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_obligations_due ON obligations(outcome, next_attempt_at);
	CREATE INDEX IF NOT EXISTS idx_obligations_alert ON obligations(alert_id);

	CREATE TABLE IF NOT EXISTS preferences (
		subscriber_id TEXT PRIMARY KEY,
		email TEXT,
		push_target TEXT,
		channels TEXT NOT NULL,
		severities TEXT,
		parameters TEXT,
		devices TEXT,
		quiet_start TEXT,
		quiet_end TEXT,
		timezone TEXT,
		updated_at INTEGER NOT NULL
	);
	`
	_, err := d.db.Exec(query)
	return err
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Handle returns the underlying database connection.
func (d *DB) Handle() *sql.DB {
	return d.db
}
