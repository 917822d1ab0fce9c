// Package db wraps the sqlite-backed audit store used by internal/health.
// Adapted from the teacher's internal/db/db.go (same DSN shape, same
// WAL + busy_timeout pragmas), repurposed from a download-jobs table to
// an index-build-event table.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

type DB struct {
	SQL *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	s, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// modernc.org/sqlite tolerates multiple reader connections; writes
	// still serialize internally.
	s.SetMaxOpenConns(4)
	s.SetMaxIdleConns(4)

	d := &DB{SQL: s}
	if err := d.migrate(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) Close() error { return d.SQL.Close() }

func (d *DB) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS index_build_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			data_path TEXT NOT NULL,
			index_path TEXT NOT NULL,
			decision TEXT NOT NULL,
			file_size INTEGER NOT NULL,
			total_rows INTEGER NOT NULL,
			granularity INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_build_events_created ON index_build_events(created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := d.SQL.Exec(stmt); err != nil {
			return fmt.Errorf("db: migrate: %w", err)
		}
	}
	return nil
}
