// Package storage opens the local SQLite database used for the turn history.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist. MemoryPath is accepted for tests; any other
// path must pass CheckDatabasePath.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if err := CheckDatabasePath(path); err != nil {
		return nil, err
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps :memory: databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA journal_mode = WAL;",
	} {
		if _, err := db.ExecContext(pctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if err := Bootstrap(pctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Bootstrap creates tables and indexes if missing.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS turn_log (
  id           TEXT PRIMARY KEY,
  source       TEXT NOT NULL,
  prompt       TEXT NOT NULL,
  intent       TEXT,
  entities     JSON NOT NULL DEFAULT '[]',
  plugin       TEXT,
  status       TEXT NOT NULL,
  failure_kind TEXT,
  detail       TEXT,
  response     TEXT NOT NULL,
  duration_ms  INTEGER NOT NULL,
  created_at   TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS turn_log_created_at_idx ON turn_log(created_at);`,
		`CREATE INDEX IF NOT EXISTS turn_log_intent_idx ON turn_log(intent);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
