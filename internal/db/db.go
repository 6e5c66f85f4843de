// Package db stores image measurements in SQLite so repeated passes over
// unchanged images skip rasterization analysis and OCR.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/hpungsan/nbaudit/internal/config"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// memoryDSN keeps one in-process database; the pool is pinned to a single
// connection so every query sees the same memory.
const memoryDSN = ":memory:"

// Init opens the measurement cache at path. An empty path opens an
// in-memory database that lives as long as the returned handle.
func Init(path string) (*sql.DB, error) {
	if path == "" {
		db, err := sql.Open("sqlite", memoryDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(1)
		if err := migrate(db); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	// Pragmas in the connection string apply to every pooled connection
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	// Best-effort; the file exists once migrations ran
	_ = os.Chmod(path, 0600)

	return db, nil
}

// Open initializes the cache described by cfg.
func Open(cfg *config.Config) (*Cache, error) {
	path := ""
	if cfg != nil {
		path = cfg.CachePath
	}
	db, err := Init(path)
	if err != nil {
		return nil, err
	}
	return &Cache{db: db}, nil
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: measurements keyed by image digest and analysis
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS measurements (
		  digest      TEXT NOT NULL,
		  kind        TEXT NOT NULL,
		  params      TEXT NOT NULL,
		  value       REAL NOT NULL,
		  detail      TEXT NOT NULL DEFAULT '',
		  created_at  INTEGER NOT NULL,
		  PRIMARY KEY (digest, kind, params)
		);

		CREATE INDEX IF NOT EXISTS idx_measurements_created
		ON measurements(created_at);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
