package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/nbaudit/internal/errors"
)

// Measurement kinds.
const (
	KindTransparency = "transparency"
	KindOCRContrast  = "ocr_contrast"
	KindPalette      = "palette_contrast"
)

// Key identifies one measurement of one image.
type Key struct {
	Digest string // SHA-256 of the image bytes
	Kind   string
	Params string // analysis parameters that affect the value
}

// Entry is one stored measurement.
type Entry struct {
	Value  float64
	Detail string // analyzer-specific annotation, e.g. the measured colors
}

// Get returns the stored entry for key.
// Returns NOT_FOUND if nothing is stored.
func Get(ctx context.Context, db *sql.DB, key Key) (Entry, error) {
	query := `
		SELECT value, detail FROM measurements
		WHERE digest = ? AND kind = ? AND params = ?
	`

	var e Entry
	err := db.QueryRowContext(ctx, query, key.Digest, key.Kind, key.Params).Scan(&e.Value, &e.Detail)
	if err == sql.ErrNoRows {
		return Entry{}, errors.NewNotFound(key.Kind + ":" + key.Digest)
	}
	if err != nil {
		return Entry{}, errors.NewInternal(err)
	}
	return e, nil
}

// Put stores e for key, replacing any previous entry.
func Put(ctx context.Context, db *sql.DB, key Key, e Entry) error {
	query := `
		INSERT INTO measurements (digest, kind, params, value, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (digest, kind, params)
		DO UPDATE SET value = excluded.value, detail = excluded.detail, created_at = excluded.created_at
	`

	_, err := db.ExecContext(ctx, query, key.Digest, key.Kind, key.Params, e.Value, e.Detail, time.Now().Unix())
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// PurgeBefore deletes measurements created before cutoff.
// Returns the number of rows removed.
func PurgeBefore(ctx context.Context, db *sql.DB, cutoff time.Time) (int, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM measurements WHERE created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return int(n), nil
}

// Count returns the number of stored measurements.
func Count(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM measurements`).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// Cache is a measurement store the analyzers consult before computing.
// A nil *Cache is valid and never hits.
type Cache struct {
	db *sql.DB
}

// NewCache wraps an initialized database.
func NewCache(db *sql.DB) *Cache {
	return &Cache{db: db}
}

// Lookup returns the stored entry and whether it was found.
// Store errors count as a miss.
func (c *Cache) Lookup(ctx context.Context, key Key) (Entry, bool) {
	if c == nil || c.db == nil || key.Digest == "" {
		return Entry{}, false
	}
	e, err := Get(ctx, c.db, key)
	if err != nil {
		return Entry{}, false
	}
	return e, true
}

// Store records e for key. Errors are returned for logging only.
func (c *Cache) Store(ctx context.Context, key Key, e Entry) error {
	if c == nil || c.db == nil || key.Digest == "" {
		return nil
	}
	return Put(ctx, c.db, key, e)
}

// DB exposes the underlying handle.
func (c *Cache) DB() *sql.DB {
	if c == nil {
		return nil
	}
	return c.db
}

// Close releases the database.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}
