// Package cache is the on-disk memo for LLM responses. Summaries and
// tag suggestions are deterministic enough to reuse for a week, and
// re-running a large export should not pay for the same completions
// twice. Liveness results are deliberately not cached: the whole point
// of a run is fresh reachability data.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_expires ON cache_entries(expires_at);
`

// Store is a TTL'd key-value cache backed by SQLite.
type Store struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// Open creates (or reuses) the database at path. Parent directories
// are created as needed.
func Open(path string, ttl time.Duration) (*Store, error) {
	if ttl <= 0 {
		return nil, errors.New("cache ttl must be positive")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}

	return &Store{db: db, ttl: ttl, now: time.Now}, nil
}

// Get returns the cached value for key, or ok=false on a miss or an
// expired entry.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM cache_entries WHERE key = ? AND expires_at > ?",
		key, s.now().Unix(),
	).Scan(&value)
	if err != nil {
		return nil, false
	}
	return value, true
}

// Set stores value under key with a fresh TTL, replacing any previous
// entry.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	expires := s.now().Add(s.ttl).Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries(key, value, expires_at) VALUES(?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expires,
	)
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Purge deletes expired entries and reports how many went.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM cache_entries WHERE expires_at <= ?", s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("cache purge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cache purge count: %w", err)
	}
	return n, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
