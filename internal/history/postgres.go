// Package history archives enrichment runs and per-bookmark checks in
// Postgres. The whole package is optional; when history is disabled the rest
// of the pipeline runs with a nil *Store.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config controls the Postgres connection pool behind the Store.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// CheckRecord is one bookmark check within a run.
type CheckRecord struct {
	Href        string
	FinalURL    string
	Live        bool
	Method      string
	StatusCode  int
	Redirected  bool
	Summarized  bool
	TagsAdded   int
	TagsDropped int
	Duration    time.Duration
	CheckedAt   time.Time
}

// Store writes run and check rows into Postgres.
type Store struct {
	pool execCloser
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("history.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(pool execCloser) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS enrichment_runs (
	run_id UUID PRIMARY KEY,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	total INTEGER NOT NULL DEFAULT 0,
	live INTEGER NOT NULL DEFAULT 0,
	offline INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS bookmark_checks (
	run_id UUID NOT NULL,
	href TEXT NOT NULL,
	final_url TEXT NOT NULL DEFAULT '',
	live BOOLEAN NOT NULL,
	method TEXT NOT NULL,
	status_code INTEGER NOT NULL DEFAULT 0,
	redirected BOOLEAN NOT NULL DEFAULT FALSE,
	summarized BOOLEAN NOT NULL DEFAULT FALSE,
	tags_added INTEGER NOT NULL DEFAULT 0,
	tags_dropped INTEGER NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	checked_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS bookmark_checks_run_idx ON bookmark_checks (run_id, checked_at);
`

// EnsureSchema creates the history tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("history store is not configured")
	}
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure history schema: %w", err)
	}
	return nil
}

// StartRun inserts the run header row. Retrying the same run ID is a no-op.
func (s *Store) StartRun(ctx context.Context, runID uuid.UUID, startedAt time.Time, total int) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("history store is not configured")
	}
	query := `
		INSERT INTO enrichment_runs (run_id, started_at, total)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id) DO NOTHING;
	`
	if _, err := s.pool.Exec(ctx, query, runID, startedAt, total); err != nil {
		return fmt.Errorf("insert run start: %w", err)
	}
	return nil
}

// CompleteRun stamps the run with its finish time and outcome counts.
func (s *Store) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	live, offline, failed int,
) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("history store is not configured")
	}
	query := `
		UPDATE enrichment_runs
		SET finished_at = $1, live = $2, offline = $3, failed = $4
		WHERE run_id = $5;
	`
	if _, err := s.pool.Exec(ctx, query, finishedAt, live, offline, failed, runID); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

// RecordCheck inserts one bookmark check row.
func (s *Store) RecordCheck(ctx context.Context, runID uuid.UUID, check CheckRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("history store is not configured")
	}
	if check.Href == "" {
		return fmt.Errorf("check href is required")
	}
	query := `
		INSERT INTO bookmark_checks (
			run_id,
			href,
			final_url,
			live,
			method,
			status_code,
			redirected,
			summarized,
			tags_added,
			tags_dropped,
			duration_ms,
			checked_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);
	`
	args := []any{
		runID,
		check.Href,
		check.FinalURL,
		check.Live,
		check.Method,
		check.StatusCode,
		check.Redirected,
		check.Summarized,
		check.TagsAdded,
		check.TagsDropped,
		check.Duration.Milliseconds(),
		check.CheckedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert bookmark check: %w", err)
	}
	return nil
}
