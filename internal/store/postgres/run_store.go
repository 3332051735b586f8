package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/regwatch/regcrawler/internal/regwatch"
)

// RunStore persists the append-only crawl-run ledger.
//
// Expected schema:
//
//	CREATE TABLE crawl_runs (
//	    id TEXT PRIMARY KEY,
//	    started_at TIMESTAMPTZ NOT NULL,
//	    finished_at TIMESTAMPTZ,
//	    status TEXT NOT NULL,
//	    sources_attempted INT NOT NULL DEFAULT 0,
//	    sources_succeeded INT NOT NULL DEFAULT 0,
//	    sources_failed INT NOT NULL DEFAULT 0,
//	    items_discovered INT NOT NULL DEFAULT 0,
//	    events_created INT NOT NULL DEFAULT 0,
//	    events_updated INT NOT NULL DEFAULT 0,
//	    events_status_changed INT NOT NULL DEFAULT 0,
//	    events_ignored INT NOT NULL DEFAULT 0
//	);
type RunStore struct {
	pool pool
}

// NewRunStore connects a pool and returns a RunStore.
func NewRunStore(ctx context.Context, cfg Config) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	p, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RunStore{pool: p}, nil
}

// NewRunStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewRunStoreWithPool(p pool) (*RunStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateRun inserts a run row in running state.
func (s *RunStore) CreateRun(ctx context.Context, run regwatch.CrawlRun) error {
	query := `INSERT INTO crawl_runs (id, started_at, status) VALUES ($1, $2, $3)`
	if _, err := s.pool.Exec(ctx, query, run.ID, run.StartedAt, string(run.Status)); err != nil {
		return fmt.Errorf("insert crawl run: %w", err)
	}
	return nil
}

// FinalizeRun writes the run's terminal state and counters exactly once.
func (s *RunStore) FinalizeRun(ctx context.Context, run regwatch.CrawlRun) error {
	query := `UPDATE crawl_runs SET
finished_at = $2, status = $3,
sources_attempted = $4, sources_succeeded = $5, sources_failed = $6,
items_discovered = $7,
events_created = $8, events_updated = $9, events_status_changed = $10, events_ignored = $11
WHERE id = $1 AND finished_at IS NULL`
	tag, err := s.pool.Exec(ctx, query,
		run.ID,
		run.FinishedAt,
		string(run.Status),
		run.SourcesAttempted,
		run.SourcesSucceeded,
		run.SourcesFailed,
		run.ItemsDiscovered,
		run.EventsCreated,
		run.EventsUpdated,
		run.EventsStatusChanged,
		run.EventsIgnored,
	)
	if err != nil {
		return fmt.Errorf("finalize crawl run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return regwatch.ErrRunNotFound
	}
	return nil
}

// GetRun returns the run with the given id.
func (s *RunStore) GetRun(ctx context.Context, id string) (regwatch.CrawlRun, error) {
	query := `SELECT id, started_at, finished_at, status,
sources_attempted, sources_succeeded, sources_failed, items_discovered,
events_created, events_updated, events_status_changed, events_ignored
FROM crawl_runs WHERE id = $1`
	var run regwatch.CrawlRun
	var status string
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.SourcesAttempted,
		&run.SourcesSucceeded,
		&run.SourcesFailed,
		&run.ItemsDiscovered,
		&run.EventsCreated,
		&run.EventsUpdated,
		&run.EventsStatusChanged,
		&run.EventsIgnored,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return regwatch.CrawlRun{}, regwatch.ErrRunNotFound
	}
	if err != nil {
		return regwatch.CrawlRun{}, fmt.Errorf("select crawl run: %w", err)
	}
	run.Status = regwatch.RunStatus(status)
	return run, nil
}
