// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/regwatch/regcrawler/internal/regwatch"
)

// pool is the subset of pgxpool.Pool the stores need; pgxmock satisfies it.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// EventStore persists regulation events and status history in Postgres.
//
// Expected schema:
//
//	CREATE TABLE regulation_events (
//	    id TEXT PRIMARY KEY,
//	    title TEXT NOT NULL,
//	    country TEXT NOT NULL,
//	    state TEXT,
//	    stage TEXT NOT NULL,
//	    age_bracket TEXT NOT NULL,
//	    applies_under_16 BOOLEAN NOT NULL,
//	    impact_score INT NOT NULL,
//	    likelihood_score INT NOT NULL,
//	    confidence_score INT NOT NULL,
//	    chili_score INT NOT NULL,
//	    summary TEXT NOT NULL,
//	    business_impact TEXT NOT NULL,
//	    required_solutions TEXT[] NOT NULL,
//	    affected_products TEXT[] NOT NULL,
//	    competitor_responses TEXT[] NOT NULL,
//	    raw_text TEXT NOT NULL,
//	    source_url TEXT NOT NULL,
//	    item_url TEXT NOT NULL,
//	    effective_date TIMESTAMPTZ,
//	    published_at TIMESTAMPTZ,
//	    source_id TEXT NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL,
//	    last_crawled_at TIMESTAMPTZ NOT NULL
//	);
//
//	CREATE TABLE status_changes (
//	    id BIGSERIAL PRIMARY KEY,
//	    event_id TEXT NOT NULL REFERENCES regulation_events(id),
//	    previous_stage TEXT NOT NULL,
//	    new_stage TEXT NOT NULL,
//	    changed_at TIMESTAMPTZ NOT NULL
//	);
type EventStore struct {
	pool pool
}

// NewEventStore connects a pool and returns an EventStore.
func NewEventStore(ctx context.Context, cfg Config) (*EventStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &EventStore{pool: p}, nil
}

// NewEventStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewEventStoreWithPool(p pool) (*EventStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &EventStore{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *EventStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const eventColumns = `id, title, country, state, stage, age_bracket, applies_under_16,
impact_score, likelihood_score, confidence_score, chili_score,
summary, business_impact, required_solutions, affected_products, competitor_responses,
raw_text, source_url, item_url, effective_date, published_at, source_id,
created_at, updated_at, last_crawled_at`

// GetEvent returns the event with the given identity.
func (s *EventStore) GetEvent(ctx context.Context, id string) (regwatch.RegulationEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM regulation_events WHERE id = $1`
	row := s.pool.QueryRow(ctx, query, id)
	ev, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return regwatch.RegulationEvent{}, regwatch.ErrEventNotFound
	}
	if err != nil {
		return regwatch.RegulationEvent{}, fmt.Errorf("select event: %w", err)
	}
	return ev, nil
}

// InsertEvent stores a new event row.
func (s *EventStore) InsertEvent(ctx context.Context, ev regwatch.RegulationEvent) error {
	query := `INSERT INTO regulation_events (` + eventColumns + `) VALUES
($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)`
	if _, err := s.pool.Exec(ctx, query, eventArgs(ev)...); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// UpdateEvent replaces an existing event's content.
func (s *EventStore) UpdateEvent(ctx context.Context, ev regwatch.RegulationEvent) error {
	query := `UPDATE regulation_events SET
title = $2, country = $3, state = $4, stage = $5, age_bracket = $6, applies_under_16 = $7,
impact_score = $8, likelihood_score = $9, confidence_score = $10, chili_score = $11,
summary = $12, business_impact = $13, required_solutions = $14, affected_products = $15,
competitor_responses = $16, raw_text = $17, source_url = $18, item_url = $19,
effective_date = $20, published_at = $21, source_id = $22,
created_at = $23, updated_at = $24, last_crawled_at = $25
WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, eventArgs(ev)...)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return regwatch.ErrEventNotFound
	}
	return nil
}

// TouchEvent bumps updated_at/last_crawled_at without altering content.
func (s *EventStore) TouchEvent(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE regulation_events SET updated_at = $2, last_crawled_at = $2 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("touch event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return regwatch.ErrEventNotFound
	}
	return nil
}

// AppendStatusChange records one stage transition.
func (s *EventStore) AppendStatusChange(ctx context.Context, change regwatch.StatusChange) error {
	query := `INSERT INTO status_changes (event_id, previous_stage, new_stage, changed_at)
VALUES ($1, $2, $3, $4)`
	_, err := s.pool.Exec(ctx, query,
		change.EventID, string(change.PreviousStage), string(change.NewStage), change.ChangedAt)
	if err != nil {
		return fmt.Errorf("insert status change: %w", err)
	}
	return nil
}

// ListStatusChanges returns an event's transitions ordered for display.
func (s *EventStore) ListStatusChanges(ctx context.Context, eventID string) ([]regwatch.StatusChange, error) {
	query := `SELECT event_id, previous_stage, new_stage, changed_at
FROM status_changes WHERE event_id = $1 ORDER BY changed_at, id`
	rows, err := s.pool.Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("select status changes: %w", err)
	}
	defer rows.Close()

	var out []regwatch.StatusChange
	for rows.Next() {
		var change regwatch.StatusChange
		var prev, next string
		if err := rows.Scan(&change.EventID, &prev, &next, &change.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan status change: %w", err)
		}
		change.PreviousStage = regwatch.Stage(prev)
		change.NewStage = regwatch.Stage(next)
		out = append(out, change)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status changes: %w", err)
	}
	return out, nil
}

// ListRecentEvents returns up to limit events, most recently updated first.
func (s *EventStore) ListRecentEvents(ctx context.Context, limit int) ([]regwatch.RegulationEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + eventColumns + ` FROM regulation_events ORDER BY updated_at DESC LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	defer rows.Close()

	var out []regwatch.RegulationEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

func eventArgs(ev regwatch.RegulationEvent) []any {
	return []any{
		ev.ID,
		ev.Title,
		ev.Country,
		ev.State,
		string(ev.Stage),
		string(ev.AgeBracket),
		ev.AppliesUnder16,
		ev.ImpactScore,
		ev.LikelihoodScore,
		ev.ConfidenceScore,
		ev.ChiliScore,
		ev.Summary,
		ev.BusinessImpact,
		ev.RequiredSolutions,
		ev.AffectedProducts,
		ev.CompetitorResponses,
		ev.RawText,
		ev.SourceURL,
		ev.ItemURL,
		ev.EffectiveDate,
		ev.PublishedAt,
		ev.SourceID,
		ev.CreatedAt,
		ev.UpdatedAt,
		ev.LastCrawledAt,
	}
}

func scanEvent(row pgx.Row) (regwatch.RegulationEvent, error) {
	var ev regwatch.RegulationEvent
	var stage, ageBracket string
	err := row.Scan(
		&ev.ID,
		&ev.Title,
		&ev.Country,
		&ev.State,
		&stage,
		&ageBracket,
		&ev.AppliesUnder16,
		&ev.ImpactScore,
		&ev.LikelihoodScore,
		&ev.ConfidenceScore,
		&ev.ChiliScore,
		&ev.Summary,
		&ev.BusinessImpact,
		&ev.RequiredSolutions,
		&ev.AffectedProducts,
		&ev.CompetitorResponses,
		&ev.RawText,
		&ev.SourceURL,
		&ev.ItemURL,
		&ev.EffectiveDate,
		&ev.PublishedAt,
		&ev.SourceID,
		&ev.CreatedAt,
		&ev.UpdatedAt,
		&ev.LastCrawledAt,
	)
	if err != nil {
		return regwatch.RegulationEvent{}, err
	}
	ev.Stage = regwatch.Stage(stage)
	ev.AgeBracket = regwatch.AgeBracket(ageBracket)
	return ev, nil
}
