// Package store implements the upsert engine that owns all writes to
// regulation events and their status history.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/regwatch/regcrawler/internal/regwatch"
)

// Engine applies the create/update/status-change/unchanged decision for
// candidate events. It must only be called from a serialized write path;
// the backing store does not support concurrent writers.
type Engine struct {
	events regwatch.EventStore
	clock  regwatch.Clock
	logger *zap.Logger
}

// NewEngine builds an Engine.
func NewEngine(events regwatch.EventStore, clock regwatch.Clock, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{events: events, clock: clock, logger: logger}
}

// Upsert resolves the candidate's deterministic identity, looks up any
// existing row, and applies exactly one outcome. A stage transition
// appends one StatusChange row.
func (e *Engine) Upsert(ctx context.Context, candidate regwatch.RegulationEvent) (regwatch.UpsertOutcome, error) {
	candidate = normalizeCandidate(candidate)
	candidate.ID = regwatch.EventIdentity(candidate.Country, candidate.State, candidate.Title)
	now := e.clock.Now()

	existing, err := e.events.GetEvent(ctx, candidate.ID)
	if errors.Is(err, regwatch.ErrEventNotFound) {
		candidate.CreatedAt = now
		candidate.UpdatedAt = now
		candidate.LastCrawledAt = now
		if err := e.events.InsertEvent(ctx, candidate); err != nil {
			return "", fmt.Errorf("insert event: %w", err)
		}
		return regwatch.OutcomeCreated, nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup event: %w", err)
	}

	if contentEqual(existing, candidate) {
		if err := e.events.TouchEvent(ctx, existing.ID, now); err != nil {
			return "", fmt.Errorf("touch event: %w", err)
		}
		return regwatch.OutcomeUnchanged, nil
	}

	candidate.CreatedAt = existing.CreatedAt
	candidate.UpdatedAt = now
	candidate.LastCrawledAt = now
	if err := e.events.UpdateEvent(ctx, candidate); err != nil {
		return "", fmt.Errorf("update event: %w", err)
	}

	if existing.Stage != candidate.Stage {
		change := regwatch.StatusChange{
			EventID:       candidate.ID,
			PreviousStage: existing.Stage,
			NewStage:      candidate.Stage,
			ChangedAt:     now,
		}
		if err := e.events.AppendStatusChange(ctx, change); err != nil {
			return "", fmt.Errorf("append status change: %w", err)
		}
		e.logger.Info("stage transition",
			zap.String("event_id", candidate.ID),
			zap.String("previous", string(existing.Stage)),
			zap.String("new", string(candidate.Stage)))
		return regwatch.OutcomeStatusChanged, nil
	}
	return regwatch.OutcomeUpdated, nil
}

// normalizeCandidate enforces row invariants regardless of the caller:
// scores clamped to [1,5] and stage within the enum.
func normalizeCandidate(ev regwatch.RegulationEvent) regwatch.RegulationEvent {
	ev.ImpactScore = clamp(ev.ImpactScore)
	ev.LikelihoodScore = clamp(ev.LikelihoodScore)
	ev.ConfidenceScore = clamp(ev.ConfidenceScore)
	ev.ChiliScore = clamp(ev.ChiliScore)
	if !regwatch.ValidStage(ev.Stage) {
		ev.Stage = regwatch.StageProposed
	}
	return ev
}

func clamp(score int) int {
	if score < 1 {
		return 1
	}
	if score > 5 {
		return 5
	}
	return score
}

// contentEqual compares every field that participates in the
// updated/unchanged decision. Timestamps are deliberately excluded.
func contentEqual(a, b regwatch.RegulationEvent) bool {
	return a.Stage == b.Stage &&
		a.AgeBracket == b.AgeBracket &&
		a.AppliesUnder16 == b.AppliesUnder16 &&
		a.ImpactScore == b.ImpactScore &&
		a.LikelihoodScore == b.LikelihoodScore &&
		a.ConfidenceScore == b.ConfidenceScore &&
		a.ChiliScore == b.ChiliScore &&
		a.Summary == b.Summary &&
		a.BusinessImpact == b.BusinessImpact &&
		a.RawText == b.RawText &&
		a.SourceURL == b.SourceURL &&
		a.ItemURL == b.ItemURL &&
		stringSlicesEqual(a.RequiredSolutions, b.RequiredSolutions) &&
		stringSlicesEqual(a.AffectedProducts, b.AffectedProducts) &&
		stringSlicesEqual(a.CompetitorResponses, b.CompetitorResponses)
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
