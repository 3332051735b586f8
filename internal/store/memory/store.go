// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/regwatch/regcrawler/internal/regwatch"
)

// EventStore keeps regulation events and status history in maps.
type EventStore struct {
	mu      sync.RWMutex
	events  map[string]regwatch.RegulationEvent
	changes map[string][]regwatch.StatusChange
}

// NewEventStore constructs an EventStore.
func NewEventStore() *EventStore {
	return &EventStore{
		events:  make(map[string]regwatch.RegulationEvent),
		changes: make(map[string][]regwatch.StatusChange),
	}
}

// GetEvent returns the event with the given id.
func (s *EventStore) GetEvent(_ context.Context, id string) (regwatch.RegulationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return regwatch.RegulationEvent{}, regwatch.ErrEventNotFound
	}
	return ev, nil
}

// InsertEvent stores a new event row.
func (s *EventStore) InsertEvent(_ context.Context, event regwatch.RegulationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ID] = event
	return nil
}

// UpdateEvent replaces an existing event row.
func (s *EventStore) UpdateEvent(_ context.Context, event regwatch.RegulationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[event.ID]; !ok {
		return regwatch.ErrEventNotFound
	}
	s.events[event.ID] = event
	return nil
}

// TouchEvent bumps last_crawled_at/updated_at without altering content.
func (s *EventStore) TouchEvent(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return regwatch.ErrEventNotFound
	}
	ev.UpdatedAt = at
	ev.LastCrawledAt = at
	s.events[id] = ev
	return nil
}

// AppendStatusChange records one stage transition. Rows are never mutated.
func (s *EventStore) AppendStatusChange(_ context.Context, change regwatch.StatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes[change.EventID] = append(s.changes[change.EventID], change)
	return nil
}

// ListStatusChanges returns an event's transitions ordered by changed-at,
// then insertion order.
func (s *EventStore) ListStatusChanges(_ context.Context, eventID string) ([]regwatch.StatusChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]regwatch.StatusChange, len(s.changes[eventID]))
	copy(out, s.changes[eventID])
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ChangedAt.Before(out[j].ChangedAt)
	})
	return out, nil
}

// ListRecentEvents returns up to limit events, most recently updated first.
func (s *EventStore) ListRecentEvents(_ context.Context, limit int) ([]regwatch.RegulationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]regwatch.RegulationEvent, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len reports the number of stored events.
func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// RunStore keeps the crawl-run ledger in a map.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]regwatch.CrawlRun
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]regwatch.CrawlRun)}
}

// CreateRun records a run in running state.
func (s *RunStore) CreateRun(_ context.Context, run regwatch.CrawlRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

// FinalizeRun writes the run's terminal state. A finalized run is never
// re-opened.
func (s *RunStore) FinalizeRun(_ context.Context, run regwatch.CrawlRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.runs[run.ID]
	if !ok || existing.FinishedAt != nil {
		return regwatch.ErrRunNotFound
	}
	s.runs[run.ID] = run
	return nil
}

// GetRun returns the run with the given id.
func (s *RunStore) GetRun(_ context.Context, id string) (regwatch.CrawlRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return regwatch.CrawlRun{}, regwatch.ErrRunNotFound
	}
	return run, nil
}
