package regwatch

import (
	"context"
	"errors"
	"time"
)

// ErrEventNotFound is returned by EventStore lookups for unknown identities.
var ErrEventNotFound = errors.New("regulation event not found")

// ErrRunNotFound is returned by RunStore lookups for unknown run ids.
var ErrRunNotFound = errors.New("crawl run not found")

// Fetcher retrieves one URL's raw payload with a bounded timeout.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Classifier judges one crawl input for relevance to the legal domain.
type Classifier interface {
	Classify(ctx context.Context, input CrawlInput) (Analysis, error)
}

// EventStore persists regulation events and their status history.
// Implementations are not required to support concurrent writers; all
// writes flow through the pipeline's serialized write phase.
type EventStore interface {
	GetEvent(ctx context.Context, id string) (RegulationEvent, error)
	InsertEvent(ctx context.Context, event RegulationEvent) error
	UpdateEvent(ctx context.Context, event RegulationEvent) error
	TouchEvent(ctx context.Context, id string, at time.Time) error
	AppendStatusChange(ctx context.Context, change StatusChange) error
	ListStatusChanges(ctx context.Context, eventID string) ([]StatusChange, error)
	ListRecentEvents(ctx context.Context, limit int) ([]RegulationEvent, error)
}

// RunStore persists the append-only crawl-run ledger.
type RunStore interface {
	CreateRun(ctx context.Context, run CrawlRun) error
	FinalizeRun(ctx context.Context, run CrawlRun) error
	GetRun(ctx context.Context, id string) (CrawlRun, error)
}

// Archive writes raw fetched payloads and returns a URI.
type Archive interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes run summaries to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
