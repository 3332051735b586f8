// Package regwatch defines core types shared across subsystems.
package regwatch

import "time"

// SourceKind identifies how a source's payload must be interpreted.
type SourceKind string

// Source kinds understood by the crawl pipeline.
const (
	SourceKindWebpage      SourceKind = "webpage"
	SourceKindFeed         SourceKind = "feed"
	SourceKindNewsSearch   SourceKind = "news_search"
	SourceKindSocialSearch SourceKind = "social_search"
)

// AuthorityClass ranks the issuing body behind a source.
type AuthorityClass string

// Authority classes carried on source descriptors.
const (
	AuthorityNational      AuthorityClass = "national"
	AuthorityState         AuthorityClass = "state"
	AuthorityLocal         AuthorityClass = "local"
	AuthoritySupranational AuthorityClass = "supranational"
)

// Stage is one of the nine fixed lifecycle values for a regulation.
type Stage string

// Lifecycle stages in legislative order.
const (
	StageProposed        Stage = "proposed"
	StageIntroduced      Stage = "introduced"
	StageCommitteeReview Stage = "committee_review"
	StagePassed          Stage = "passed"
	StageEnacted         Stage = "enacted"
	StageEffective       Stage = "effective"
	StageAmended         Stage = "amended"
	StageWithdrawn       Stage = "withdrawn"
	StageRejected        Stage = "rejected"
)

// Stages lists every valid Stage in order.
var Stages = []Stage{
	StageProposed,
	StageIntroduced,
	StageCommitteeReview,
	StagePassed,
	StageEnacted,
	StageEffective,
	StageAmended,
	StageWithdrawn,
	StageRejected,
}

// ValidStage reports whether s is one of the nine enumerated stages.
func ValidStage(s Stage) bool {
	for _, known := range Stages {
		if s == known {
			return true
		}
	}
	return false
}

// AgeBracket describes which minor age range a regulation targets.
type AgeBracket string

// Age brackets recognized by the classifier.
const (
	AgeBracket13To15 AgeBracket = "13-15"
	AgeBracket16To18 AgeBracket = "16-18"
	AgeBracketBoth   AgeBracket = "both"
)

// SourceDescriptor describes one crawl source. Descriptors are loaded once
// from configuration and never mutated by the pipeline.
type SourceDescriptor struct {
	ID           string         `json:"id" mapstructure:"id"`
	Name         string         `json:"name" mapstructure:"name"`
	URL          string         `json:"url" mapstructure:"url"`
	Kind         SourceKind     `json:"kind" mapstructure:"kind"`
	Jurisdiction string         `json:"jurisdiction" mapstructure:"jurisdiction"`
	Authority    AuthorityClass `json:"authority" mapstructure:"authority"`
	Reliability  int            `json:"reliability" mapstructure:"reliability"`
	Query        string         `json:"query,omitempty" mapstructure:"query"`
}

// CrawlInput is one candidate item recovered from a source payload.
// Inputs live only for the duration of a pass and are never persisted.
type CrawlInput struct {
	Title       string
	URL         string
	Summary     string
	RawText     string
	PublishedAt *time.Time
	Source      SourceDescriptor
	SourceURL   string
	ItemURL     string
}

// Analysis is the classifier's verdict for one CrawlInput.
type Analysis struct {
	IsRelevant          bool
	Jurisdiction        string
	Stage               Stage
	AgeBracket          AgeBracket
	AffectedProducts    []string
	Summary             string
	BusinessImpact      string
	RequiredSolutions   []string
	CompetitorResponses []string
	ImpactScore         int
	LikelihoodScore     int
	ConfidenceScore     int
	ChiliScore          int
}

// RegulationEvent is the persisted system of record for one regulatory fact.
// Its ID is a deterministic function of (country, state, title), so the same
// fact re-discovered from a different URL collapses onto the same row.
type RegulationEvent struct {
	ID                  string     `json:"id"`
	Title               string     `json:"title"`
	Country             string     `json:"country"`
	State               *string    `json:"state,omitempty"`
	Stage               Stage      `json:"stage"`
	AgeBracket          AgeBracket `json:"age_bracket"`
	AppliesUnder16      bool       `json:"applies_under_16"`
	ImpactScore         int        `json:"impact_score"`
	LikelihoodScore     int        `json:"likelihood_score"`
	ConfidenceScore     int        `json:"confidence_score"`
	ChiliScore          int        `json:"chili_score"`
	Summary             string     `json:"summary"`
	BusinessImpact      string     `json:"business_impact"`
	RequiredSolutions   []string   `json:"required_solutions"`
	AffectedProducts    []string   `json:"affected_products"`
	CompetitorResponses []string   `json:"competitor_responses"`
	RawText             string     `json:"raw_text"`
	SourceURL           string     `json:"source_url"`
	ItemURL             string     `json:"item_url"`
	EffectiveDate       *time.Time `json:"effective_date,omitempty"`
	PublishedAt         *time.Time `json:"published_at,omitempty"`
	SourceID            string     `json:"source_id"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	LastCrawledAt       time.Time  `json:"last_crawled_at"`
}

// StatusChange records one stage transition for an event. Rows are append
// only and are written exclusively when an upsert changes the stage.
type StatusChange struct {
	EventID       string    `json:"event_id"`
	PreviousStage Stage     `json:"previous_stage"`
	NewStage      Stage     `json:"new_stage"`
	ChangedAt     time.Time `json:"changed_at"`
}

// UpsertOutcome is the decision applied for one candidate event.
type UpsertOutcome string

// Upsert outcomes counted per run.
const (
	OutcomeCreated       UpsertOutcome = "created"
	OutcomeUpdated       UpsertOutcome = "updated"
	OutcomeStatusChanged UpsertOutcome = "status_changed"
	OutcomeUnchanged     UpsertOutcome = "unchanged"
	OutcomeIgnored       UpsertOutcome = "ignored"
)

// RunStatus is the lifecycle state of a crawl run.
type RunStatus string

// Run status values persisted in the run ledger.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// CrawlRun is one row in the append-only run ledger. It is created in
// running state before any network activity and finalized exactly once.
type CrawlRun struct {
	ID                  string     `json:"id"`
	StartedAt           time.Time  `json:"started_at"`
	FinishedAt          *time.Time `json:"finished_at,omitempty"`
	Status              RunStatus  `json:"status"`
	SourcesAttempted    int        `json:"sources_attempted"`
	SourcesSucceeded    int        `json:"sources_succeeded"`
	SourcesFailed       int        `json:"sources_failed"`
	ItemsDiscovered     int        `json:"items_discovered"`
	EventsCreated       int        `json:"events_created"`
	EventsUpdated       int        `json:"events_updated"`
	EventsStatusChanged int        `json:"events_status_changed"`
	EventsIgnored       int        `json:"events_ignored"`
}

// SourceResult captures the per-source outcome of one pass.
type SourceResult struct {
	SourceID  string `json:"source_id"`
	ItemCount int    `json:"item_count"`
	Error     string `json:"error,omitempty"`
}

// CrawlSummary is returned to callers after a pass finishes.
type CrawlSummary struct {
	RunID               string         `json:"run_id"`
	Status              RunStatus      `json:"status"`
	StartedAt           time.Time      `json:"started_at"`
	FinishedAt          time.Time      `json:"finished_at"`
	SourcesAttempted    int            `json:"sources_attempted"`
	SourcesSucceeded    int            `json:"sources_succeeded"`
	SourcesFailed       int            `json:"sources_failed"`
	ItemsDiscovered     int            `json:"items_discovered"`
	EventsCreated       int            `json:"events_created"`
	EventsUpdated       int            `json:"events_updated"`
	EventsStatusChanged int            `json:"events_status_changed"`
	EventsIgnored       int            `json:"events_ignored"`
	SourceErrors        []SourceResult `json:"source_errors,omitempty"`
}
