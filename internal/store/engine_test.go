package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/regwatch/regcrawler/internal/regwatch"
	"github.com/regwatch/regcrawler/internal/store/memory"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func candidateEvent() regwatch.RegulationEvent {
	state := "California"
	return regwatch.RegulationEvent{
		Title:           "SB 976 Protecting Our Kids from Social Media Addiction Act",
		Country:         "United States",
		State:           &state,
		Stage:           regwatch.StageIntroduced,
		AgeBracket:      regwatch.AgeBracketBoth,
		AppliesUnder16:  true,
		ImpactScore:     4,
		LikelihoodScore: 3,
		ConfidenceScore: 3,
		ChiliScore:      4,
		Summary:         "California bill limiting addictive feeds for minors.",
		RawText:         "full text",
		SourceURL:       "https://legislature.example.gov/rss",
		ItemURL:         "https://legislature.example.gov/sb976",
		SourceID:        "leg-feed",
	}
}

func TestEngine_Upsert_Create(t *testing.T) {
	t.Parallel()

	events := memory.NewEventStore()
	clock := &fakeClock{now: time.Date(2024, 2, 5, 12, 0, 0, 0, time.UTC)}
	e := NewEngine(events, clock, nil)

	outcome, err := e.Upsert(context.Background(), candidateEvent())
	require.NoError(t, err)
	require.Equal(t, regwatch.OutcomeCreated, outcome)
	require.Equal(t, 1, events.Len())

	stored, err := events.GetEvent(context.Background(),
		regwatch.EventIdentity("United States", strPtr("California"),
			"SB 976 Protecting Our Kids from Social Media Addiction Act"))
	require.NoError(t, err)
	require.Equal(t, clock.now, stored.CreatedAt)
	require.Equal(t, clock.now, stored.LastCrawledAt)
}

func TestEngine_Upsert_UnchangedIsIdempotent(t *testing.T) {
	t.Parallel()

	events := memory.NewEventStore()
	clock := &fakeClock{now: time.Date(2024, 2, 5, 12, 0, 0, 0, time.UTC)}
	e := NewEngine(events, clock, nil)

	_, err := e.Upsert(context.Background(), candidateEvent())
	require.NoError(t, err)
	created := clock.now

	clock.advance(time.Hour)
	outcome, err := e.Upsert(context.Background(), candidateEvent())
	require.NoError(t, err)
	require.Equal(t, regwatch.OutcomeUnchanged, outcome)
	require.Equal(t, 1, events.Len())

	stored, err := events.GetEvent(context.Background(),
		regwatch.EventIdentity("United States", strPtr("California"),
			"SB 976 Protecting Our Kids from Social Media Addiction Act"))
	require.NoError(t, err)
	require.Equal(t, created, stored.CreatedAt, "create time survives a touch")
	require.Equal(t, clock.now, stored.LastCrawledAt, "crawl time is bumped")

	changes, err := events.ListStatusChanges(context.Background(), stored.ID)
	require.NoError(t, err)
	require.Empty(t, changes)
}

func TestEngine_Upsert_StageTransitionAppendsHistory(t *testing.T) {
	t.Parallel()

	events := memory.NewEventStore()
	clock := &fakeClock{now: time.Date(2024, 2, 5, 12, 0, 0, 0, time.UTC)}
	e := NewEngine(events, clock, nil)

	_, err := e.Upsert(context.Background(), candidateEvent())
	require.NoError(t, err)
	created := clock.now

	clock.advance(24 * time.Hour)
	next := candidateEvent()
	next.Stage = regwatch.StagePassed
	next.Summary = "The senate passed the bill."
	outcome, err := e.Upsert(context.Background(), next)
	require.NoError(t, err)
	require.Equal(t, regwatch.OutcomeStatusChanged, outcome)
	require.Equal(t, 1, events.Len(), "same identity must not create a second row")

	stored, err := events.GetEvent(context.Background(),
		regwatch.EventIdentity("United States", strPtr("California"),
			"SB 976 Protecting Our Kids from Social Media Addiction Act"))
	require.NoError(t, err)
	require.Equal(t, regwatch.StagePassed, stored.Stage)
	require.Equal(t, created, stored.CreatedAt)

	changes, err := events.ListStatusChanges(context.Background(), stored.ID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, regwatch.StageIntroduced, changes[0].PreviousStage)
	require.Equal(t, regwatch.StagePassed, changes[0].NewStage)
	require.Equal(t, clock.now, changes[0].ChangedAt)
}

func TestEngine_Upsert_ContentChangeWithoutStageIsUpdated(t *testing.T) {
	t.Parallel()

	events := memory.NewEventStore()
	clock := &fakeClock{now: time.Date(2024, 2, 5, 12, 0, 0, 0, time.UTC)}
	e := NewEngine(events, clock, nil)

	_, err := e.Upsert(context.Background(), candidateEvent())
	require.NoError(t, err)

	next := candidateEvent()
	next.Summary = "Expanded coverage of the same bill."
	outcome, err := e.Upsert(context.Background(), next)
	require.NoError(t, err)
	require.Equal(t, regwatch.OutcomeUpdated, outcome)

	stored, _ := events.ListRecentEvents(context.Background(), 1)
	require.Len(t, stored, 1)
	changes, err := events.ListStatusChanges(context.Background(), stored[0].ID)
	require.NoError(t, err)
	require.Empty(t, changes, "no stage change means no history row")
}

func TestEngine_Upsert_NormalizesScoresAndStage(t *testing.T) {
	t.Parallel()

	events := memory.NewEventStore()
	clock := &fakeClock{now: time.Date(2024, 2, 5, 12, 0, 0, 0, time.UTC)}
	e := NewEngine(events, clock, nil)

	bad := candidateEvent()
	bad.ImpactScore = 17
	bad.LikelihoodScore = 0
	bad.ChiliScore = -2
	bad.Stage = regwatch.Stage("totally made up")
	_, err := e.Upsert(context.Background(), bad)
	require.NoError(t, err)

	stored, _ := events.ListRecentEvents(context.Background(), 1)
	require.Len(t, stored, 1)
	require.Equal(t, 5, stored[0].ImpactScore)
	require.Equal(t, 1, stored[0].LikelihoodScore)
	require.Equal(t, 1, stored[0].ChiliScore)
	require.Equal(t, regwatch.StageProposed, stored[0].Stage)
}

func TestEngine_Upsert_CaseInsensitiveIdentity(t *testing.T) {
	t.Parallel()

	events := memory.NewEventStore()
	clock := &fakeClock{now: time.Date(2024, 2, 5, 12, 0, 0, 0, time.UTC)}
	e := NewEngine(events, clock, nil)

	_, err := e.Upsert(context.Background(), candidateEvent())
	require.NoError(t, err)

	next := candidateEvent()
	next.Country = "UNITED STATES"
	outcome, err := e.Upsert(context.Background(), next)
	require.NoError(t, err)
	require.Equal(t, regwatch.OutcomeUnchanged, outcome)
	require.Equal(t, 1, events.Len())
}

func strPtr(s string) *string { return &s }
