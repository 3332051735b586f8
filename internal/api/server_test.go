package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/regwatch/regcrawler/internal/catalog"
	"github.com/regwatch/regcrawler/internal/feedparse"
	"github.com/regwatch/regcrawler/internal/jurisdiction"
	"github.com/regwatch/regcrawler/internal/pipeline"
	"github.com/regwatch/regcrawler/internal/quality"
	"github.com/regwatch/regcrawler/internal/regwatch"
	"github.com/regwatch/regcrawler/internal/store"
	storememory "github.com/regwatch/regcrawler/internal/store/memory"
)

type staticFetcher struct {
	payload string
}

func (f *staticFetcher) Fetch(_ context.Context, _ string) (string, error) {
	return f.payload, nil
}

type relevantClassifier struct{}

func (relevantClassifier) Classify(_ context.Context, input regwatch.CrawlInput) (regwatch.Analysis, error) {
	return regwatch.Analysis{
		IsRelevant:      true,
		Jurisdiction:    input.Source.Jurisdiction,
		Stage:           regwatch.StageIntroduced,
		AgeBracket:      regwatch.AgeBracketBoth,
		Summary:         "A bill limiting platform features for minors: " + input.Title,
		ImpactScore:     3,
		LikelihoodScore: 3,
		ConfidenceScore: 3,
		ChiliScore:      3,
	}, nil
}

type tickingClock struct {
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

type staticIDs struct{ n int }

func (g *staticIDs) NewID() (string, error) {
	g.n++
	return "test-run", nil
}

func newTestServer(t *testing.T) (*Server, *storememory.EventStore, *storememory.RunStore) {
	t.Helper()

	cat, err := catalog.New([]regwatch.SourceDescriptor{{
		ID:           "leg",
		Name:         "Legislature",
		URL:          "https://leg.example.gov/rss",
		Kind:         regwatch.SourceKindFeed,
		Jurisdiction: "United States, California",
		Reliability:  4,
	}})
	require.NoError(t, err)

	events := storememory.NewEventStore()
	runs := storememory.NewRunStore()
	clock := &tickingClock{now: time.Date(2024, 2, 5, 12, 0, 0, 0, time.UTC)}

	pipe := pipeline.New(pipeline.Deps{
		Catalog: cat,
		Fetcher: &staticFetcher{payload: `<rss><channel><item>` +
			`<title>Minor Safety Bill</title>` +
			`<link>https://leg.example.gov/bill/1</link>` +
			`<description>New limits proposed for minors.</description>` +
			`</item></channel></rss>`},
		Parser:     feedparse.New(feedparse.Config{}),
		Classifier: relevantClassifier{},
		Gate:       quality.New(quality.Config{}),
		Splitter:   jurisdiction.New(nil),
		Engine:     store.NewEngine(events, clock, nil),
		Runs:       runs,
		Clock:      clock,
		IDs:        &staticIDs{},
	}, pipeline.Config{ClassifyBatchSize: 2, SocialDelay: time.Millisecond}, nil)

	return NewServer(pipe, events, runs, nil), events, runs
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestTriggerCrawl(t *testing.T) {
	t.Parallel()

	srv, events, runs := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/crawl", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var summary regwatch.CrawlSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
	require.Equal(t, "test-run", summary.RunID)
	require.Equal(t, regwatch.RunStatusCompleted, summary.Status)
	require.Equal(t, 1, summary.EventsCreated)
	require.Equal(t, 1, events.Len())

	run, err := runs.GetRun(context.Background(), "test-run")
	require.NoError(t, err)
	require.Equal(t, regwatch.RunStatusCompleted, run.Status)
}

func TestTriggerCrawl_WithSourceSubset(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)

	body := strings.NewReader(`{"source_ids": ["leg"]}`)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/crawl", body))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestTriggerCrawl_UnknownSource(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)

	body := strings.NewReader(`{"source_ids": ["nope"]}`)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/crawl", body))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTriggerCrawl_BadJSON(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/crawl", strings.NewReader("{oops")))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRun_NotFound(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/ghost", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListEvents(t *testing.T) {
	t.Parallel()

	srv, events, _ := newTestServer(t)
	require.NoError(t, events.InsertEvent(context.Background(), regwatch.RegulationEvent{
		ID:    "ev-1",
		Title: "Stored Act",
	}))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events?limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Events []regwatch.RegulationEvent `json:"events"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&payload))
	require.Len(t, payload.Events, 1)
	require.Equal(t, "Stored Act", payload.Events[0].Title)
}

func TestListEvents_InvalidLimit(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events?limit=-4", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetHistory(t *testing.T) {
	t.Parallel()

	srv, events, _ := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, events.InsertEvent(ctx, regwatch.RegulationEvent{ID: "ev-1"}))
	require.NoError(t, events.AppendStatusChange(ctx, regwatch.StatusChange{
		EventID:       "ev-1",
		PreviousStage: regwatch.StageIntroduced,
		NewStage:      regwatch.StagePassed,
		ChangedAt:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events/ev-1/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		EventID string                 `json:"event_id"`
		Changes []regwatch.StatusChange `json:"changes"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&payload))
	require.Equal(t, "ev-1", payload.EventID)
	require.Len(t, payload.Changes, 1)
	require.Equal(t, regwatch.StagePassed, payload.Changes[0].NewStage)
}

func TestGetHistory_UnknownEvent(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events/ghost/history", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
