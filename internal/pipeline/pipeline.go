// Package pipeline drives the full ingestion pass: crawl, classify,
// filter, and upsert, wrapped in the crawl-run ledger.
package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/regwatch/regcrawler/internal/catalog"
	"github.com/regwatch/regcrawler/internal/classify"
	"github.com/regwatch/regcrawler/internal/feedparse"
	"github.com/regwatch/regcrawler/internal/jurisdiction"
	"github.com/regwatch/regcrawler/internal/quality"
	"github.com/regwatch/regcrawler/internal/regwatch"
	"github.com/regwatch/regcrawler/internal/social"
	"github.com/regwatch/regcrawler/internal/store"
	"github.com/regwatch/regcrawler/internal/telemetry"
)

// Config controls pipeline behavior.
type Config struct {
	// ClassifyBatchSize bounds how many classification calls are in
	// flight at once; batches run sequentially relative to each other.
	ClassifyBatchSize int
	// SocialDelay is the inter-call delay on the rate-limited lane.
	SocialDelay time.Duration
	// ArchivePrefix prefixes raw-payload blob paths.
	ArchivePrefix string
	// Topic names the run-summary publish target; empty disables it.
	Topic string
}

// Deps carries the pipeline's collaborators. Search, Archive, and
// Publisher are optional; their absence degrades the matching feature,
// never the pass.
type Deps struct {
	Catalog    *catalog.Catalog
	Fetcher    regwatch.Fetcher
	Parser     *feedparse.Parser
	Search     *social.Client
	Classifier regwatch.Classifier
	Gate       *quality.Gate
	Splitter   *jurisdiction.Splitter
	Engine     *store.Engine
	Runs       regwatch.RunStore
	Archive    regwatch.Archive
	Publisher  regwatch.Publisher
	Clock      regwatch.Clock
	IDs        regwatch.IDGenerator
}

// Pipeline executes ingestion passes. It owns the CrawlRun lifecycle for
// each pass it starts; all event writes go through the serialized write
// phase at the end of Run.
type Pipeline struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New constructs a Pipeline.
func New(deps Deps, cfg Config, logger *zap.Logger) *Pipeline {
	if cfg.ClassifyBatchSize <= 0 {
		cfg.ClassifyBatchSize = 10
	}
	if cfg.SocialDelay <= 0 {
		cfg.SocialDelay = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{deps: deps, cfg: cfg, logger: logger}
}

type crawlResult struct {
	items   []regwatch.CrawlInput
	results []regwatch.SourceResult
}

// Run executes one full pass over the catalog, or over an explicit source
// subset. The run is finalized exactly once even when the pass fails
// before per-item processing; only pipeline-level errors are returned.
func (p *Pipeline) Run(ctx context.Context, sourceIDs []string) (regwatch.CrawlSummary, error) {
	runID, err := p.deps.IDs.NewID()
	if err != nil {
		return regwatch.CrawlSummary{}, fmt.Errorf("generate run id: %w", err)
	}

	run := regwatch.CrawlRun{
		ID:        runID,
		StartedAt: p.deps.Clock.Now(),
		Status:    regwatch.RunStatusRunning,
	}
	if err := p.deps.Runs.CreateRun(ctx, run); err != nil {
		return regwatch.CrawlSummary{}, fmt.Errorf("create crawl run: %w", err)
	}

	finalized := false
	defer func() {
		if finalized {
			return
		}
		run.Status = regwatch.RunStatusFailed
		now := p.deps.Clock.Now()
		run.FinishedAt = &now
		if ferr := p.deps.Runs.FinalizeRun(context.WithoutCancel(ctx), run); ferr != nil {
			p.logger.Error("finalize failed run", zap.String("run_id", runID), zap.Error(ferr))
		}
	}()

	sources, err := p.deps.Catalog.Select(sourceIDs)
	if err != nil {
		return regwatch.CrawlSummary{}, fmt.Errorf("select sources: %w", err)
	}

	crawled := p.crawl(ctx, runID, sources)
	run.SourcesAttempted = len(sources)
	for _, res := range crawled.results {
		if res.Error == "" {
			run.SourcesSucceeded++
			telemetry.ObserveSource("ok")
		} else {
			run.SourcesFailed++
			telemetry.ObserveSource("error")
		}
	}
	run.ItemsDiscovered = len(crawled.items)
	telemetry.AddItemsDiscovered(len(crawled.items))

	analyses := p.classifyAll(ctx, crawled.items)
	p.persist(ctx, crawled.items, analyses, &run)

	if run.SourcesFailed > 0 {
		run.Status = regwatch.RunStatusPartial
	} else {
		run.Status = regwatch.RunStatusCompleted
	}
	finishedAt := p.deps.Clock.Now()
	run.FinishedAt = &finishedAt
	if err := p.deps.Runs.FinalizeRun(ctx, run); err != nil {
		return regwatch.CrawlSummary{}, fmt.Errorf("finalize crawl run: %w", err)
	}
	finalized = true
	telemetry.ObserveRunDuration(finishedAt.Sub(run.StartedAt))

	summary := buildSummary(run, crawled.results)
	p.publishSummary(ctx, summary)
	p.logger.Info("crawl pass finished",
		zap.String("run_id", runID),
		zap.String("status", string(run.Status)),
		zap.Int("items", run.ItemsDiscovered),
		zap.Int("created", run.EventsCreated),
		zap.Int("updated", run.EventsUpdated),
		zap.Int("status_changed", run.EventsStatusChanged),
		zap.Int("ignored", run.EventsIgnored))
	return summary, nil
}

// crawl drives fetch+parse across the catalog. Non-rate-limited sources
// fan out concurrently; social-search sources run strictly sequentially
// with an inter-call delay. Per-source failures are recorded, never
// propagated to sibling sources.
func (p *Pipeline) crawl(ctx context.Context, runID string, sources []regwatch.SourceDescriptor) crawlResult {
	var fast, slow []regwatch.SourceDescriptor
	for _, src := range sources {
		if src.Kind == regwatch.SourceKindSocialSearch {
			slow = append(slow, src)
		} else {
			fast = append(fast, src)
		}
	}

	outcomes := make(chan crawlResult, len(fast))
	var wg sync.WaitGroup
	for _, src := range fast {
		wg.Add(1)
		go func(src regwatch.SourceDescriptor) {
			defer wg.Done()
			outcomes <- p.crawlOne(ctx, runID, src)
		}(src)
	}
	wg.Wait()
	close(outcomes)

	var all crawlResult
	for outcome := range outcomes {
		all.items = append(all.items, outcome.items...)
		all.results = append(all.results, outcome.results...)
	}

	for i, src := range slow {
		if i > 0 {
			select {
			case <-time.After(p.cfg.SocialDelay):
			case <-ctx.Done():
			}
		}
		outcome := p.crawlOne(ctx, runID, src)
		all.items = append(all.items, outcome.items...)
		all.results = append(all.results, outcome.results...)
	}

	all.items = dedupeWithinPass(all.items)
	return all
}

func (p *Pipeline) crawlOne(ctx context.Context, runID string, src regwatch.SourceDescriptor) crawlResult {
	items, err := p.collect(ctx, runID, src)
	if err != nil {
		p.logger.Warn("source crawl failed",
			zap.String("source_id", src.ID),
			zap.Error(err))
		return crawlResult{results: []regwatch.SourceResult{{
			SourceID: src.ID,
			Error:    err.Error(),
		}}}
	}
	return crawlResult{
		items: items,
		results: []regwatch.SourceResult{{
			SourceID:  src.ID,
			ItemCount: len(items),
		}},
	}
}

func (p *Pipeline) collect(ctx context.Context, runID string, src regwatch.SourceDescriptor) ([]regwatch.CrawlInput, error) {
	switch src.Kind {
	case regwatch.SourceKindFeed, regwatch.SourceKindWebpage:
		payload, err := p.deps.Fetcher.Fetch(ctx, src.URL)
		if err != nil {
			return nil, err
		}
		p.archivePayload(ctx, runID, src, payload)
		return p.deps.Parser.Parse(payload, src)
	case regwatch.SourceKindNewsSearch, regwatch.SourceKindSocialSearch:
		if p.deps.Search == nil {
			return nil, fmt.Errorf("search client not configured for source %s", src.ID)
		}
		return p.deps.Search.Search(ctx, src)
	default:
		return nil, fmt.Errorf("unsupported source kind %q", src.Kind)
	}
}

// archivePayload best-effort stores the raw payload; failures are logged
// and never fail the source.
func (p *Pipeline) archivePayload(ctx context.Context, runID string, src regwatch.SourceDescriptor, payload string) {
	if p.deps.Archive == nil {
		return
	}
	prefix := strings.Trim(p.cfg.ArchivePrefix, "/")
	path := fmt.Sprintf("%s/%s/%s.html", runID, src.ID, regwatch.ContentHash(payload)[:16])
	if prefix != "" {
		path = prefix + "/" + path
	}
	if _, err := p.deps.Archive.PutObject(ctx, path, "text/html; charset=utf-8", []byte(payload)); err != nil {
		p.logger.Warn("archive payload failed",
			zap.String("source_id", src.ID),
			zap.Error(err))
	}
}

// classifyAll runs classification in bounded concurrent batches; batches
// are sequential relative to each other to respect service rate limits.
// A failed classification degrades to the safe default, never an error.
func (p *Pipeline) classifyAll(ctx context.Context, items []regwatch.CrawlInput) []regwatch.Analysis {
	analyses := make([]regwatch.Analysis, len(items))
	for start := 0; start < len(items); start += p.cfg.ClassifyBatchSize {
		end := start + p.cfg.ClassifyBatchSize
		if end > len(items) {
			end = len(items)
		}
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				analysis, err := p.deps.Classifier.Classify(ctx, items[i])
				if err != nil {
					p.logger.Warn("classification error, using safe default",
						zap.String("title", items[i].Title),
						zap.Error(err))
					telemetry.ObserveClassifyFallback()
					analysis = classify.NotRelevant(items[i])
				}
				analyses[i] = analysis
			}(i)
		}
		wg.Wait()
	}
	return analyses
}

// persist is the serialized write phase. Upserts are applied strictly
// sequentially; the backing store does not support concurrent writers and
// the created/updated/unchanged decision depends on non-interleaved
// application per identity key.
func (p *Pipeline) persist(ctx context.Context, items []regwatch.CrawlInput, analyses []regwatch.Analysis, run *regwatch.CrawlRun) {
	seen := make(map[string]struct{})
	for i, item := range items {
		analysis := analyses[i]
		if !analysis.IsRelevant {
			run.EventsIgnored++
			telemetry.ObserveEvent(string(regwatch.OutcomeIgnored))
			continue
		}
		if !p.deps.Gate.Accept(item, analysis) {
			run.EventsIgnored++
			telemetry.ObserveEvent(string(regwatch.OutcomeIgnored))
			continue
		}

		jurText := analysis.Jurisdiction
		if jurText == "" {
			jurText = item.Source.Jurisdiction
		}
		country, state := p.deps.Splitter.Split(jurText)
		if country == "" {
			run.EventsIgnored++
			telemetry.ObserveEvent(string(regwatch.OutcomeIgnored))
			continue
		}

		// Duplicate-within-pass suppression on (jurisdiction, title,
		// content hash); the second occurrence counts as ignored.
		passKey := strings.ToLower(jurText) + "|" + strings.ToLower(item.Title) + "|" + regwatch.ContentHash(item.RawText)
		if _, dup := seen[passKey]; dup {
			run.EventsIgnored++
			telemetry.ObserveEvent(string(regwatch.OutcomeIgnored))
			continue
		}
		seen[passKey] = struct{}{}

		candidate := buildEvent(item, analysis, country, state)
		outcome, err := p.deps.Engine.Upsert(ctx, candidate)
		if err != nil {
			p.logger.Error("upsert failed",
				zap.String("title", item.Title),
				zap.Error(err))
			run.EventsIgnored++
			telemetry.ObserveEvent(string(regwatch.OutcomeIgnored))
			continue
		}
		telemetry.ObserveEvent(string(outcome))
		switch outcome {
		case regwatch.OutcomeCreated:
			run.EventsCreated++
		case regwatch.OutcomeUpdated:
			run.EventsUpdated++
		case regwatch.OutcomeStatusChanged:
			run.EventsStatusChanged++
		case regwatch.OutcomeUnchanged:
			// Idempotent re-discovery; the row's crawl timestamp was
			// bumped and nothing else counts.
		}
	}
}

func buildEvent(item regwatch.CrawlInput, analysis regwatch.Analysis, country string, state *string) regwatch.RegulationEvent {
	return regwatch.RegulationEvent{
		Title:   item.Title,
		Country: country,
		State:   state,
		Stage:   analysis.Stage,
		// 16-18 is the only bracket that excludes under-16 users.
		AppliesUnder16:      analysis.AgeBracket != regwatch.AgeBracket16To18,
		AgeBracket:          analysis.AgeBracket,
		ImpactScore:         analysis.ImpactScore,
		LikelihoodScore:     analysis.LikelihoodScore,
		ConfidenceScore:     analysis.ConfidenceScore,
		ChiliScore:          analysis.ChiliScore,
		Summary:             analysis.Summary,
		BusinessImpact:      analysis.BusinessImpact,
		RequiredSolutions:   analysis.RequiredSolutions,
		AffectedProducts:    analysis.AffectedProducts,
		CompetitorResponses: analysis.CompetitorResponses,
		RawText:             item.RawText,
		SourceURL:           item.SourceURL,
		ItemURL:             item.ItemURL,
		PublishedAt:         item.PublishedAt,
		SourceID:            item.Source.ID,
	}
}

// dedupeWithinPass collapses items onto a single representative per dedup
// key: the normalized item URL when present, else a content hash of the
// raw text, scoped per source.
func dedupeWithinPass(items []regwatch.CrawlInput) []regwatch.CrawlInput {
	seen := make(map[string]struct{}, len(items))
	out := make([]regwatch.CrawlInput, 0, len(items))
	for _, item := range items {
		key := item.Source.ID + "|"
		if normalized := normalizeURL(item.URL); normalized != "" {
			key += normalized
		} else {
			key += regwatch.ContentHash(item.RawText)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

func normalizeURL(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return ""
	}
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	return parsed.String()
}

func buildSummary(run regwatch.CrawlRun, results []regwatch.SourceResult) regwatch.CrawlSummary {
	summary := regwatch.CrawlSummary{
		RunID:               run.ID,
		Status:              run.Status,
		StartedAt:           run.StartedAt,
		SourcesAttempted:    run.SourcesAttempted,
		SourcesSucceeded:    run.SourcesSucceeded,
		SourcesFailed:       run.SourcesFailed,
		ItemsDiscovered:     run.ItemsDiscovered,
		EventsCreated:       run.EventsCreated,
		EventsUpdated:       run.EventsUpdated,
		EventsStatusChanged: run.EventsStatusChanged,
		EventsIgnored:       run.EventsIgnored,
	}
	if run.FinishedAt != nil {
		summary.FinishedAt = *run.FinishedAt
	}
	for _, res := range results {
		if res.Error != "" {
			summary.SourceErrors = append(summary.SourceErrors, res)
		}
	}
	return summary
}

func (p *Pipeline) publishSummary(ctx context.Context, summary regwatch.CrawlSummary) {
	if p.deps.Publisher == nil || p.cfg.Topic == "" {
		return
	}
	if _, err := p.deps.Publisher.Publish(ctx, p.cfg.Topic, summary); err != nil {
		p.logger.Warn("publish run summary failed",
			zap.String("run_id", summary.RunID),
			zap.Error(err))
	}
}
