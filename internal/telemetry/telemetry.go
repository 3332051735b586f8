// Package telemetry exposes Prometheus collectors for the crawl pipeline.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sourcesTotal       *prometheus.CounterVec
	itemsDiscovered    prometheus.Counter
	eventsTotal        *prometheus.CounterVec
	classifyFallbacks  prometheus.Counter
	runDurationSeconds prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		sourcesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regcrawl_sources_total",
				Help: "Total sources crawled, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		itemsDiscovered = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "regcrawl_items_discovered_total",
				Help: "Total crawl inputs discovered after per-pass dedup.",
			},
		)

		eventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regcrawl_events_total",
				Help: "Total upsert decisions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		classifyFallbacks = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "regcrawl_classify_fallback_total",
				Help: "Total classifications served by the local heuristic.",
			},
		)

		runDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "regcrawl_run_duration_seconds",
				Help:    "Histogram of full pipeline pass durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		)
	})
}

// ObserveSource records one per-source outcome ("ok" or "error").
func ObserveSource(outcome string) {
	if sourcesTotal != nil {
		sourcesTotal.WithLabelValues(outcome).Inc()
	}
}

// AddItemsDiscovered records items surviving per-pass dedup.
func AddItemsDiscovered(n int) {
	if itemsDiscovered != nil {
		itemsDiscovered.Add(float64(n))
	}
}

// ObserveEvent records one upsert decision.
func ObserveEvent(outcome string) {
	if eventsTotal != nil {
		eventsTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveClassifyFallback records one heuristic-served classification.
func ObserveClassifyFallback() {
	if classifyFallbacks != nil {
		classifyFallbacks.Inc()
	}
}

// ObserveRunDuration records one full pass duration.
func ObserveRunDuration(d time.Duration) {
	if runDurationSeconds != nil {
		runDurationSeconds.Observe(d.Seconds())
	}
}
