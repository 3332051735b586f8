// Package main wires together the regulatory crawler service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/regwatch/regcrawler/internal/api"
	gcsarchive "github.com/regwatch/regcrawler/internal/archive/gcs"
	localarchive "github.com/regwatch/regcrawler/internal/archive/local"
	memoryarchive "github.com/regwatch/regcrawler/internal/archive/memory"
	"github.com/regwatch/regcrawler/internal/catalog"
	"github.com/regwatch/regcrawler/internal/classify"
	"github.com/regwatch/regcrawler/internal/clock/system"
	"github.com/regwatch/regcrawler/internal/config"
	"github.com/regwatch/regcrawler/internal/feedparse"
	"github.com/regwatch/regcrawler/internal/fetch"
	"github.com/regwatch/regcrawler/internal/id/uuid"
	"github.com/regwatch/regcrawler/internal/jurisdiction"
	"github.com/regwatch/regcrawler/internal/logging"
	"github.com/regwatch/regcrawler/internal/pipeline"
	pubsubpublisher "github.com/regwatch/regcrawler/internal/publisher/pubsub"
	"github.com/regwatch/regcrawler/internal/quality"
	"github.com/regwatch/regcrawler/internal/regwatch"
	"github.com/regwatch/regcrawler/internal/social"
	"github.com/regwatch/regcrawler/internal/store"
	memorystore "github.com/regwatch/regcrawler/internal/store/memory"
	"github.com/regwatch/regcrawler/internal/store/postgres"
	"github.com/regwatch/regcrawler/internal/telemetry"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry.Init()

	cat, err := catalog.New(cfg.Sources)
	if err != nil {
		logger.Fatal("source catalog invalid", zap.Error(err))
	}

	events, runs, closeStores, err := buildStores(ctx, cfg)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	defer closeStores()

	archive, err := buildArchive(ctx, cfg)
	if err != nil {
		logger.Fatal("archive init failed", zap.Error(err))
	}

	var publisher regwatch.Publisher
	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicName != "" {
		pub, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
		if err != nil {
			logger.Warn("pubsub publisher init failed, run summaries disabled", zap.Error(err))
		} else {
			defer func() {
				_ = pub.Close()
			}()
			publisher = pub
		}
	}

	fetcher := fetch.New(fetch.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})
	parser := feedparse.New(feedparse.Config{
		FeedItemCap:     cfg.Crawler.FeedItemCap,
		WebpageMaxChars: cfg.Crawler.WebpageMaxChars,
	})
	search := social.New(social.Config{
		Endpoint:    cfg.Social.Endpoint,
		BearerToken: cfg.Social.BearerToken,
		MaxResults:  cfg.Social.MaxResults,
		Timeout:     cfg.FetchTimeout(),
	})
	remote := classify.NewRemote(classify.RemoteConfig{
		Endpoint:       cfg.Classifier.Endpoint,
		Model:          cfg.Classifier.Model,
		APIKey:         cfg.Classifier.APIKey,
		Timeout:        time.Duration(cfg.Classifier.TimeoutSeconds) * time.Second,
		MaxPromptChars: cfg.Classifier.MaxPromptChars,
	}, logger.Named("classify"))
	heuristic := classify.NewHeuristic(classify.HeuristicConfig{})
	classifier := classify.NewFallback(remote, heuristic, logger.Named("classify"))

	engine := store.NewEngine(events, system.New(), logger.Named("store"))
	pipe := pipeline.New(pipeline.Deps{
		Catalog:    cat,
		Fetcher:    fetcher,
		Parser:     parser,
		Search:     search,
		Classifier: classifier,
		Gate:       quality.New(quality.Config{}),
		Splitter:   jurisdiction.New(nil),
		Engine:     engine,
		Runs:       runs,
		Archive:    archive,
		Publisher:  publisher,
		Clock:      system.New(),
		IDs:        uuid.New(),
	}, pipeline.Config{
		ClassifyBatchSize: cfg.Crawler.ClassifyBatchSize,
		SocialDelay:       cfg.SocialDelay(),
		ArchivePrefix:     cfg.Archive.Prefix,
		Topic:             cfg.PubSub.TopicName,
	}, logger.Named("pipeline"))

	apiServer := api.NewServer(pipe, events, runs, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// buildStores selects Postgres stores when a DSN is configured, otherwise
// in-memory stores.
func buildStores(ctx context.Context, cfg config.Config) (regwatch.EventStore, regwatch.RunStore, func(), error) {
	if cfg.DB.DSN == "" {
		return memorystore.NewEventStore(), memorystore.NewRunStore(), func() {}, nil
	}
	pgCfg := postgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	}
	events, err := postgres.NewEventStore(ctx, pgCfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("postgres event store: %w", err)
	}
	runs, err := postgres.NewRunStore(ctx, pgCfg)
	if err != nil {
		events.Close()
		return nil, nil, nil, fmt.Errorf("postgres run store: %w", err)
	}
	closeAll := func() {
		runs.Close()
		events.Close()
	}
	return events, runs, closeAll, nil
}

func buildArchive(ctx context.Context, cfg config.Config) (regwatch.Archive, error) {
	switch cfg.Archive.Provider {
	case "", "none":
		return nil, nil
	case "memory":
		return memoryarchive.New(), nil
	case "local":
		return localarchive.New(localarchive.Config{BaseDir: cfg.Archive.BaseDir})
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		return gcsarchive.New(client, gcsarchive.Config{Bucket: cfg.Archive.Bucket})
	default:
		return nil, fmt.Errorf("unknown archive provider %q", cfg.Archive.Provider)
	}
}
