// Package main wires together the scraper service binary.
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

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/tubewatch/yt-scraper/internal/api"
	"github.com/tubewatch/yt-scraper/internal/clock/system"
	"github.com/tubewatch/yt-scraper/internal/config"
	"github.com/tubewatch/yt-scraper/internal/dispatcher"
	collyfetcher "github.com/tubewatch/yt-scraper/internal/fetcher/colly"
	headlessfetcher "github.com/tubewatch/yt-scraper/internal/fetcher/headless"
	"github.com/tubewatch/yt-scraper/internal/gate"
	"github.com/tubewatch/yt-scraper/internal/hash/sha256"
	"github.com/tubewatch/yt-scraper/internal/headless/detector"
	"github.com/tubewatch/yt-scraper/internal/id/uuid"
	"github.com/tubewatch/yt-scraper/internal/logging"
	"github.com/tubewatch/yt-scraper/internal/metrics"
	memorypublisher "github.com/tubewatch/yt-scraper/internal/publisher/memory"
	pubsubpublisher "github.com/tubewatch/yt-scraper/internal/publisher/pubsub"
	queueMemory "github.com/tubewatch/yt-scraper/internal/queue/memory"
	"github.com/tubewatch/yt-scraper/internal/scrape"
	gcsStorage "github.com/tubewatch/yt-scraper/internal/storage/gcs"
	localStorage "github.com/tubewatch/yt-scraper/internal/storage/local"
	memoryStorage "github.com/tubewatch/yt-scraper/internal/storage/memory"
	"github.com/tubewatch/yt-scraper/internal/storage/postgres"
	"github.com/tubewatch/yt-scraper/internal/worker"
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
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobStore := memoryStorage.NewJobStore()
	hasher := sha256.New()
	clock := system.New()
	idGen := uuid.New()
	singleFlight := gate.New()
	queue := queueMemory.NewQueue(cfg.Scraper.QueueDepth)

	blobStore, err := buildBlobStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("blob store init failed", zap.Error(err))
	}

	catalog, closeCatalog, err := buildCatalogStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("catalog store init failed", zap.Error(err))
	}
	defer closeCatalog()

	publisher, closePublisher, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("publisher init failed", zap.Error(err))
	}
	defer closePublisher()

	detect := detector.NewHeuristic(cfg.Headless.PromotionThresh)
	probeFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Scraper.UserAgent,
		RespectRobots: !cfg.Scraper.IgnoreRobots,
		Timeout:       cfg.FetchTimeout(),
	})
	var headless scrape.Fetcher = headlessfetcher.NewNoop()
	if cfg.Headless.Enabled {
		headlessFetcher, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Scraper.UserAgent,
			NavigationTimeout: cfg.NavTimeout(),
			SettleDelay:       time.Duration(cfg.Headless.SettleMillis) * time.Millisecond,
		})
		if err != nil {
			logger.Warn("headless fetcher init failed", zap.Error(err))
		} else {
			defer headlessFetcher.Close()
			headless = headlessFetcher
		}
	}

	workerCfg := worker.Config{
		ContentType:  cfg.Storage.ContentType,
		BlobPrefix:   cfg.Storage.Prefix,
		Topic:        cfg.PubSub.TopicName,
		MaxComments:  cfg.Scraper.MaxComments,
		ScrollPasses: cfg.Headless.ScrollPasses,
		Delay:        cfg.PolitenessDelay(),
	}

	// A single worker keeps the one-job-at-a-time contract simple; the gate
	// already serializes submissions.
	workers := []*worker.Worker{worker.New(
		queue,
		jobStore,
		catalog,
		blobStore,
		publisher,
		hasher,
		clock,
		probeFetcher,
		headless,
		detect,
		singleFlight,
		workerCfg,
		logger.Named("worker"),
	)}
	dispatch := dispatcher.New(queue, workers)

	apiServer := api.NewServer(jobStore, catalog, dispatch, singleFlight, idGen, clock, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started")
		dispatch.Run(ctx)
	}()

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
	queue.Close()
}

func buildBlobStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (scrape.BlobStore, error) {
	switch cfg.Storage.Backend {
	case "local":
		store, err := localStorage.New(localStorage.Config{BaseDir: cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store: %w", err)
		}
		logger.Info("using local blob store", zap.String("base_dir", cfg.Storage.BaseDir))
		return store, nil
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		store, err := gcsStorage.New(client, gcsStorage.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store: %w", err)
		}
		logger.Info("using gcs blob store", zap.String("bucket", cfg.Storage.GCSBucket))
		return store, nil
	default:
		logger.Info("using in-memory blob store")
		return memoryStorage.NewBlobStore(), nil
	}
}

func buildCatalogStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (scrape.CatalogStore, func(), error) {
	if cfg.DB.DSN == "" {
		logger.Info("using in-memory catalog store")
		return memoryStorage.NewCatalogStore(), func() {}, nil
	}
	store, err := postgres.NewCatalogStore(ctx, postgres.CatalogStoreConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("postgres catalog store: %w", err)
	}
	logger.Info("using postgres catalog store")
	return store, store.Close, nil
}

func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (scrape.Publisher, func(), error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		logger.Info("using in-memory publisher")
		return memorypublisher.New(), func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	pub, err := pubsubpublisher.New(client)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub publisher: %w", err)
	}
	logger.Info("using pubsub publisher",
		zap.String("project", cfg.PubSub.ProjectID),
		zap.String("topic", cfg.PubSub.TopicName),
	)
	closeFn := func() {
		if err := pub.Close(); err != nil {
			logger.Warn("pubsub close failed", zap.Error(err))
		}
	}
	return pub, closeFn, nil
}
