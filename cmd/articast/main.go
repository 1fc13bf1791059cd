// main package for the articast service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"

	"github.com/articast/articast/internal/bus"
	"github.com/articast/articast/internal/config"
	"github.com/articast/articast/internal/crawler"
	"github.com/articast/articast/internal/objectstore"
	"github.com/articast/articast/internal/report"
	"github.com/articast/articast/internal/store"
	"github.com/articast/articast/internal/tts"
	"github.com/articast/articast/internal/worker"

	articlesvc "github.com/articast/articast/internal/articles"
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	bootstrapLog, err := setupLogger(os.TempDir(), "articast-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := setupLogger(cfg.Paths.BaseLogsDir, "articast.log")
	if err != nil {
		bootstrapLog.Error("Failed to create service logger: %v", err)

		return fmt.Errorf("failed to create service logger: %w", err)
	}

	defer func() {
		closeErr := log.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runService(ctx, cfg, log)
}

func runService(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	db, err := store.Open(ctx, cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	defer func() {
		closeErr := db.Close()
		if closeErr != nil {
			log.Error("Failed to close store: %v", closeErr)
		}
	}()

	eventBus, err := bus.Connect(cfg.NATS.URL, "articast")
	if err != nil {
		return err
	}

	defer func() {
		closeErr := eventBus.Close()
		if closeErr != nil {
			log.Error("Failed to close NATS connection: %v", closeErr)
		}
	}()

	_, err = eventBus.EnsureCrawlStream(ctx, cfg.NATS.CrawlStreamName, cfg.NATS.CrawlSubject)
	if err != nil {
		return err
	}

	storage, err := objectstore.New(ctx, eventBus.JetStream(), cfg.NATS.AudioBucket, cfg.Storage.PublicBaseURL)
	if err != nil {
		return err
	}

	speechClient := tts.NewClient(cfg.TTS.BaseURL, time.Duration(cfg.TTS.TimeoutSeconds)*time.Second)

	healthErr := speechClient.HealthCheck(ctx)
	if healthErr != nil {
		// Synthesis is requested per article, so a speech service that
		// is down at startup only warrants a warning.
		log.Warn("Speech service health check failed: %v", healthErr)
	}

	publisher := bus.NewPublisher(eventBus, cfg.NATS.CrawlSubject)
	articleService := articlesvc.NewService(db.Articles(), storage, publisher, log)

	pageCrawler := crawler.New(cfg.Crawler.UserAgent,
		time.Duration(cfg.Crawler.TimeoutSeconds)*time.Second)

	crawlWorker := worker.New(
		eventBus.JetStream(),
		articleService,
		db.Articles(),
		pageCrawler,
		report.NewLogReporter(log),
		log,
		worker.Options{
			StreamName:     cfg.NATS.CrawlStreamName,
			ConsumerName:   cfg.NATS.CrawlConsumerName,
			Subject:        cfg.NATS.CrawlSubject,
			MaxAttempts:    cfg.Crawler.MaxAttempts,
			RedeliverDelay: time.Duration(cfg.Crawler.RedeliverDelaySeconds) * time.Second,
			CrawlTimeout:   time.Duration(cfg.Crawler.TimeoutSeconds) * time.Second,
		},
	)

	log.System("Articast service initialized. Consuming crawl events on subject: %s", cfg.NATS.CrawlSubject)

	return crawlWorker.Run(ctx)
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
