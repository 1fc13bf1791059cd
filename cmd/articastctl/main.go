// main package for the articast command line client
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/book-expert/logger"

	"github.com/articast/articast/internal/bus"
	"github.com/articast/articast/internal/config"
	"github.com/articast/articast/internal/core"
	"github.com/articast/articast/internal/objectstore"
	"github.com/articast/articast/internal/store"
	"github.com/articast/articast/internal/synthesize"
	"github.com/articast/articast/internal/tts"

	articlesvc "github.com/articast/articast/internal/articles"
)

// Flag descriptions.
const (
	flagAddDesc        = "Submit an article URL for crawling"
	flagStatusDesc     = "Print the status of an article by id"
	flagSynthesizeDesc = "Synthesize the audiofile of an article by id"
	flagDeleteDesc     = "Delete an article and its stored audio by id"
	flagVoiceDesc      = "Voice name for synthesis (defaults from config)"
	flagLanguageDesc   = "Language code for synthesis (defaults from config)"
	flagMimeDesc       = "Audio mime type for synthesis (defaults from config)"
	flagHealthDesc     = "Check speech service health and exit"
)

// ErrNoCommand indicates no operation flag was provided.
var ErrNoCommand = errors.New("one of -add, -status, -synthesize, -delete or -health is required")

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	add        string
	status     string
	synthesize string
	remove     string
	voice      string
	language   string
	mime       string
	health     bool
}

func main() {
	err := run()
	if err != nil {
		// The logger might not be initialized yet, so use the standard log package.
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	flags := parseFlags()

	logDir := os.TempDir()

	clientLog, err := logger.New(logDir, "articastctl.log")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	defer func() {
		closeErr := clientLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
		}
	}()

	cfg, err := config.Load(clientLog)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	return dispatch(ctx, cfg, clientLog, flags)
}

func parseFlags() appFlags {
	var flags appFlags

	flag.StringVar(&flags.add, "add", "", flagAddDesc)
	flag.StringVar(&flags.status, "status", "", flagStatusDesc)
	flag.StringVar(&flags.synthesize, "synthesize", "", flagSynthesizeDesc)
	flag.StringVar(&flags.remove, "delete", "", flagDeleteDesc)
	flag.StringVar(&flags.voice, "voice", "", flagVoiceDesc)
	flag.StringVar(&flags.language, "language", "", flagLanguageDesc)
	flag.StringVar(&flags.mime, "mime", "", flagMimeDesc)
	flag.BoolVar(&flags.health, "health", false, flagHealthDesc)
	flag.Parse()

	return flags
}

func dispatch(ctx context.Context, cfg *config.Config, clientLog *logger.Logger, flags appFlags) error {
	if flags.health {
		return handleHealthCheck(ctx, cfg)
	}

	env, err := setupEnv(ctx, cfg, clientLog)
	if err != nil {
		return err
	}
	defer env.close(clientLog)

	switch {
	case flags.add != "":
		return handleAdd(ctx, env, flags.add)
	case flags.status != "":
		return handleStatus(ctx, env, flags.status)
	case flags.synthesize != "":
		return handleSynthesize(ctx, env, cfg, clientLog, flags)
	case flags.remove != "":
		return env.articles.Delete(ctx, flags.remove)
	default:
		return ErrNoCommand
	}
}

// clientEnv bundles the wired services a command needs.
type clientEnv struct {
	db       *store.Store
	eventBus *bus.Bus
	storage  *objectstore.Store
	articles *articlesvc.Service
}

func setupEnv(ctx context.Context, cfg *config.Config, clientLog *logger.Logger) (*clientEnv, error) {
	db, err := store.Open(ctx, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	eventBus, err := bus.Connect(cfg.NATS.URL, "articastctl")
	if err != nil {
		closeErr := db.Close()
		if closeErr != nil {
			return nil, errors.Join(err, closeErr)
		}

		return nil, err
	}

	_, err = eventBus.EnsureCrawlStream(ctx, cfg.NATS.CrawlStreamName, cfg.NATS.CrawlSubject)
	if err != nil {
		return nil, err
	}

	storage, err := objectstore.New(ctx, eventBus.JetStream(), cfg.NATS.AudioBucket, cfg.Storage.PublicBaseURL)
	if err != nil {
		return nil, err
	}

	publisher := bus.NewPublisher(eventBus, cfg.NATS.CrawlSubject)

	return &clientEnv{
		db:       db,
		eventBus: eventBus,
		storage:  storage,
		articles: articlesvc.NewService(db.Articles(), storage, publisher, clientLog),
	}, nil
}

func (e *clientEnv) close(clientLog *logger.Logger) {
	err := e.eventBus.Close()
	if err != nil {
		clientLog.Error("Failed to close NATS connection: %v", err)
	}

	err = e.db.Close()
	if err != nil {
		clientLog.Error("Failed to close store: %v", err)
	}
}

func handleHealthCheck(ctx context.Context, cfg *config.Config) error {
	client := tts.NewClient(cfg.TTS.BaseURL, time.Duration(cfg.TTS.TimeoutSeconds)*time.Second)

	err := client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("speech service is not healthy: %w", err)
	}

	fmt.Println("Speech service is healthy")

	return nil
}

func handleAdd(ctx context.Context, env *clientEnv, articleURL string) error {
	article, err := env.articles.Create(ctx, articleURL)
	if err != nil {
		return err
	}

	fmt.Printf("Article %s submitted for crawling\n", article.ID)

	return nil
}

func handleStatus(ctx context.Context, env *clientEnv, articleID string) error {
	article, err := env.articles.Get(ctx, articleID)
	if err != nil {
		return err
	}

	fmt.Printf("Article:  %s\nURL:      %s\nStatus:   %s\nTitle:    %s\nAttempts: %d\n",
		article.ID, article.URL, article.Status, article.Title, article.CrawlAttempts)

	if article.CompatibilityMessage != "" {
		fmt.Printf("Message:  %s\n", article.CompatibilityMessage)
	}

	return nil
}

func handleSynthesize(
	ctx context.Context,
	env *clientEnv,
	cfg *config.Config,
	clientLog *logger.Logger,
	flags appFlags,
) error {
	synthesizer := tts.NewClient(cfg.TTS.BaseURL, time.Duration(cfg.TTS.TimeoutSeconds)*time.Second)

	service := synthesize.NewService(
		env.db.Articles(),
		env.db.Audiofiles(),
		synthesizer,
		env.storage,
		clientLog,
		synthesize.Options{
			WorkDir:                cfg.Synthesis.WorkDir,
			SoftLimit:              cfg.Synthesis.SoftCharacterLimit,
			HardLimit:              cfg.Synthesis.HardCharacterLimit,
			MaxConcurrentFragments: cfg.Synthesis.MaxConcurrentFragments,
			DefaultVoice: core.Voice{
				Name:         cfg.TTS.DefaultVoiceName,
				LanguageCode: cfg.TTS.DefaultLanguageCode,
				MimeType:     cfg.TTS.DefaultMimeType,
			},
		},
	)

	audiofile, err := service.Synthesize(ctx, flags.synthesize, core.Voice{
		Name:         flags.voice,
		LanguageCode: flags.language,
		MimeType:     flags.mime,
	})
	if err != nil {
		if errors.Is(err, core.ErrAudiofileExists) && audiofile != nil {
			fmt.Printf("Audiofile %s already exists at %s\n", audiofile.ID, audiofile.URL)

			return nil
		}

		return err
	}

	fmt.Printf("Audiofile %s available at %s\n", audiofile.ID, audiofile.URL)

	return nil
}
