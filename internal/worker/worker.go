// Package worker consumes crawl events and turns submitted URLs into
// fully crawled articles.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/articast/articast/internal/articles"
	"github.com/articast/articast/internal/core"
	"github.com/articast/articast/internal/events"
)

// Options tunes the crawl worker.
type Options struct {
	// StreamName and ConsumerName identify the durable consumer.
	StreamName   string
	ConsumerName string
	// Subject filters the crawl events within the stream.
	Subject string
	// MaxAttempts is the delivery ceiling. Counting is durable, stored
	// on the article row, so redeliveries after a restart still count.
	MaxAttempts int
	// RedeliverDelay spaces out retries of failed crawls.
	RedeliverDelay time.Duration
	// CrawlTimeout bounds one crawl including fetch and extraction.
	CrawlTimeout time.Duration
}

// Worker is the durable consumer of crawl events.
type Worker struct {
	js       jetstream.JetStream
	articles *articles.Service
	repo     core.ArticleRepository
	crawler  core.Crawler
	reporter core.ErrorReporter
	log      *logger.Logger
	opts     Options
}

// New creates a crawl worker.
func New(
	js jetstream.JetStream,
	articleService *articles.Service,
	repo core.ArticleRepository,
	crawler core.Crawler,
	reporter core.ErrorReporter,
	log *logger.Logger,
	opts Options,
) *Worker {
	return &Worker{
		js:       js,
		articles: articleService,
		repo:     repo,
		crawler:  crawler,
		reporter: reporter,
		log:      log,
		opts:     opts,
	}
}

// Run binds the durable consumer and processes events until the context
// is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	consumer, err := w.js.CreateOrUpdateConsumer(ctx, w.opts.StreamName, jetstream.ConsumerConfig{
		Durable:       w.opts.ConsumerName,
		FilterSubject: w.opts.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		// The durable attempts counter on the article row is the
		// retry authority, not the broker's delivery count.
		MaxDeliver: -1,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer %s: %w", w.opts.ConsumerName, err)
	}

	consumeCtx, err := consumer.Consume(w.Handle)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	w.log.Info("Crawl worker consuming %s on stream %s", w.opts.Subject, w.opts.StreamName)

	<-ctx.Done()

	consumeCtx.Stop()

	return nil
}

// Handle processes one delivery. Ack/nak/term decisions:
//   - unparseable events and deleted articles are terminated, they can
//     never succeed
//   - crawl failures below the attempts ceiling are nak'd with a delay
//     for redelivery
//   - at the ceiling the article is marked failed and the event
//     terminated
func (w *Worker) Handle(msg jetstream.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.CrawlTimeout)
	defer cancel()

	var event events.CrawlArticleEvent

	err := json.Unmarshal(msg.Data(), &event)
	if err != nil || event.ArticleID == "" || event.ArticleURL == "" {
		w.log.Error("Discarding malformed crawl event: %v", err)
		w.terminate(msg)

		return
	}

	attempts, err := w.repo.IncrementCrawlAttempts(ctx, event.ArticleID)
	if err != nil {
		if errors.Is(err, core.ErrArticleNotFound) {
			w.log.Warn("Article %s no longer exists, discarding crawl event", event.ArticleID)
			w.terminate(msg)

			return
		}

		w.log.Error("Failed to count crawl attempt for article %s: %v", event.ArticleID, err)
		w.redeliver(msg)

		return
	}

	if attempts > w.opts.MaxAttempts {
		w.giveUp(ctx, msg, &event, attempts)

		return
	}

	w.log.Info("Crawling article %s (attempt %d/%d)", event.ArticleID, attempts, w.opts.MaxAttempts)

	err = w.articles.BeginCrawling(ctx, event.ArticleID)
	if err != nil {
		if errors.Is(err, core.ErrInvalidTransition) {
			// Already finished, a leftover redelivery.
			w.log.Warn("Article %s cannot enter crawling: %v", event.ArticleID, err)
			w.acknowledge(ctx, msg, event.ArticleID)

			return
		}

		w.log.Error("Failed to start crawling article %s: %v", event.ArticleID, err)
		w.redeliver(msg)

		return
	}

	w.crawl(ctx, msg, &event, attempts)
}

func (w *Worker) crawl(ctx context.Context, msg jetstream.Msg, event *events.CrawlArticleEvent, attempts int) {
	result, err := w.crawler.Crawl(ctx, event.ArticleURL)
	if err != nil {
		w.handleCrawlFailure(ctx, msg, event, attempts, err)

		return
	}

	_, updated, err := w.articles.UpdateToFull(ctx, event.ArticleID, result)
	if err != nil {
		w.handleCrawlFailure(ctx, msg, event, attempts, err)

		return
	}

	if !updated {
		// Duplicate canonical url. The submission is done, there is
		// just nothing new to store.
		w.log.Warn("Article %s duplicates an existing article, crawl dropped", event.ArticleID)
	} else {
		w.log.Info("Article %s crawled successfully", event.ArticleID)
	}

	w.acknowledge(ctx, msg, event.ArticleID)
}

// handleCrawlFailure marks the article failed so users see the state,
// then schedules a redelivery. A later successful attempt moves it back
// through crawling to finished.
func (w *Worker) handleCrawlFailure(
	ctx context.Context,
	msg jetstream.Msg,
	event *events.CrawlArticleEvent,
	attempts int,
	crawlErr error,
) {
	w.log.Error("Crawl attempt %d for article %s failed: %v", attempts, event.ArticleID, crawlErr)

	markErr := w.articles.MarkFailed(ctx, event.ArticleID, crawlErr.Error())
	if markErr != nil {
		w.log.Error("Failed to mark article %s as failed: %v", event.ArticleID, markErr)
	}

	w.reporter.Report(crawlErr, map[string]string{
		"articleId":  event.ArticleID,
		"articleUrl": event.ArticleURL,
		"attempt":    fmt.Sprintf("%d", attempts),
	})

	w.redeliver(msg)
}

// giveUp finishes an article whose attempts ceiling is exhausted.
func (w *Worker) giveUp(ctx context.Context, msg jetstream.Msg, event *events.CrawlArticleEvent, attempts int) {
	exhausted := fmt.Errorf("crawl failed after %d attempts", attempts-1)

	w.log.Error("Giving up on article %s: %v", event.ArticleID, exhausted)

	err := w.articles.MarkFailed(ctx, event.ArticleID, exhausted.Error())
	if err != nil {
		w.log.Error("Failed to mark article %s as failed: %v", event.ArticleID, err)
	}

	w.reporter.Report(exhausted, map[string]string{
		"articleId":  event.ArticleID,
		"articleUrl": event.ArticleURL,
	})

	w.resetAttempts(ctx, event.ArticleID)
	w.terminate(msg)
}

// acknowledge acks the delivery and clears the durable attempts counter
// so an unrelated future redelivery starts fresh.
func (w *Worker) acknowledge(ctx context.Context, msg jetstream.Msg, articleID string) {
	w.resetAttempts(ctx, articleID)

	err := msg.Ack()
	if err != nil {
		w.log.Error("Failed to ack crawl event for article %s: %v", articleID, err)
	}
}

func (w *Worker) resetAttempts(ctx context.Context, articleID string) {
	err := w.repo.ResetCrawlAttempts(ctx, articleID)
	if err != nil && !errors.Is(err, core.ErrArticleNotFound) {
		w.log.Error("Failed to reset crawl attempts of article %s: %v", articleID, err)
	}
}

func (w *Worker) redeliver(msg jetstream.Msg) {
	err := msg.NakWithDelay(w.opts.RedeliverDelay)
	if err != nil {
		w.log.Error("Failed to nak crawl event: %v", err)
	}
}

func (w *Worker) terminate(msg jetstream.Msg) {
	err := msg.Term()
	if err != nil {
		w.log.Error("Failed to term crawl event: %v", err)
	}
}
