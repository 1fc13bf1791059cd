// Package articles implements the article lifecycle: creation, the
// status machine and the transition to full crawled content.
package articles

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/articast/articast/internal/core"
)

// Static errors for article operations.
var (
	// ErrInvalidURL indicates the submitted URL is not a usable http(s) URL.
	ErrInvalidURL = errors.New("invalid article url")
	// ErrIncompleteCrawl indicates a crawl result lacks the fields an
	// article needs to become narratable.
	ErrIncompleteCrawl = errors.New("crawl result is incomplete")
)

// Service coordinates article persistence, object storage cleanup and
// crawl event publication.
type Service struct {
	articles  core.ArticleRepository
	storage   core.ObjectStorage
	publisher core.CrawlPublisher
	log       *logger.Logger
}

// NewService wires the article service.
func NewService(
	articles core.ArticleRepository,
	storage core.ObjectStorage,
	publisher core.CrawlPublisher,
	log *logger.Logger,
) *Service {
	return &Service{
		articles:  articles,
		storage:   storage,
		publisher: publisher,
		log:       log,
	}
}

// Create stores a new article in status "new" and publishes the crawl
// event. The event goes out only after the row is durably saved, so the
// worker can always load the article it is told to crawl.
func (s *Service) Create(ctx context.Context, articleURL string) (*core.Article, error) {
	cleanURL, err := validateURL(articleURL)
	if err != nil {
		return nil, err
	}

	article := &core.Article{
		ID:     uuid.NewString(),
		URL:    cleanURL,
		Status: core.StatusNew,
	}

	err = s.articles.Save(ctx, article)
	if err != nil {
		if errors.Is(err, core.ErrArticleURLExists) {
			return nil, fmt.Errorf("%s: %w", cleanURL, core.ErrArticleURLExists)
		}

		return nil, fmt.Errorf("failed to create article: %w", err)
	}

	err = s.publisher.PublishCrawlArticle(ctx, article.ID, article.URL)
	if err != nil {
		// The article exists but nothing will crawl it. Surface the
		// failure so the caller can retry the submission.
		return nil, fmt.Errorf("article %s saved but crawl event failed: %w", article.ID, err)
	}

	s.log.Info("Created article %s for %s", article.ID, article.URL)

	return article, nil
}

// Get returns the article without its body fields.
func (s *Service) Get(ctx context.Context, id string) (*core.Article, error) {
	article, err := s.articles.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load article %s: %w", id, err)
	}

	return article, nil
}

// GetWithBody returns the article including HTML, SSML and text.
func (s *Service) GetWithBody(ctx context.Context, id string) (*core.Article, error) {
	article, err := s.articles.FindByIDWithBody(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load article %s: %w", id, err)
	}

	return article, nil
}

// BeginCrawling moves the article into the crawling state. Allowed from
// "new" and, on redelivery, from "failed".
func (s *Service) BeginCrawling(ctx context.Context, id string) error {
	return s.transition(ctx, id, core.StatusCrawling)
}

// Finish moves the article into the finished state.
func (s *Service) Finish(ctx context.Context, id string) error {
	return s.transition(ctx, id, core.StatusFinished)
}

func (s *Service) transition(ctx context.Context, id string, to core.ArticleStatus) error {
	article, err := s.articles.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load article %s: %w", id, err)
	}

	if article.Status == to {
		return nil
	}

	if !core.CanTransition(article.Status, to) {
		return fmt.Errorf("article %s: %s -> %s: %w",
			id, article.Status, to, core.ErrInvalidTransition)
	}

	err = s.articles.UpdateStatus(ctx, id, to)
	if err != nil {
		return fmt.Errorf("failed to move article %s to %s: %w", id, to, err)
	}

	return nil
}

// MarkFailed puts the article into the failed state and records the
// reason as the compatibility message shown to the user. Calling it on
// an already failed article only refreshes the message.
func (s *Service) MarkFailed(ctx context.Context, id, message string) error {
	article, err := s.articles.FindByIDWithBody(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load article %s: %w", id, err)
	}

	if article.Status != core.StatusFailed && !core.CanTransition(article.Status, core.StatusFailed) {
		return fmt.Errorf("article %s: %s -> %s: %w",
			id, article.Status, core.StatusFailed, core.ErrInvalidTransition)
	}

	article.Status = core.StatusFailed
	article.CompatibilityMessage = message

	err = s.articles.Update(ctx, article)
	if err != nil {
		return fmt.Errorf("failed to mark article %s as failed: %w", id, err)
	}

	return nil
}

// UpdateToFull replaces the article's stub fields with the crawl result
// and moves it to finished. It returns false without error when the
// canonical URL already belongs to another article; the duplicate
// submission simply never fills in.
func (s *Service) UpdateToFull(ctx context.Context, id string, result *core.CrawlResult) (*core.Article, bool, error) {
	err := validateCrawlResult(result)
	if err != nil {
		return nil, false, err
	}

	article, err := s.articles.FindByIDWithBody(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load article %s: %w", id, err)
	}

	if result.CanonicalURL != "" {
		owner, findErr := s.articles.FindByCanonicalURL(ctx, result.CanonicalURL)
		if findErr != nil && !errors.Is(findErr, core.ErrArticleNotFound) {
			return nil, false, fmt.Errorf("failed to check canonical url: %w", findErr)
		}

		if findErr == nil && owner.ID != article.ID {
			s.log.Warn("Article %s resolves to canonical url of article %s, skipping update",
				article.ID, owner.ID)

			return article, false, nil
		}
	}

	article.CanonicalURL = result.CanonicalURL
	article.Title = result.Title
	article.Description = result.Description
	article.AuthorName = result.AuthorName
	article.SourceName = result.SourceName
	article.ImageURL = result.ImageURL
	article.LanguageCode = result.LanguageCode
	article.ReadingTime = result.ReadingTime
	article.HTML = result.HTML
	article.Text = result.Text
	article.SSML = result.SSML
	article.Status = core.StatusFinished
	article.CompatibilityMessage = ""

	err = s.articles.Update(ctx, article)
	if err != nil {
		// A concurrent crawl can win the canonical url between the
		// check above and this update. Same benign outcome.
		if errors.Is(err, core.ErrCanonicalURLExists) {
			s.log.Warn("Article %s lost canonical url race, skipping update", article.ID)

			return article, false, nil
		}

		return nil, false, fmt.Errorf("failed to update article %s: %w", id, err)
	}

	return article, true, nil
}

// Delete removes the article, its audiofile rows (via the schema's
// cascade) and every stored object under the article's prefix.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.storage.DeletePrefix(ctx, ObjectKeyPrefix(id))
	if err != nil {
		return fmt.Errorf("failed to delete stored audio of article %s: %w", id, err)
	}

	err = s.articles.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete article %s: %w", id, err)
	}

	s.log.Info("Deleted article %s", id)

	return nil
}

// ObjectKeyPrefix is the storage prefix holding every object that
// belongs to one article.
func ObjectKeyPrefix(articleID string) string {
	return "articles/" + articleID + "/"
}

func validateURL(articleURL string) (string, error) {
	trimmed := strings.TrimSpace(articleURL)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty url", ErrInvalidURL)
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme %q", ErrInvalidURL, parsed.Scheme)
	}

	if parsed.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	return parsed.String(), nil
}

func validateCrawlResult(result *core.CrawlResult) error {
	if result == nil {
		return fmt.Errorf("%w: nil result", ErrIncompleteCrawl)
	}

	if strings.TrimSpace(result.Title) == "" {
		return fmt.Errorf("%w: missing title", ErrIncompleteCrawl)
	}

	if strings.TrimSpace(result.SSML) == "" {
		return fmt.Errorf("%w: missing ssml", ErrIncompleteCrawl)
	}

	if strings.TrimSpace(result.Text) == "" {
		return fmt.Errorf("%w: missing text", ErrIncompleteCrawl)
	}

	return nil
}
