package articles_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/articast/articast/internal/articles"
	"github.com/articast/articast/internal/core"
)

// fakeArticleRepository is an in-memory core.ArticleRepository.
type fakeArticleRepository struct {
	byID       map[string]*core.Article
	saveErr    error
	updateErr  error
	urls       map[string]string // submitted url -> article id
	canonicals map[string]string // canonical url -> article id
}

func newFakeArticleRepository() *fakeArticleRepository {
	return &fakeArticleRepository{
		byID:       make(map[string]*core.Article),
		urls:       make(map[string]string),
		canonicals: make(map[string]string),
	}
}

func (r *fakeArticleRepository) FindByID(_ context.Context, id string) (*core.Article, error) {
	article, ok := r.byID[id]
	if !ok {
		return nil, core.ErrArticleNotFound
	}

	clone := *article

	return &clone, nil
}

func (r *fakeArticleRepository) FindByIDWithBody(ctx context.Context, id string) (*core.Article, error) {
	return r.FindByID(ctx, id)
}

func (r *fakeArticleRepository) FindByCanonicalURL(_ context.Context, canonicalURL string) (*core.Article, error) {
	id, ok := r.canonicals[canonicalURL]
	if !ok {
		return nil, core.ErrArticleNotFound
	}

	clone := *r.byID[id]

	return &clone, nil
}

func (r *fakeArticleRepository) Save(_ context.Context, article *core.Article) error {
	if r.saveErr != nil {
		return r.saveErr
	}

	if owner, taken := r.urls[article.URL]; taken && owner != article.ID {
		return core.ErrArticleURLExists
	}

	clone := *article
	r.byID[article.ID] = &clone
	r.urls[article.URL] = article.ID

	if article.CanonicalURL != "" {
		r.canonicals[article.CanonicalURL] = article.ID
	}

	return nil
}

func (r *fakeArticleRepository) Update(_ context.Context, article *core.Article) error {
	if r.updateErr != nil {
		return r.updateErr
	}

	if _, ok := r.byID[article.ID]; !ok {
		return core.ErrArticleNotFound
	}

	if article.CanonicalURL != "" {
		owner, taken := r.canonicals[article.CanonicalURL]
		if taken && owner != article.ID {
			return core.ErrCanonicalURLExists
		}

		r.canonicals[article.CanonicalURL] = article.ID
	}

	clone := *article
	r.byID[article.ID] = &clone

	return nil
}

func (r *fakeArticleRepository) UpdateStatus(_ context.Context, id string, status core.ArticleStatus) error {
	article, ok := r.byID[id]
	if !ok {
		return core.ErrArticleNotFound
	}

	article.Status = status

	return nil
}

func (r *fakeArticleRepository) IncrementCrawlAttempts(_ context.Context, id string) (int, error) {
	article, ok := r.byID[id]
	if !ok {
		return 0, core.ErrArticleNotFound
	}

	article.CrawlAttempts++

	return article.CrawlAttempts, nil
}

func (r *fakeArticleRepository) ResetCrawlAttempts(_ context.Context, id string) error {
	article, ok := r.byID[id]
	if !ok {
		return core.ErrArticleNotFound
	}

	article.CrawlAttempts = 0

	return nil
}

func (r *fakeArticleRepository) Delete(_ context.Context, id string) error {
	if _, ok := r.byID[id]; !ok {
		return core.ErrArticleNotFound
	}

	delete(r.byID, id)

	return nil
}

// fakeStorage records delete calls.
type fakeStorage struct {
	deletedPrefixes []string
}

func (s *fakeStorage) UploadFile(_ context.Context, _, key, _ string, _ map[string]string) (string, error) {
	return "https://storage.example.com/audio/" + key, nil
}

func (s *fakeStorage) Delete(_ context.Context, _ string) error { return nil }

func (s *fakeStorage) DeletePrefix(_ context.Context, prefix string) error {
	s.deletedPrefixes = append(s.deletedPrefixes, prefix)

	return nil
}

func (s *fakeStorage) Bucket() string { return "audio" }

// fakePublisher records published crawl events.
type fakePublisher struct {
	published []string
	err       error
}

func (p *fakePublisher) PublishCrawlArticle(_ context.Context, articleID, _ string) error {
	if p.err != nil {
		return p.err
	}

	p.published = append(p.published, articleID)

	return nil
}

func newTestService(t *testing.T) (*articles.Service, *fakeArticleRepository, *fakeStorage, *fakePublisher) {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, log.Close())
	})

	repo := newFakeArticleRepository()
	storage := &fakeStorage{}
	publisher := &fakePublisher{}

	return articles.NewService(repo, storage, publisher, log), repo, storage, publisher
}

func validCrawlResult() *core.CrawlResult {
	return &core.CrawlResult{
		URL:          "https://example.com/story",
		CanonicalURL: "https://example.com/story",
		Title:        "A story",
		Text:         "body text",
		HTML:         "<p>body text</p>",
		SSML:         "<speak><p>body text.</p></speak>",
		ReadingTime:  42,
	}
}

func TestCreatePersistsAndPublishes(t *testing.T) {
	t.Parallel()

	service, repo, _, publisher := newTestService(t)

	article, err := service.Create(context.Background(), "https://example.com/story")
	require.NoError(t, err)

	assert.NotEmpty(t, article.ID)
	assert.Equal(t, core.StatusNew, article.Status)

	stored := repo.byID[article.ID]
	require.NotNil(t, stored)

	require.Len(t, publisher.published, 1)
	assert.Equal(t, article.ID, publisher.published[0])
}

func TestCreateRejectsBadURLs(t *testing.T) {
	t.Parallel()

	service, _, _, publisher := newTestService(t)

	for _, badURL := range []string{"", "   ", "ftp://example.com/x", "not a url", "//missing-scheme"} {
		_, err := service.Create(context.Background(), badURL)
		require.ErrorIs(t, err, articles.ErrInvalidURL, "url %q", badURL)
	}

	assert.Empty(t, publisher.published)
}

func TestCreateRejectsDuplicateURL(t *testing.T) {
	t.Parallel()

	service, repo, _, publisher := newTestService(t)
	ctx := context.Background()

	_, err := service.Create(ctx, "https://example.com/story")
	require.NoError(t, err)

	_, err = service.Create(ctx, "https://example.com/story")
	require.ErrorIs(t, err, core.ErrArticleURLExists)

	// Only the first submission left a row and a crawl event behind.
	assert.Len(t, repo.byID, 1)
	assert.Len(t, publisher.published, 1)
}

func TestCreateFailsWhenPublishFails(t *testing.T) {
	t.Parallel()

	service, repo, _, publisher := newTestService(t)
	publisher.err = errors.New("nats down")

	_, err := service.Create(context.Background(), "https://example.com/story")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crawl event failed")

	// The row stays so a retry can republish rather than duplicate.
	assert.Len(t, repo.byID, 1)
}

func TestStatusTransitions(t *testing.T) {
	t.Parallel()

	service, repo, _, _ := newTestService(t)
	ctx := context.Background()

	article, err := service.Create(ctx, "https://example.com/story")
	require.NoError(t, err)

	require.NoError(t, service.BeginCrawling(ctx, article.ID))
	assert.Equal(t, core.StatusCrawling, repo.byID[article.ID].Status)

	require.NoError(t, service.Finish(ctx, article.ID))
	assert.Equal(t, core.StatusFinished, repo.byID[article.ID].Status)

	// Finished articles never go back to crawling.
	err = service.BeginCrawling(ctx, article.ID)
	require.ErrorIs(t, err, core.ErrInvalidTransition)
}

func TestMarkFailedRecordsMessageAndIsRepeatable(t *testing.T) {
	t.Parallel()

	service, repo, _, _ := newTestService(t)
	ctx := context.Background()

	article, err := service.Create(ctx, "https://example.com/story")
	require.NoError(t, err)
	require.NoError(t, service.BeginCrawling(ctx, article.ID))

	require.NoError(t, service.MarkFailed(ctx, article.ID, "could not extract content"))
	assert.Equal(t, core.StatusFailed, repo.byID[article.ID].Status)
	assert.Equal(t, "could not extract content", repo.byID[article.ID].CompatibilityMessage)

	require.NoError(t, service.MarkFailed(ctx, article.ID, "still broken"))
	assert.Equal(t, "still broken", repo.byID[article.ID].CompatibilityMessage)
}

func TestUpdateToFullFillsArticle(t *testing.T) {
	t.Parallel()

	service, repo, _, _ := newTestService(t)
	ctx := context.Background()

	article, err := service.Create(ctx, "https://example.com/story?utm_source=feed")
	require.NoError(t, err)
	require.NoError(t, service.BeginCrawling(ctx, article.ID))

	updated, ok, err := service.UpdateToFull(ctx, article.ID, validCrawlResult())
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, core.StatusFinished, updated.Status)
	assert.Equal(t, "A story", updated.Title)
	assert.True(t, strings.HasPrefix(updated.SSML, "<speak>"))

	stored := repo.byID[article.ID]
	assert.Equal(t, "https://example.com/story", stored.CanonicalURL)
	assert.Equal(t, core.StatusFinished, stored.Status)
}

func TestUpdateToFullSkipsDuplicateCanonicalURL(t *testing.T) {
	t.Parallel()

	service, repo, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := service.Create(ctx, "https://example.com/story")
	require.NoError(t, err)
	require.NoError(t, service.BeginCrawling(ctx, first.ID))

	_, ok, err := service.UpdateToFull(ctx, first.ID, validCrawlResult())
	require.NoError(t, err)
	require.True(t, ok)

	second, err := service.Create(ctx, "https://example.com/story?utm_source=twitter")
	require.NoError(t, err)
	require.NoError(t, service.BeginCrawling(ctx, second.ID))

	_, ok, err = service.UpdateToFull(ctx, second.ID, validCrawlResult())
	require.NoError(t, err)
	assert.False(t, ok, "duplicate canonical url must not update")

	// The duplicate keeps its stub content.
	assert.Empty(t, repo.byID[second.ID].Title)
}

func TestUpdateToFullRejectsIncompleteResults(t *testing.T) {
	t.Parallel()

	service, _, _, _ := newTestService(t)
	ctx := context.Background()

	article, err := service.Create(ctx, "https://example.com/story")
	require.NoError(t, err)

	missingTitle := validCrawlResult()
	missingTitle.Title = " "

	_, _, err = service.UpdateToFull(ctx, article.ID, missingTitle)
	require.ErrorIs(t, err, articles.ErrIncompleteCrawl)

	missingSSML := validCrawlResult()
	missingSSML.SSML = ""

	_, _, err = service.UpdateToFull(ctx, article.ID, missingSSML)
	require.ErrorIs(t, err, articles.ErrIncompleteCrawl)
}

func TestDeleteRemovesRowAndStoredObjects(t *testing.T) {
	t.Parallel()

	service, repo, storage, _ := newTestService(t)
	ctx := context.Background()

	article, err := service.Create(ctx, "https://example.com/story")
	require.NoError(t, err)

	require.NoError(t, service.Delete(ctx, article.ID))

	assert.Empty(t, repo.byID)
	require.Len(t, storage.deletedPrefixes, 1)
	assert.Equal(t, "articles/"+article.ID+"/", storage.deletedPrefixes[0])
}
