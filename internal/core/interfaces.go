package core

import "context"

// ArticleRepository is the persistence boundary for articles. FindByID
// returns the default projection without the large body fields; callers
// that need HTML, SSML or Text must use FindByIDWithBody.
type ArticleRepository interface {
	FindByID(ctx context.Context, id string) (*Article, error)
	FindByIDWithBody(ctx context.Context, id string) (*Article, error)
	FindByCanonicalURL(ctx context.Context, canonicalURL string) (*Article, error)
	Save(ctx context.Context, article *Article) error
	Update(ctx context.Context, article *Article) error
	UpdateStatus(ctx context.Context, id string, status ArticleStatus) error
	IncrementCrawlAttempts(ctx context.Context, id string) (int, error)
	ResetCrawlAttempts(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// AudiofileRepository is the persistence boundary for audiofiles. Save
// reports ErrAudiofileExists when the article already has one.
type AudiofileRepository interface {
	FindByID(ctx context.Context, id string) (*Audiofile, error)
	FindByArticleID(ctx context.Context, articleID string) ([]Audiofile, error)
	Save(ctx context.Context, audiofile *Audiofile) error
}

// SynthesisRequest describes one remote text-to-speech call for a single
// SSML fragment.
type SynthesisRequest struct {
	SSML          string
	VoiceName     string
	LanguageCode  string
	AudioEncoding string
}

// SpeechSynthesizer performs one remote synthesis call per fragment and
// returns the raw audio bytes.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error)
	HealthCheck(ctx context.Context) error
}

// ObjectStorage is a remote blob store returning public URLs.
type ObjectStorage interface {
	UploadFile(ctx context.Context, localPath, key, contentType string, metadata map[string]string) (string, error)
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	Bucket() string
}

// Crawler fetches an article URL and extracts its full content.
type Crawler interface {
	Crawl(ctx context.Context, articleURL string) (*CrawlResult, error)
}

// CrawlPublisher emits the asynchronous "crawl full article" event after
// an article has been saved.
type CrawlPublisher interface {
	PublishCrawlArticle(ctx context.Context, articleID, articleURL string) error
}

// ErrorReporter records failures for an operator, with free-form context
// attached. Reporting must never fail the operation that reports.
type ErrorReporter interface {
	Report(err error, context map[string]string)
}
