// Package core defines the domain model and the interfaces the
// article-to-audio pipeline is built around.
package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrArticleNotFound indicates that no article exists for the given identifier.
	ErrArticleNotFound = errors.New("article not found")
	// ErrAudiofileNotFound indicates that no audiofile exists for the given identifier.
	ErrAudiofileNotFound = errors.New("audiofile not found")
	// ErrAudiofileExists indicates that the article already has an audiofile.
	// The wrapping error carries the identifier of the existing audiofile.
	ErrAudiofileExists = errors.New("audiofile already exists for article")
	// ErrArticleURLExists indicates the submitted URL was already added.
	ErrArticleURLExists = errors.New("article url already exists")
	// ErrCanonicalURLExists indicates another article already holds the
	// canonical URL a crawl resolved to.
	ErrCanonicalURLExists = errors.New("canonical url already taken by another article")
	// ErrInvalidTransition indicates a forbidden article status transition.
	ErrInvalidTransition = errors.New("invalid article status transition")
	// ErrNoSSML indicates that an article has no SSML content to synthesize.
	ErrNoSSML = errors.New("article has no ssml content")
	// ErrMimeTypeUnsupported indicates that no audio encoding exists for the mime type.
	ErrMimeTypeUnsupported = errors.New("unsupported audio mime type")
)

// ArticleStatus tracks an article through the crawl lifecycle.
type ArticleStatus string

// Article lifecycle states. An article starts as StatusNew, is moved to
// StatusCrawling by the crawl worker and ends up StatusFinished or
// StatusFailed. A failed article may be picked up again by the worker's
// own retry loop, no other caller may resurrect it.
const (
	StatusNew      ArticleStatus = "new"
	StatusCrawling ArticleStatus = "crawling"
	StatusFinished ArticleStatus = "finished"
	StatusFailed   ArticleStatus = "failed"
)

// CanTransition reports whether moving an article from one status to
// another is allowed.
func CanTransition(from, to ArticleStatus) bool {
	switch from {
	case StatusNew:
		return to == StatusCrawling
	case StatusCrawling:
		return to == StatusFinished || to == StatusFailed
	case StatusFailed:
		// Only the crawl worker re-enters crawling on redelivery.
		return to == StatusCrawling
	case StatusFinished:
		return false
	default:
		return false
	}
}

// Article is a user-submitted page we narrate. The HTML, SSML and Text
// fields are large and excluded from default repository projections.
type Article struct {
	ID                   string
	URL                  string
	CanonicalURL         string
	Status               ArticleStatus
	Title                string
	Description          string
	SourceName           string
	AuthorName           string
	ImageURL             string
	LanguageCode         string
	ReadingTime          float64
	HTML                 string
	SSML                 string
	Text                 string
	CompatibilityMessage string
	CrawlAttempts        int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Audiofile is the single audio narration of an article. At most one
// audiofile exists per article, enforced by a uniqueness constraint in
// the store.
type Audiofile struct {
	ID           string
	ArticleID    string
	URL          string
	Bucket       string
	Filename     string
	Length       float64
	MimeType     string
	VoiceName    string
	LanguageCode string
	CreatedAt    time.Time
}

// Voice describes the synthesis voice requested for an audiofile.
type Voice struct {
	Name         string
	LanguageCode string
	MimeType     string
}

// EncodingForMimeType maps an audiofile mime type to the encoding
// parameter the speech engine expects.
func EncodingForMimeType(mimeType string) (string, error) {
	switch mimeType {
	case "audio/mpeg":
		return "MP3", nil
	case "audio/opus":
		return "OGG_OPUS", nil
	case "audio/wav":
		return "LINEAR16", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrMimeTypeUnsupported, mimeType)
	}
}

// CrawlResult is what the crawler extracted from an article URL.
type CrawlResult struct {
	URL          string
	CanonicalURL string
	Title        string
	Description  string
	AuthorName   string
	SourceName   string
	ImageURL     string
	LanguageCode string
	ReadingTime  float64
	HTML         string
	Text         string
	SSML         string
}
