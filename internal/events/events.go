// Package events defines the JSON payloads exchanged over the message bus.
package events

import (
	"time"

	"github.com/google/uuid"
)

// CrawlArticleEvent asks the crawl worker to fetch the full contents of
// an article. Delivery is at-least-once; consumers must tolerate
// redelivery of the same article id.
type CrawlArticleEvent struct {
	EventID    string    `json:"eventId"`
	EmittedAt  time.Time `json:"emittedAt"`
	ArticleID  string    `json:"articleId"`
	ArticleURL string    `json:"articleUrl"`
}

// NewCrawlArticleEvent stamps a fresh event for the given article.
func NewCrawlArticleEvent(articleID, articleURL string) CrawlArticleEvent {
	return CrawlArticleEvent{
		EventID:    uuid.NewString(),
		EmittedAt:  time.Now().UTC(),
		ArticleID:  articleID,
		ArticleURL: articleURL,
	}
}
