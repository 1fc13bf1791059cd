package crawler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/articast/articast/internal/crawler"
)

const articlePage = `<!DOCTYPE html>
<html lang="en-US">
<head>
<title>The Big Story</title>
<link rel="canonical" href="https://news.example.com/big-story"/>
<meta property="og:site_name" content="Example News"/>
</head>
<body>
<article>
<h1>The Big Story</h1>
<p>Something remarkable happened yesterday in the town square, and many people
came out to see it for themselves despite the weather.</p>
<p>Officials said the event would be remembered for a long time, and visitors
from neighboring towns agreed with that assessment wholeheartedly.</p>
<p>More details are expected to emerge in the coming days as the investigation
continues and witnesses come forward with their own accounts.</p>
</article>
</body>
</html>`

func TestCrawlExtractsArticle(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "articast-test/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")

		_, _ = w.Write([]byte(articlePage))
	}))
	defer server.Close()

	c := crawler.New("articast-test/1.0", 5*time.Second)

	result, err := c.Crawl(context.Background(), server.URL+"/big-story?utm_source=feed")
	require.NoError(t, err)

	assert.Equal(t, server.URL+"/big-story?utm_source=feed", result.URL)
	assert.Equal(t, "https://news.example.com/big-story", result.CanonicalURL)
	assert.Equal(t, "The Big Story", result.Title)
	assert.Equal(t, "en", result.LanguageCode)
	assert.Contains(t, result.Text, "town square")
	assert.Greater(t, result.ReadingTime, 0.0)

	assert.True(t, strings.HasPrefix(result.SSML, "<speak>"))
	assert.True(t, strings.HasSuffix(result.SSML, "</speak>"))
	assert.Contains(t, result.SSML, "town square")
}

func TestCrawlRejectsNonHTML(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")

		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer server.Close()

	c := crawler.New("articast-test/1.0", 5*time.Second)

	_, err := c.Crawl(context.Background(), server.URL)
	require.ErrorIs(t, err, crawler.ErrNotHTML)
}

func TestCrawlReportsHTTPFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := crawler.New("articast-test/1.0", 5*time.Second)

	_, err := c.Crawl(context.Background(), server.URL)
	require.ErrorIs(t, err, crawler.ErrFetchFailed)
}

func TestCrawlFailsOnEmptyPage(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")

		_, _ = w.Write([]byte("<html><body></body></html>"))
	}))
	defer server.Close()

	c := crawler.New("articast-test/1.0", 5*time.Second)

	_, err := c.Crawl(context.Background(), server.URL)
	require.ErrorIs(t, err, crawler.ErrExtractionFailed)
}
