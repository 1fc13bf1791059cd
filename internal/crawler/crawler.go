// Package crawler fetches article pages and extracts their readable
// content.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/articast/articast/internal/core"
	"github.com/articast/articast/internal/ssml"
)

// Static errors for crawl failures.
var (
	// ErrFetchFailed indicates the article page could not be downloaded.
	ErrFetchFailed = errors.New("failed to fetch article page")
	// ErrNotHTML indicates the URL served something other than an HTML page.
	ErrNotHTML = errors.New("article url did not serve html")
	// ErrExtractionFailed indicates no readable content could be extracted.
	ErrExtractionFailed = errors.New("failed to extract article content")
)

// Narration pace used to estimate audio length from word count.
const wordsPerMinute = 200

// HTTPCrawler implements core.Crawler over plain HTTP fetching plus
// readability extraction.
type HTTPCrawler struct {
	httpClient *http.Client
	userAgent  string
}

// New creates a crawler with a fixed request timeout.
func New(userAgent string, timeout time.Duration) *HTTPCrawler {
	return &HTTPCrawler{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
	}
}

// Crawl downloads the page, extracts the readable article and converts
// it to SSML ready for synthesis.
func (c *HTTPCrawler) Crawl(ctx context.Context, articleURL string) (*core.CrawlResult, error) {
	pageURL, err := url.Parse(articleURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid url %q: %w", ErrFetchFailed, articleURL, err)
	}

	rawHTML, err := c.fetch(ctx, articleURL)
	if err != nil {
		return nil, err
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	if strings.TrimSpace(article.Content) == "" {
		return nil, fmt.Errorf("%w: page has no readable content", ErrExtractionFailed)
	}

	ssmlDoc, err := ssml.FromHTML(article.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	canonicalURL, languageCode := pageMetadata(rawHTML)
	if canonicalURL == "" {
		canonicalURL = articleURL
	}

	result := &core.CrawlResult{
		URL:          articleURL,
		CanonicalURL: canonicalURL,
		Title:        article.Title,
		Description:  article.Excerpt,
		AuthorName:   article.Byline,
		SourceName:   siteName(article.SiteName, pageURL),
		ImageURL:     article.Image,
		LanguageCode: languageCode,
		ReadingTime:  estimateListeningSeconds(article.TextContent),
		HTML:         article.Content,
		Text:         article.TextContent,
		SSML:         ssmlDoc,
	}

	return result, nil
}

func (c *HTTPCrawler) fetch(ctx context.Context, articleURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %w", ErrFetchFailed, err)
	}

	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: http status %d", ErrFetchFailed, resp.StatusCode)
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if contentType != "" && !strings.Contains(contentType, "text/html") &&
		!strings.Contains(contentType, "application/xhtml") {
		return "", fmt.Errorf("%w: content type %q", ErrNotHTML, contentType)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response body: %w", ErrFetchFailed, err)
	}

	return string(data), nil
}

// pageMetadata pulls the canonical link and document language from the
// raw page, since readability drops the head.
func pageMetadata(rawHTML string) (canonicalURL, languageCode string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", ""
	}

	canonicalURL, _ = doc.Find(`link[rel="canonical"]`).First().Attr("href")
	if canonicalURL == "" {
		canonicalURL, _ = doc.Find(`meta[property="og:url"]`).First().Attr("content")
	}

	lang, _ := doc.Find("html").First().Attr("lang")

	// "en-US" and "en_US" both normalize to "en".
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}

	return strings.TrimSpace(canonicalURL), lang
}

func siteName(extracted string, pageURL *url.URL) string {
	if extracted != "" {
		return extracted
	}

	return strings.TrimPrefix(pageURL.Hostname(), "www.")
}

// estimateListeningSeconds approximates the narration length of the
// article text at a steady reading pace.
func estimateListeningSeconds(text string) float64 {
	words := len(strings.Fields(text))

	return float64(words) / wordsPerMinute * 60
}
