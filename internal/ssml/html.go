package ssml

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoContent indicates the HTML held no narratable text.
var ErrNoContent = errors.New("no narratable content in html")

// blockSelector matches the elements narrated as paragraphs, in document
// order.
const blockSelector = "h1, h2, h3, h4, h5, h6, p, li, blockquote, figcaption"

// FromHTML converts extracted article HTML into an SSML document: one
// <p> element per block of text, wrapped in a single <speak> root.
func FromHTML(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse article html: %w", err)
	}

	var paragraphs []string

	doc.Find(blockSelector).Each(func(_ int, sel *goquery.Selection) {
		// Skip nested blocks, their text is narrated by the outer one.
		if sel.ParentsFiltered(blockSelector).Length() > 0 {
			return
		}

		text := NormalizeText(sel.Text())
		if text == "" {
			return
		}

		paragraphs = append(paragraphs, "<p>"+EscapeText(text)+"</p>")
	})

	if len(paragraphs) == 0 {
		// Pages without block markup still narrate as one paragraph.
		text := NormalizeText(doc.Text())
		if text == "" {
			return "", ErrNoContent
		}

		paragraphs = append(paragraphs, "<p>"+EscapeText(text)+"</p>")
	}

	return "<speak>" + strings.Join(paragraphs, "") + "</speak>", nil
}
