package ssml

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Punctuation and formatting constants.
const (
	emDash       = "—"
	enDash       = "–"
	figureDash   = "‒"
	ellipsis     = "..."
	ellipsisChar = "…"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// quoteAndDashReplacer maps typographic punctuation to plain forms the
// speech engine pronounces consistently.
var quoteAndDashReplacer = strings.NewReplacer(
	emDash, "-",
	enDash, "-",
	figureDash, "-",
	ellipsisChar, ellipsis,
	"“", `"`, "”", `"`,
	"‘", "'", "’", "'",
)

// xmlEscaper escapes the characters that would otherwise be parsed as
// markup inside an SSML text node.
var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

// NormalizeText prepares extracted article text for narration: it
// collapses whitespace, flattens typographic punctuation and makes sure
// the text ends like a sentence.
func NormalizeText(text string) string {
	if text == "" {
		return text
	}

	normalized := whitespacePattern.ReplaceAllString(text, " ")
	normalized = quoteAndDashReplacer.Replace(normalized)

	return ensureSentenceEnding(strings.TrimSpace(normalized))
}

// EscapeText escapes a text run for embedding in SSML markup.
func EscapeText(text string) string {
	return xmlEscaper.Replace(text)
}

func ensureSentenceEnding(text string) string {
	if text == "" {
		return ""
	}

	lastRune, _ := utf8.DecodeLastRuneInString(text)

	switch lastRune {
	case '.', '!', '?', ':', ';':
		return text
	}

	if unicode.IsPunct(lastRune) {
		return text
	}

	return text + "."
}
