// Package ssml splits marked-up narration text into fragments a speech
// engine will accept, and builds that markup from crawled article HTML.
//
// The splitter is tag-aware: a fragment never cuts through an open
// element, and every fragment is re-wrapped in the root <speak> element
// so it is valid, self-contained markup on its own.
package ssml

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	// ErrChunkingFailed indicates the markup could not be split into valid
	// fragments, for example because tags are unbalanced.
	ErrChunkingFailed = errors.New("ssml chunking failed")
	// ErrFragmentTooLong indicates a single unsplittable token exceeds the
	// hard character limit.
	ErrFragmentTooLong = errors.New("ssml fragment exceeds hard limit")
	// ErrEmptyInput indicates there was no markup to split.
	ErrEmptyInput = errors.New("ssml input is empty")
)

// Default character limits, aligned with the strictest limits of the
// supported speech engines. The hard limit must stay at or below the
// engine's documented ceiling.
const (
	DefaultSoftLimit = 2000
	DefaultHardLimit = 3000
)

const speakTag = "speak"

// SplitOptions carries the character limits for Split.
type SplitOptions struct {
	// SoftLimit is the preferred fragment size. The splitter ends a
	// fragment at the first natural boundary once this size is reached.
	SoftLimit int
	// HardLimit is the maximum fragment size. Text with no natural
	// boundary before this size is cut mid-word.
	HardLimit int
}

// DefaultSplitOptions returns the default character limits.
func DefaultSplitOptions() SplitOptions {
	return SplitOptions{SoftLimit: DefaultSoftLimit, HardLimit: DefaultHardLimit}
}

// Split breaks one SSML document into an ordered, non-empty sequence of
// fragments, each within the hard limit. Input below the soft limit is
// returned unchanged as a single fragment.
func Split(ssml string, opts SplitOptions) ([]string, error) {
	trimmed := strings.TrimSpace(ssml)
	if trimmed == "" {
		return nil, ErrEmptyInput
	}

	if opts.SoftLimit <= 0 || opts.HardLimit <= 0 || opts.SoftLimit > opts.HardLimit {
		opts = DefaultSplitOptions()
	}

	if len(trimmed) <= opts.SoftLimit {
		return []string{trimmed}, nil
	}

	tokens, err := tokenize(trimmed)
	if err != nil {
		return nil, err
	}

	root, err := parse(tokens)
	if err != nil {
		return nil, err
	}

	openTag, closeTag, body := unwrapSpeak(root)

	splitter := &splitter{soft: opts.SoftLimit, hard: opts.HardLimit}

	batches, err := splitter.splitNodes(body, len(openTag)+len(closeTag))
	if err != nil {
		return nil, err
	}

	fragments := make([]string, 0, len(batches))

	for _, batch := range batches {
		content := strings.TrimSpace(batch)
		if content == "" {
			continue
		}

		fragments = append(fragments, openTag+content+closeTag)
	}

	if len(fragments) == 0 {
		return nil, fmt.Errorf("%w: no fragments produced", ErrChunkingFailed)
	}

	return fragments, nil
}

// node is one piece of the parsed markup: either a text run or an
// element with its raw open/close tags and children.
type node struct {
	text     string
	name     string
	openTag  string
	closeTag string
	children []*node
	isText   bool
}

// rendered returns the node's full source text.
func (n *node) rendered() string {
	if n.isText {
		return n.text
	}

	var builder strings.Builder

	builder.WriteString(n.openTag)

	for _, child := range n.children {
		builder.WriteString(child.rendered())
	}

	builder.WriteString(n.closeTag)

	return builder.String()
}

type token struct {
	raw         string
	name        string
	isTag       bool
	isClose     bool
	selfClosing bool
}

func tokenize(ssml string) ([]token, error) {
	var tokens []token

	rest := ssml

	for len(rest) > 0 {
		open := strings.IndexByte(rest, '<')
		if open < 0 {
			tokens = append(tokens, token{raw: rest})

			break
		}

		if open > 0 {
			tokens = append(tokens, token{raw: rest[:open]})
		}

		end := strings.IndexByte(rest[open:], '>')
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated tag", ErrChunkingFailed)
		}

		raw := rest[open : open+end+1]
		inner := strings.TrimSpace(raw[1 : len(raw)-1])

		if inner == "" {
			return nil, fmt.Errorf("%w: empty tag", ErrChunkingFailed)
		}

		tok := token{raw: raw, isTag: true}

		if strings.HasPrefix(inner, "/") {
			tok.isClose = true
			inner = strings.TrimSpace(inner[1:])
		} else if strings.HasSuffix(inner, "/") {
			tok.selfClosing = true
			inner = strings.TrimSpace(inner[:len(inner)-1])
		}

		tok.name = tagName(inner)
		if tok.name == "" {
			return nil, fmt.Errorf("%w: malformed tag %q", ErrChunkingFailed, raw)
		}

		tokens = append(tokens, tok)
		rest = rest[open+end+1:]
	}

	return tokens, nil
}

func tagName(inner string) string {
	for i, r := range inner {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			return inner[:i]
		}
	}

	return inner
}

// parse builds a node tree from the token stream. The returned node is a
// synthetic root whose children are the document's top-level nodes.
func parse(tokens []token) (*node, error) {
	root := &node{}
	stack := []*node{root}

	for _, tok := range tokens {
		top := stack[len(stack)-1]

		switch {
		case !tok.isTag:
			top.children = append(top.children, &node{isText: true, text: tok.raw})
		case tok.selfClosing:
			top.children = append(top.children, &node{
				name:    tok.name,
				openTag: tok.raw,
			})
		case tok.isClose:
			if len(stack) == 1 || top.name != tok.name {
				return nil, fmt.Errorf("%w: unexpected closing tag </%s>", ErrChunkingFailed, tok.name)
			}

			top.closeTag = tok.raw
			stack = stack[:len(stack)-1]
		default:
			opened := &node{name: tok.name, openTag: tok.raw}
			top.children = append(top.children, opened)
			stack = append(stack, opened)
		}
	}

	if len(stack) != 1 {
		return nil, fmt.Errorf("%w: unclosed tag <%s>", ErrChunkingFailed, stack[len(stack)-1].name)
	}

	return root, nil
}

// unwrapSpeak strips a single <speak> root so its children can be
// re-batched, preserving the original root tags (and their attributes)
// as the wrapper for every fragment.
func unwrapSpeak(root *node) (openTag, closeTag string, body []*node) {
	if len(root.children) == 1 {
		only := root.children[0]
		if !only.isText && only.name == speakTag && only.closeTag != "" {
			return only.openTag, only.closeTag, only.children
		}
	}

	return "<" + speakTag + ">", "</" + speakTag + ">", root.children
}

type splitter struct {
	soft int
	hard int
}

// splitNodes packs nodes into batches whose length plus the wrapper
// overhead stays within the hard limit, preferring to end a batch at a
// node or sentence boundary once the soft limit is reached.
func (s *splitter) splitNodes(nodes []*node, overhead int) ([]string, error) {
	soft := s.soft - overhead
	hard := s.hard - overhead

	if hard <= 0 {
		return nil, fmt.Errorf("%w: nested markup leaves no room for content", ErrFragmentTooLong)
	}

	if soft <= 0 {
		soft = hard
	}

	var (
		batches []string
		current strings.Builder
	)

	flush := func() {
		if current.Len() > 0 {
			batches = append(batches, current.String())
			current.Reset()
		}
	}

	for _, n := range nodes {
		rendered := n.rendered()

		// Common case: the node fits in the current batch.
		if current.Len()+len(rendered) <= soft {
			current.WriteString(rendered)

			continue
		}

		if n.isText {
			s.packText(n.text, soft, hard, &current, &batches)

			continue
		}

		flush()

		if len(rendered) <= hard {
			current.WriteString(rendered)

			continue
		}

		nested, err := s.splitElement(n, overhead)
		if err != nil {
			return nil, err
		}

		batches = append(batches, nested...)
	}

	flush()

	return batches, nil
}

// splitElement recurses into an oversized element, splitting its children
// and wrapping each resulting batch in the element's own tags. The
// caller's overhead is carried into the recursion so the element tags
// stack on top of the outer wrapper, not in place of it.
func (s *splitter) splitElement(n *node, overhead int) ([]string, error) {
	if len(n.children) == 0 {
		// A childless tag that exceeds the hard limit cannot be split.
		return nil, fmt.Errorf("%w: tag <%s> is %d characters", ErrFragmentTooLong, n.name, len(n.rendered()))
	}

	inner, err := s.splitNodes(n.children, overhead+len(n.openTag)+len(n.closeTag))
	if err != nil {
		return nil, err
	}

	wrapped := make([]string, 0, len(inner))

	for _, batch := range inner {
		content := strings.TrimSpace(batch)
		if content == "" {
			continue
		}

		wrapped = append(wrapped, n.openTag+content+n.closeTag)
	}

	return wrapped, nil
}

// packText appends a text run to the current batch, breaking it into
// sentence units and flushing at unit boundaries once the soft limit is
// reached. Only a unit with no boundary before the hard limit is cut.
func (s *splitter) packText(text string, soft, hard int, current *strings.Builder, batches *[]string) {
	units := splitTextUnits(text, hard)

	for _, unit := range units {
		if current.Len()+len(unit) <= soft {
			current.WriteString(unit)

			continue
		}

		if current.Len() > 0 {
			*batches = append(*batches, current.String())
			current.Reset()
		}

		current.WriteString(unit)
	}
}

// splitTextUnits splits text into sentence units no longer than max.
// Sentences above max are split at word boundaries; a single word above
// max is cut at max characters.
func splitTextUnits(text string, max int) []string {
	sentences := splitSentences(text)

	var units []string

	for _, sentence := range sentences {
		if len(sentence) <= max {
			units = append(units, sentence)

			continue
		}

		units = append(units, splitByWords(sentence, max)...)
	}

	return units
}

func splitSentences(text string) []string {
	var (
		sentences []string
		start     int
	)

	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' && c != '\n' {
			continue
		}

		// A sentence ends at punctuation followed by whitespace or EOF.
		if i+1 < len(text) && c != '\n' && text[i+1] != ' ' && text[i+1] != '\n' && text[i+1] != '\t' {
			continue
		}

		end := i + 1
		for end < len(text) && (text[end] == ' ' || text[end] == '\n' || text[end] == '\t') {
			end++
		}

		sentences = append(sentences, text[start:end])
		start = end
		i = end - 1
	}

	if start < len(text) {
		sentences = append(sentences, text[start:])
	}

	return sentences
}

func splitByWords(sentence string, max int) []string {
	var (
		units   []string
		current strings.Builder
	)

	for _, word := range strings.SplitAfter(sentence, " ") {
		if len(word) > max {
			if current.Len() > 0 {
				units = append(units, current.String())
				current.Reset()
			}

			units = append(units, cutRunes(word, max)...)

			continue
		}

		if current.Len()+len(word) > max {
			units = append(units, current.String())
			current.Reset()
		}

		current.WriteString(word)
	}

	if current.Len() > 0 {
		units = append(units, current.String())
	}

	return units
}

// cutRunes hard-cuts a boundary-free run into max-byte pieces without
// breaking UTF-8 sequences.
func cutRunes(word string, max int) []string {
	var pieces []string

	for len(word) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(word[cut]) {
			cut--
		}

		if cut == 0 {
			cut = max
		}

		pieces = append(pieces, word[:cut])
		word = word[cut:]
	}

	if word != "" {
		pieces = append(pieces, word)
	}

	return pieces
}
