package ssml_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/articast/articast/internal/ssml"
)

func TestFromHTMLConvertsBlocksToParagraphs(t *testing.T) {
	t.Parallel()

	html := `<article><h1>A headline</h1><p>First paragraph.</p><p>Second paragraph.</p></article>`

	result, err := ssml.FromHTML(html)
	require.NoError(t, err)

	assert.Equal(t, "<speak><p>A headline.</p><p>First paragraph.</p><p>Second paragraph.</p></speak>", result)
}

func TestFromHTMLSkipsNestedBlocks(t *testing.T) {
	t.Parallel()

	html := `<blockquote><p>Quoted words.</p></blockquote>`

	result, err := ssml.FromHTML(html)
	require.NoError(t, err)

	assert.Equal(t, "<speak><p>Quoted words.</p></speak>", result)
}

func TestFromHTMLEscapesMarkupCharacters(t *testing.T) {
	t.Parallel()

	html := `<p>Tom &amp; Jerry say 1 &lt; 2.</p>`

	result, err := ssml.FromHTML(html)
	require.NoError(t, err)

	assert.Equal(t, "<speak><p>Tom &amp; Jerry say 1 &lt; 2.</p></speak>", result)
}

func TestFromHTMLNormalizesWhitespaceAndPunctuation(t *testing.T) {
	t.Parallel()

	html := "<p>Spaced   out\n\ttext — with an em dash</p>"

	result, err := ssml.FromHTML(html)
	require.NoError(t, err)

	assert.Equal(t, "<speak><p>Spaced out text - with an em dash.</p></speak>", result)
}

func TestFromHTMLWithoutBlockMarkupNarratesWholePage(t *testing.T) {
	t.Parallel()

	result, err := ssml.FromHTML("Just some loose text")
	require.NoError(t, err)

	assert.Equal(t, "<speak><p>Just some loose text.</p></speak>", result)
}

func TestFromHTMLWithNoTextFails(t *testing.T) {
	t.Parallel()

	_, err := ssml.FromHTML(`<div><img src="only.png"/></div>`)
	require.ErrorIs(t, err, ssml.ErrNoContent)
}
