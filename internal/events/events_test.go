package events_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/articast/articast/internal/events"
)

func TestCrawlArticleEventWireFormat(t *testing.T) {
	t.Parallel()

	event := events.NewCrawlArticleEvent("article-1", "https://example.com/story")

	assert.NotEmpty(t, event.EventID)
	assert.False(t, event.EmittedAt.IsZero())

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any

	require.NoError(t, json.Unmarshal(payload, &decoded))

	assert.Equal(t, "article-1", decoded["articleId"])
	assert.Equal(t, "https://example.com/story", decoded["articleUrl"])
	assert.Contains(t, decoded, "eventId")
	assert.Contains(t, decoded, "emittedAt")
}
