// Package config_test tests the configuration loading for the articast service.
package config_test

import (
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/articast/articast/internal/config"
)

const validTOML = `
[nats]
url = "nats://127.0.0.1:4222"
crawl_stream_name = "ARTICLES"
crawl_consumer_name = "crawl-workers"
crawl_subject = "articles.crawl"
audio_bucket = "ARTICLE_AUDIO"

[tts]
base_url = "http://127.0.0.1:8000"
timeout_seconds = 90
default_voice_name = "en-US-Wavenet-D"
default_language_code = "en-US"

[synthesis]
work_dir = "/var/tmp/articast"
soft_character_limit = 2000
hard_character_limit = 3000
max_concurrent_fragments = 4

[crawler]
user_agent = "articast/1.0"
timeout_seconds = 20
max_attempts = 3
redeliver_delay_seconds = 10

[storage]
public_base_url = "https://cdn.example.com"

[database]
path = "/var/lib/articast/articast.db"

[paths]
base_logs_dir = "/var/log/articast"
`

func TestUnmarshalConfig(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	err := toml.Unmarshal([]byte(validTOML), &cfg)
	require.NoError(t, err)

	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "ARTICLES", cfg.NATS.CrawlStreamName)
	assert.Equal(t, "crawl-workers", cfg.NATS.CrawlConsumerName)
	assert.Equal(t, "articles.crawl", cfg.NATS.CrawlSubject)
	assert.Equal(t, "ARTICLE_AUDIO", cfg.NATS.AudioBucket)
	assert.Equal(t, "http://127.0.0.1:8000", cfg.TTS.BaseURL)
	assert.Equal(t, 90, cfg.TTS.TimeoutSeconds)
	assert.Equal(t, "en-US-Wavenet-D", cfg.TTS.DefaultVoiceName)
	assert.Equal(t, 2000, cfg.Synthesis.SoftCharacterLimit)
	assert.Equal(t, 3000, cfg.Synthesis.HardCharacterLimit)
	assert.Equal(t, 4, cfg.Synthesis.MaxConcurrentFragments)
	assert.Equal(t, 3, cfg.Crawler.MaxAttempts)
	assert.Equal(t, "https://cdn.example.com", cfg.Storage.PublicBaseURL)
	assert.Equal(t, "/var/lib/articast/articast.db", cfg.Database.Path)
}

func TestValidateAppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		NATS: config.NATSConfig{
			URL:             "nats://127.0.0.1:4222",
			CrawlStreamName: "ARTICLES",
			CrawlSubject:    "articles.crawl",
			AudioBucket:     "ARTICLE_AUDIO",
		},
		TTS:       config.TTSConfig{BaseURL: "http://127.0.0.1:8000"},
		Synthesis: config.SynthesisConfig{WorkDir: "/tmp/articast"},
		Storage:   config.StorageConfig{PublicBaseURL: "https://cdn.example.com"},
		Database:  config.DatabaseConfig{Path: "/tmp/articast.db"},
	}

	err := cfg.Validate()
	require.NoError(t, err)

	assert.Equal(t, config.DefaultSoftCharacterLimit, cfg.Synthesis.SoftCharacterLimit)
	assert.Equal(t, config.DefaultHardCharacterLimit, cfg.Synthesis.HardCharacterLimit)
	assert.Equal(t, config.DefaultMaxConcurrentFragments, cfg.Synthesis.MaxConcurrentFragments)
	assert.Equal(t, config.DefaultMaxCrawlAttempts, cfg.Crawler.MaxAttempts)
	assert.Equal(t, config.DefaultRedeliverDelaySeconds, cfg.Crawler.RedeliverDelaySeconds)
	assert.Equal(t, "audio/mpeg", cfg.TTS.DefaultMimeType)
}

func TestValidateMissingRequired(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	err := cfg.Validate()
	require.ErrorIs(t, err, config.ErrNATSURLRequired)
}

func TestValidateLimitOrder(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	require.NoError(t, toml.Unmarshal([]byte(validTOML), &cfg))

	cfg.Synthesis.SoftCharacterLimit = 4000
	cfg.Synthesis.HardCharacterLimit = 3000

	err := cfg.Validate()
	require.ErrorIs(t, err, config.ErrLimitOrder)
}
