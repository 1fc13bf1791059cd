// Package config provides the configuration structure for the articast service.
package config

import (
	"errors"
	"fmt"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Defaults applied by Validate when the corresponding value is unset.
const (
	DefaultSoftCharacterLimit     = 2000
	DefaultHardCharacterLimit     = 3000
	DefaultMaxConcurrentFragments = 4
	DefaultMaxCrawlAttempts       = 3
	DefaultRedeliverDelaySeconds  = 10
	DefaultCrawlTimeoutSeconds    = 30
	DefaultTTSTimeoutSeconds      = 120
	DefaultUserAgent              = "articast/1.0"
)

var (
	// ErrNATSURLRequired indicates the NATS server URL is missing.
	ErrNATSURLRequired = errors.New("nats url is required")
	// ErrCrawlSubjectRequired indicates the crawl subject is missing.
	ErrCrawlSubjectRequired = errors.New("nats crawl subject is required")
	// ErrCrawlStreamRequired indicates the crawl stream name is missing.
	ErrCrawlStreamRequired = errors.New("nats crawl stream name is required")
	// ErrAudioBucketRequired indicates the audio object store bucket is missing.
	ErrAudioBucketRequired = errors.New("nats audio bucket is required")
	// ErrTTSBaseURLRequired indicates the speech engine base URL is missing.
	ErrTTSBaseURLRequired = errors.New("tts base url is required")
	// ErrDatabasePathRequired indicates the sqlite database path is missing.
	ErrDatabasePathRequired = errors.New("database path is required")
	// ErrPublicBaseURLRequired indicates the storage public base URL is missing.
	ErrPublicBaseURLRequired = errors.New("storage public base url is required")
	// ErrWorkDirRequired indicates the synthesis work directory is missing.
	ErrWorkDirRequired = errors.New("synthesis work dir is required")
	// ErrLimitOrder indicates the soft character limit exceeds the hard limit.
	ErrLimitOrder = errors.New("soft character limit must not exceed hard limit")
)

// NATSConfig holds the configuration for the message bus.
type NATSConfig struct {
	URL               string `toml:"url"`
	CrawlStreamName   string `toml:"crawl_stream_name"`
	CrawlConsumerName string `toml:"crawl_consumer_name"`
	CrawlSubject      string `toml:"crawl_subject"`
	AudioBucket       string `toml:"audio_bucket"`
}

// TTSConfig holds the configuration for the external speech engine.
type TTSConfig struct {
	BaseURL             string `toml:"base_url"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
	DefaultVoiceName    string `toml:"default_voice_name"`
	DefaultLanguageCode string `toml:"default_language_code"`
	DefaultMimeType     string `toml:"default_mime_type"`
}

// SynthesisConfig holds the chunking limits and fan-out bounds for
// article synthesis.
type SynthesisConfig struct {
	WorkDir                string `toml:"work_dir"`
	SoftCharacterLimit     int    `toml:"soft_character_limit"`
	HardCharacterLimit     int    `toml:"hard_character_limit"`
	MaxConcurrentFragments int    `toml:"max_concurrent_fragments"`
}

// CrawlerConfig holds the crawl fetch and retry policy.
type CrawlerConfig struct {
	UserAgent             string `toml:"user_agent"`
	TimeoutSeconds        int    `toml:"timeout_seconds"`
	MaxAttempts           int    `toml:"max_attempts"`
	RedeliverDelaySeconds int    `toml:"redeliver_delay_seconds"`
}

// StorageConfig holds the public-facing settings of the object store.
type StorageConfig struct {
	PublicBaseURL string `toml:"public_base_url"`
}

// DatabaseConfig holds the sqlite database location.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS      NATSConfig      `toml:"nats"`
	TTS       TTSConfig       `toml:"tts"`
	Synthesis SynthesisConfig `toml:"synthesis"`
	Crawler   CrawlerConfig   `toml:"crawler"`
	Storage   StorageConfig   `toml:"storage"`
	Database  DatabaseConfig  `toml:"database"`
	Paths     PathsConfig     `toml:"paths"`
}

// Load loads the configuration for the articast service and applies
// defaults. Missing required values are a startup error.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	validationErr := cfg.Validate()
	if validationErr != nil {
		return nil, validationErr
	}

	return &cfg, nil
}

// Validate fills defaults and rejects incomplete configuration.
func (c *Config) Validate() error {
	c.applyDefaults()

	requiredErr := c.checkRequired()
	if requiredErr != nil {
		return requiredErr
	}

	if c.Synthesis.SoftCharacterLimit > c.Synthesis.HardCharacterLimit {
		return ErrLimitOrder
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Synthesis.SoftCharacterLimit == 0 {
		c.Synthesis.SoftCharacterLimit = DefaultSoftCharacterLimit
	}

	if c.Synthesis.HardCharacterLimit == 0 {
		c.Synthesis.HardCharacterLimit = DefaultHardCharacterLimit
	}

	if c.Synthesis.MaxConcurrentFragments == 0 {
		c.Synthesis.MaxConcurrentFragments = DefaultMaxConcurrentFragments
	}

	if c.Crawler.MaxAttempts == 0 {
		c.Crawler.MaxAttempts = DefaultMaxCrawlAttempts
	}

	if c.Crawler.RedeliverDelaySeconds == 0 {
		c.Crawler.RedeliverDelaySeconds = DefaultRedeliverDelaySeconds
	}

	if c.Crawler.TimeoutSeconds == 0 {
		c.Crawler.TimeoutSeconds = DefaultCrawlTimeoutSeconds
	}

	if c.Crawler.UserAgent == "" {
		c.Crawler.UserAgent = DefaultUserAgent
	}

	if c.TTS.TimeoutSeconds == 0 {
		c.TTS.TimeoutSeconds = DefaultTTSTimeoutSeconds
	}

	if c.TTS.DefaultMimeType == "" {
		c.TTS.DefaultMimeType = "audio/mpeg"
	}

	if c.NATS.CrawlConsumerName == "" {
		c.NATS.CrawlConsumerName = "articast-crawler"
	}
}

func (c *Config) checkRequired() error {
	checks := []struct {
		ok  bool
		err error
	}{
		{c.NATS.URL != "", ErrNATSURLRequired},
		{c.NATS.CrawlSubject != "", ErrCrawlSubjectRequired},
		{c.NATS.CrawlStreamName != "", ErrCrawlStreamRequired},
		{c.NATS.AudioBucket != "", ErrAudioBucketRequired},
		{c.TTS.BaseURL != "", ErrTTSBaseURLRequired},
		{c.Database.Path != "", ErrDatabasePathRequired},
		{c.Storage.PublicBaseURL != "", ErrPublicBaseURLRequired},
		{c.Synthesis.WorkDir != "", ErrWorkDirRequired},
	}

	for _, check := range checks {
		if !check.ok {
			return check.err
		}
	}

	return nil
}
