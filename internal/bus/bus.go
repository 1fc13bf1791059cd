// Package bus manages the NATS connection, the crawl stream and event
// publication.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/articast/articast/internal/events"
)

// Connection tuning.
const (
	connectTimeout = 10 * time.Second
	reconnectWait  = 2 * time.Second
	maxReconnects  = -1 // retry forever
)

// ErrPublishFailed indicates an event could not be published to the stream.
var ErrPublishFailed = errors.New("event publish failed")

// Bus wraps the NATS connection and its JetStream handle.
type Bus struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// Connect dials the NATS server and initializes JetStream.
func Connect(url, clientName string) (*Bus, error) {
	conn, err := nats.Connect(url,
		nats.Name(clientName),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()

		return nil, fmt.Errorf("failed to initialize JetStream: %w", err)
	}

	return &Bus{conn: conn, js: js}, nil
}

// JetStream exposes the JetStream handle for stream consumers and the
// object store.
func (b *Bus) JetStream() jetstream.JetStream {
	return b.js
}

// Close drains the connection so in-flight messages are delivered before
// shutdown.
func (b *Bus) Close() error {
	drainErr := b.conn.Drain()
	if drainErr != nil {
		b.conn.Close()

		return fmt.Errorf("failed to drain NATS connection: %w", drainErr)
	}

	return nil
}

// EnsureCrawlStream creates or updates the stream that carries crawl
// events. Safe to call on every startup.
func (b *Bus) EnsureCrawlStream(ctx context.Context, streamName, subject string) (jetstream.Stream, error) {
	stream, err := b.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subject},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure stream %s: %w", streamName, err)
	}

	return stream, nil
}

// Publisher emits crawl events. It implements core.CrawlPublisher.
type Publisher struct {
	js      jetstream.JetStream
	subject string
}

// NewPublisher creates a publisher for the crawl subject.
func NewPublisher(b *Bus, subject string) *Publisher {
	return &Publisher{js: b.js, subject: subject}
}

// PublishCrawlArticle asks the crawl worker to fetch the article's full
// content. Publication is synchronous so callers know the event is
// stored before they return.
func (p *Publisher) PublishCrawlArticle(ctx context.Context, articleID, articleURL string) error {
	event := events.NewCrawlArticleEvent(articleID, articleURL)

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal crawl event: %w", ErrPublishFailed, err)
	}

	_, err = p.js.Publish(ctx, p.subject, payload)
	if err != nil {
		return fmt.Errorf("%w: failed to publish to %s: %w", ErrPublishFailed, p.subject, err)
	}

	return nil
}
