package streams

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/lifeos/internal/telemetry"
)

// Publisher appends schema-validated envelopes to Redis streams.
type Publisher struct {
	client   redis.UniversalClient
	registry *SchemaRegistry
	metrics  *telemetry.Metrics
	maxLen   int64
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithMaxLenApprox trims streams to roughly maxLen entries.
func WithMaxLenApprox(maxLen int64) PublisherOption {
	return func(p *Publisher) { p.maxLen = maxLen }
}

func WithPublisherMetrics(m *telemetry.Metrics) PublisherOption {
	return func(p *Publisher) { p.metrics = m }
}

func NewPublisher(client redis.UniversalClient, registry *SchemaRegistry, opts ...PublisherOption) *Publisher {
	p := &Publisher{client: client, registry: registry}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish validates the envelope and appends it to stream.
func (p *Publisher) Publish(ctx context.Context, stream string, envelope Envelope) (string, error) {
	if stream == "" {
		return "", fmt.Errorf("stream name is required")
	}
	if envelope.EventID == "" {
		envelope.EventID = uuid.NewString()
	}
	if envelope.OccurredAt.IsZero() {
		envelope.OccurredAt = time.Now().UTC()
	}
	if err := envelope.ValidateBasic(); err != nil {
		return "", err
	}
	if p.registry != nil {
		if err := p.registry.Validate(envelope.EventType, envelope.PayloadVersion, envelope.Data); err != nil {
			return "", err
		}
	}
	raw, err := envelope.Marshal()
	if err != nil {
		return "", err
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{"envelope": raw},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	p.metrics.StreamMessage("published", envelope.EventType)
	return id, nil
}

// PublishRaw wraps payload in an envelope and publishes it.
func (p *Publisher) PublishRaw(ctx context.Context, stream, eventType, version string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return p.Publish(ctx, stream, Envelope{EventType: eventType, PayloadVersion: version, Data: data})
}

// PublishCaptureIngested announces a new capture for the workers.
func (p *Publisher) PublishCaptureIngested(ctx context.Context, captureID, userID string) (string, error) {
	return p.PublishRaw(ctx, StreamCaptures, EventCaptureIngested, CaptureIngestedV1,
		CaptureIngested{CaptureID: captureID, UserID: userID})
}
