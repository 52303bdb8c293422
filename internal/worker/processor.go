// Package worker consumes capture.ingested events and runs the capture
// pipeline for each of them.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/lifeos/internal/pipeline"
	"github.com/mohammad-safakhou/lifeos/internal/queue/streams"
	"github.com/mohammad-safakhou/lifeos/internal/store"
	"github.com/mohammad-safakhou/lifeos/internal/telemetry"
)

// Runner runs one capture to a terminal status.
type Runner interface {
	Run(ctx context.Context, id string) error
}

type Option func(*Processor)

// WithClaimIdle sets how long a delivered message may stay unacked before
// another consumer reclaims it.
func WithClaimIdle(d time.Duration) Option { return func(p *Processor) { p.claimIdle = d } }

// WithReclaimEvery sets how often the processor re-scans the pending list.
func WithReclaimEvery(d time.Duration) Option { return func(p *Processor) { p.reclaimEvery = d } }

func WithMetrics(m *telemetry.Metrics) Option { return func(p *Processor) { p.metrics = m } }

func WithBlock(d time.Duration) Option { return func(p *Processor) { p.block = d } }

// Processor reads capture.ingested from the captures stream.
type Processor struct {
	logger   *zap.Logger
	runner   Runner
	consumer *streams.Consumer
	stream   string
	metrics  *telemetry.Metrics

	block        time.Duration
	claimIdle    time.Duration
	reclaimEvery time.Duration
}

func NewProcessor(logger *zap.Logger, runner Runner, cons *streams.Consumer, stream string, opts ...Option) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Processor{
		logger:       logger,
		runner:       runner,
		consumer:     cons,
		stream:       stream,
		block:        5 * time.Second,
		claimIdle:    time.Minute,
		reclaimEvery: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start blocks, processing messages until ctx is cancelled.
func (p *Processor) Start(ctx context.Context) error {
	p.logger.Info("worker processor starting", zap.String("stream", p.stream), zap.String("group", p.consumer.Group()))
	p.reclaim(ctx)
	lastReclaim := time.Now()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker processor stopping", zap.Error(ctx.Err()))
			return nil
		default:
		}

		if time.Since(lastReclaim) >= p.reclaimEvery {
			p.reclaim(ctx)
			lastReclaim = time.Now()
		}

		msgs, err := p.consumer.Read(ctx, p.stream, streams.WithBlock(p.block), streams.WithCount(16))
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("error reading stream", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		for _, msg := range msgs {
			p.process(ctx, msg)
		}
	}
}

// reclaim takes over messages left pending by crashed or stuck consumers
// and reports the group's pending count.
func (p *Processor) reclaim(ctx context.Context) {
	start := "0-0"
	for {
		msgs, next, err := p.consumer.AutoClaim(ctx, p.stream, p.claimIdle, start, 16)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Warn("reclaim pending failed", zap.Error(err))
			}
			return
		}
		for _, msg := range msgs {
			p.logger.Info("reclaimed pending message", zap.String("id", msg.ID))
			p.process(ctx, msg)
		}
		if next == "" || next == "0-0" || len(msgs) == 0 {
			break
		}
		start = next
	}
	if lag, err := p.consumer.LagMetrics(ctx, p.stream); err == nil {
		p.metrics.Pending(p.stream, p.consumer.Group(), lag.Pending)
	}
}

func (p *Processor) process(ctx context.Context, msg streams.Message) {
	err := p.handle(ctx, msg)
	if err != nil {
		p.logger.Warn("capture run failed", zap.String("message_id", msg.ID), zap.Error(err))
	}
	if !shouldAck(err) {
		return
	}
	if err := p.consumer.Ack(ctx, p.stream, msg.ID); err != nil {
		p.logger.Warn("failed to ack message", zap.String("message_id", msg.ID), zap.Error(err))
	}
}

func (p *Processor) handle(ctx context.Context, msg streams.Message) error {
	if msg.Envelope.EventType != streams.EventCaptureIngested {
		return fmt.Errorf("%w: unexpected event type %q", errUnprocessable, msg.Envelope.EventType)
	}
	var payload streams.CaptureIngested
	if err := msg.Envelope.Decode(&payload); err != nil {
		return fmt.Errorf("%w: %v", errUnprocessable, err)
	}
	return p.runner.Run(ctx, payload.CaptureID)
}

var errUnprocessable = errors.New("unprocessable message")

// shouldAck reports whether a message is done with. Stage failures are
// already recorded on the capture, and missing or malformed work will never
// succeed. Anything else stays pending so it is reclaimed and retried.
func shouldAck(err error) bool {
	var stageErr *pipeline.StageError
	switch {
	case err == nil:
		return true
	case errors.As(err, &stageErr):
		return true
	case errors.Is(err, store.ErrNotFound), errors.Is(err, errUnprocessable):
		return true
	default:
		return false
	}
}
