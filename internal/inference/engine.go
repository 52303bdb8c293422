package inference

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/lifeos/internal/telemetry"
)

// Engine retries rate-limited calls with linear backoff and passes every
// other error straight through.
type Engine struct {
	svc        Service
	maxRetries int
	base       time.Duration
	logger     *zap.Logger
	metrics    *telemetry.Metrics
	sleep      func(ctx context.Context, d time.Duration) error
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

func WithMaxRetries(n int) EngineOption { return func(e *Engine) { e.maxRetries = n } }

func WithBackoffBase(d time.Duration) EngineOption { return func(e *Engine) { e.base = d } }

func WithLogger(l *zap.Logger) EngineOption { return func(e *Engine) { e.logger = l } }

func WithMetrics(m *telemetry.Metrics) EngineOption { return func(e *Engine) { e.metrics = m } }

// WithSleep replaces the backoff wait; tests use it to avoid real delays.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) EngineOption {
	return func(e *Engine) { e.sleep = fn }
}

// NewEngine wraps svc. Defaults: 3 attempts, 2s base.
func NewEngine(svc Service, opts ...EngineOption) *Engine {
	e := &Engine{
		svc:        svc,
		maxRetries: 3,
		base:       2 * time.Second,
		logger:     zap.NewNop(),
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.maxRetries < 1 {
		e.maxRetries = 1
	}
	return e
}

// Complete runs req through the wrapped service with the configured budget.
func (e *Engine) Complete(ctx context.Context, req Request) (Result, error) {
	var out Result
	err := e.Do(ctx, e.maxRetries, func(ctx context.Context) error {
		res, err := e.svc.Complete(ctx, req)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

// Do calls op up to maxRetries times in total. Only rate-limit errors are
// retried, waiting base*attempt between attempts. When the last attempt is
// still rate limited a *RateLimitExhaustedError is returned.
func (e *Engine) Do(ctx context.Context, maxRetries int, op func(ctx context.Context) error) error {
	if maxRetries < 1 {
		maxRetries = 1
	}
	var last error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := op(ctx)
		if err == nil {
			e.metrics.InferenceAttempt("ok")
			return nil
		}
		if !IsRateLimited(err) {
			e.metrics.InferenceAttempt("error")
			return err
		}
		e.metrics.InferenceAttempt("rate_limited")
		last = err
		if attempt == maxRetries {
			break
		}
		wait := e.base * time.Duration(attempt)
		e.logger.Warn("inference rate limited, backing off",
			zap.Int("attempt", attempt), zap.Int("max_retries", maxRetries), zap.Duration("wait", wait))
		if err := e.sleep(ctx, wait); err != nil {
			return errors.Join(err, last)
		}
	}
	return &RateLimitExhaustedError{Attempts: maxRetries, Last: last}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
