package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/lifeos/internal/capture"
	"github.com/mohammad-safakhou/lifeos/internal/store"
	"github.com/mohammad-safakhou/lifeos/internal/telemetry"
)

const sweepBatch = 100

// Sweeper resolves captures whose run never finished: processing records
// older than staleAfter become failed, analyzed records older than
// enrichmentTimeout+staleAfter become partial_failure.
type Sweeper struct {
	store             store.RecordStore
	expr              *cronexpr.Expression
	staleAfter        time.Duration
	enrichmentTimeout time.Duration

	lock    redis.UniversalClient
	metrics *telemetry.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

type SweeperOption func(*Sweeper)

// WithSweepLock takes a short Redis lock per sweep so replicas do not sweep
// at the same time.
func WithSweepLock(rdb redis.UniversalClient) SweeperOption { return func(s *Sweeper) { s.lock = rdb } }

func WithSweepMetrics(m *telemetry.Metrics) SweeperOption { return func(s *Sweeper) { s.metrics = m } }

func WithSweepLogger(l *zap.Logger) SweeperOption { return func(s *Sweeper) { s.logger = l } }

func WithSweepClock(now func() time.Time) SweeperOption { return func(s *Sweeper) { s.now = now } }

func NewSweeper(st store.RecordStore, cronSpec string, staleAfter, enrichmentTimeout time.Duration, opts ...SweeperOption) (*Sweeper, error) {
	expr, err := cronexpr.Parse(cronSpec)
	if err != nil {
		return nil, fmt.Errorf("parse sweep cron %q: %w", cronSpec, err)
	}
	s := &Sweeper{
		store:             st,
		expr:              expr,
		staleAfter:        staleAfter,
		enrichmentTimeout: enrichmentTimeout,
		logger:            zap.NewNop(),
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start sweeps on the cron schedule until ctx ends.
func (s *Sweeper) Start(ctx context.Context) error {
	for {
		now := s.now()
		next := s.expr.Next(now)
		if next.IsZero() {
			return fmt.Errorf("sweep schedule has no next time")
		}
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		if n, err := s.SweepOnce(ctx); err != nil {
			s.logger.Warn("sweep failed", zap.Error(err))
		} else if n > 0 {
			s.logger.Info("swept stale captures", zap.Int("count", n))
		}
	}
}

// SweepOnce resolves one batch of stale records per status and returns how
// many it moved.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	if s.lock != nil {
		ok, err := s.lock.SetNX(ctx, "lifeos:sweep:lock", "1", time.Minute).Result()
		if err != nil {
			return 0, fmt.Errorf("sweep lock: %w", err)
		}
		if !ok {
			return 0, nil
		}
		defer s.lock.Del(context.WithoutCancel(ctx), "lifeos:sweep:lock")
	}

	now := s.now().UTC()
	moved := 0
	n, err := s.resolve(ctx, capture.StatusProcessing, capture.StatusFailed, now.Add(-s.staleAfter), now)
	moved += n
	if err != nil {
		return moved, err
	}
	n, err = s.resolve(ctx, capture.StatusAnalyzed, capture.StatusPartialFailure, now.Add(-(s.enrichmentTimeout + s.staleAfter)), now)
	moved += n
	return moved, err
}

func (s *Sweeper) resolve(ctx context.Context, from, to capture.Status, olderThan, now time.Time) (int, error) {
	ids, err := s.store.ListStale(ctx, from, olderThan, sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list stale %s: %w", from, err)
	}
	moved := 0
	for _, id := range ids {
		patch := capture.Patch{}.WithStatus(to).Mark(capture.StageFinalized, now)
		if err := s.store.Merge(ctx, id, patch); err != nil {
			return moved, fmt.Errorf("sweep %s: %w", id, err)
		}
		moved++
		s.metrics.Terminal(string(to))
		s.logger.Info("stale capture resolved", zap.String("capture_id", id), zap.String("from", string(from)), zap.String("to", string(to)))
	}
	return moved, nil
}
