package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/lifeos/internal/capture"
)

// Memory is an in-process cache backed by ristretto.
type Memory struct {
	c         *ristretto.Cache
	retention time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// NewMemory keeps up to maxEntries results for retention.
func NewMemory(maxEntries int64, retention time.Duration, logger *zap.Logger) (*Memory, error) {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto: %w", err)
	}
	return &Memory{c: rc, retention: retention, now: time.Now, logger: logger}, nil
}

func (m *Memory) Get(_ context.Context, fp string, maxAge time.Duration) (capture.Perception, bool) {
	v, ok := m.c.Get(fp)
	if !ok {
		return capture.Perception{}, false
	}
	e, ok := v.(Entry)
	if !ok || !e.Fresh(m.now(), maxAge) {
		return capture.Perception{}, false
	}
	return e.Perception, true
}

// Put stores p and returns once the entry is visible to Get. ristretto
// buffers sets, so the write is flushed before returning.
func (m *Memory) Put(_ context.Context, fp string, p capture.Perception) {
	if !m.c.SetWithTTL(fp, Entry{Perception: p, StoredAt: m.now()}, 1, m.retention) {
		m.logger.Debug("fingerprint cache dropped entry", zap.String("fingerprint", fp))
		return
	}
	m.c.Wait()
}

func (m *Memory) Close() { m.c.Close() }
