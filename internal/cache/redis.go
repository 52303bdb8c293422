package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/lifeos/internal/capture"
)

const redisKeyPrefix = "lifeos:fp:"

// Redis shares cached results across processes.
type Redis struct {
	rdb       redis.UniversalClient
	retention time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

func NewRedis(rdb redis.UniversalClient, retention time.Duration, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{rdb: rdb, retention: retention, now: time.Now, logger: logger}
}

func (r *Redis) Get(ctx context.Context, fp string, maxAge time.Duration) (capture.Perception, bool) {
	raw, err := r.rdb.Get(ctx, redisKeyPrefix+fp).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("fingerprint cache get failed", zap.String("fingerprint", fp), zap.Error(err))
		}
		return capture.Perception{}, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		r.logger.Warn("fingerprint cache entry corrupt", zap.String("fingerprint", fp), zap.Error(err))
		return capture.Perception{}, false
	}
	if !e.Fresh(r.now(), maxAge) {
		return capture.Perception{}, false
	}
	return e.Perception, true
}

func (r *Redis) Put(ctx context.Context, fp string, p capture.Perception) {
	raw, err := json.Marshal(Entry{Perception: p, StoredAt: r.now()})
	if err != nil {
		r.logger.Warn("fingerprint cache encode failed", zap.Error(err))
		return
	}
	if err := r.rdb.Set(ctx, redisKeyPrefix+fp, raw, r.retention).Err(); err != nil {
		r.logger.Warn("fingerprint cache put failed", zap.String("fingerprint", fp), zap.Error(err))
	}
}
