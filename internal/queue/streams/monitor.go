package streams

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LagMetrics captures queue lag and pending state for a consumer group.
type LagMetrics struct {
	Pending    int64
	Lag        int64
	Consumers  int64
	OldestIdle time.Duration
}

// GroupLag returns lag metrics for stream/group. Lag is -1 when the group
// is unknown.
func GroupLag(ctx context.Context, client redis.UniversalClient, stream, group string) (LagMetrics, error) {
	if client == nil {
		return LagMetrics{}, fmt.Errorf("redis client is nil")
	}
	if stream == "" || group == "" {
		return LagMetrics{}, fmt.Errorf("stream and group are required")
	}
	groups, err := client.XInfoGroups(ctx, stream).Result()
	if err != nil {
		return LagMetrics{}, fmt.Errorf("xinfo groups: %w", err)
	}
	m := LagMetrics{Lag: -1}
	for _, info := range groups {
		if info.Name == group {
			m.Pending, m.Lag, m.Consumers = info.Pending, info.Lag, int64(info.Consumers)
			break
		}
	}
	if m.Pending == 0 {
		return m, nil
	}
	entries, err := client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  1,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return LagMetrics{}, fmt.Errorf("xpendingext: %w", err)
	}
	if len(entries) > 0 {
		m.OldestIdle = entries[0].Idle
	}
	return m, nil
}
