package inference

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limited shares one token bucket across every caller of the wrapped service.
type Limited struct {
	svc     Service
	limiter *rate.Limiter
}

// NewLimited allows rps requests per second with the given burst. rps <= 0
// disables limiting.
func NewLimited(svc Service, rps float64, burst int) *Limited {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}
	return &Limited{svc: svc, limiter: rate.NewLimiter(limit, burst)}
}

func (l *Limited) Complete(ctx context.Context, req Request) (Result, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("inference limiter: %w", err)
	}
	return l.svc.Complete(ctx, req)
}
