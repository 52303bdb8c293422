package dispatch

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces out consecutive handlers.
type Pacer interface {
	Wait(ctx context.Context) error
}

// NoDelay never waits.
type NoDelay struct{}

func (NoDelay) Wait(ctx context.Context) error { return ctx.Err() }

// FixedDelay sleeps for a constant duration.
type FixedDelay time.Duration

func (f FixedDelay) Wait(ctx context.Context) error {
	if f <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(time.Duration(f))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Limiter paces with a shared token bucket, so concurrent emissions for
// different captures draw from one budget.
type Limiter struct{ *rate.Limiter }

func NewLimiter(every time.Duration, burst int) Limiter {
	if burst < 1 {
		burst = 1
	}
	return Limiter{rate.NewLimiter(rate.Every(every), burst)}
}

func (l Limiter) Wait(ctx context.Context) error { return l.Limiter.Wait(ctx) }
