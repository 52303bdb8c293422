package inference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammad-safakhou/lifeos/internal/telemetry"
)

func noSleep(waits *[]time.Duration) EngineOption {
	return WithSleep(func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	})
}

func TestEngineRetriesOnlyRateLimits(t *testing.T) {
	var waits []time.Duration
	attempts := 0
	svc := ServiceFunc(func(context.Context, Request) (Result, error) {
		attempts++
		return Result{}, &ServiceError{Provider: "test", Code: 429, Message: "slow down"}
	})
	m := telemetry.New()
	e := NewEngine(svc, WithMaxRetries(4), WithBackoffBase(time.Second), WithMetrics(m), noSleep(&waits))

	_, err := e.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, 4, attempts)
	assert.True(t, errors.Is(err, ErrRateLimitExhausted))
	var exhausted *RateLimitExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 4, exhausted.Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, waits)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.InferenceAttempts.WithLabelValues("rate_limited")))
}

func TestEngineDoesNotRetryOtherErrors(t *testing.T) {
	var waits []time.Duration
	attempts := 0
	boom := &ServiceError{Provider: "test", Code: 500, Message: "boom"}
	svc := ServiceFunc(func(context.Context, Request) (Result, error) {
		attempts++
		return Result{}, boom
	})
	e := NewEngine(svc, WithMaxRetries(5), noSleep(&waits))

	_, err := e.Complete(context.Background(), Request{})
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, ErrRateLimitExhausted))
	assert.Empty(t, waits)
}

func TestEngineRecoversAfterRateLimit(t *testing.T) {
	var waits []time.Duration
	attempts := 0
	svc := ServiceFunc(func(context.Context, Request) (Result, error) {
		attempts++
		if attempts < 3 {
			return Result{}, ErrRateLimited
		}
		return Text("ok"), nil
	})
	e := NewEngine(svc, WithMaxRetries(3), noSleep(&waits))

	res, err := e.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, 3, attempts)
}

func TestEngineStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	svc := ServiceFunc(func(context.Context, Request) (Result, error) {
		cancel()
		return Result{}, ErrRateLimited
	})
	e := NewEngine(svc, WithMaxRetries(3), WithBackoffBase(time.Hour))
	_, err := e.Complete(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestServiceErrorMatchesRateLimited(t *testing.T) {
	assert.True(t, IsRateLimited(&ServiceError{Code: 429}))
	assert.False(t, IsRateLimited(&ServiceError{Code: 503}))
	assert.True(t, IsRateLimited(&ServiceError{Code: 0, Err: ErrRateLimited}))
}

func TestSchemaJSON(t *testing.T) {
	s := &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"tags": {Type: TypeArray, Items: &Schema{Type: TypeString}},
		},
		Required: []string{"tags"},
	}
	doc := s.JSON()
	assert.Equal(t, "object", doc["type"])
	props := doc["properties"].(map[string]any)
	assert.Equal(t, "array", props["tags"].(map[string]any)["type"])
	assert.Equal(t, []string{"tags"}, doc["required"])
}

func TestLimitedWaitsForToken(t *testing.T) {
	calls := 0
	l := NewLimited(ServiceFunc(func(context.Context, Request) (Result, error) {
		calls++
		return Text("x"), nil
	}), 0.001, 1)
	_, err := l.Complete(context.Background(), Request{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Complete(ctx, Request{})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
