package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingPacer struct {
	mu sync.Mutex
	n  int
}

func (c *countingPacer) Wait(ctx context.Context) error {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
	return ctx.Err()
}

func TestEmitRunsInPriorityOrder(t *testing.T) {
	d := New()
	var order []int
	for _, p := range []int{3, 1, 2} {
		p := p
		d.Subscribe(EventCaptureAnalyzed, fmt.Sprintf("h%d", p), func(context.Context, any) error {
			order = append(order, p)
			return nil
		}, p)
	}

	reports := d.Emit(context.Background(), EventCaptureAnalyzed, nil)
	assert.Equal(t, []int{1, 2, 3}, order)
	require.Len(t, reports, 3)
	assert.Equal(t, []string{"h1", "h2", "h3"}, d.Subscribers(EventCaptureAnalyzed))
}

func TestFailingHandlerDoesNotStopDispatch(t *testing.T) {
	d := New()
	var ran []string
	d.Subscribe(EventCaptureAnalyzed, "first", func(context.Context, any) error {
		ran = append(ran, "first")
		return errors.New("boom")
	}, 1)
	d.Subscribe(EventCaptureAnalyzed, "second", func(context.Context, any) error {
		ran = append(ran, "second")
		panic("kaboom")
	}, 2)
	d.Subscribe(EventCaptureAnalyzed, "third", func(context.Context, any) error {
		ran = append(ran, "third")
		return nil
	}, 3)

	reports := d.Emit(context.Background(), EventCaptureAnalyzed, "payload")
	assert.Equal(t, []string{"first", "second", "third"}, ran)
	require.Len(t, reports, 3)
	assert.EqualError(t, reports[0].Err, "boom")
	assert.ErrorContains(t, reports[1].Err, "panicked: kaboom")
	assert.NoError(t, reports[2].Err)
	for _, r := range reports {
		assert.True(t, r.Ran)
	}
}

func TestEqualPrioritiesKeepRegistrationOrder(t *testing.T) {
	d := New()
	for _, name := range []string{"a", "b", "c"} {
		d.Subscribe("e", name, func(context.Context, any) error { return nil }, 5)
	}
	d.Subscribe("e", "early", func(context.Context, any) error { return nil }, 0)
	assert.Equal(t, []string{"early", "a", "b", "c"}, d.Subscribers("e"))
}

func TestPacerRunsBetweenHandlers(t *testing.T) {
	p := &countingPacer{}
	d := New(WithPacer(p))
	for i := 0; i < 4; i++ {
		d.Subscribe("e", fmt.Sprint(i), func(context.Context, any) error { return nil }, i)
	}
	d.Emit(context.Background(), "e", nil)
	assert.Equal(t, 3, p.n)
}

func TestCancelledPacingReportsRemainingHandlers(t *testing.T) {
	d := New(WithPacer(FixedDelay(time.Hour)))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ran := 0
	for i := 0; i < 3; i++ {
		d.Subscribe("e", fmt.Sprint(i), func(context.Context, any) error { ran++; return nil }, i)
	}

	reports := d.Emit(ctx, "e", nil)
	require.Len(t, reports, 3)
	assert.Equal(t, 1, ran)
	assert.True(t, reports[0].Ran)
	assert.False(t, reports[1].Ran)
	assert.ErrorIs(t, reports[2].Err, context.DeadlineExceeded)
}

func TestEmitWithoutSubscribers(t *testing.T) {
	assert.Empty(t, New().Emit(context.Background(), "nobody", nil))
}

func TestConcurrentSubscribeAndEmit(t *testing.T) {
	d := New()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			d.Subscribe("e", fmt.Sprint(i), func(context.Context, any) error { return nil }, i)
		}(i)
		go func() {
			defer wg.Done()
			d.Emit(context.Background(), "e", nil)
		}()
	}
	wg.Wait()
	assert.Len(t, d.Subscribers("e"), 10)
}

func TestLimiterPacer(t *testing.T) {
	l := NewLimiter(time.Millisecond, 1)
	ctx := context.Background()
	require.NoError(t, l.Wait(ctx))
	require.NoError(t, l.Wait(ctx))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, l.Wait(cancelled))
}
