package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammad-safakhou/lifeos/internal/capture"
	"github.com/mohammad-safakhou/lifeos/internal/store"
)

func TestSweeperResolvesStaleRecords(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	now := time.Now()
	old := now.Add(-2 * time.Hour)

	stuck := capture.New("stuck", "u-1", capture.RawInput{Text: "a"}, capture.Context{}, old)
	require.NoError(t, st.Create(ctx, stuck))

	analyzed := capture.New("analyzed", "u-1", capture.RawInput{Text: "b"}, capture.Context{}, old)
	analyzed.Status = capture.StatusAnalyzed
	require.NoError(t, st.Create(ctx, analyzed))

	fresh := capture.New("fresh", "u-1", capture.RawInput{Text: "c"}, capture.Context{}, now)
	require.NoError(t, st.Create(ctx, fresh))

	s, err := NewSweeper(st, "*/5 * * * *", 30*time.Minute, 10*time.Minute,
		WithSweepClock(func() time.Time { return now }))
	require.NoError(t, err)

	n, err := s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, _ := st.Get(ctx, "stuck")
	assert.Equal(t, capture.StatusFailed, got.Status)
	assert.True(t, got.Done(capture.StageFinalized))
	got, _ = st.Get(ctx, "analyzed")
	assert.Equal(t, capture.StatusPartialFailure, got.Status)
	got, _ = st.Get(ctx, "fresh")
	assert.Equal(t, capture.StatusProcessing, got.Status)
}

func TestSweeperRejectsBadCron(t *testing.T) {
	_, err := NewSweeper(store.NewMemory(), "not a cron", time.Minute, time.Minute)
	assert.Error(t, err)
}

func TestSweeperStopsOnCancel(t *testing.T) {
	s, err := NewSweeper(store.NewMemory(), "@hourly", time.Minute, time.Minute)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
