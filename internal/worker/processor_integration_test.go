package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/mohammad-safakhou/lifeos/internal/pipeline"
	"github.com/mohammad-safakhou/lifeos/internal/queue/streams"
	"github.com/mohammad-safakhou/lifeos/internal/worker"
)

type recordingRunner struct {
	mu   sync.Mutex
	runs map[string]int
	fail map[string]error
}

func (r *recordingRunner) Run(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[id]++
	return r.fail[id]
}

func (r *recordingRunner) count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[id]
}

func TestWorkerProcessesAndReclaims(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	redisC, err := tcRedis.RunContainer(ctx, testcontainers.WithWaitStrategy(wait.ForListeningPort("6379/tcp")))
	if err != nil {
		t.Fatalf("redis container: %v", err)
	}
	defer func() { _ = redisC.Terminate(ctx) }()

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	defer func() { _ = client.Close() }()

	registry, err := streams.NewBaseRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if err := streams.EnsureGroup(ctx, client, streams.StreamCaptures, "test-group"); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	pub := streams.NewPublisher(client, registry)
	for _, id := range []string{"c-ok", "c-stage", "c-retry"} {
		if _, err := pub.PublishCaptureIngested(ctx, id, "u-1"); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}

	runner := &recordingRunner{runs: map[string]int{}, fail: map[string]error{
		"c-stage": &pipeline.StageError{Stage: "perception", Err: errors.New("boom")},
		"c-retry": errors.New("store unavailable"),
	}}
	logger := zaptest.NewLogger(t)

	cons1 := streams.NewConsumer(client, registry, "test-group", "consumer-1", logger, nil)
	proc1 := worker.NewProcessor(logger, runner, cons1, streams.StreamCaptures, worker.WithBlock(200*time.Millisecond))
	runFor(t, proc1, 1500*time.Millisecond)

	for _, id := range []string{"c-ok", "c-stage", "c-retry"} {
		if runner.count(id) != 1 {
			t.Fatalf("expected one run of %s, got %d", id, runner.count(id))
		}
	}
	lag, err := cons1.LagMetrics(ctx, streams.StreamCaptures)
	if err != nil {
		t.Fatalf("lag: %v", err)
	}
	if lag.Pending != 1 {
		t.Fatalf("expected only the failed run pending, got %d", lag.Pending)
	}

	// A second consumer reclaims the unacked message on startup.
	runner.mu.Lock()
	delete(runner.fail, "c-retry")
	runner.mu.Unlock()
	cons2 := streams.NewConsumer(client, registry, "test-group", "consumer-2", logger, nil)
	proc2 := worker.NewProcessor(logger, runner, cons2, streams.StreamCaptures,
		worker.WithBlock(200*time.Millisecond), worker.WithClaimIdle(10*time.Millisecond))
	runFor(t, proc2, time.Second)

	if runner.count("c-retry") != 2 {
		t.Fatalf("expected c-retry to be retried once, got %d runs", runner.count("c-retry"))
	}
	if runner.count("c-ok") != 1 {
		t.Fatalf("acked message was redelivered")
	}
	lag, err = cons2.LagMetrics(ctx, streams.StreamCaptures)
	if err != nil {
		t.Fatalf("lag: %v", err)
	}
	if lag.Pending != 0 {
		t.Fatalf("expected nothing pending, got %d", lag.Pending)
	}
}

func runFor(t *testing.T, proc *worker.Processor, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- proc.Start(ctx) }()
	if err := <-done; err != nil {
		t.Fatalf("processor exit: %v", err)
	}
}
