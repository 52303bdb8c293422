package pipeline

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/mohammad-safakhou/lifeos/internal/queue/streams"
)

// ErrLauncherClosed is returned by Launch after Close.
var ErrLauncherClosed = errors.New("pipeline: launcher closed")

// Runner runs one capture.
type Runner interface {
	Run(ctx context.Context, id string) error
}

// Inline runs captures in-process, at most max at a time. Runs are detached
// from the ingesting request's context.
type Inline struct {
	runner Runner
	sem    *semaphore.Weighted
	logger *zap.Logger

	base   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewInline(r Runner, max int, logger *zap.Logger) *Inline {
	if max <= 0 {
		max = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Inline{runner: r, sem: semaphore.NewWeighted(int64(max)), logger: logger, base: base, cancel: cancel}
}

func (l *Inline) Launch(_ context.Context, captureID, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLauncherClosed
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.sem.Acquire(l.base, 1); err != nil {
			return
		}
		defer l.sem.Release(1)
		if err := l.runner.Run(l.base, captureID); err != nil {
			l.logger.Warn("capture run ended with error", zap.String("capture_id", captureID), zap.Error(err))
		}
	}()
	return nil
}

// Wait blocks until every launched run has returned.
func (l *Inline) Wait() { l.wg.Wait() }

// Close stops accepting launches and waits for in-flight runs until ctx ends,
// after which the remaining runs are cancelled.
func (l *Inline) Close(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		l.cancel()
		return nil
	case <-ctx.Done():
		l.cancel()
		<-done
		return ctx.Err()
	}
}

// Stream hands captures to workers through the captures stream.
type Stream struct {
	pub *streams.Publisher
}

func NewStream(pub *streams.Publisher) *Stream { return &Stream{pub: pub} }

func (s *Stream) Launch(ctx context.Context, captureID, userID string) error {
	_, err := s.pub.PublishCaptureIngested(ctx, captureID, userID)
	return err
}
