// Package inferencetest provides a scripted inference.Service for tests.
package inferencetest

import (
	"context"
	"errors"
	"sync"

	"github.com/mohammad-safakhou/lifeos/internal/inference"
)

// Reply is one scripted response.
type Reply struct {
	Result inference.Result
	Err    error
}

// Scripted answers requests from per-purpose queues, falling back to the
// Default queue. The last reply of a queue repeats once it is drained.
type Scripted struct {
	mu      sync.Mutex
	queues  map[inference.Purpose][]Reply
	Default []Reply
	calls   []inference.Request
	// Hook runs before each reply is picked, outside the lock.
	Hook func(ctx context.Context, req inference.Request)
}

// New returns an empty script.
func New() *Scripted {
	return &Scripted{queues: map[inference.Purpose][]Reply{}}
}

// On queues replies for a purpose.
func (s *Scripted) On(p inference.Purpose, replies ...Reply) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[p] = append(s.queues[p], replies...)
	return s
}

// Text is shorthand for a plain text reply.
func Text(s string) Reply { return Reply{Result: inference.Text(s)} }

// Fail is shorthand for an error reply.
func Fail(err error) Reply { return Reply{Err: err} }

// RateLimited is a 429 reply.
func RateLimited() Reply {
	return Reply{Err: &inference.ServiceError{Provider: "scripted", Code: 429, Message: "quota"}}
}

func (s *Scripted) Complete(ctx context.Context, req inference.Request) (inference.Result, error) {
	if s.Hook != nil {
		s.Hook(ctx, req)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	q := s.queues[req.Purpose]
	var r Reply
	switch {
	case len(q) > 0:
		r = q[0]
		if len(q) > 1 {
			s.queues[req.Purpose] = q[1:]
		}
	case len(s.Default) > 0:
		r = s.Default[0]
		if len(s.Default) > 1 {
			s.Default = s.Default[1:]
		}
	default:
		return inference.Result{}, errors.New("inferencetest: no reply scripted for " + string(req.Purpose))
	}
	return r.Result, r.Err
}

// Calls returns a copy of the recorded requests.
func (s *Scripted) Calls() []inference.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]inference.Request(nil), s.calls...)
}

// CallCount counts recorded requests for a purpose.
func (s *Scripted) CallCount(p inference.Purpose) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Purpose == p {
			n++
		}
	}
	return n
}
