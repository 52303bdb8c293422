// Package dispatch broadcasts events to subscribers sequentially in
// priority order.
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event types.
const EventCaptureAnalyzed = "capture.analyzed"

// Handler processes one emitted payload.
type Handler func(ctx context.Context, payload any) error

// Report is the outcome of one handler for one emission.
type Report struct {
	Name     string
	Priority int
	Err      error
	Duration time.Duration
	// Ran is false when the handler was never started because the context
	// ended while pacing.
	Ran bool
}

type subscription struct {
	name     string
	priority int
	handler  Handler
}

type Option func(*Dispatcher)

// WithPacer sets the wait inserted between consecutive handlers.
func WithPacer(p Pacer) Option { return func(d *Dispatcher) { d.pacer = p } }

func WithLogger(l *zap.Logger) Option { return func(d *Dispatcher) { d.logger = l } }

// Dispatcher holds the subscriber table. It is safe for concurrent use.
type Dispatcher struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	pacer  Pacer
	logger *zap.Logger
}

func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{subs: map[string][]subscription{}, pacer: NoDelay{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Subscribe registers h for eventType. Lower priorities run first; equal
// priorities run in registration order.
func (d *Dispatcher) Subscribe(eventType, name string, h Handler, priority int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := append(d.subs[eventType], subscription{name: name, priority: priority, handler: h})
	sort.SliceStable(list, func(i, j int) bool { return list[i].priority < list[j].priority })
	d.subs[eventType] = list
}

// Subscribers returns the handler names for eventType in dispatch order.
func (d *Dispatcher) Subscribers(eventType string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.subs[eventType]))
	for _, s := range d.subs[eventType] {
		out = append(out, s.name)
	}
	return out
}

// Emit runs every handler for eventType one after another and returns one
// report per handler. A failing or panicking handler does not stop the rest.
func (d *Dispatcher) Emit(ctx context.Context, eventType string, payload any) []Report {
	d.mu.RLock()
	list := append([]subscription(nil), d.subs[eventType]...)
	d.mu.RUnlock()

	reports := make([]Report, 0, len(list))
	for i, s := range list {
		if i > 0 {
			if err := d.pacer.Wait(ctx); err != nil {
				for _, rest := range list[i:] {
					reports = append(reports, Report{Name: rest.name, Priority: rest.priority, Err: err})
				}
				d.logger.Warn("dispatch interrupted", zap.String("event", eventType), zap.Int("not_started", len(list)-i), zap.Error(err))
				break
			}
		}
		start := time.Now()
		err := d.call(ctx, s, payload)
		rep := Report{Name: s.name, Priority: s.priority, Err: err, Duration: time.Since(start), Ran: true}
		if err != nil {
			d.logger.Warn("handler failed", zap.String("event", eventType), zap.String("handler", s.name), zap.Error(err))
		}
		reports = append(reports, rep)
	}
	return reports
}

func (d *Dispatcher) call(ctx context.Context, s subscription, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked: %v", s.name, r)
		}
	}()
	return s.handler(ctx, payload)
}
