// Package executor invokes side-effecting actions chosen by the router.
package executor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/lifeos/config"
	"github.com/mohammad-safakhou/lifeos/internal/capture"
	"github.com/mohammad-safakhou/lifeos/internal/telemetry"
)

// Action types understood by the router.
const (
	ActionCalendarEvent = "create_calendar_event"
	ActionTask          = "create_task"
	ActionShoppingItem  = "add_to_shopping_list"
	ActionNote          = "create_note"
)

// Actions lists every action type with a default executor.
var Actions = []string{ActionCalendarEvent, ActionTask, ActionShoppingItem, ActionNote}

// ErrUnknownAction is returned for an action type with no registered executor.
var ErrUnknownAction = errors.New("executor: unknown action")

// Invocation is one call to an executor.
type Invocation struct {
	UserID    string         `json:"user_id"`
	CaptureID string         `json:"capture_id"`
	Action    string         `json:"action"`
	Args      map[string]any `json:"args"`
}

// Result is what an executor reports back.
type Result struct {
	Status      capture.OutcomeStatus
	ExternalRef string
	Message     string
}

// Executor performs one action.
type Executor interface {
	Invoke(ctx context.Context, inv Invocation) (Result, error)
}

// Func adapts a function to Executor.
type Func func(ctx context.Context, inv Invocation) (Result, error)

func (f Func) Invoke(ctx context.Context, inv Invocation) (Result, error) { return f(ctx, inv) }

// Registry maps action types to executors.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]Executor
	metrics *telemetry.Metrics
	logger  *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

func WithMetrics(m *telemetry.Metrics) Option { return func(r *Registry) { r.metrics = m } }

func WithLogger(l *zap.Logger) Option { return func(r *Registry) { r.logger = l } }

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{byName: map[string]Executor{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds action to ex, replacing any previous binding.
func (r *Registry) Register(action string, ex Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[action] = ex
}

// Names returns the registered action types, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for k := range r.byName {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Invoke dispatches inv to its executor. A returned error always comes with a
// Result whose status is error.
func (r *Registry) Invoke(ctx context.Context, inv Invocation) (Result, error) {
	r.mu.RLock()
	ex, ok := r.byName[inv.Action]
	r.mu.RUnlock()
	if !ok {
		r.metrics.Action(inv.Action, string(capture.OutcomeError))
		return Result{Status: capture.OutcomeError, Message: "unknown action"}, fmt.Errorf("%w: %s", ErrUnknownAction, inv.Action)
	}
	res, err := ex.Invoke(ctx, inv)
	if err != nil {
		res.Status = capture.OutcomeError
		if res.Message == "" {
			res.Message = err.Error()
		}
		r.logger.Warn("action failed", zap.String("action", inv.Action), zap.String("capture_id", inv.CaptureID), zap.Error(err))
	} else if res.Status == "" {
		res.Status = capture.OutcomeSuccess
	}
	r.metrics.Action(inv.Action, string(res.Status))
	return res, err
}

// FromConfig builds a registry with every known action bound to the local
// executor unless configured otherwise.
func FromConfig(cfg config.ExecutorsConfig, items ItemStore, tokens TokenSource, opts ...Option) (*Registry, error) {
	r := NewRegistry(opts...)
	local := NewLocal(items)
	for _, action := range Actions {
		r.Register(action, local)
	}
	for action, ac := range cfg.Actions {
		switch ac.Kind {
		case "", "local":
			r.Register(action, local)
		case "webhook":
			timeout := ac.Timeout
			if timeout <= 0 {
				timeout = 10 * time.Second
			}
			r.Register(action, &Webhook{
				URL:      ac.URL,
				Provider: ac.Provider,
				Tokens:   tokens,
				Client:   &http.Client{Timeout: timeout},
			})
		default:
			return nil, fmt.Errorf("executor %s: unknown kind %q", action, ac.Kind)
		}
	}
	return r, nil
}
