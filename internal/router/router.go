// Package router maps a classification to action executor invocations.
//
// Rules are evaluated top to bottom and the first match wins:
//
//  1. meeting cue and a time expression in the summary: one calendar event,
//     plus a task for each remaining item that is not about the meeting
//  2. purchase intent: one shopping list entry
//  3. task intent with items: one task per item
//  4. reference or learning intent: one note
//  5. event intent: free-form extraction through a calendar tool call
//  6. otherwise nothing, recorded as skipped
package router

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/lifeos/internal/capture"
	"github.com/mohammad-safakhou/lifeos/internal/executor"
	"github.com/mohammad-safakhou/lifeos/internal/inference"
)

// MaxTasks caps the task invocations produced for one capture.
const MaxTasks = 5

// Rule identifies which routing rule matched.
type Rule int

const (
	RuleMeeting Rule = iota + 1
	RulePurchase
	RuleTasks
	RuleNote
	RuleFreeForm
	RuleNone
)

func (r Rule) String() string {
	switch r {
	case RuleMeeting:
		return "meeting"
	case RulePurchase:
		return "purchase"
	case RuleTasks:
		return "tasks"
	case RuleNote:
		return "note"
	case RuleFreeForm:
		return "free_form"
	default:
		return "none"
	}
}

// Call is one planned executor invocation.
type Call struct {
	Action string
	Args   map[string]any
}

// Decision is the outcome of rule evaluation, before anything is executed.
type Decision struct {
	Rule  Rule
	Calls []Call
}

// Invoker runs an action. *executor.Registry satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, inv executor.Invocation) (executor.Result, error)
}

type Option func(*Router)

// WithEventDuration sets the length of created calendar events.
func WithEventDuration(d time.Duration) Option { return func(r *Router) { r.eventDuration = d } }

func WithLogger(l *zap.Logger) Option { return func(r *Router) { r.logger = l } }

func WithClock(now func() time.Time) Option { return func(r *Router) { r.now = now } }

type Router struct {
	exec          Invoker
	svc           inference.Service
	eventDuration time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

// New returns a router. svc is only used by the free-form event rule.
func New(exec Invoker, svc inference.Service, opts ...Option) *Router {
	r := &Router{exec: exec, svc: svc, eventDuration: time.Hour, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Decide evaluates the rules for c. ref is the time relative expressions
// resolve against.
func (r *Router) Decide(c capture.Classification, p capture.Perception, cctx capture.Context, ref time.Time) Decision {
	summary := strings.TrimSpace(c.Summary)
	if HasMeetingCue(summary) && HasTimeExpression(summary) {
		return Decision{Rule: RuleMeeting, Calls: r.meetingCalls(c, cctx, ref)}
	}
	switch c.Intent {
	case capture.IntentPurchase:
		name, price, ok := ShoppingItem(summary)
		args := map[string]any{"item_name": name}
		if ok {
			args["price"] = price.Amount
			args["currency"] = price.Currency
		}
		return Decision{Rule: RulePurchase, Calls: []Call{{Action: executor.ActionShoppingItem, Args: args}}}
	case capture.IntentTask:
		if len(c.ActionableItems) > 0 {
			var calls []Call
			for _, item := range c.ActionableItems {
				if len(calls) == MaxTasks {
					break
				}
				calls = append(calls, taskCall(item, c))
			}
			return Decision{Rule: RuleTasks, Calls: calls}
		}
	case capture.IntentReference, capture.IntentLearning:
		return Decision{Rule: RuleNote, Calls: []Call{{Action: executor.ActionNote, Args: map[string]any{
			"title": summary,
			"body":  noteBody(c, p, cctx),
		}}}}
	case capture.IntentEvent:
		return Decision{Rule: RuleFreeForm}
	}
	return Decision{Rule: RuleNone}
}

func (r *Router) meetingCalls(c capture.Classification, cctx capture.Context, ref time.Time) []Call {
	loc := cctx.Location()
	title := EventTitle(c.Summary)
	args := map[string]any{"title": title, "timezone": loc.String()}
	clause := meetingClause(c.Summary)
	when, ok := ResolveWhen(clause, ref, loc)
	if !ok {
		when, ok = ResolveWhen(c.Summary, ref, loc)
	}
	if ok {
		args["start"] = when.Start.Format(time.RFC3339)
		args["end"] = when.Start.Add(r.eventDuration).Format(time.RFC3339)
		args["when_text"] = when.Text
		if when.AllDay {
			args["all_day"] = true
		}
	}
	calls := []Call{{Action: executor.ActionCalendarEvent, Args: args}}
	tasks := 0
	for _, item := range c.ActionableItems {
		if tasks == MaxTasks {
			break
		}
		if meetingRelated(item, title) {
			continue
		}
		calls = append(calls, taskCall(item, c))
		tasks++
	}
	return calls
}

func taskCall(item string, c capture.Classification) Call {
	return Call{Action: executor.ActionTask, Args: map[string]any{
		"title":    item,
		"priority": c.Priority,
		"domain":   string(c.Domain),
	}}
}

func noteBody(c capture.Classification, p capture.Perception, cctx capture.Context) string {
	var b strings.Builder
	if text := p.Text(); text != "" {
		b.WriteString(text)
	}
	var src []string
	for _, kv := range [][2]string{{"App", cctx.SourceApp}, {"Window", cctx.WindowTitle}, {"URL", cctx.URL}} {
		if kv[1] != "" {
			src = append(src, kv[0]+": "+kv[1])
		}
	}
	if len(src) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Source\n")
		b.WriteString(strings.Join(src, "\n"))
	}
	if len(c.Tags) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Tags: ")
		b.WriteString(strings.Join(c.Tags, ", "))
	}
	return b.String()
}

// Route decides and executes actions for rec. Executor and inference
// failures are returned as error outcomes, never as errors.
func (r *Router) Route(ctx context.Context, rec *capture.Record) []capture.ActionOutcome {
	if rec.Classification == nil {
		return []capture.ActionOutcome{r.skipped(capture.ActionNone, "no classification")}
	}
	var perc capture.Perception
	if rec.Perception != nil {
		perc = *rec.Perception
	}
	ref := rec.CreatedAt
	if ref.IsZero() {
		ref = r.now()
	}
	d := r.Decide(*rec.Classification, perc, rec.Context, ref)
	r.logger.Debug("routing decision", zap.String("capture_id", rec.ID), zap.Stringer("rule", d.Rule), zap.Int("calls", len(d.Calls)))

	switch d.Rule {
	case RuleNone:
		return []capture.ActionOutcome{r.skipped(capture.ActionNone, "no routing rule matched")}
	case RuleFreeForm:
		call, outcome := r.freeForm(ctx, rec, ref)
		if call == nil {
			return []capture.ActionOutcome{outcome}
		}
		d.Calls = []Call{*call}
	}

	out := make([]capture.ActionOutcome, 0, len(d.Calls))
	for _, call := range d.Calls {
		out = append(out, r.invoke(ctx, rec, call))
	}
	return out
}

func (r *Router) invoke(ctx context.Context, rec *capture.Record, call Call) capture.ActionOutcome {
	res, err := r.exec.Invoke(ctx, executor.Invocation{
		UserID:    rec.UserID,
		CaptureID: rec.ID,
		Action:    call.Action,
		Args:      call.Args,
	})
	o := capture.ActionOutcome{
		ActionType: call.Action,
		TargetID:   res.ExternalRef,
		Status:     res.Status,
		Message:    res.Message,
		Args:       call.Args,
		ExecutedAt: r.now().UTC(),
	}
	if err != nil {
		o.Status = capture.OutcomeError
		if o.Message == "" {
			o.Message = err.Error()
		}
	}
	if o.Status == "" {
		o.Status = capture.OutcomeSuccess
	}
	return o
}

func (r *Router) skipped(action, msg string) capture.ActionOutcome {
	return capture.ActionOutcome{ActionType: action, Status: capture.OutcomeSkipped, Message: msg, ExecutedAt: r.now().UTC()}
}
