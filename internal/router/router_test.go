package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammad-safakhou/lifeos/internal/capture"
	"github.com/mohammad-safakhou/lifeos/internal/executor"
	"github.com/mohammad-safakhou/lifeos/internal/inference"
	"github.com/mohammad-safakhou/lifeos/internal/inference/inferencetest"
)

// monday is 2026-03-02 10:00 UTC.
var monday = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type recordingInvoker struct {
	mu    sync.Mutex
	calls []executor.Invocation
	fail  map[string]error
}

func (r *recordingInvoker) Invoke(_ context.Context, inv executor.Invocation) (executor.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, inv)
	if err := r.fail[inv.Action]; err != nil {
		return executor.Result{Status: capture.OutcomeError}, err
	}
	return executor.Result{Status: capture.OutcomeSuccess, ExternalRef: "ref-" + inv.Action}, nil
}

func record(c capture.Classification) *capture.Record {
	rec := capture.New("c-1", "u-1", capture.RawInput{Text: c.Summary}, capture.Context{}, monday)
	rec.Classification = &c
	rec.Perception = &capture.Perception{}
	return rec
}

func TestTeamSyncScenario(t *testing.T) {
	inv := &recordingInvoker{}
	r := New(inv, nil, WithClock(func() time.Time { return monday }))

	out := r.Route(context.Background(), record(capture.Classification{
		Domain:          capture.DomainWork,
		Intent:          capture.IntentEvent,
		Priority:        3,
		Summary:         "Team sync tomorrow 3pm, also finish the report",
		ActionableItems: []string{"Finish report"},
	}))

	require.Len(t, out, 2)
	assert.Equal(t, executor.ActionCalendarEvent, out[0].ActionType)
	assert.Equal(t, "Team sync", out[0].Args["title"])
	assert.Equal(t, "2026-03-03T15:00:00Z", out[0].Args["start"])
	assert.Equal(t, "2026-03-03T16:00:00Z", out[0].Args["end"])
	assert.Equal(t, executor.ActionTask, out[1].ActionType)
	assert.Equal(t, "Finish report", out[1].Args["title"])
	for _, o := range out {
		assert.Equal(t, capture.OutcomeSuccess, o.Status)
		if o.ActionType == executor.ActionTask {
			assert.NotEqual(t, "Team sync", o.Args["title"])
		}
	}
}

func TestMeetingExclusivity(t *testing.T) {
	r := New(&recordingInvoker{}, nil)
	d := r.Decide(capture.Classification{
		Intent:          capture.IntentTask,
		Summary:         "Project sync on Friday at 10am",
		ActionableItems: []string{"Prepare slides", "Attend project sync", "Email Dana", "Book flights"},
	}, capture.Perception{}, capture.Context{}, monday)

	require.Equal(t, RuleMeeting, d.Rule)
	var events, tasks int
	for _, c := range d.Calls {
		switch c.Action {
		case executor.ActionCalendarEvent:
			events++
			assert.Equal(t, "Project sync", c.Args["title"])
			assert.Equal(t, "2026-03-06T10:00:00Z", c.Args["start"])
		case executor.ActionTask:
			tasks++
			assert.NotContains(t, c.Args["title"], "sync")
		}
	}
	assert.Equal(t, 1, events)
	assert.Equal(t, 3, tasks)
}

func TestMeetingKeepsUnrelatedTodosWithCues(t *testing.T) {
	r := New(&recordingInvoker{}, nil)
	d := r.Decide(capture.Classification{
		Intent:          capture.IntentEvent,
		Summary:         "Team sync tomorrow 3pm",
		ActionableItems: []string{"Call the bank", "Finish report", "Email Dana about the demo deck"},
	}, capture.Perception{}, capture.Context{}, monday)

	require.Equal(t, RuleMeeting, d.Rule)
	require.Len(t, d.Calls, 4)
	assert.Equal(t, executor.ActionCalendarEvent, d.Calls[0].Action)
	assert.Equal(t, "Team sync", d.Calls[0].Args["title"])
	var titles []string
	for _, c := range d.Calls[1:] {
		assert.Equal(t, executor.ActionTask, c.Action)
		titles = append(titles, c.Args["title"].(string))
	}
	assert.Equal(t, []string{"Call the bank", "Finish report", "Email Dana about the demo deck"}, titles)
}

func TestMeetingRelated(t *testing.T) {
	cases := []struct {
		item, title string
		want        bool
	}{
		{"Team sync", "Team sync", true},
		{"Attend the meeting at 3pm", "Meeting", true},
		{"Prepare agenda for team sync", "Team sync", true},
		{"Attend project sync", "Project sync", true},
		{"Call the bank", "Team sync", false},
		{"Call the bank", "Call", false},
		{"Email Dana about the demo deck", "Team sync", false},
		{"Prepare slides", "Project sync", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, meetingRelated(tc.item, tc.title), "%q vs %q", tc.item, tc.title)
	}
}

func TestHeadphonesScenario(t *testing.T) {
	inv := &recordingInvoker{}
	r := New(inv, nil)
	out := r.Route(context.Background(), record(capture.Classification{
		Intent:  capture.IntentPurchase,
		Summary: "Sony headphones $299",
	}))

	require.Len(t, out, 1)
	assert.Equal(t, executor.ActionShoppingItem, out[0].ActionType)
	assert.Equal(t, "Sony headphones", out[0].Args["item_name"])
	assert.Equal(t, 299.0, out[0].Args["price"])
	assert.Equal(t, "USD", out[0].Args["currency"])
	assert.Equal(t, "ref-add_to_shopping_list", out[0].TargetID)
}

func TestTasksCappedAtFive(t *testing.T) {
	r := New(&recordingInvoker{}, nil)
	d := r.Decide(capture.Classification{
		Intent:          capture.IntentTask,
		Summary:         "Chores",
		ActionableItems: []string{"A", "B", "C", "D", "E", "F", "G"},
	}, capture.Perception{}, capture.Context{}, monday)
	assert.Equal(t, RuleTasks, d.Rule)
	assert.Len(t, d.Calls, MaxTasks)
}

func TestTaskIntentWithoutItemsFallsThrough(t *testing.T) {
	r := New(&recordingInvoker{}, nil)
	out := r.Route(context.Background(), record(capture.Classification{Intent: capture.IntentTask, Summary: "Something"}))
	require.Len(t, out, 1)
	assert.Equal(t, capture.ActionNone, out[0].ActionType)
	assert.Equal(t, capture.OutcomeSkipped, out[0].Status)
}

func TestReferenceBecomesNote(t *testing.T) {
	r := New(&recordingInvoker{}, nil)
	d := r.Decide(capture.Classification{
		Intent:  capture.IntentReference,
		Summary: "Postgres JSONB operators",
		Tags:    []string{"postgres", "sql"},
	}, capture.Perception{OCRText: "jsonb || jsonb concatenates"}, capture.Context{SourceApp: "Firefox", URL: "https://postgresql.org"}, monday)

	require.Equal(t, RuleNote, d.Rule)
	require.Len(t, d.Calls, 1)
	body := d.Calls[0].Args["body"].(string)
	assert.Contains(t, body, "jsonb || jsonb")
	assert.Contains(t, body, "App: Firefox")
	assert.Contains(t, body, "Tags: postgres, sql")
	assert.Equal(t, "Postgres JSONB operators", d.Calls[0].Args["title"])
}

func TestFreeFormExecutesCalendarToolCall(t *testing.T) {
	svc := inferencetest.New().On(inference.PurposeRouting, inferencetest.Reply{Result: inference.Call(executor.ActionCalendarEvent, map[string]any{
		"title": "Dinner with Sam",
		"start": "2026-03-05T19:00:00Z",
	})})
	inv := &recordingInvoker{}
	r := New(inv, svc)

	out := r.Route(context.Background(), record(capture.Classification{Intent: capture.IntentEvent, Summary: "Dinner with Sam later this week"}))
	require.Len(t, out, 1)
	assert.Equal(t, capture.OutcomeSuccess, out[0].Status)
	require.Len(t, inv.calls, 1)
	assert.Equal(t, "Dinner with Sam", inv.calls[0].Args["title"])
	assert.Equal(t, "UTC", inv.calls[0].Args["timezone"])

	req := svc.Calls()[0]
	require.Len(t, req.Tools, 1)
	assert.Equal(t, executor.ActionCalendarEvent, req.Tools[0].Name)
}

func TestFreeFormTextReplyIsSkipped(t *testing.T) {
	svc := inferencetest.New().On(inference.PurposeRouting, inferencetest.Text("I cannot tell when"))
	inv := &recordingInvoker{}
	out := New(inv, svc).Route(context.Background(), record(capture.Classification{Intent: capture.IntentEvent, Summary: "Party soon"}))
	require.Len(t, out, 1)
	assert.Equal(t, capture.OutcomeSkipped, out[0].Status)
	assert.Empty(t, inv.calls)
}

func TestFreeFormInferenceErrorIsRecorded(t *testing.T) {
	svc := inferencetest.New().On(inference.PurposeRouting, inferencetest.Fail(errors.New("upstream 500")))
	out := New(&recordingInvoker{}, svc).Route(context.Background(), record(capture.Classification{Intent: capture.IntentEvent, Summary: "Party soon"}))
	require.Len(t, out, 1)
	assert.Equal(t, capture.OutcomeError, out[0].Status)
	assert.Contains(t, out[0].Message, "upstream 500")
}

func TestExecutorFailureBecomesErrorOutcome(t *testing.T) {
	inv := &recordingInvoker{fail: map[string]error{executor.ActionTask: errors.New("todo api down")}}
	out := New(inv, nil).Route(context.Background(), record(capture.Classification{
		Intent:          capture.IntentTask,
		Summary:         "Errands",
		ActionableItems: []string{"Renew passport", "Call the bank"},
	}))
	require.Len(t, out, 2)
	for _, o := range out {
		assert.Equal(t, capture.OutcomeError, o.Status)
		assert.Equal(t, "todo api down", o.Message)
	}
}

func TestUnknownIntentSkipped(t *testing.T) {
	out := New(&recordingInvoker{}, nil).Route(context.Background(), record(capture.Classification{Intent: capture.IntentUnknown, Summary: "lorem ipsum"}))
	require.Len(t, out, 1)
	assert.Equal(t, capture.ActionNone, out[0].ActionType)
	assert.Equal(t, capture.OutcomeSkipped, out[0].Status)
}
