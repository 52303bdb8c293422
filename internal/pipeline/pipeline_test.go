package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/mohammad-safakhou/lifeos/internal/agents"
	"github.com/mohammad-safakhou/lifeos/internal/cache"
	"github.com/mohammad-safakhou/lifeos/internal/capture"
	"github.com/mohammad-safakhou/lifeos/internal/classify"
	"github.com/mohammad-safakhou/lifeos/internal/dispatch"
	"github.com/mohammad-safakhou/lifeos/internal/executor"
	"github.com/mohammad-safakhou/lifeos/internal/inference"
	"github.com/mohammad-safakhou/lifeos/internal/inference/inferencetest"
	"github.com/mohammad-safakhou/lifeos/internal/perception"
	"github.com/mohammad-safakhou/lifeos/internal/router"
	"github.com/mohammad-safakhou/lifeos/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// monday is 2026-03-02 10:00 UTC.
var monday = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type fakeAgent struct {
	name  string
	delay time.Duration
	res   *capture.AgentResult
	err   error

	mu    sync.Mutex
	calls int
}

func (f *fakeAgent) Name() string { return f.name }

func (f *fakeAgent) Process(ctx context.Context, v capture.View) (*capture.AgentResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil || f.res == nil {
		return nil, f.err
	}
	out := *f.res
	out.Summary = f.name + ": " + v.Classification.Summary
	return &out, nil
}

func (f *fakeAgent) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type harness struct {
	t     *testing.T
	store *store.Memory
	svc   *inferencetest.Scripted
	p     *Pipeline
}

func newHarness(t *testing.T, regs []agents.Registration, opts ...Option) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	st := store.NewMemory()
	svc := inferencetest.New()
	reg := executor.NewRegistry(executor.WithLogger(logger))
	local := executor.NewLocal(st)
	for _, a := range executor.Actions {
		reg.Register(a, local)
	}
	clock := func() time.Time { return monday }
	rt := router.New(reg, svc, router.WithClock(clock), router.WithLogger(logger))
	perc := perception.New(svc, cache.Nop{}, time.Hour, perception.WithLogger(logger))
	cls := classify.New(svc, logger)
	d := dispatch.New(dispatch.WithLogger(logger))

	base := []Option{WithLogger(logger), WithClock(clock), WithEnrichmentTimeout(2 * time.Second)}
	p := New(st, perc, cls, rt, d, append(base, opts...)...)
	p.RegisterAgents(regs)
	return &harness{t: t, store: st, svc: svc, p: p}
}

func (h *harness) ingest(text string) string {
	h.t.Helper()
	id, err := h.p.Ingest(context.Background(), IngestRequest{UserID: "u-1", Input: capture.RawInput{Text: text}})
	require.NoError(h.t, err)
	return id
}

func (h *harness) get(id string) *capture.Record {
	h.t.Helper()
	rec, err := h.store.Get(context.Background(), id)
	require.NoError(h.t, err)
	return rec
}

func okResult() *capture.AgentResult { return &capture.AgentResult{Status: capture.AgentOK} }

func TestTeamSyncEndToEnd(t *testing.T) {
	research := &fakeAgent{name: agents.NameResearch, res: okResult()}
	proactive := &fakeAgent{name: agents.NameProactive, res: okResult()}
	h := newHarness(t, []agents.Registration{{Agent: research, Priority: 10}, {Agent: proactive, Priority: 20}})
	h.svc.On(inference.PurposeClassification, inferencetest.Text(`{"domain":"work","intent":"event","priority":3,
		"summary":"Team sync tomorrow 3pm, also finish the report","tags":["meeting"],"actionable_items":["Finish report"]}`))

	id := h.ingest("Team sync tomorrow 3pm, also finish the report")
	require.NoError(t, h.p.Run(context.Background(), id))

	rec := h.get(id)
	assert.Equal(t, capture.StatusCompleted, rec.Status)
	assert.Equal(t, "Team sync tomorrow 3pm, also finish the report", rec.Perception.OCRText)
	assert.Equal(t, capture.IntentEvent, rec.Classification.Intent)
	assert.Equal(t, []string{"Finish report"}, rec.Classification.ActionableItems)

	require.Len(t, rec.Actions, 2)
	assert.Equal(t, executor.ActionCalendarEvent, rec.Actions[0].ActionType)
	assert.Equal(t, "Team sync", rec.Actions[0].Args["title"])
	assert.Equal(t, executor.ActionTask, rec.Actions[1].ActionType)
	assert.Equal(t, "Finish report", rec.Actions[1].Args["title"])

	items, err := h.store.ListActionItems(context.Background(), id)
	require.NoError(t, err)
	for _, it := range items {
		if it.Kind == executor.ActionTask {
			assert.NotEqual(t, "Team sync", it.Title)
		}
	}

	for _, stage := range []string{capture.StagePerception, capture.StageClassification, capture.StageRouting,
		capture.EnrichmentStage(agents.NameResearch), capture.EnrichmentStage(agents.NameProactive), capture.StageFinalized} {
		assert.True(t, rec.Done(stage), "missing timeline entry %s", stage)
	}
	assert.Contains(t, rec.Enrichment, agents.NameResearch)
	assert.Contains(t, rec.Enrichment, agents.NameProactive)
	assert.Equal(t, 0, h.svc.CallCount(inference.PurposePerception))
}

func TestHeadphonesEndToEnd(t *testing.T) {
	h := newHarness(t, nil)
	h.svc.On(inference.PurposeClassification, inferencetest.Text(`{"domain":"shopping","intent":"purchase","priority":2,
		"summary":"Sony headphones $299","tags":["audio"],"actionable_items":[]}`))

	id := h.ingest("Sony headphones $299")
	require.NoError(t, h.p.Run(context.Background(), id))

	rec := h.get(id)
	assert.Equal(t, capture.StatusCompleted, rec.Status)
	require.Len(t, rec.Actions, 1)
	assert.Equal(t, executor.ActionShoppingItem, rec.Actions[0].ActionType)
	assert.Equal(t, "Sony headphones", rec.Actions[0].Args["item_name"])
	assert.Equal(t, 299.0, rec.Actions[0].Args["price"])
	assert.Equal(t, capture.OutcomeSuccess, rec.Actions[0].Status)
}

func TestStageFatalFailureSkipsDownstream(t *testing.T) {
	agent := &fakeAgent{name: agents.NameResearch, res: okResult()}
	h := newHarness(t, []agents.Registration{{Agent: agent, Priority: 10}})
	h.svc.On(inference.PurposeClassification, inferencetest.Fail(errors.New("backend down")))

	id := h.ingest("Call the dentist")
	err := h.p.Run(context.Background(), id)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, capture.StageClassification, se.Stage)

	rec := h.get(id)
	assert.Equal(t, capture.StatusFailed, rec.Status)
	assert.Nil(t, rec.Classification)
	assert.Empty(t, rec.Actions)
	assert.False(t, rec.Done(capture.StageRouting))
	assert.True(t, rec.Done(capture.StageFinalized))
	assert.Equal(t, 0, agent.Calls())
}

func TestUnparseableClassificationDegradesToUnknown(t *testing.T) {
	h := newHarness(t, nil)
	h.svc.On(inference.PurposeClassification, inferencetest.Text("not json at all"))

	id := h.ingest("random musing")
	require.NoError(t, h.p.Run(context.Background(), id))

	rec := h.get(id)
	assert.Equal(t, capture.StatusCompleted, rec.Status)
	assert.Equal(t, capture.IntentUnknown, rec.Classification.Intent)
	require.Len(t, rec.Actions, 1)
	assert.Equal(t, capture.OutcomeSkipped, rec.Actions[0].Status)
}

func TestAgentFailureYieldsPartialFailure(t *testing.T) {
	bad := &fakeAgent{name: agents.NameResearch, err: errors.New("search quota")}
	good := &fakeAgent{name: agents.NameProactive, res: okResult()}
	skip := &fakeAgent{name: agents.NameResources}
	h := newHarness(t, []agents.Registration{{Agent: bad, Priority: 1}, {Agent: good, Priority: 2}, {Agent: skip, Priority: 3}})
	h.svc.On(inference.PurposeClassification, inferencetest.Text(`{"domain":"learning","intent":"learning","priority":2,"summary":"Learn Rust"}`))

	id := h.ingest("Learn Rust")
	require.NoError(t, h.p.Run(context.Background(), id))

	rec := h.get(id)
	assert.Equal(t, capture.StatusPartialFailure, rec.Status)
	assert.Equal(t, capture.AgentError, rec.Enrichment[agents.NameResearch].Status)
	assert.Equal(t, "search quota", rec.Enrichment[agents.NameResearch].Error)
	assert.Equal(t, capture.AgentOK, rec.Enrichment[agents.NameProactive].Status)
	assert.NotContains(t, rec.Enrichment, agents.NameResources)
	assert.False(t, rec.Done(capture.EnrichmentStage(agents.NameResearch)))
	assert.Equal(t, 1, good.Calls())
	assert.Equal(t, 1, skip.Calls())
}

func TestEnrichmentTimeoutYieldsPartialFailure(t *testing.T) {
	slow := &fakeAgent{name: agents.NameResearch, delay: time.Minute, res: okResult()}
	never := &fakeAgent{name: agents.NameProactive, res: okResult()}
	h := newHarness(t, []agents.Registration{{Agent: slow, Priority: 1}, {Agent: never, Priority: 2}},
		WithEnrichmentTimeout(50*time.Millisecond))
	h.svc.On(inference.PurposeClassification, inferencetest.Text(`{"domain":"learning","intent":"reference","summary":"Go memory model"}`))

	id := h.ingest("Go memory model")
	require.NoError(t, h.p.Run(context.Background(), id))

	rec := h.get(id)
	assert.Equal(t, capture.StatusPartialFailure, rec.Status)
	assert.Equal(t, capture.AgentError, rec.Enrichment[agents.NameResearch].Status)
	assert.NotContains(t, rec.Enrichment, agents.NameProactive)
	assert.Equal(t, 0, never.Calls())
}

func TestRunIsIdempotentOnRedelivery(t *testing.T) {
	agent := &fakeAgent{name: agents.NameProactive, res: okResult()}
	h := newHarness(t, []agents.Registration{{Agent: agent, Priority: 1}})
	h.svc.On(inference.PurposeClassification, inferencetest.Text(`{"domain":"home","intent":"task","summary":"Chores","actionable_items":["Fix sink"]}`))

	id := h.ingest("Fix sink")
	require.NoError(t, h.p.Run(context.Background(), id))
	require.NoError(t, h.p.Run(context.Background(), id))

	rec := h.get(id)
	assert.Len(t, rec.Actions, 1)
	assert.Equal(t, 1, h.svc.CallCount(inference.PurposeClassification))
	assert.Equal(t, 1, agent.Calls())
}

func TestRunResumesAfterRouting(t *testing.T) {
	agent := &fakeAgent{name: agents.NameProactive, res: okResult()}
	h := newHarness(t, []agents.Registration{{Agent: agent, Priority: 1}})

	rec := capture.New("c-resume", "u-1", capture.RawInput{Text: "Fix sink"}, capture.Context{}, monday)
	require.NoError(t, h.store.Create(context.Background(), rec))
	cls := capture.Classification{Intent: capture.IntentTask, Summary: "Fix sink", ActionableItems: []string{"Fix sink"}}
	perc := capture.Perception{OCRText: "Fix sink"}
	patch := capture.Patch{Perception: &perc, Classification: &cls,
		AppendActions: []capture.ActionOutcome{{ActionType: executor.ActionTask, Status: capture.OutcomeSuccess}}}.
		WithStatus(capture.StatusAnalyzed).
		Mark(capture.StagePerception, monday).
		Mark(capture.StageClassification, monday).
		Mark(capture.StageRouting, monday)
	require.NoError(t, h.store.Merge(context.Background(), rec.ID, patch))

	require.NoError(t, h.p.Run(context.Background(), rec.ID))

	got := h.get(rec.ID)
	assert.Equal(t, capture.StatusCompleted, got.Status)
	assert.Len(t, got.Actions, 1)
	assert.Empty(t, h.svc.Calls())
	assert.Equal(t, 1, agent.Calls())
}

func TestConcurrentAgentWritesKeepBothFields(t *testing.T) {
	st := store.NewMemory()
	p := New(st, nil, nil, nil, nil, WithClock(func() time.Time { return monday }))
	rec := capture.New("c-merge", "u-1", capture.RawInput{Text: "x"}, capture.Context{}, monday)
	require.NoError(t, st.Create(context.Background(), rec))

	research := p.agentHandler(&fakeAgent{name: agents.NameResearch, res: okResult()})
	proactive := p.agentHandler(&fakeAgent{name: agents.NameProactive, res: okResult()})

	var wg sync.WaitGroup
	for _, h := range []dispatch.Handler{research, proactive} {
		wg.Add(1)
		go func(h dispatch.Handler) {
			defer wg.Done()
			assert.NoError(t, h(context.Background(), rec.View()))
		}(h)
	}
	wg.Wait()

	got, err := st.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Contains(t, got.Enrichment, agents.NameResearch)
	assert.Contains(t, got.Enrichment, agents.NameProactive)
	assert.True(t, got.Done(capture.EnrichmentStage(agents.NameResearch)))
	assert.True(t, got.Done(capture.EnrichmentStage(agents.NameProactive)))
}

func TestIngestValidation(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.p.Ingest(context.Background(), IngestRequest{UserID: "u-1"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.ErrorIs(t, err, capture.ErrEmptyInput)

	_, err = h.p.Ingest(context.Background(), IngestRequest{Input: capture.RawInput{Text: "hi"}})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

type recordingIndexer struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingIndexer) Index(_ context.Context, rec *capture.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, rec.ID+":"+string(rec.Status))
	return nil
}

func TestInlineLauncherRunsToCompletion(t *testing.T) {
	ix := &recordingIndexer{}
	h := newHarness(t, nil, WithIndexer(ix))
	h.svc.On(inference.PurposeClassification, inferencetest.Text(`{"intent":"reference","summary":"Read later"}`))
	inline := NewInline(h.p, 2, zaptest.NewLogger(t))
	h.p.UseLauncher(inline)

	ids := []string{h.ingest("Read later"), h.ingest("Read later too")}
	inline.Wait()
	require.NoError(t, inline.Close(context.Background()))

	for _, id := range ids {
		assert.Equal(t, capture.StatusCompleted, h.get(id).Status)
	}
	assert.Len(t, ix.ids, 2)

	err := inline.Launch(context.Background(), "late", "u-1")
	assert.ErrorIs(t, err, ErrLauncherClosed)
}
