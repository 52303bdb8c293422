// Package pipeline drives a capture through perception, classification,
// routing and the enrichment fan-out, persisting every step as a partial
// merge on the capture record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/lifeos/internal/capture"
	"github.com/mohammad-safakhou/lifeos/internal/dispatch"
	"github.com/mohammad-safakhou/lifeos/internal/store"
	"github.com/mohammad-safakhou/lifeos/internal/telemetry"
)

// ErrInvalidRequest wraps ingestion validation failures.
var ErrInvalidRequest = errors.New("pipeline: invalid request")

// Perceiver extracts content from raw input.
type Perceiver interface {
	Perceive(ctx context.Context, in capture.RawInput) (capture.Perception, error)
}

// Classifier turns extracted text into a classification.
type Classifier interface {
	Classify(ctx context.Context, text string, cctx capture.Context) (capture.Classification, error)
}

// Router decides and executes primary actions.
type Router interface {
	Route(ctx context.Context, rec *capture.Record) []capture.ActionOutcome
}

// Indexer receives finalized records.
type Indexer interface {
	Index(ctx context.Context, rec *capture.Record) error
}

// Launcher starts Run for a freshly created capture without blocking ingestion.
type Launcher interface {
	Launch(ctx context.Context, captureID, userID string) error
}

// StageError is returned by Run when a stage-fatal failure marked the record
// failed. The failure is already persisted.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("stage %s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// IngestRequest is one capture submission.
type IngestRequest struct {
	UserID  string
	Input   capture.RawInput
	Context capture.Context
}

type Option func(*Pipeline)

func WithIndexer(ix Indexer) Option { return func(p *Pipeline) { p.indexer = ix } }

func WithLauncher(l Launcher) Option { return func(p *Pipeline) { p.launcher = l } }

func WithMetrics(m *telemetry.Metrics) Option { return func(p *Pipeline) { p.metrics = m } }

func WithLogger(l *zap.Logger) Option { return func(p *Pipeline) { p.logger = l } }

func WithClock(now func() time.Time) Option { return func(p *Pipeline) { p.now = now } }

func WithIDGenerator(f func() string) Option { return func(p *Pipeline) { p.newID = f } }

// WithEnrichmentTimeout bounds the whole enrichment fan-out of one capture.
func WithEnrichmentTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.enrichmentTimeout = d }
}

// Pipeline is safe for concurrent use; captures share nothing but the
// collaborators passed to New.
type Pipeline struct {
	store      store.RecordStore
	perceiver  Perceiver
	classifier Classifier
	router     Router
	dispatcher *dispatch.Dispatcher

	indexer           Indexer
	launcher          Launcher
	metrics           *telemetry.Metrics
	logger            *zap.Logger
	now               func() time.Time
	newID             func() string
	enrichmentTimeout time.Duration
}

func New(st store.RecordStore, perc Perceiver, cls Classifier, rt Router, d *dispatch.Dispatcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:             st,
		perceiver:         perc,
		classifier:        cls,
		router:            rt,
		dispatcher:        d,
		logger:            zap.NewNop(),
		now:               time.Now,
		newID:             uuid.NewString,
		enrichmentTimeout: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.dispatcher == nil {
		p.dispatcher = dispatch.New(dispatch.WithLogger(p.logger))
	}
	return p
}

// UseLauncher sets the launcher after construction, for launchers that need
// the pipeline itself.
func (p *Pipeline) UseLauncher(l Launcher) { p.launcher = l }

// Ingest validates and persists a new capture in the processing state, hands
// it to the launcher and returns its id. A launch failure is logged; the
// sweeper eventually fails a record that never ran.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (string, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return "", fmt.Errorf("%w: user id required", ErrInvalidRequest)
	}
	if err := req.Input.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	id := p.newID()
	rec := capture.New(id, req.UserID, req.Input, req.Context, p.now().UTC())
	if err := p.store.Create(ctx, rec); err != nil {
		return "", fmt.Errorf("create capture: %w", err)
	}
	p.metrics.Ingested()
	p.logger.Info("capture ingested", zap.String("capture_id", id), zap.String("kind", string(req.Input.Kind())))

	if p.launcher != nil {
		if err := p.launcher.Launch(ctx, id, req.UserID); err != nil {
			p.logger.Warn("launch failed", zap.String("capture_id", id), zap.Error(err))
		}
	}
	return id, nil
}

// Run processes one capture to a terminal status. Stages already recorded in
// the timeline are not repeated, so redelivered work resumes where it
// stopped. A terminal record is left untouched.
func (p *Pipeline) Run(ctx context.Context, id string) error {
	rec, err := p.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load capture %s: %w", id, err)
	}
	log := p.logger.With(zap.String("capture_id", id))
	if rec.Status.Terminal() {
		log.Debug("capture already terminal", zap.String("status", string(rec.Status)))
		return nil
	}

	if rec.Perception == nil {
		start := p.now()
		perc, err := p.perceiver.Perceive(ctx, rec.Input)
		p.metrics.ObserveStage(capture.StagePerception, p.now().Sub(start), err != nil)
		if err != nil {
			return p.fail(ctx, rec, capture.StagePerception, err)
		}
		patch := capture.Patch{Perception: &perc}.Mark(capture.StagePerception, p.now().UTC())
		if err := p.apply(ctx, rec, patch); err != nil {
			return err
		}
	}

	if rec.Classification == nil {
		start := p.now()
		cls, err := p.classifier.Classify(ctx, rec.Perception.Text(), rec.Context)
		p.metrics.ObserveStage(capture.StageClassification, p.now().Sub(start), err != nil)
		if err != nil {
			return p.fail(ctx, rec, capture.StageClassification, err)
		}
		patch := capture.Patch{Classification: &cls}.
			WithStatus(capture.StatusAnalyzed).
			Mark(capture.StageClassification, p.now().UTC())
		if err := p.apply(ctx, rec, patch); err != nil {
			return err
		}
		log.Info("capture classified", zap.String("intent", string(cls.Intent)), zap.String("domain", string(cls.Domain)))
	}

	if !rec.Done(capture.StageRouting) {
		start := p.now()
		outcomes := p.router.Route(ctx, rec)
		p.metrics.ObserveStage(capture.StageRouting, p.now().Sub(start), false)
		patch := capture.Patch{AppendActions: outcomes}.Mark(capture.StageRouting, p.now().UTC())
		if err := p.apply(ctx, rec, patch); err != nil {
			return err
		}
	}

	return p.enrichAndFinalize(ctx, rec)
}

func (p *Pipeline) enrichAndFinalize(ctx context.Context, rec *capture.Record) error {
	log := p.logger.With(zap.String("capture_id", rec.ID))

	start := p.now()
	ectx, cancel := context.WithTimeout(ctx, p.enrichmentTimeout)
	reports := p.dispatcher.Emit(ectx, dispatch.EventCaptureAnalyzed, rec.View())
	cancel()

	status := capture.StatusCompleted
	for _, r := range reports {
		if r.Err != nil {
			status = capture.StatusPartialFailure
			log.Warn("enrichment incomplete", zap.String("agent", r.Name), zap.Bool("ran", r.Ran), zap.Error(r.Err))
		}
	}
	p.metrics.ObserveStage("enrichment", p.now().Sub(start), status != capture.StatusCompleted)

	if ctx.Err() != nil {
		return ctx.Err()
	}
	patch := capture.Patch{}.WithStatus(status).Mark(capture.StageFinalized, p.now().UTC())
	if err := p.store.Merge(ctx, rec.ID, patch); err != nil {
		return fmt.Errorf("finalize capture %s: %w", rec.ID, err)
	}
	p.metrics.Terminal(string(status))
	log.Info("capture finalized", zap.String("status", string(status)), zap.Int("agents", len(reports)))

	if p.indexer != nil {
		final, err := p.store.Get(ctx, rec.ID)
		if err == nil {
			err = p.indexer.Index(ctx, final)
		}
		if err != nil {
			log.Warn("index capture", zap.Error(err))
		}
	}
	return nil
}

// fail marks the record failed after a stage-fatal error. Cancellation is
// not a stage failure: the record stays as is for redelivery or the sweeper.
func (p *Pipeline) fail(ctx context.Context, rec *capture.Record, stage string, cause error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	log := p.logger.With(zap.String("capture_id", rec.ID), zap.String("stage", stage))
	log.Error("stage failed", zap.Error(cause))

	patch := capture.Patch{}.WithStatus(capture.StatusFailed).Mark(capture.StageFinalized, p.now().UTC())
	if err := p.store.Merge(ctx, rec.ID, patch); err != nil {
		return fmt.Errorf("mark capture %s failed: %w", rec.ID, err)
	}
	p.metrics.Terminal(string(capture.StatusFailed))
	return &StageError{Stage: stage, Err: cause}
}

// apply persists patch and mirrors it on the in-memory record.
func (p *Pipeline) apply(ctx context.Context, rec *capture.Record, patch capture.Patch) error {
	if err := p.store.Merge(ctx, rec.ID, patch); err != nil {
		return fmt.Errorf("merge capture %s: %w", rec.ID, err)
	}
	capture.Apply(rec, patch, p.now().UTC())
	return nil
}
