package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/lifeos/internal/agents"
	"github.com/mohammad-safakhou/lifeos/internal/capture"
	"github.com/mohammad-safakhou/lifeos/internal/dispatch"
)

// RegisterAgents subscribes each agent to capture.analyzed at its priority.
func (p *Pipeline) RegisterAgents(regs []agents.Registration) {
	for _, r := range regs {
		p.dispatcher.Subscribe(dispatch.EventCaptureAnalyzed, r.Agent.Name(), p.agentHandler(r.Agent), r.Priority)
	}
}

// agentHandler adapts an agent to the dispatcher. Results land in
// enrichment[name] through a single merge; a failure is recorded as an error
// entry and still reported to the dispatcher.
func (p *Pipeline) agentHandler(a agents.EnrichmentAgent) dispatch.Handler {
	name := a.Name()
	return func(ctx context.Context, payload any) error {
		v, ok := payload.(capture.View)
		if !ok {
			return fmt.Errorf("agent %s: unexpected payload %T", name, payload)
		}
		log := p.logger.With(zap.String("capture_id", v.ID), zap.String("agent", name))

		res, err := a.Process(ctx, v)
		if err != nil {
			p.metrics.EnrichmentRun(name, "error")
			entry := capture.AgentResult{Status: capture.AgentError, Error: err.Error(), ProducedAt: p.now().UTC()}
			patch := capture.Patch{Enrichment: map[string]capture.AgentResult{name: entry}}
			if merr := p.store.Merge(context.WithoutCancel(ctx), v.ID, patch); merr != nil {
				log.Warn("record enrichment failure", zap.Error(merr))
			}
			return err
		}
		if res == nil {
			p.metrics.EnrichmentRun(name, "skipped")
			log.Debug("agent skipped")
			return nil
		}

		out := *res
		if out.Status == "" {
			out.Status = capture.AgentOK
		}
		if out.ProducedAt.IsZero() {
			out.ProducedAt = p.now().UTC()
		}
		patch := capture.Patch{Enrichment: map[string]capture.AgentResult{name: out}}.
			Mark(capture.EnrichmentStage(name), out.ProducedAt)
		if err := p.store.Merge(ctx, v.ID, patch); err != nil {
			p.metrics.EnrichmentRun(name, "error")
			return fmt.Errorf("persist enrichment %s: %w", name, err)
		}
		p.metrics.EnrichmentRun(name, "ok")
		return nil
	}
}
