package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/lifeos/internal/capture"
	"github.com/mohammad-safakhou/lifeos/internal/inference"
)

var researchKeywords = []string{"research", "compare", "comparison", "review", "how to", "what is",
	"learn about", "best ", " vs ", "versus", "alternatives", "pros and cons"}

const researchSystem = `You research a topic the user captured. Give a concise, factual briefing of
at most 6 sentences covering what matters for the user's decision. Cite sources.`

// Research produces a grounded briefing on the capture's topic.
type Research struct{ deps Deps }

func (r *Research) Name() string { return NameResearch }

func (r *Research) applies(v capture.View) bool {
	switch v.Classification.Intent {
	case capture.IntentLearning, capture.IntentReference, capture.IntentPurchase:
		return true
	}
	return containsAny(corpus(v), researchKeywords)
}

func (r *Research) Process(ctx context.Context, v capture.View) (*capture.AgentResult, error) {
	if !r.applies(v) {
		return nil, nil
	}
	prompt := describe(v)
	var sources []capture.Source
	if r.deps.Searcher != nil && strings.TrimSpace(v.Classification.Summary) != "" {
		hits, err := r.deps.Searcher.Discover(ctx, v.Classification.Summary, r.deps.MaxResults)
		if err != nil {
			r.deps.Logger.Warn("research search failed", zap.String("capture_id", v.ID), zap.Error(err))
		}
		if len(hits) > 0 {
			var b strings.Builder
			b.WriteString(prompt)
			b.WriteString("\n\nSearch results:")
			for i, h := range hits {
				fmt.Fprintf(&b, "\n[%d] %s (%s): %s", i+1, h.Title, h.URL, h.Snippet)
				sources = append(sources, capture.Source{Title: h.Title, URL: h.URL})
			}
			prompt = b.String()
		}
	}
	res, err := r.deps.Inference.Complete(ctx, inference.Request{
		Purpose:   inference.PurposeEnrichment,
		System:    researchSystem,
		Prompt:    prompt,
		Grounding: true,
	})
	if err != nil {
		return nil, err
	}
	summary := strings.TrimSpace(res.Text)
	if summary == "" {
		return nil, nil
	}
	return &capture.AgentResult{
		Status:     capture.AgentOK,
		Summary:    truncate(summary, 2000),
		Sources:    dedupeSources(append(res.Sources, sources...)),
		ProducedAt: r.deps.Now().UTC(),
	}, nil
}
