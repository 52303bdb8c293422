package agents

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/lifeos/internal/capture"
	"github.com/mohammad-safakhou/lifeos/internal/inference"
)

// MaxTips caps proactive suggestions.
const MaxTips = 3

const proactiveSystem = `You are a thoughtful assistant. Given something the user captured, suggest up
to 3 short, concrete tips that help them follow through (preparation, reminders, things to
check). Respond with JSON only.`

var tipsSchema = &inference.Schema{
	Type: inference.TypeObject,
	Properties: map[string]*inference.Schema{
		"tips": {
			Type: inference.TypeArray,
			Items: &inference.Schema{
				Type: inference.TypeObject,
				Properties: map[string]*inference.Schema{
					"title": {Type: inference.TypeString},
					"note":  {Type: inference.TypeString},
				},
				Required: []string{"title"},
			},
		},
	},
	Required: []string{"tips"},
}

// Proactive suggests follow-through tips for actionable captures.
type Proactive struct{ deps Deps }

func (p *Proactive) Name() string { return NameProactive }

func (p *Proactive) applies(v capture.View) bool {
	switch v.Classification.Intent {
	case capture.IntentEvent, capture.IntentTask, capture.IntentPurchase:
		return true
	}
	return v.Classification.Priority >= 4
}

func (p *Proactive) Process(ctx context.Context, v capture.View) (*capture.AgentResult, error) {
	if !p.applies(v) {
		return nil, nil
	}
	res, err := p.deps.Inference.Complete(ctx, inference.Request{
		Purpose: inference.PurposeEnrichment,
		System:  proactiveSystem,
		Prompt:  describe(v),
		Schema:  tipsSchema,
	})
	if err != nil {
		return nil, err
	}
	var raw struct {
		Tips []struct {
			Title string `json:"title"`
			Note  string `json:"note"`
		} `json:"tips"`
	}
	if err := json.Unmarshal([]byte(inference.ExtractJSON(res.Text)), &raw); err != nil {
		p.deps.Logger.Warn("proactive output unparseable", zap.String("capture_id", v.ID), zap.Error(err))
		return nil, nil
	}
	var items []capture.EnrichmentItem
	for _, t := range raw.Tips {
		title := strings.TrimSpace(t.Title)
		if title == "" {
			continue
		}
		items = append(items, capture.EnrichmentItem{Title: truncate(title, 120), Note: strings.TrimSpace(t.Note), Kind: "tip"})
		if len(items) == MaxTips {
			break
		}
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &capture.AgentResult{Status: capture.AgentOK, Items: items, ProducedAt: p.deps.Now().UTC()}, nil
}
