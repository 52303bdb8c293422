// Package classify turns extracted capture text into a structured decision.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/lifeos/internal/capture"
	"github.com/mohammad-safakhou/lifeos/internal/inference"
)

// Error is returned only when the inference call itself fails. Malformed
// model output never produces an Error.
type Error struct{ Err error }

func (e *Error) Error() string { return "classification: " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Classifier runs the classification stage.
type Classifier struct {
	svc    inference.Service
	logger *zap.Logger
}

func New(svc inference.Service, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{svc: svc, logger: logger}
}

var responseSchema = &inference.Schema{
	Type: inference.TypeObject,
	Properties: map[string]*inference.Schema{
		"domain":           {Type: inference.TypeString, Enum: enumValues(capture.Domains)},
		"intent":           {Type: inference.TypeString, Enum: enumValues(capture.Intents)},
		"priority":         {Type: inference.TypeInteger, Description: "1 (low) to 5 (urgent)"},
		"summary":          {Type: inference.TypeString, Description: "one line"},
		"tags":             {Type: inference.TypeArray, Items: &inference.Schema{Type: inference.TypeString}},
		"actionable_items": {Type: inference.TypeArray, Items: &inference.Schema{Type: inference.TypeString}},
	},
	Required: []string{"domain", "intent", "priority", "summary", "tags", "actionable_items"},
}

func enumValues[T ~string](vals []T) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = string(v)
	}
	return out
}

const systemPrompt = `You triage personal captures. Decide the life domain, the primary intent,
a priority from 1 to 5, a one-line summary, a few lowercase tags, and up to five
short verb-led actionable items. Use intent "event" for anything scheduled at a
time, "task" for todos, "purchase" for things to buy, "reference" for information
to keep, "learning" for material to study. Respond with JSON only.`

// Classify returns the classification for text. Unparseable output yields
// Unknown rather than an error.
func (c *Classifier) Classify(ctx context.Context, text string, cctx capture.Context) (capture.Classification, error) {
	var b strings.Builder
	b.WriteString("Capture content:\n")
	b.WriteString(text)
	if cctx.SourceApp != "" || cctx.WindowTitle != "" || cctx.URL != "" {
		b.WriteString("\n\nCaptured from:")
		for _, kv := range [][2]string{{"app", cctx.SourceApp}, {"window", cctx.WindowTitle}, {"url", cctx.URL}} {
			if kv[1] != "" {
				fmt.Fprintf(&b, "\n- %s: %s", kv[0], kv[1])
			}
		}
	}
	res, err := c.svc.Complete(ctx, inference.Request{
		Purpose: inference.PurposeClassification,
		System:  systemPrompt,
		Prompt:  b.String(),
		Schema:  responseSchema,
	})
	if err != nil {
		return capture.Classification{}, &Error{Err: err}
	}
	out, err := Parse(res.Text)
	if err != nil {
		c.logger.Warn("classification output unparseable, falling back to unknown", zap.Error(err))
		return Unknown(text), nil
	}
	return out, nil
}

type rawClassification struct {
	Domain          string          `json:"domain"`
	Intent          string          `json:"intent"`
	Priority        any             `json:"priority"`
	Summary         string          `json:"summary"`
	Tags            []string        `json:"tags"`
	ActionableItems json.RawMessage `json:"actionable_items"`
}

// Parse repairs and normalizes model output.
func Parse(text string) (capture.Classification, error) {
	var raw rawClassification
	dec := json.NewDecoder(strings.NewReader(inference.ExtractJSON(text)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return capture.Classification{}, fmt.Errorf("decode classification: %w", err)
	}
	return capture.Classification{
		Domain:          ParseDomain(raw.Domain),
		Intent:          ParseIntent(raw.Intent),
		Priority:        ClampPriority(priorityNumber(raw.Priority)),
		Summary:         truncate(collapseSpace(raw.Summary), maxSummaryRunes),
		Tags:            NormalizeTags(raw.Tags),
		ActionableItems: NormalizeItems(itemStrings(raw.ActionableItems)),
	}, nil
}

// priorityNumber accepts 4, 4.0 and "4".
func priorityNumber(v any) json.Number {
	switch p := v.(type) {
	case json.Number:
		return p
	case string:
		return json.Number(strings.TrimSpace(p))
	default:
		return ""
	}
}

// itemStrings accepts either ["a","b"] or [{"title":"a"}, ...].
func itemStrings(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var plain []string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}
	var objs []map[string]any
	if err := json.Unmarshal(raw, &objs); err != nil {
		return nil
	}
	out := make([]string, 0, len(objs))
	for _, o := range objs {
		for _, k := range []string{"title", "text", "item", "action"} {
			if s, ok := o[k].(string); ok {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// Unknown is the conservative fallback classification.
func Unknown(text string) capture.Classification {
	summary := collapseSpace(text)
	if i := strings.IndexAny(summary, ".!?\n"); i > 0 {
		summary = summary[:i]
	}
	return capture.Classification{
		Domain:          capture.DomainUnknown,
		Intent:          capture.IntentUnknown,
		Priority:        defaultPriority,
		Summary:         truncate(summary, maxSummaryRunes),
		Tags:            []string{},
		ActionableItems: []string{},
	}
}
