// Package agents holds the secondary enrichment agents run after routing.
package agents

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/lifeos/internal/capture"
	"github.com/mohammad-safakhou/lifeos/internal/inference"
	"github.com/mohammad-safakhou/lifeos/tools/web_fetch"
	"github.com/mohammad-safakhou/lifeos/tools/web_search"
)

// Agent names, used as enrichment keys.
const (
	NameResearch  = "research"
	NameProactive = "proactive"
	NameResources = "resources"
)

// EnrichmentAgent decides whether it has something to add for a capture and
// produces it. A nil result with a nil error means the agent skipped.
type EnrichmentAgent interface {
	Name() string
	Process(ctx context.Context, v capture.View) (*capture.AgentResult, error)
}

// Registration pairs an agent with its dispatch priority.
type Registration struct {
	Agent    EnrichmentAgent
	Priority int
}

// Deps are the collaborators shared by the default agents. Searcher and
// Fetcher are optional.
type Deps struct {
	Inference inference.Service
	Searcher  web_search.WebSearcher
	Fetcher   web_fetch.WebFetcher
	Logger    *zap.Logger
	Now       func() time.Time
	// MaxResults caps search hits inlined into research prompts.
	MaxResults int
}

func (d Deps) normalize() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.MaxResults <= 0 {
		d.MaxResults = 5
	}
	return d
}

// Default returns research, proactive and resources in that priority order.
func Default(d Deps) []Registration {
	d = d.normalize()
	return []Registration{
		{Agent: &Research{deps: d}, Priority: 10},
		{Agent: &Proactive{deps: d}, Priority: 20},
		{Agent: &Resources{deps: d}, Priority: 30},
	}
}

// corpus is the lower-cased text keyword triggers match against.
func corpus(v capture.View) string {
	parts := []string{v.Classification.Summary, strings.Join(v.Classification.Tags, " "),
		strings.Join(v.Classification.ActionableItems, " "), v.Perception.Text()}
	return strings.ToLower(strings.Join(parts, "\n"))
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func describe(v capture.View) string {
	var b strings.Builder
	b.WriteString("Summary: ")
	b.WriteString(v.Classification.Summary)
	b.WriteString("\nDomain: ")
	b.WriteString(string(v.Classification.Domain))
	b.WriteString("\nIntent: ")
	b.WriteString(string(v.Classification.Intent))
	if len(v.Classification.Tags) > 0 {
		b.WriteString("\nTags: ")
		b.WriteString(strings.Join(v.Classification.Tags, ", "))
	}
	if len(v.Classification.ActionableItems) > 0 {
		b.WriteString("\nItems: ")
		b.WriteString(strings.Join(v.Classification.ActionableItems, "; "))
	}
	if text := v.Perception.Text(); text != "" {
		b.WriteString("\n\nCaptured content:\n")
		b.WriteString(truncate(text, 4000))
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// dedupeSources drops empty and repeated URLs, keeping first occurrences.
func dedupeSources(in []capture.Source) []capture.Source {
	seen := map[string]bool{}
	var out []capture.Source
	for _, s := range in {
		if s.URL == "" || seen[s.URL] {
			continue
		}
		seen[s.URL] = true
		out = append(out, s)
	}
	return out
}
