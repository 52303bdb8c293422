package agents

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/lifeos/internal/capture"
	"github.com/mohammad-safakhou/lifeos/internal/inference"
)

// MaxResources caps suggested learning resources.
const MaxResources = 5

var learningKeywords = []string{"learn", "course", "tutorial", "study", "book", "guide", "documentation", "lecture"}

const resourcesSystem = `Suggest up to 5 high-quality learning resources (articles, docs, courses,
books, videos) for what the user captured. Only include resources you are confident exist, with
their canonical URL. Respond with JSON only.`

var resourcesSchema = &inference.Schema{
	Type: inference.TypeObject,
	Properties: map[string]*inference.Schema{
		"resources": {
			Type: inference.TypeArray,
			Items: &inference.Schema{
				Type: inference.TypeObject,
				Properties: map[string]*inference.Schema{
					"title": {Type: inference.TypeString},
					"url":   {Type: inference.TypeString},
					"note":  {Type: inference.TypeString},
					"kind":  {Type: inference.TypeString, Enum: []string{"article", "docs", "course", "book", "video"}},
				},
				Required: []string{"title", "url"},
			},
		},
	},
	Required: []string{"resources"},
}

// Resources finds learning material and, when a fetcher is configured,
// drops links that do not resolve.
type Resources struct{ deps Deps }

func (r *Resources) Name() string { return NameResources }

func (r *Resources) applies(v capture.View) bool {
	if v.Classification.Intent == capture.IntentLearning || v.Classification.Domain == capture.DomainLearning {
		return true
	}
	return containsAny(corpus(v), learningKeywords)
}

func (r *Resources) Process(ctx context.Context, v capture.View) (*capture.AgentResult, error) {
	if !r.applies(v) {
		return nil, nil
	}
	res, err := r.deps.Inference.Complete(ctx, inference.Request{
		Purpose: inference.PurposeEnrichment,
		System:  resourcesSystem,
		Prompt:  describe(v),
		Schema:  resourcesSchema,
	})
	if err != nil {
		return nil, err
	}
	var raw struct {
		Resources []capture.EnrichmentItem `json:"resources"`
	}
	if err := json.Unmarshal([]byte(inference.ExtractJSON(res.Text)), &raw); err != nil {
		r.deps.Logger.Warn("resources output unparseable", zap.String("capture_id", v.ID), zap.Error(err))
		return nil, nil
	}
	var items []capture.EnrichmentItem
	seen := map[string]bool{}
	for _, it := range raw.Resources {
		it.Title, it.URL = strings.TrimSpace(it.Title), strings.TrimSpace(it.URL)
		if it.Title == "" || !validURL(it.URL) || seen[it.URL] {
			continue
		}
		seen[it.URL] = true
		if it.Kind == "" {
			it.Kind = "article"
		}
		items = append(items, it)
		if len(items) == MaxResources {
			break
		}
	}
	items = r.verify(ctx, v.ID, items)
	if len(items) == 0 {
		return nil, nil
	}
	sources := make([]capture.Source, 0, len(items))
	for _, it := range items {
		sources = append(sources, capture.Source{Title: it.Title, URL: it.URL})
	}
	return &capture.AgentResult{Status: capture.AgentOK, Items: items, Sources: sources, ProducedAt: r.deps.Now().UTC()}, nil
}

// verify fetches each item concurrently and keeps the reachable ones in
// their original order.
func (r *Resources) verify(ctx context.Context, captureID string, items []capture.EnrichmentItem) []capture.EnrichmentItem {
	if r.deps.Fetcher == nil || len(items) == 0 {
		return items
	}
	keep := make([]bool, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(3)
	for i := range items {
		i := i
		g.Go(func() error {
			page, err := r.deps.Fetcher.Exec(gctx, items[i].URL)
			if err != nil || !page.OK() {
				return nil
			}
			keep[i] = true
			if items[i].Note == "" && page.Excerpt != "" {
				items[i].Note = truncate(page.Excerpt, 280)
			}
			return nil
		})
	}
	_ = g.Wait()
	var out []capture.EnrichmentItem
	for i, it := range items {
		if keep[i] {
			out = append(out, it)
		}
	}
	if dropped := len(items) - len(out); dropped > 0 {
		r.deps.Logger.Debug("dropped unreachable resources", zap.String("capture_id", captureID), zap.Int("dropped", dropped))
	}
	return out
}

func validURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
