// Package search keeps a full-text index of finalized captures.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/mapping"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/lifeos/internal/capture"
)

// ErrEmptyQuery is returned by Search for a blank query.
var ErrEmptyQuery = errors.New("search: empty query")

type document struct {
	UserID    string    `json:"user_id"`
	Summary   string    `json:"summary"`
	Text      string    `json:"text"`
	Tags      []string  `json:"tags"`
	Domain    string    `json:"domain"`
	Intent    string    `json:"intent"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Hit is one search result.
type Hit struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Summary string  `json:"summary"`
	Domain  string  `json:"domain"`
	Intent  string  `json:"intent"`
	Status  string  `json:"status"`
}

// Index wraps a bleve index of capture documents.
type Index struct {
	idx    bleve.Index
	logger *zap.Logger
}

func newMapping() mapping.IndexMapping {
	kw := bleve.NewTextFieldMapping()
	kw.Analyzer = keyword.Name

	text := bleve.NewTextFieldMapping()
	text.Store = false

	stored := bleve.NewTextFieldMapping()

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("user_id", kw)
	doc.AddFieldMappingsAt("domain", kw)
	doc.AddFieldMappingsAt("intent", kw)
	doc.AddFieldMappingsAt("status", kw)
	doc.AddFieldMappingsAt("summary", stored)
	doc.AddFieldMappingsAt("text", text)
	doc.AddFieldMappingsAt("tags", stored)
	doc.AddFieldMappingsAt("created_at", bleve.NewDateTimeFieldMapping())

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	return im
}

// Open opens the index at path, creating it when missing. An empty path
// gives an in-memory index.
func Open(path string, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(path) == "" {
		idx, err := bleve.NewMemOnly(newMapping())
		if err != nil {
			return nil, fmt.Errorf("create memory index: %w", err)
		}
		return &Index{idx: idx, logger: logger}, nil
	}
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, newMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	return &Index{idx: idx, logger: logger}, nil
}

func (i *Index) Close() error { return i.idx.Close() }

// Index adds or replaces the document for rec.
func (i *Index) Index(_ context.Context, rec *capture.Record) error {
	doc := document{UserID: rec.UserID, Status: string(rec.Status), CreatedAt: rec.CreatedAt}
	if rec.Perception != nil {
		doc.Text = rec.Perception.Text()
	} else {
		doc.Text = strings.TrimSpace(rec.Input.Text)
	}
	if c := rec.Classification; c != nil {
		doc.Summary = c.Summary
		doc.Tags = c.Tags
		doc.Domain = string(c.Domain)
		doc.Intent = string(c.Intent)
	}
	if err := i.idx.Index(rec.ID, doc); err != nil {
		return fmt.Errorf("index capture %s: %w", rec.ID, err)
	}
	return nil
}

// Search runs q against userID's captures only.
func (i *Index) Search(ctx context.Context, userID, q string, limit int) ([]Hit, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	owner := bleve.NewTermQuery(userID)
	owner.SetField("user_id")
	query := bleve.NewConjunctionQuery(owner, bleve.NewQueryStringQuery(q))

	req := bleve.NewSearchRequestOptions(query, limit, 0, false)
	req.Fields = []string{"summary", "domain", "intent", "status"}
	res, err := i.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	out := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		out = append(out, Hit{
			ID:      h.ID,
			Score:   h.Score,
			Summary: field(h.Fields, "summary"),
			Domain:  field(h.Fields, "domain"),
			Intent:  field(h.Fields, "intent"),
			Status:  field(h.Fields, "status"),
		})
	}
	i.logger.Debug("search", zap.String("user_id", userID), zap.Int("hits", len(out)))
	return out, nil
}

func field(fields map[string]interface{}, name string) string {
	s, _ := fields[name].(string)
	return s
}
