package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mohammad-safakhou/lifeos/internal/capture"
)

type credKey struct{ user, provider string }

// Memory is an in-process store used by tests and single-node runs without
// Postgres. Every read returns a clone.
type Memory struct {
	mu      sync.Mutex
	records map[string]*capture.Record
	items   []ActionItem
	creds   map[credKey][]byte
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		records: map[string]*capture.Record{},
		creds:   map[credKey][]byte{},
		now:     time.Now,
	}
}

func (m *Memory) Create(_ context.Context, rec *capture.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec.Clone()
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*capture.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *Memory) Merge(_ context.Context, id string, p capture.Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	capture.Apply(rec, p, m.now())
	return nil
}

func (m *Memory) ListStale(_ context.Context, status capture.Status, olderThan time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var recs []*capture.Record
	for _, r := range m.records {
		if r.Status == status && r.UpdatedAt.Before(olderThan) {
			recs = append(recs, r)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].UpdatedAt.Before(recs[j].UpdatedAt) })
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out, nil
}

func (m *Memory) ListRecent(_ context.Context, userID string, limit int) ([]*capture.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*capture.Record
	for _, r := range m.records {
		if r.UserID == userID {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) SaveActionItem(_ context.Context, it ActionItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.ID == it.ID {
			return nil
		}
	}
	m.items = append(m.items, it)
	return nil
}

func (m *Memory) ListActionItems(_ context.Context, captureID string) ([]ActionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ActionItem
	for _, it := range m.items {
		if it.CaptureID == captureID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *Memory) LoadCredential(_ context.Context, userID, provider string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.creds[credKey{userID, provider}]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (m *Memory) SaveCredential(_ context.Context, userID, provider string, sealed []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[credKey{userID, provider}] = append([]byte(nil), sealed...)
	return nil
}

// UpdateCredential applies fn to the current blob under the store lock.
func (m *Memory) UpdateCredential(_ context.Context, userID, provider string, fn func(prev []byte, found bool) ([]byte, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := credKey{userID, provider}
	prev, found := m.creds[key]
	next, err := fn(append([]byte(nil), prev...), found)
	if err != nil {
		return err
	}
	m.creds[key] = append([]byte(nil), next...)
	return nil
}

var (
	_ RecordStore = (*Store)(nil)
	_ RecordStore = (*Memory)(nil)
)
