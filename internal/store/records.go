package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/lifeos/internal/capture"
)

const insertCaptureSQL = `
INSERT INTO captures (id, user_id, raw_input, context, status, status_rank, actions_executed, enrichment, timeline, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,'[]'::jsonb,'{}'::jsonb,'{}'::jsonb,$7,$7)`

// Create inserts a new record.
func (s *Store) Create(ctx context.Context, rec *capture.Record) error {
	if rec.ID == "" || rec.UserID == "" {
		return fmt.Errorf("id and user_id are required")
	}
	rawBytes, err := json.Marshal(rec.Input)
	if err != nil {
		return fmt.Errorf("marshal raw input: %w", err)
	}
	ctxBytes, err := json.Marshal(rec.Context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, insertCaptureSQL,
		rec.ID, rec.UserID, rawBytes, ctxBytes, string(rec.Status), rec.Status.Rank(), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert capture: %w", err)
	}
	return nil
}

const selectCaptureSQL = `
SELECT id::text, user_id, raw_input, context, status, perception, classification, actions_executed, enrichment, timeline, created_at, updated_at
FROM captures`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*capture.Record, error) {
	var (
		rec                                             capture.Record
		status                                          string
		rawBytes, ctxBytes, actBytes, enrBytes, tlBytes []byte
		percBytes, classBytes                           []byte
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &rawBytes, &ctxBytes, &status, &percBytes, &classBytes,
		&actBytes, &enrBytes, &tlBytes, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Status = capture.Status(status)
	docs := []struct {
		raw []byte
		dst any
	}{
		{rawBytes, &rec.Input},
		{ctxBytes, &rec.Context},
		{actBytes, &rec.Actions},
		{enrBytes, &rec.Enrichment},
		{tlBytes, &rec.Timeline},
	}
	for _, d := range docs {
		if len(d.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(d.raw, d.dst); err != nil {
			return nil, fmt.Errorf("decode capture %s: %w", rec.ID, err)
		}
	}
	if len(percBytes) > 0 {
		rec.Perception = &capture.Perception{}
		if err := json.Unmarshal(percBytes, rec.Perception); err != nil {
			return nil, fmt.Errorf("decode perception: %w", err)
		}
	}
	if len(classBytes) > 0 {
		rec.Classification = &capture.Classification{}
		if err := json.Unmarshal(classBytes, rec.Classification); err != nil {
			return nil, fmt.Errorf("decode classification: %w", err)
		}
	}
	if rec.Actions == nil {
		rec.Actions = []capture.ActionOutcome{}
	}
	if rec.Enrichment == nil {
		rec.Enrichment = map[string]capture.AgentResult{}
	}
	if rec.Timeline == nil {
		rec.Timeline = map[string]time.Time{}
	}
	return &rec, nil
}

// Get loads a record by id.
func (s *Store) Get(ctx context.Context, id string) (*capture.Record, error) {
	rec, err := scanRecord(s.DB.QueryRowContext(ctx, selectCaptureSQL+`
WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get capture %s: %w", id, err)
	}
	return rec, nil
}

// mergeCaptureSQL applies a patch in one statement. Right-hand sides see the
// pre-update row, so:
//   - status advances only to a higher rank, never out of a terminal rank,
//     and partial_failure only from analyzed
//   - perception/classification keep the first value written
//   - actions append, enrichment overwrites per key
//   - timeline uses new || old so existing keys win
const mergeCaptureSQL = `
UPDATE captures SET
  status = CASE WHEN $2 <> '' AND $3 > status_rank AND status_rank < 2 AND ($2 <> 'partial_failure' OR status = 'analyzed')
           THEN $2 ELSE status END,
  status_rank = CASE WHEN $2 <> '' AND $3 > status_rank AND status_rank < 2 AND ($2 <> 'partial_failure' OR status = 'analyzed')
           THEN $3 ELSE status_rank END,
  perception = COALESCE(perception, $4::jsonb),
  classification = COALESCE(classification, $5::jsonb),
  actions_executed = actions_executed || $6::jsonb,
  enrichment = enrichment || $7::jsonb,
  timeline = $8::jsonb || timeline,
  updated_at = NOW()
WHERE id = $1
RETURNING status`

// nullableJSON returns an untyped nil for absent values so the driver sends NULL.
func nullableJSON(v any, isNil bool) (any, error) {
	if isNil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Merge applies p to the record.
func (s *Store) Merge(ctx context.Context, id string, p capture.Patch) error {
	status, rank := "", -1
	if p.Status != nil {
		status, rank = string(*p.Status), p.Status.Rank()
	}
	percBytes, err := nullableJSON(p.Perception, p.Perception == nil)
	if err != nil {
		return fmt.Errorf("marshal perception: %w", err)
	}
	classBytes, err := nullableJSON(p.Classification, p.Classification == nil)
	if err != nil {
		return fmt.Errorf("marshal classification: %w", err)
	}
	actions := p.AppendActions
	if actions == nil {
		actions = []capture.ActionOutcome{}
	}
	actBytes, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}
	enrichment := p.Enrichment
	if enrichment == nil {
		enrichment = map[string]capture.AgentResult{}
	}
	enrBytes, err := json.Marshal(enrichment)
	if err != nil {
		return fmt.Errorf("marshal enrichment: %w", err)
	}
	timeline := p.Timeline
	if timeline == nil {
		timeline = map[string]time.Time{}
	}
	tlBytes, err := json.Marshal(timeline)
	if err != nil {
		return fmt.Errorf("marshal timeline: %w", err)
	}

	var after string
	err = s.DB.QueryRowContext(ctx, mergeCaptureSQL, id, status, rank, percBytes, classBytes, actBytes, enrBytes, tlBytes).Scan(&after)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("merge capture %s: %w", id, err)
	}
	return nil
}

// ListStale returns ids stuck in status since before olderThan.
func (s *Store) ListStale(ctx context.Context, status capture.Status, olderThan time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id::text FROM captures
WHERE status = $1 AND updated_at < $2
ORDER BY updated_at
LIMIT $3`, string(status), olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale captures: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListRecent returns a user's newest records first.
func (s *Store) ListRecent(ctx context.Context, userID string, limit int) ([]*capture.Record, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, selectCaptureSQL+`
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list captures: %w", err)
	}
	defer rows.Close()
	var out []*capture.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
