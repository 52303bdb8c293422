package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// SaveActionItem persists an item created by the local executor.
func (s *Store) SaveActionItem(ctx context.Context, it ActionItem) error {
	if it.ID == "" || it.Kind == "" {
		return fmt.Errorf("id and kind are required")
	}
	payload, err := json.Marshal(it.Payload)
	if err != nil {
		return fmt.Errorf("marshal action item payload: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO action_items (id, user_id, capture_id, kind, title, payload, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO NOTHING`, it.ID, it.UserID, it.CaptureID, it.Kind, it.Title, payload, it.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert action item: %w", err)
	}
	return nil
}

// ListActionItems returns items created for a capture.
func (s *Store) ListActionItems(ctx context.Context, captureID string) ([]ActionItem, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id::text, user_id, capture_id::text, kind, title, payload, created_at
FROM action_items
WHERE capture_id = $1
ORDER BY created_at`, captureID)
	if err != nil {
		return nil, fmt.Errorf("list action items: %w", err)
	}
	defer rows.Close()
	var out []ActionItem
	for rows.Next() {
		var (
			it           ActionItem
			payloadBytes []byte
		)
		if err := rows.Scan(&it.ID, &it.UserID, &it.CaptureID, &it.Kind, &it.Title, &payloadBytes, &it.CreatedAt); err != nil {
			return nil, err
		}
		if len(payloadBytes) > 0 {
			_ = json.Unmarshal(payloadBytes, &it.Payload)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
