package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/lifeos/internal/capture"
	"github.com/mohammad-safakhou/lifeos/internal/store"
)

// ItemStore persists locally executed actions.
type ItemStore interface {
	SaveActionItem(ctx context.Context, it store.ActionItem) error
}

// Local records actions as rows in the action_items table.
type Local struct {
	items ItemStore
	now   func() time.Time
	newID func() string
}

func NewLocal(items ItemStore) *Local {
	return &Local{items: items, now: time.Now, newID: uuid.NewString}
}

func (l *Local) Invoke(ctx context.Context, inv Invocation) (Result, error) {
	if l.items == nil {
		return Result{}, errors.New("local executor: no item store")
	}
	title := itemTitle(inv.Args)
	if title == "" {
		return Result{}, fmt.Errorf("%s: missing title", inv.Action)
	}
	it := store.ActionItem{
		ID:        l.newID(),
		UserID:    inv.UserID,
		CaptureID: inv.CaptureID,
		Kind:      inv.Action,
		Title:     title,
		Payload:   inv.Args,
		CreatedAt: l.now().UTC(),
	}
	if err := l.items.SaveActionItem(ctx, it); err != nil {
		return Result{}, err
	}
	return Result{Status: capture.OutcomeSuccess, ExternalRef: it.ID}, nil
}

func itemTitle(args map[string]any) string {
	for _, k := range []string{"title", "item_name"} {
		if s, ok := args[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
