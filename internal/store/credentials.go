package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const selectCredential = `
SELECT sealed FROM connector_credentials WHERE user_id = $1 AND provider = $2`

const upsertCredential = `
INSERT INTO connector_credentials (user_id, provider, sealed, updated_at)
VALUES ($1,$2,$3,NOW())
ON CONFLICT (user_id, provider) DO UPDATE SET
  sealed = EXCLUDED.sealed,
  updated_at = NOW()`

func loadCredential(ctx context.Context, q queryer, userID, provider string) ([]byte, bool, error) {
	var sealed []byte
	err := q.QueryRowContext(ctx, selectCredential, userID, provider).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load credential: %w", err)
	}
	return sealed, true, nil
}

// LoadCredential returns the sealed token blob for a user/provider pair.
func (s *Store) LoadCredential(ctx context.Context, userID, provider string) ([]byte, bool, error) {
	return loadCredential(ctx, s.DB, userID, provider)
}

// SaveCredential upserts a sealed token blob.
func (s *Store) SaveCredential(ctx context.Context, userID, provider string, sealed []byte) error {
	if _, err := s.DB.ExecContext(ctx, upsertCredential, userID, provider, sealed); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// UpdateCredential replaces the blob with fn(current) inside one transaction.
// A transaction-scoped advisory lock on the pair serializes concurrent
// updates, including the first insert when no row exists yet.
func (s *Store) UpdateCredential(ctx context.Context, userID, provider string, fn func(prev []byte, found bool) ([]byte, error)) (err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin credential update: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2))`, userID, provider); err != nil {
		return fmt.Errorf("lock credential: %w", err)
	}
	prev, found, err := loadCredential(ctx, tx, userID, provider)
	if err != nil {
		return err
	}
	next, err := fn(prev, found)
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, upsertCredential, userID, provider, next); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit credential update: %w", err)
	}
	return nil
}
