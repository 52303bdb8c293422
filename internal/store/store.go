package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/mohammad-safakhou/lifeos/internal/capture"
)

// ErrNotFound is returned when a capture does not exist.
var ErrNotFound = errors.New("store: not found")

// RecordStore persists capture records. Merge applies a capture.Patch
// atomically with the same rules as capture.Apply, so concurrent writers
// never overwrite each other's fields.
type RecordStore interface {
	Create(ctx context.Context, rec *capture.Record) error
	Get(ctx context.Context, id string) (*capture.Record, error)
	Merge(ctx context.Context, id string, p capture.Patch) error
	// ListStale returns ids in status whose last update is before olderThan.
	ListStale(ctx context.Context, status capture.Status, olderThan time.Time, limit int) ([]string, error)
	ListRecent(ctx context.Context, userID string, limit int) ([]*capture.Record, error)
}

// ActionItem is a locally persisted action produced by the router.
type ActionItem struct {
	ID        string
	UserID    string
	CaptureID string
	Kind      string
	Title     string
	Payload   map[string]any
	CreatedAt time.Time
}

// Store is the Postgres implementation.
type Store struct {
	DB *sql.DB
}

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }
