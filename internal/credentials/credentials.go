// Package credentials stores connector tokens sealed with nacl/secretbox.
package credentials

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/nacl/secretbox"
)

var (
	ErrNotFound = errors.New("credentials: not found")
	ErrSealed   = errors.New("credentials: cannot open sealed token")
)

// Token is an OAuth-style credential for one connector.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// Expired reports whether the access token is past its expiry, with skew.
func (t Token) Expired(now time.Time) bool {
	return !t.Expiry.IsZero() && now.Add(30*time.Second).After(t.Expiry)
}

// Backend persists sealed blobs. *store.Store and *store.Memory satisfy it.
type Backend interface {
	LoadCredential(ctx context.Context, userID, provider string) ([]byte, bool, error)
	// UpdateCredential replaces the stored blob with fn(current). Concurrent
	// updates of one pair are serialized.
	UpdateCredential(ctx context.Context, userID, provider string, fn func(prev []byte, found bool) ([]byte, error)) error
}

// Refresher exchanges a refresh token for a new token.
type Refresher interface {
	Refresh(ctx context.Context, provider string, t Token) (Token, error)
}

type Option func(*Store)

func WithRefresher(r Refresher) Option { return func(s *Store) { s.refresher = r } }

func WithLogger(l *zap.Logger) Option { return func(s *Store) { s.logger = l } }

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

type Store struct {
	backend   Backend
	key       [32]byte
	refresher Refresher
	logger    *zap.Logger
	now       func() time.Time
}

// New derives the sealing key from secret.
func New(backend Backend, secret string, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, errors.New("credentials: backend required")
	}
	if len(secret) < 16 {
		return nil, errors.New("credentials: secret must be at least 16 characters")
	}
	s := &Store{backend: backend, key: sha256.Sum256([]byte(secret)), logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) seal(t Token) ([]byte, error) {
	plain, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plain, &nonce, &s.key), nil
}

func (s *Store) open(sealed []byte) (Token, error) {
	if len(sealed) < 24+secretbox.Overhead {
		return Token{}, ErrSealed
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, &s.key)
	if !ok {
		return Token{}, ErrSealed
	}
	var t Token
	if err := json.Unmarshal(plain, &t); err != nil {
		return Token{}, fmt.Errorf("decode token: %w", err)
	}
	return t, nil
}

// Load returns the stored token or ErrNotFound.
func (s *Store) Load(ctx context.Context, userID, provider string) (Token, error) {
	sealed, ok, err := s.backend.LoadCredential(ctx, userID, provider)
	if err != nil {
		return Token{}, err
	}
	if !ok {
		return Token{}, ErrNotFound
	}
	return s.open(sealed)
}

// Save stores t. An empty refresh token keeps the one already stored; the
// read and the write happen in one backend update.
func (s *Store) Save(ctx context.Context, userID, provider string, t Token) error {
	return s.backend.UpdateCredential(ctx, userID, provider, func(prev []byte, found bool) ([]byte, error) {
		next := t
		if next.RefreshToken == "" && found {
			old, err := s.open(prev)
			if err != nil {
				return nil, err
			}
			next.RefreshToken = old.RefreshToken
		}
		return s.seal(next)
	})
}

// AccessToken returns a usable access token, refreshing it when expired and
// a Refresher is configured.
func (s *Store) AccessToken(ctx context.Context, userID, provider string) (string, error) {
	t, err := s.Load(ctx, userID, provider)
	if err != nil {
		return "", err
	}
	if !t.Expired(s.now()) || s.refresher == nil || t.RefreshToken == "" {
		return t.AccessToken, nil
	}
	fresh, err := s.refresher.Refresh(ctx, provider, t)
	if err != nil {
		return "", fmt.Errorf("refresh %s token: %w", provider, err)
	}
	if err := s.Save(ctx, userID, provider, fresh); err != nil {
		return "", err
	}
	s.logger.Debug("refreshed connector token", zap.String("provider", provider), zap.String("user_id", userID))
	return fresh.AccessToken, nil
}
