// Package cache stores perception results keyed by a content fingerprint.
// Lookups never fail: backend errors degrade to a miss and writes to a no-op.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/mohammad-safakhou/lifeos/internal/capture"
)

// Cache is the fingerprint cache contract.
type Cache interface {
	// Get returns the entry for fp when it was stored no more than maxAge ago.
	Get(ctx context.Context, fp string, maxAge time.Duration) (capture.Perception, bool)
	Put(ctx context.Context, fp string, p capture.Perception)
}

// Entry is the stored form of a cached result.
type Entry struct {
	Perception capture.Perception `json:"perception"`
	StoredAt   time.Time          `json:"stored_at"`
}

// Fresh reports whether the entry is within maxAge of now.
func (e Entry) Fresh(now time.Time, maxAge time.Duration) bool {
	return maxAge > 0 && now.Sub(e.StoredAt) <= maxAge
}

// Fingerprint hashes raw input bytes.
func Fingerprint(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Nop never hits.
type Nop struct{}

func (Nop) Get(context.Context, string, time.Duration) (capture.Perception, bool) {
	return capture.Perception{}, false
}

func (Nop) Put(context.Context, string, capture.Perception) {}
