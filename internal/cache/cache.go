// Package cache provides the content-addressed key/value store used to avoid
// repeating AI calls for identical inputs.
//
// Values are opaque JSON bytes. Keys are derived from content hashes plus
// semantic tags (type, version, user level) via [Key], never from object
// identity. Concurrent writers for the same key are harmless: every value is
// a pure function of its key, so the last write wins.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// DefaultTTL is the lifetime of cached AI results.
const DefaultTTL = 6 * time.Hour

// Store is a keyed byte store with per-entry TTL.
type Store interface {
	// Get returns the value for key. ok is false on a miss or when the entry
	// is older than ttl (ttl <= 0 disables the age check).
	Get(ctx context.Context, key string, ttl time.Duration) (value []byte, ok bool, err error)

	// Set stores value under key for ttl (ttl <= 0 uses [DefaultTTL]).
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Hash returns the hex SHA-256 of s.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Key joins a content hash of content with semantic tags:
//
//	Key("speech_analysis", text, "intermediate", "v2")
//	  -> "speech_analysis:<sha256(text)>:intermediate:v2"
func Key(kind, content string, tags ...string) string {
	parts := append([]string{kind, Hash(content)}, tags...)
	return strings.Join(parts, ":")
}

// timeoutStore bounds every call of the wrapped store.
type timeoutStore struct {
	next    Store
	timeout time.Duration
}

// WithTimeout wraps s so that every Get and Set is cancelled after d.
func WithTimeout(s Store, d time.Duration) Store {
	if d <= 0 {
		return s
	}
	return &timeoutStore{next: s, timeout: d}
}

func (t *timeoutStore) Get(ctx context.Context, key string, ttl time.Duration) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	v, ok, err := t.next.Get(ctx, key, ttl)
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %q: %w", key, err)
	}
	return v, ok, nil
}

func (t *timeoutStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	if err := t.next.Set(ctx, key, value, ttl); err != nil {
		return fmt.Errorf("cache: set %q: %w", key, err)
	}
	return nil
}
