package cache

import (
	"context"
	"sync"
	"time"
)

// sweepEvery is the number of writes between scans for expired entries.
const sweepEvery = 128

type entry struct {
	value    []byte
	storedAt time.Time
	expires  time.Time
}

// MemoryOption configures a [Memory] store.
type MemoryOption func(*Memory)

// WithClock replaces time.Now. Intended for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// Memory is an in-process [Store]. Expired entries are removed when read
// and by a scan every [sweepEvery] writes, so keys that are never read
// again do not accumulate. It is safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
	writes  int
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty [Memory] store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Get implements [Store].
func (m *Memory) Get(ctx context.Context, key string, ttl time.Duration) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	now := m.now()
	if !now.Before(e.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	if ttl > 0 && now.Sub(e.storedAt) >= ttl {
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

// Set implements [Store].
func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	v := make([]byte, len(value))
	copy(v, value)

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.entries[key] = entry{value: v, storedAt: now, expires: now.Add(ttl)}
	m.writes++
	if m.writes%sweepEvery == 0 {
		m.sweep(now)
	}
	return nil
}

// sweep drops every entry expired at now. m.mu must be held.
func (m *Memory) sweep(now time.Time) {
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
		}
	}
}

// Len returns the number of stored entries, including expired ones not yet
// evicted.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
