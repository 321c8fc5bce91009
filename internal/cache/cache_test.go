package cache_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/oratio/internal/cache"
)

func TestKey(t *testing.T) {
	t.Parallel()

	a := cache.Key("speech_analysis", "hello world", "intermediate", "v1")
	b := cache.Key("speech_analysis", "hello world", "intermediate", "v1")
	if a != b {
		t.Errorf("Key not deterministic: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "speech_analysis:") || !strings.HasSuffix(a, ":intermediate:v1") {
		t.Errorf("Key = %q, want kind prefix and tag suffix", a)
	}
	if a == cache.Key("speech_analysis", "hello world", "advanced", "v1") {
		t.Error("different tags produced the same key")
	}
	if strings.Contains(a, "hello") {
		t.Error("key should contain the hash, not the content")
	}
	if len(cache.Hash("x")) != 64 {
		t.Errorf("Hash length = %d, want 64", len(cache.Hash("x")))
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryTTL(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := cache.NewMemory(cache.WithClock(clock.Now))
	ctx := context.Background()

	if _, ok, err := m.Get(ctx, "k", 0); ok || err != nil {
		t.Fatalf("Get on empty store: ok=%v err=%v", ok, err)
	}
	if err := m.Set(ctx, "k", []byte(`{"a":1}`), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}

	v, ok, err := m.Get(ctx, "k", 0)
	if err != nil || !ok || string(v) != `{"a":1}` {
		t.Fatalf("Get = %q ok=%v err=%v", v, ok, err)
	}

	clock.Advance(30 * time.Minute)
	if _, ok, _ := m.Get(ctx, "k", 10*time.Minute); ok {
		t.Error("Get with ttl shorter than entry age should miss")
	}
	if _, ok, _ := m.Get(ctx, "k", 0); !ok {
		t.Error("entry should still be live under its own TTL")
	}

	clock.Advance(31 * time.Minute)
	if _, ok, _ := m.Get(ctx, "k", 0); ok {
		t.Error("entry should have expired")
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d, want expired entry evicted", m.Len())
	}
}

func TestMemoryDefaultTTLAndCopy(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(0, 0)}
	m := cache.NewMemory(cache.WithClock(clock.Now))
	ctx := context.Background()

	buf := []byte("value")
	if err := m.Set(ctx, "k", buf, 0); err != nil {
		t.Fatal(err)
	}
	buf[0] = 'X'
	v, _, _ := m.Get(ctx, "k", 0)
	if string(v) != "value" {
		t.Errorf("stored value aliased caller buffer: %q", v)
	}

	clock.Advance(cache.DefaultTTL - time.Second)
	if _, ok, _ := m.Get(ctx, "k", 0); !ok {
		t.Error("entry should live for DefaultTTL")
	}
	clock.Advance(2 * time.Second)
	if _, ok, _ := m.Get(ctx, "k", 0); ok {
		t.Error("entry should expire after DefaultTTL")
	}
}

func TestMemorySweepsUnreadKeys(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := cache.NewMemory(cache.WithClock(clock.Now))
	ctx := context.Background()

	if err := m.Set(ctx, "keep", []byte("1"), 2*365*24*time.Hour); err != nil {
		t.Fatal(err)
	}
	for i := range 10000 {
		clock.Advance(time.Hour)
		if err := m.Set(ctx, "seg:"+strconv.Itoa(i), []byte("x"), time.Minute); err != nil {
			t.Fatal(err)
		}
	}

	// Only the long-lived key and the writes since the last scan remain.
	if n := m.Len(); n > 128 {
		t.Errorf("Len = %d after 10000 short-lived writes, want expired keys swept", n)
	}
	if _, ok, _ := m.Get(ctx, "keep", 0); !ok {
		t.Error("live entry was swept")
	}
}

func TestMemoryCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := cache.NewMemory()
	if err := m.Set(ctx, "k", nil, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("Set err = %v, want context.Canceled", err)
	}
	if _, _, err := m.Get(ctx, "k", 0); !errors.Is(err, context.Canceled) {
		t.Errorf("Get err = %v, want context.Canceled", err)
	}
}

// slowStore blocks until the context is done.
type slowStore struct{}

func (slowStore) Get(ctx context.Context, _ string, _ time.Duration) ([]byte, bool, error) {
	<-ctx.Done()
	return nil, false, ctx.Err()
}

func (slowStore) Set(ctx context.Context, _ string, _ []byte, _ time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestWithTimeout(t *testing.T) {
	t.Parallel()

	s := cache.WithTimeout(slowStore{}, 20*time.Millisecond)
	start := time.Now()
	_, _, err := s.Get(context.Background(), "k", 0)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Get err = %v, want DeadlineExceeded", err)
	}
	if err := s.Set(context.Background(), "k", nil, 0); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Set err = %v, want DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeouts took %v", elapsed)
	}

	m := cache.NewMemory()
	if got := cache.WithTimeout(m, 0); got != cache.Store(m) {
		t.Error("WithTimeout(0) should return the store unchanged")
	}
}
