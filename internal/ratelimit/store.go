package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Window is the counter state of one key.
type Window struct {
	Count int64
	Start time.Time
}

// Store keeps fixed-window counters. Incr must be atomic per key.
type Store interface {
	// Incr starts a new window when the current one has elapsed, then
	// increments the counter.
	Incr(ctx context.Context, key string, now time.Time, window time.Duration) (Window, error)
	// Peek returns the counter without incrementing it.
	Peek(ctx context.Context, key string, now time.Time, window time.Duration) (Window, error)
}

type tracker struct {
	mu    sync.Mutex
	start time.Time
	count int64
	dead  bool // removed by Sweep; Incr must fetch a fresh tracker
}

func (t *tracker) expired(now time.Time, window time.Duration) bool {
	return t.start.IsZero() || now.After(t.start.Add(window))
}

// MemoryStore is a process-local Store. Entries are locked individually so
// different users never contend.
type MemoryStore struct {
	entries sync.Map // key -> *tracker
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Incr implements Store.
func (s *MemoryStore) Incr(_ context.Context, key string, now time.Time, window time.Duration) (Window, error) {
	var t *tracker
	for {
		v, _ := s.entries.LoadOrStore(key, &tracker{})
		t = v.(*tracker)
		t.mu.Lock()
		if !t.dead {
			break
		}
		t.mu.Unlock()
	}
	defer t.mu.Unlock()
	if t.expired(now, window) {
		t.start = now
		t.count = 0
	}
	t.count++
	return Window{Count: t.count, Start: t.start}, nil
}

// Peek implements Store.
func (s *MemoryStore) Peek(_ context.Context, key string, now time.Time, window time.Duration) (Window, error) {
	v, ok := s.entries.Load(key)
	if !ok {
		return Window{Start: now}, nil
	}
	t := v.(*tracker)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.expired(now, window) {
		return Window{Start: now}, nil
	}
	return Window{Count: t.count, Start: t.start}, nil
}

// Sweep drops counters whose window has elapsed and returns how many were
// removed. Without it the store keeps one counter per user and feature
// for the life of the process.
func (s *MemoryStore) Sweep(now time.Time, window time.Duration) int {
	removed := 0
	s.entries.Range(func(k, v any) bool {
		t := v.(*tracker)
		t.mu.Lock()
		if t.expired(now, window) {
			t.dead = true
			s.entries.CompareAndDelete(k, v)
			removed++
		}
		t.mu.Unlock()
		return true
	})
	return removed
}
