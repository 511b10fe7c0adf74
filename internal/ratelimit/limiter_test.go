package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newClock() *clock {
	return &clock{t: time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)}
}

func TestAllow_RejectsAfterLimitAndResets(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	l := NewLimiter(NewMemoryStore(), map[Feature]int{FeatureChat: 3}, nil, WithClock(clk.Now))

	for i := 0; i < 3; i++ {
		st, err := l.Allow(ctx, "u1", FeatureChat)
		require.NoError(t, err)
		assert.True(t, st.Allowed)
		assert.Equal(t, 2-i, st.Remaining)
	}

	st, err := l.Allow(ctx, "u1", FeatureChat)
	assert.ErrorIs(t, err, ErrLimited)
	assert.False(t, st.Allowed)
	assert.Equal(t, 0, st.Remaining)
	assert.Equal(t, 3, st.Limit)
	assert.Equal(t, clk.Now().Add(time.Minute), st.ResetAt)
	assert.Equal(t, time.Minute, st.RetryAfter(clk.Now()))

	// Exactly at the boundary the window is still current.
	clk.Advance(time.Minute)
	_, err = l.Allow(ctx, "u1", FeatureChat)
	assert.ErrorIs(t, err, ErrLimited)

	clk.Advance(time.Millisecond)
	st, err = l.Allow(ctx, "u1", FeatureChat)
	require.NoError(t, err)
	assert.True(t, st.Allowed)
	assert.Equal(t, 2, st.Remaining)
}

func TestAllow_FeaturesAndUsersAreIndependent(t *testing.T) {
	ctx := context.Background()
	l := NewLimiter(NewMemoryStore(), map[Feature]int{FeatureChat: 1, FeatureTranslation: 1}, nil)

	assert.True(t, l.IsAllowed(ctx, "u1", FeatureChat))
	assert.False(t, l.IsAllowed(ctx, "u1", FeatureChat))
	assert.True(t, l.IsAllowed(ctx, "u1", FeatureTranslation))
	assert.True(t, l.IsAllowed(ctx, "u2", FeatureChat))
}

func TestAllow_UnknownFeature(t *testing.T) {
	l := NewLimiter(NewMemoryStore(), nil, nil)
	_, err := l.Allow(context.Background(), "u1", Feature("billing"))
	assert.ErrorIs(t, err, ErrUnknownFeature)
}

func TestAllow_Concurrent(t *testing.T) {
	ctx := context.Background()
	l := NewLimiter(NewMemoryStore(), map[Feature]int{FeatureChat: 50}, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.IsAllowed(ctx, "u1", FeatureChat) {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}

func TestStatus_DoesNotCount(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	l := NewLimiter(NewMemoryStore(), map[Feature]int{FeatureEventAssistant: 2}, nil, WithClock(clk.Now))

	st, err := l.Status(ctx, "u1", FeatureEventAssistant)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Remaining)

	_, err = l.Allow(ctx, "u1", FeatureEventAssistant)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		st, err = l.Status(ctx, "u1", FeatureEventAssistant)
		require.NoError(t, err)
		assert.Equal(t, 1, st.Remaining)
		assert.True(t, st.Allowed)
	}

	clk.Advance(2 * time.Minute)
	st, err = l.Status(ctx, "u1", FeatureEventAssistant)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Remaining)
}

type failingStore struct{}

func (failingStore) Incr(context.Context, string, time.Time, time.Duration) (Window, error) {
	return Window{}, errors.New("connection refused")
}

func (failingStore) Peek(context.Context, string, time.Time, time.Duration) (Window, error) {
	return Window{}, errors.New("connection refused")
}

func TestAllow_StoreFailureFailsOpen(t *testing.T) {
	l := NewLimiter(failingStore{}, map[Feature]int{FeatureChat: 1}, nil)
	for i := 0; i < 3; i++ {
		st, err := l.Allow(context.Background(), "u1", FeatureChat)
		require.NoError(t, err)
		assert.True(t, st.Allowed)
	}

	_, err := l.Status(context.Background(), "u1", FeatureChat)
	assert.Error(t, err)
}

func TestRedisStore_UnreachableFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	l := NewLimiter(NewRedisStore(client, ""), map[Feature]int{FeatureChat: 1}, nil)
	assert.True(t, l.IsAllowed(context.Background(), "u1", FeatureChat))
}

func TestMemoryStore_Sweep(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

	_, _ = s.Incr(ctx, "a", now, time.Minute)
	_, _ = s.Incr(ctx, "b", now.Add(50*time.Second), time.Minute)

	assert.Equal(t, 1, s.Sweep(now.Add(61*time.Second), time.Minute))
	w, err := s.Peek(ctx, "b", now.Add(61*time.Second), time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, w.Count)
}

func TestLimiter_Sweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	clock := now
	store := NewMemoryStore()
	l := NewLimiter(store, map[Feature]int{FeatureChat: 2, FeatureTranslation: 2}, nil,
		WithClock(func() time.Time { return clock }))

	for _, u := range []string{"u1", "u2", "u3"} {
		_, err := l.Allow(ctx, u, FeatureChat)
		require.NoError(t, err)
	}
	_, err := l.Allow(ctx, "u1", FeatureTranslation)
	require.NoError(t, err)

	assert.Zero(t, l.Sweep(now.Add(30*time.Second)))
	assert.Equal(t, 4, l.Sweep(now.Add(2*time.Minute)))
	assert.Zero(t, l.Sweep(now.Add(2*time.Minute)))

	// A swept user starts a fresh window.
	clock = now.Add(2 * time.Minute)
	st, err := l.Allow(ctx, "u1", FeatureChat)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Remaining)
}

func TestLimiter_SweepWithoutInProcessStore(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()
	l := NewLimiter(NewRedisStore(client, ""), nil, nil)
	assert.Zero(t, l.Sweep(time.Now()))
}

func TestMemoryStore_SweepRacingIncr(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	later := now.Add(2 * time.Minute)
	for i := 0; i < 50; i++ {
		_, _ = s.Incr(ctx, fmt.Sprintf("k%d", i), now, time.Minute)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.Sweep(later, time.Minute)
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_, _ = s.Incr(ctx, fmt.Sprintf("k%d", i), later, time.Minute)
		}
	}()
	wg.Wait()

	// Every post-sweep increment landed on a live counter.
	for i := 0; i < 50; i++ {
		w, err := s.Peek(ctx, fmt.Sprintf("k%d", i), later, time.Minute)
		require.NoError(t, err)
		assert.EqualValues(t, 1, w.Count)
	}
}

func TestWindowStart(t *testing.T) {
	now := time.Date(2025, 1, 15, 9, 0, 30, 0, time.UTC)
	assert.Equal(t, now.Add(-20*time.Second), windowStart(now, time.Minute, 40_000))
	assert.Equal(t, now, windowStart(now, time.Minute, -2))
}
