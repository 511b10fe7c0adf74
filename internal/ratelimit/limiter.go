// Package ratelimit enforces per-user, per-feature request quotas over a
// fixed one-minute window.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/event-assistant/pkg/logger"
	"github.com/capitalize-ai/event-assistant/pkg/metrics"
)

// Feature is an independently limited capability.
type Feature string

const (
	FeatureChat           Feature = "chat"
	FeatureEventAssistant Feature = "event_assistant"
	FeatureTranslation    Feature = "translation"
)

// DefaultWindow is the quota window length.
const DefaultWindow = time.Minute

var (
	// ErrLimited is returned by Allow when the quota is exhausted.
	ErrLimited = errors.New("rate limit exceeded")
	// ErrUnknownFeature is returned for a feature with no configured limit.
	ErrUnknownFeature = errors.New("unknown feature")
)

// DefaultLimits returns the per-minute ceilings used when none are configured.
func DefaultLimits() map[Feature]int {
	return map[Feature]int{
		FeatureChat:           30,
		FeatureEventAssistant: 10,
		FeatureTranslation:    20,
	}
}

// Status is the quota state of one (user, feature) pair.
type Status struct {
	Feature   Feature
	Limit     int
	Remaining int
	ResetAt   time.Time
	Allowed   bool
}

// RetryAfter returns how long a rejected caller should wait.
func (s Status) RetryAfter(now time.Time) time.Duration {
	if d := s.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Limiter applies per-feature ceilings on top of a Store.
type Limiter struct {
	store  Store
	limits map[Feature]int
	window time.Duration
	now    func() time.Time
	log    *logger.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithWindow overrides DefaultWindow.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) { l.window = d }
}

// NewLimiter creates a limiter. A nil limits map uses DefaultLimits.
func NewLimiter(store Store, limits map[Feature]int, log *logger.Logger, opts ...Option) *Limiter {
	if limits == nil {
		limits = DefaultLimits()
	}
	l := &Limiter{
		store:  store,
		limits: limits,
		window: DefaultWindow,
		now:    time.Now,
		log:    logger.OrNop(log).Named("ratelimit"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// sweeper is implemented by stores that keep counters in process.
type sweeper interface {
	Sweep(now time.Time, window time.Duration) int
}

// Sweep drops elapsed counters from in-process stores and returns how
// many were removed. Redis expires its keys by itself.
func (l *Limiter) Sweep(now time.Time) int {
	if sw, ok := l.store.(sweeper); ok {
		return sw.Sweep(now, l.window)
	}
	return 0
}

func key(userID string, feature Feature) string {
	return fmt.Sprintf("%s:%s", feature, userID)
}

// Allow counts a request and reports whether it is within quota. A
// rejected request returns ErrLimited together with its Status. Store
// failures fail open.
func (l *Limiter) Allow(ctx context.Context, userID string, feature Feature) (Status, error) {
	limit, ok := l.limits[feature]
	if !ok {
		return Status{Feature: feature}, ErrUnknownFeature
	}
	now := l.now()
	w, err := l.store.Incr(ctx, key(userID, feature), now, l.window)
	if err != nil {
		l.log.Warn("rate limit store unavailable, allowing request",
			zap.String("user_id", userID),
			zap.String("feature", string(feature)),
			zap.Error(err),
		)
		metrics.RecordUpstreamFailure("ratelimit_store")
		return Status{Feature: feature, Limit: limit, Remaining: limit, ResetAt: now.Add(l.window), Allowed: true}, nil
	}

	st := l.status(feature, limit, w)
	if w.Count > int64(limit) {
		st.Allowed = false
		metrics.RateLimitedTotal.WithLabelValues(string(feature)).Inc()
		l.log.Info("rate limited",
			zap.String("user_id", userID),
			zap.String("feature", string(feature)),
			zap.Time("reset_at", st.ResetAt),
		)
		return st, ErrLimited
	}
	st.Allowed = true
	return st, nil
}

// IsAllowed is Allow reduced to a boolean.
func (l *Limiter) IsAllowed(ctx context.Context, userID string, feature Feature) bool {
	st, err := l.Allow(ctx, userID, feature)
	return err == nil && st.Allowed
}

// Status returns the quota state without counting a request.
func (l *Limiter) Status(ctx context.Context, userID string, feature Feature) (Status, error) {
	limit, ok := l.limits[feature]
	if !ok {
		return Status{Feature: feature}, ErrUnknownFeature
	}
	w, err := l.store.Peek(ctx, key(userID, feature), l.now(), l.window)
	if err != nil {
		return Status{}, fmt.Errorf("peek %s: %w", feature, err)
	}
	st := l.status(feature, limit, w)
	st.Allowed = st.Remaining > 0
	return st, nil
}

func (l *Limiter) status(feature Feature, limit int, w Window) Status {
	remaining := limit - int(w.Count)
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		Feature:   feature,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   w.Start.Add(l.window),
	}
}
