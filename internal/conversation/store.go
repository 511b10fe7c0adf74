// Package conversation holds per-user pending operations between turns.
package conversation

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/event-assistant/internal/model"
	"github.com/capitalize-ai/event-assistant/pkg/logger"
)

// DefaultTTL is how long an untouched pending operation survives.
const DefaultTTL = 10 * time.Minute

// Store keeps at most one pending event and one pending order per user.
// Values are copied in and out, so callers never share state with the
// store. Lock serializes a user's turns; map access itself is safe for
// concurrent use without it.
type Store struct {
	locksMu sync.Mutex
	locks   map[string]*userLock

	events sync.Map // user id -> *model.PendingEvent
	orders sync.Map // user id -> *model.PendingOrder
	ttl    time.Duration
	now    func() time.Time
	log    *logger.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// NewStore creates a store. ttl <= 0 uses DefaultTTL.
func NewStore(ttl time.Duration, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{locks: make(map[string]*userLock), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.OrNop(s.log).Named("conversation")
	return s
}

// userLock is one user's turn lock. refs counts holders and waiters so
// the entry can be dropped once nobody needs it.
type userLock struct {
	mu   sync.Mutex
	refs int
}

// Lock acquires the user's turn lock and returns its release function.
// Each user has their own mutex; entries are removed when released by
// the last holder.
func (s *Store) Lock(userID string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &userLock{}
		s.locks[userID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return sync.OnceFunc(func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, userID)
		}
		s.locksMu.Unlock()
	})
}

func (s *Store) expired(touched, now time.Time) bool {
	return now.Sub(touched) > s.ttl
}

// PendingEvent returns a copy of the user's pending event. Expired entries
// are removed and reported as absent.
func (s *Store) PendingEvent(userID string) (*model.PendingEvent, bool) {
	v, ok := s.events.Load(userID)
	if !ok {
		return nil, false
	}
	p := v.(*model.PendingEvent)
	if s.expired(p.CreatedAt, s.now()) {
		s.events.CompareAndDelete(userID, v)
		s.log.Info("pending event expired", zap.String("user_id", userID))
		return nil, false
	}
	return p.Clone(), true
}

// PutPendingEvent stores p, replacing any previous pending event.
func (s *Store) PutPendingEvent(p *model.PendingEvent) {
	cp := p.Clone()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	s.events.Store(cp.UserID, cp)
}

// ClearPendingEvent removes the user's pending event and reports whether
// one existed.
func (s *Store) ClearPendingEvent(userID string) bool {
	_, ok := s.events.LoadAndDelete(userID)
	return ok
}

// PendingOrder returns a copy of the user's order negotiation. Expired
// entries are removed and reported as absent.
func (s *Store) PendingOrder(userID string) (*model.PendingOrder, bool) {
	v, ok := s.orders.Load(userID)
	if !ok {
		return nil, false
	}
	o := v.(*model.PendingOrder)
	if s.expired(o.UpdatedAt, s.now()) {
		s.orders.CompareAndDelete(userID, v)
		s.log.Info("pending order expired", zap.String("user_id", userID))
		return nil, false
	}
	return o.Clone(), true
}

// PutPendingOrder stores o and refreshes its idle timer.
func (s *Store) PutPendingOrder(o *model.PendingOrder) {
	cp := o.Clone()
	now := s.now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.orders.Store(cp.UserID, cp)
}

// ClearPendingOrder removes the user's order negotiation and reports
// whether one existed.
func (s *Store) ClearPendingOrder(userID string) bool {
	_, ok := s.orders.LoadAndDelete(userID)
	return ok
}

// Sweep removes every entry idle longer than the TTL at now and returns
// how many were removed.
func (s *Store) Sweep(now time.Time) int {
	removed := 0
	s.events.Range(func(k, v any) bool {
		if s.expired(v.(*model.PendingEvent).CreatedAt, now) && s.events.CompareAndDelete(k, v) {
			removed++
		}
		return true
	})
	s.orders.Range(func(k, v any) bool {
		if s.expired(v.(*model.PendingOrder).UpdatedAt, now) && s.orders.CompareAndDelete(k, v) {
			removed++
		}
		return true
	})
	if removed > 0 {
		s.log.Info("swept expired pending operations", zap.Int("count", removed))
	}
	return removed
}

// Len returns the number of stored pending events and orders, expired or
// not.
func (s *Store) Len() (events, orders int) {
	s.events.Range(func(_, _ any) bool { events++; return true })
	s.orders.Range(func(_, _ any) bool { orders++; return true })
	return events, orders
}
