package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/event-assistant/internal/model"
)

// Memory is an in-process implementation of every repository. It backs
// development runs and tests.
type Memory struct {
	mu        sync.RWMutex
	nextID    int64
	events    map[int64]model.Event
	places    []model.Place
	tickets   map[int64]model.TicketType
	orders    []model.Order
	reminders []model.Reminder
	now       func() time.Time
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		events:  make(map[int64]model.Event),
		tickets: make(map[int64]model.TicketType),
		now:     time.Now,
	}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

// AddPlace seeds a venue and returns it with its id.
func (m *Memory) AddPlace(p model.Place) model.Place {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		p.ID = m.id()
	}
	m.places = append(m.places, p)
	return p
}

// AddTicketType seeds a ticket type and returns it with its id.
func (m *Memory) AddTicketType(t model.TicketType) model.TicketType {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == 0 {
		t.ID = m.id()
	}
	m.tickets[t.ID] = t
	return t
}

func cloneEvent(e model.Event) model.Event {
	e.PlaceIDs = append([]int64(nil), e.PlaceIDs...)
	return e
}

// CreateEvent implements EventRepository.
func (m *Memory) CreateEvent(_ context.Context, e *model.Event) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slotTaken(e, 0) {
		return nil, ErrSlotTaken
	}
	ev := cloneEvent(*e)
	ev.ID = m.id()
	ev.CreatedAt = m.now()
	ev.UpdatedAt = ev.CreatedAt
	m.events[ev.ID] = ev
	out := cloneEvent(ev)
	return &out, nil
}

// UpdateEvent implements EventRepository.
func (m *Memory) UpdateEvent(_ context.Context, e *model.Event) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.events[e.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if m.slotTaken(e, e.ID) {
		return nil, ErrSlotTaken
	}
	ev := cloneEvent(*e)
	ev.CreatedAt = old.CreatedAt
	ev.UpdatedAt = m.now()
	m.events[ev.ID] = ev
	out := cloneEvent(ev)
	return &out, nil
}

// slotTaken reports whether e overlaps a stored event other than
// exclude at a shared place. Callers hold m.mu.
func (m *Memory) slotTaken(e *model.Event, exclude int64) bool {
	if len(e.PlaceIDs) == 0 {
		return false
	}
	for id, ev := range m.events {
		if id == exclude || !ev.SharesPlace(e.PlaceIDs) {
			continue
		}
		if e.StartTime.Before(ev.EndTime) && ev.StartTime.Before(e.EndTime) {
			return true
		}
	}
	return false
}

// DeleteEvent implements EventRepository.
func (m *Memory) DeleteEvent(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return ErrNotFound
	}
	delete(m.events, id)
	return nil
}

// GetEvent implements EventRepository.
func (m *Memory) GetEvent(_ context.Context, id int64) (*model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ev, ok := m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneEvent(ev)
	return &out, nil
}

func (m *Memory) filterEvents(keep func(model.Event) bool) []model.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Event
	for _, ev := range m.events {
		if keep(ev) {
			out = append(out, cloneEvent(ev))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// ListEventsByOwner implements EventRepository.
func (m *Memory) ListEventsByOwner(_ context.Context, ownerID string) ([]model.Event, error) {
	return m.filterEvents(func(e model.Event) bool { return e.OwnerID == ownerID }), nil
}

// ListEventsBetween implements EventRepository.
func (m *Memory) ListEventsBetween(_ context.Context, start, end time.Time) ([]model.Event, error) {
	return m.filterEvents(func(e model.Event) bool {
		return e.StartTime.Before(end) && start.Before(e.EndTime)
	}), nil
}

// ListUpcomingEvents implements EventRepository.
func (m *Memory) ListUpcomingEvents(_ context.Context, from time.Time, limit int) ([]model.Event, error) {
	out := m.filterEvents(func(e model.Event) bool { return !e.StartTime.Before(from) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListPlaces implements PlaceRepository.
func (m *Memory) ListPlaces(_ context.Context) ([]model.Place, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Place(nil), m.places...), nil
}

// ListTicketTypes implements TicketRepository.
func (m *Memory) ListTicketTypes(_ context.Context, eventID int64) ([]model.TicketType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.TicketType
	for _, t := range m.tickets {
		if t.EventID == eventID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetTicketType implements TicketRepository.
func (m *Memory) GetTicketType(_ context.Context, id int64) (*model.TicketType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

// CreateOrder implements OrderRepository.
func (m *Memory) CreateOrder(_ context.Context, o *model.Order) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[o.TicketTypeID]
	if !ok {
		return nil, ErrNotFound
	}
	if t.Remaining < o.Quantity {
		return nil, ErrSoldOut
	}
	t.Remaining -= o.Quantity
	m.tickets[t.ID] = t

	out := *o
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	out.CreatedAt = m.now()
	m.orders = append(m.orders, out)
	return &out, nil
}

// CancelOrder implements OrderRepository. Cancelling twice is a no-op.
func (m *Memory) CancelOrder(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.orders {
		o := &m.orders[i]
		if o.ID != id {
			continue
		}
		if o.Status == model.OrderStatusCancelled {
			return nil
		}
		o.Status = model.OrderStatusCancelled
		if t, ok := m.tickets[o.TicketTypeID]; ok {
			t.Remaining += o.Quantity
			m.tickets[t.ID] = t
		}
		return nil
	}
	return ErrNotFound
}

// ScheduleReminder implements ReminderScheduler.
func (m *Memory) ScheduleReminder(_ context.Context, r *model.Reminder) (*model.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := *r
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	m.reminders = append(m.reminders, out)
	return &out, nil
}

// Orders returns every stored order.
func (m *Memory) Orders() []model.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Order(nil), m.orders...)
}

// Reminders returns every scheduled reminder.
func (m *Memory) Reminders() []model.Reminder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Reminder(nil), m.reminders...)
}

// EventCount returns the number of stored events.
func (m *Memory) EventCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}
