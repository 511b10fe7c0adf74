// Package store persists events, venues, tickets, orders and reminders.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/capitalize-ai/event-assistant/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrSoldOut is returned when a ticket type cannot cover an order.
	ErrSoldOut = errors.New("not enough tickets remaining")
	// ErrSlotTaken is returned when an event would overlap another event
	// at one of its places.
	ErrSlotTaken = errors.New("place already booked for that time")
)

// EventRepository stores events. CreateEvent and UpdateEvent refuse with
// ErrSlotTaken when the event's window overlaps another event sharing a
// place; the check and the write are atomic.
type EventRepository interface {
	CreateEvent(ctx context.Context, e *model.Event) (*model.Event, error)
	UpdateEvent(ctx context.Context, e *model.Event) (*model.Event, error)
	DeleteEvent(ctx context.Context, id int64) error
	GetEvent(ctx context.Context, id int64) (*model.Event, error)
	ListEventsByOwner(ctx context.Context, ownerID string) ([]model.Event, error)
	// ListEventsBetween returns events whose window intersects [start, end).
	ListEventsBetween(ctx context.Context, start, end time.Time) ([]model.Event, error)
	// ListUpcomingEvents returns events starting at or after from, soonest first.
	ListUpcomingEvents(ctx context.Context, from time.Time, limit int) ([]model.Event, error)
}

// PlaceRepository lists known venues.
type PlaceRepository interface {
	ListPlaces(ctx context.Context) ([]model.Place, error)
}

// TicketRepository reads ticket types.
type TicketRepository interface {
	ListTicketTypes(ctx context.Context, eventID int64) ([]model.TicketType, error)
	GetTicketType(ctx context.Context, id int64) (*model.TicketType, error)
}

// OrderRepository stores orders. CreateOrder reserves the tickets and
// CancelOrder releases them.
type OrderRepository interface {
	CreateOrder(ctx context.Context, o *model.Order) (*model.Order, error)
	CancelOrder(ctx context.Context, id string) error
}

// PaymentGateway issues checkout links.
type PaymentGateway interface {
	CreatePaymentLink(ctx context.Context, o *model.Order) (*model.PaymentLink, error)
}

// ReminderScheduler schedules event reminders.
type ReminderScheduler interface {
	ScheduleReminder(ctx context.Context, r *model.Reminder) (*model.Reminder, error)
}
