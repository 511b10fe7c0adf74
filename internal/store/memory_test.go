package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/event-assistant/internal/model"
)

var (
	_ EventRepository   = (*Memory)(nil)
	_ PlaceRepository   = (*Memory)(nil)
	_ TicketRepository  = (*Memory)(nil)
	_ OrderRepository   = (*Memory)(nil)
	_ ReminderScheduler = (*Memory)(nil)
	_ PaymentGateway    = (*LinkPaymentGateway)(nil)
)

func TestMemory_Events(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	start := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

	a, err := m.CreateEvent(ctx, &model.Event{OwnerID: "u1", Title: "A", StartTime: start, EndTime: start.Add(time.Hour), PlaceIDs: []int64{1}})
	require.NoError(t, err)
	b, err := m.CreateEvent(ctx, &model.Event{OwnerID: "u2", Title: "B", StartTime: start.Add(time.Hour), EndTime: start.Add(2 * time.Hour)})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	between, _ := m.ListEventsBetween(ctx, start.Add(30*time.Minute), start.Add(time.Hour))
	require.Len(t, between, 1)
	assert.Equal(t, "A", between[0].Title)

	owned, _ := m.ListEventsByOwner(ctx, "u2")
	require.Len(t, owned, 1)

	upcoming, _ := m.ListUpcomingEvents(ctx, start.Add(time.Minute), 5)
	require.Len(t, upcoming, 1)
	assert.Equal(t, "B", upcoming[0].Title)

	a.Title = "A2"
	updated, err := m.UpdateEvent(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "A2", updated.Title)

	require.NoError(t, m.DeleteEvent(ctx, b.ID))
	assert.ErrorIs(t, m.DeleteEvent(ctx, b.ID), ErrNotFound)
	_, err = m.GetEvent(ctx, b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, m.EventCount())
}

func TestMemory_CreateOrderReservesTickets(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	tt := m.AddTicketType(model.TicketType{EventID: 1, Name: "VIP", Price: 500000, Currency: "VND", Remaining: 3})

	_, err := m.CreateOrder(ctx, &model.Order{TicketTypeID: tt.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = m.CreateOrder(ctx, &model.Order{TicketTypeID: tt.ID, Quantity: 2})
	assert.ErrorIs(t, err, ErrSoldOut)

	left, _ := m.GetTicketType(ctx, tt.ID)
	assert.Equal(t, 1, left.Remaining)
	assert.Len(t, m.Orders(), 1)
}

func TestMemory_ConcurrentBookingsOfOneSlot(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	start := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var created, taken int
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.CreateEvent(ctx, &model.Event{
				OwnerID: fmt.Sprintf("u%d", i), Title: "Họp", StartTime: start, EndTime: start.Add(time.Hour), PlaceIDs: []int64{1},
			})
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, ErrSlotTaken) {
				taken++
			} else if err == nil {
				created++
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, created)
	assert.Equal(t, 19, taken)

	// Adjacent windows and other places are free.
	_, err := m.CreateEvent(ctx, &model.Event{StartTime: start.Add(time.Hour), EndTime: start.Add(2 * time.Hour), PlaceIDs: []int64{1}})
	require.NoError(t, err)
	other, err := m.CreateEvent(ctx, &model.Event{StartTime: start, EndTime: start.Add(time.Hour), PlaceIDs: []int64{2}})
	require.NoError(t, err)

	other.PlaceIDs = []int64{1}
	_, err = m.UpdateEvent(ctx, other)
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestMemory_CancelOrderReleasesTickets(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	tt := m.AddTicketType(model.TicketType{EventID: 1, Name: "VIP", Price: 500000, Currency: "VND", Remaining: 3})

	o, err := m.CreateOrder(ctx, &model.Order{TicketTypeID: tt.ID, Quantity: 2, Status: model.OrderStatusAwaitingPayment})
	require.NoError(t, err)
	require.NoError(t, m.CancelOrder(ctx, o.ID))
	require.NoError(t, m.CancelOrder(ctx, o.ID))

	left, _ := m.GetTicketType(ctx, tt.ID)
	assert.Equal(t, 3, left.Remaining)
	assert.Equal(t, model.OrderStatusCancelled, m.Orders()[0].Status)
	assert.ErrorIs(t, m.CancelOrder(ctx, "missing"), ErrNotFound)
}

func TestLinkPaymentGateway(t *testing.T) {
	g := NewLinkPaymentGateway("https://pay.example.com/", 0)
	link, err := g.CreatePaymentLink(context.Background(), &model.Order{ID: "o-1", Amount: 400000, Currency: "VND"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link.URL, "https://pay.example.com/checkout?"))
	assert.Contains(t, link.URL, "order=o-1")
	assert.Len(t, link.Reference, 16)

	_, err = NewLinkPaymentGateway("", 0).CreatePaymentLink(context.Background(), &model.Order{ID: "o-1"})
	assert.Error(t, err)
}
