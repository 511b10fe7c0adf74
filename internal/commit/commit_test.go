package commit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/event-assistant/internal/model"
	"github.com/capitalize-ai/event-assistant/internal/store"
)

var now = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

type panickyReminders struct{}

func (panickyReminders) ScheduleReminder(context.Context, *model.Reminder) (*model.Reminder, error) {
	panic("scheduler exploded")
}

type failingReminders struct{}

func (failingReminders) ScheduleReminder(context.Context, *model.Reminder) (*model.Reminder, error) {
	return nil, errors.New("queue unavailable")
}

type failingPayments struct{}

func (failingPayments) CreatePaymentLink(context.Context, *model.Order) (*model.PaymentLink, error) {
	return nil, errors.New("gateway timeout")
}

type failingEvents struct{ store.EventRepository }

func (failingEvents) CreateEvent(context.Context, *model.Event) (*model.Event, error) {
	return nil, errors.New("db down")
}

func seed(t *testing.T) (*store.Memory, *model.Event, model.TicketType) {
	t.Helper()
	mem := store.NewMemory()
	start := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	ev, err := mem.CreateEvent(context.Background(), &model.Event{
		OwnerID: "u1", Title: "Hội thảo Go", StartTime: start, EndTime: start.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	tt := mem.AddTicketType(model.TicketType{EventID: ev.ID, Name: "VIP", Price: 500000, Currency: "VND", Remaining: 5})
	return mem, ev, tt
}

func pendingOrder(ev *model.Event, tt model.TicketType) *model.PendingOrder {
	return &model.PendingOrder{
		UserID: "u2", Step: model.StepConfirmOrder, EventID: ev.ID, EventTitle: ev.Title,
		TicketTypeID: tt.ID, TicketTypeName: tt.Name, UnitPrice: tt.Price, Currency: tt.Currency,
		Quantity: 2, ParticipantName: "An", Email: "an@example.com",
	}
}

func newOrderExecutor(mem *store.Memory, payments store.PaymentGateway, reminders store.ReminderScheduler) *OrderExecutor {
	x := NewOrderExecutor(mem, payments, reminders, mem, 0, nil)
	x.now = func() time.Time { return now }
	return x
}

func TestOrderExecutor_Commit(t *testing.T) {
	mem, ev, tt := seed(t)
	x := newOrderExecutor(mem, store.NewLinkPaymentGateway("https://pay.example.com", 0), mem)

	receipt, err := x.Commit(context.Background(), pendingOrder(ev, tt))
	require.NoError(t, err)
	assert.Equal(t, int64(1000000), receipt.Order.Amount)
	assert.Equal(t, model.OrderStatusAwaitingPayment, receipt.Order.Status)
	assert.Equal(t, receipt.Order.ID, receipt.Payment.OrderID)
	assert.True(t, receipt.ReminderScheduled)

	reminders := mem.Reminders()
	require.Len(t, reminders, 1)
	assert.Equal(t, ev.StartTime.Add(-DefaultReminderLead), reminders[0].RemindAt)

	left, _ := mem.GetTicketType(context.Background(), tt.ID)
	assert.Equal(t, 3, left.Remaining)
}

func TestOrderExecutor_ReminderFailureDoesNotFailOrder(t *testing.T) {
	for name, reminders := range map[string]store.ReminderScheduler{
		"error": failingReminders{},
		"panic": panickyReminders{},
	} {
		t.Run(name, func(t *testing.T) {
			mem, ev, tt := seed(t)
			x := newOrderExecutor(mem, store.NewLinkPaymentGateway("https://pay.example.com", 0), reminders)

			receipt, err := x.Commit(context.Background(), pendingOrder(ev, tt))
			require.NoError(t, err)
			assert.NotEmpty(t, receipt.Order.ID)
			assert.NotNil(t, receipt.Payment)
			assert.False(t, receipt.ReminderScheduled)
		})
	}
}

func TestOrderExecutor_Failures(t *testing.T) {
	mem, ev, tt := seed(t)

	x := newOrderExecutor(mem, failingPayments{}, mem)
	_, err := x.Commit(context.Background(), pendingOrder(ev, tt))
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "create payment link", cerr.Op)

	// The order without a link is cancelled and its tickets released.
	require.Len(t, mem.Orders(), 1)
	assert.Equal(t, model.OrderStatusCancelled, mem.Orders()[0].Status)
	left, err := mem.GetTicketType(context.Background(), tt.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, left.Remaining)

	x = newOrderExecutor(mem, store.NewLinkPaymentGateway("https://pay.example.com", 0), mem)
	o := pendingOrder(ev, tt)
	o.Quantity = 50
	_, err = x.Commit(context.Background(), o)
	assert.ErrorIs(t, err, store.ErrSoldOut)
	assert.Empty(t, mem.Reminders())
}

func TestEventExecutor_Target(t *testing.T) {
	ctx := context.Background()
	mem, ev, _ := seed(t)
	other, err := mem.CreateEvent(ctx, &model.Event{OwnerID: "u2", Title: "Tiệc", StartTime: ev.StartTime, EndTime: ev.EndTime})
	require.NoError(t, err)

	x := NewEventExecutor(mem, mem, nil)
	x.now = func() time.Time { return now }

	got, err := x.Target(ctx, "u1", ev.ID, "")
	require.NoError(t, err)
	assert.Equal(t, ev.ID, got.ID)

	_, err = x.Target(ctx, "u1", other.ID, "")
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = x.Target(ctx, "u1", 999, "")
	assert.ErrorIs(t, err, ErrEventNotFound)

	got, err = x.Target(ctx, "u1", 0, "hoi thao go")
	require.NoError(t, err)
	assert.Equal(t, ev.ID, got.ID)

	got, err = x.Target(ctx, "u1", 0, "Hội thảo")
	require.NoError(t, err)
	assert.Equal(t, ev.ID, got.ID)

	_, err = x.Target(ctx, "u1", 0, "Tiệc")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestEventExecutor_CreateFailureIsWrapped(t *testing.T) {
	x := NewEventExecutor(failingEvents{}, nil, nil)
	_, err := x.Create(context.Background(), &model.Event{OwnerID: "u1", Title: "A"})
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "create event", cerr.Op)
	assert.EqualError(t, err, "create event: db down")
}

func TestEventExecutor_AddReminder(t *testing.T) {
	mem, ev, _ := seed(t)
	x := NewEventExecutor(mem, mem, nil)
	x.now = func() time.Time { return now }

	r, err := x.AddReminder(context.Background(), "u1", ev, 30*time.Minute, "")
	require.NoError(t, err)
	assert.Equal(t, ev.StartTime.Add(-30*time.Minute), r.RemindAt)

	r, err = x.AddReminder(context.Background(), "u1", ev, 30*24*time.Hour, "")
	require.NoError(t, err)
	assert.Equal(t, now, r.RemindAt)

	x.now = func() time.Time { return ev.StartTime.Add(time.Minute) }
	_, err = x.AddReminder(context.Background(), "u1", ev, 0, "")
	assert.ErrorIs(t, err, ErrEventStarted)
}
