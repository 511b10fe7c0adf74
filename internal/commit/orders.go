package commit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/event-assistant/internal/model"
	"github.com/capitalize-ai/event-assistant/internal/store"
	"github.com/capitalize-ai/event-assistant/pkg/logger"
)

const releaseTimeout = 5 * time.Second

// OrderExecutor turns a confirmed negotiation into an order, a payment
// link and, best effort, a reminder.
type OrderExecutor struct {
	orders    store.OrderRepository
	payments  store.PaymentGateway
	reminders store.ReminderScheduler
	events    store.EventRepository
	lead      time.Duration
	now       func() time.Time
	log       *logger.Logger
}

// NewOrderExecutor creates an executor. lead <= 0 uses DefaultReminderLead.
func NewOrderExecutor(orders store.OrderRepository, payments store.PaymentGateway, reminders store.ReminderScheduler, events store.EventRepository, lead time.Duration, log *logger.Logger) *OrderExecutor {
	if lead <= 0 {
		lead = DefaultReminderLead
	}
	return &OrderExecutor{
		orders:    orders,
		payments:  payments,
		reminders: reminders,
		events:    events,
		lead:      lead,
		now:       time.Now,
		log:       logger.OrNop(log).Named("commit"),
	}
}

// Commit creates the order and its payment link. The reminder that follows
// never affects the result.
func (x *OrderExecutor) Commit(ctx context.Context, o *model.PendingOrder) (*model.OrderReceipt, error) {
	order, err := x.orders.CreateOrder(ctx, &model.Order{
		UserID:          o.UserID,
		EventID:         o.EventID,
		TicketTypeID:    o.TicketTypeID,
		Quantity:        o.Quantity,
		ParticipantName: o.ParticipantName,
		Email:           o.Email,
		Phone:           o.Phone,
		Amount:          o.UnitPrice * int64(o.Quantity),
		Currency:        o.Currency,
		Status:          model.OrderStatusAwaitingPayment,
	})
	if err != nil {
		record(model.ToolOrderTicket, err)
		x.fail("create order", o, err)
		return nil, &Error{Op: "create order", Err: err}
	}

	link, err := x.payments.CreatePaymentLink(ctx, order)
	record(model.ToolOrderTicket, err)
	if err != nil {
		x.fail("create payment link", o, err)
		x.release(ctx, order)
		return nil, &Error{Op: "create payment link", Err: err}
	}

	receipt := &model.OrderReceipt{Order: order, Payment: link}
	receipt.ReminderScheduled = x.remind(ctx, order) == nil
	x.log.Info("order created",
		zap.String("user_id", o.UserID),
		zap.String("order_id", order.ID),
		zap.Int64("event_id", order.EventID),
		zap.Bool("reminder", receipt.ReminderScheduled))
	return receipt, nil
}

func (x *OrderExecutor) remind(ctx context.Context, order *model.Order) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reminder panicked: %v", r)
		}
		if err != nil {
			x.log.Warn("order reminder not scheduled",
				zap.String("order_id", order.ID),
				zap.Error(err))
		}
	}()

	ev, err := x.events.GetEvent(ctx, order.EventID)
	if err != nil {
		return err
	}
	now := x.now()
	if !ev.StartTime.After(now) {
		return ErrEventStarted
	}
	at := ev.StartTime.Add(-x.lead)
	if at.Before(now) {
		at = now
	}
	_, err = x.reminders.ScheduleReminder(ctx, &model.Reminder{
		EventID:  ev.ID,
		UserID:   order.UserID,
		RemindAt: at,
		Note:     fmt.Sprintf("Đơn %s: %d vé", order.ID, order.Quantity),
	})
	return err
}

// release cancels an order that has no payment link so its tickets go
// back on sale. The caller's context may already be done, so a short
// detached one is used.
func (x *OrderExecutor) release(ctx context.Context, order *model.Order) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := x.orders.CancelOrder(ctx, order.ID); err != nil {
		x.log.Error("order left without payment link",
			zap.String("order_id", order.ID),
			zap.Int64("ticket_type_id", order.TicketTypeID),
			zap.Int("quantity", order.Quantity),
			zap.Error(err))
		return
	}
	x.log.Info("order released after payment link failure", zap.String("order_id", order.ID))
}

func (x *OrderExecutor) fail(op string, o *model.PendingOrder, err error) {
	x.log.Error("commit failed",
		zap.String("op", op),
		zap.String("user_id", o.UserID),
		zap.Int64("event_id", o.EventID),
		zap.Int64("ticket_type_id", o.TicketTypeID),
		zap.Error(err))
}
