// Package ordering runs the multi-turn ticket purchase negotiation.
//
// An order advances select_event → select_ticket → collect_info →
// confirm_order. Each user message fills whatever fields it can; steps
// whose fields are already known are skipped. Nothing is committed until
// the user answers yes at confirm_order and Confirm finds every required
// field present.
package ordering

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/event-assistant/internal/conversation"
	"github.com/capitalize-ai/event-assistant/internal/model"
	"github.com/capitalize-ai/event-assistant/internal/security"
	"github.com/capitalize-ai/event-assistant/pkg/logger"
)

const (
	// DefaultMaxOptions bounds how many events or ticket types are offered.
	DefaultMaxOptions = 5
	maxQuantity       = 10
)

// IncompleteError is returned by Confirm when required fields are missing.
type IncompleteError struct {
	Missing []string
}

func (e *IncompleteError) Error() string {
	return "order incomplete: missing " + strings.Join(e.Missing, ", ")
}

// Events reads the events that can be ordered.
type Events interface {
	GetEvent(ctx context.Context, id int64) (*model.Event, error)
	ListUpcomingEvents(ctx context.Context, from time.Time, limit int) ([]model.Event, error)
}

// Tickets reads ticket types.
type Tickets interface {
	ListTicketTypes(ctx context.Context, eventID int64) ([]model.TicketType, error)
	GetTicketType(ctx context.Context, id int64) (*model.TicketType, error)
}

// Executor commits a complete order.
type Executor interface {
	Commit(ctx context.Context, o *model.PendingOrder) (*model.OrderReceipt, error)
}

// Validator sanitizes contact details.
type Validator interface {
	ValidateString(input string, t security.InputType) (string, error)
}

// Status is where a negotiation stands after a turn.
type Status int

const (
	// Awaiting means the order must be stored and the prompt shown.
	Awaiting Status = iota
	// Committed means the order was created.
	Committed
	// Cancelled means the negotiation ended without an order.
	Cancelled
)

// Result is the outcome of one negotiation turn.
type Result struct {
	Status  Status
	Order   *model.PendingOrder
	Receipt *model.OrderReceipt
	Prompt  string
}

// Negotiator drives PendingOrder transitions. It holds no per-user state;
// the caller stores Result.Order between turns.
type Negotiator struct {
	events     Events
	tickets    Tickets
	exec       Executor
	gate       Validator
	tokens     conversation.Tokens
	maxOptions int
	now        func() time.Time
	log        *logger.Logger
}

// Option configures a Negotiator.
type Option func(*Negotiator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(n *Negotiator) { n.now = now }
}

// WithTokens replaces the yes/no allow-lists.
func WithTokens(t conversation.Tokens) Option {
	return func(n *Negotiator) { n.tokens = t }
}

// NewNegotiator creates a negotiator.
func NewNegotiator(events Events, tickets Tickets, exec Executor, gate Validator, log *logger.Logger, opts ...Option) *Negotiator {
	n := &Negotiator{
		events:     events,
		tickets:    tickets,
		exec:       exec,
		gate:       gate,
		tokens:     conversation.DefaultTokens(),
		maxOptions: DefaultMaxOptions,
		now:        time.Now,
		log:        logger.OrNop(log).Named("ordering"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Start opens a negotiation from an ORDER_TICKET action, pre-filling any
// fields the action already carries.
func (n *Negotiator) Start(ctx context.Context, userID string, action model.Action) (*Result, error) {
	now := n.now()
	o := &model.PendingOrder{
		UserID:    userID,
		Step:      model.StepSelectEvent,
		Quantity:  1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	args := action.Args
	if q, ok := args.Int64("quantity"); ok && q > 0 && q <= maxQuantity {
		o.Quantity = int(q)
	}

	var note string
	if id, ok := args.Int64("event_id"); ok {
		ev, err := n.events.GetEvent(ctx, id)
		if err == nil && ev.StartTime.After(now) {
			n.selectEvent(o, ev.ID, ev.Title)
		}
	} else if title := firstArg(args, "event_title", "title", "event"); title != "" {
		if err := n.loadEventOptions(ctx, o); err != nil {
			return nil, err
		}
		if opt, ok := chooseByLabel(title, o.EventOptions); ok {
			n.selectEvent(o, opt.ID, opt.Label)
		}
	}

	if o.EventID != 0 {
		if id, ok := args.Int64("ticket_type_id"); ok {
			var err error
			if note, err = n.selectTicket(ctx, o, id); err != nil {
				return nil, err
			}
		} else if name := firstArg(args, "ticket_type", "ticket_name", "ticket"); name != "" {
			if err := n.loadTicketOptions(ctx, o); err != nil {
				return nil, err
			}
			if opt, ok := chooseByLabel(name, o.TicketOptions); ok {
				var err error
				if note, err = n.selectTicket(ctx, o, opt.ID); err != nil {
					return nil, err
				}
			}
		}
	}

	n.setName(o, firstArg(args, "participant_name", "name", "full_name"))
	n.setEmail(o, args.String("email"))
	n.setPhone(o, args.String("phone"))
	return n.settle(ctx, o, note)
}

// Advance applies the user's reply to the order.
func (n *Negotiator) Advance(ctx context.Context, order *model.PendingOrder, text string) (*Result, error) {
	o := order.Clone()
	answer := conversation.ParseConfirmation(text, n.tokens)

	if o.Step == model.StepConfirmOrder {
		switch answer {
		case conversation.Yes:
			receipt, err := n.Confirm(ctx, o)
			if err != nil {
				return nil, err
			}
			return &Result{Status: Committed, Order: o, Receipt: receipt, Prompt: ReceiptText(o, receipt)}, nil
		case conversation.No:
			return n.cancel(o), nil
		}
		if !n.fillContact(o, text) {
			return &Result{Status: Awaiting, Order: n.touch(o), Prompt: "Vui lòng trả lời \"có\" để xác nhận hoặc \"không\" để hủy.\n" + summary(o)}, nil
		}
		return n.settle(ctx, o, "")
	}

	var note string
	switch o.Step {
	case model.StepSelectEvent:
		if answer == conversation.No {
			return n.cancel(o), nil
		}
		if opt, ok := choose(text, o.EventOptions); ok {
			n.selectEvent(o, opt.ID, opt.Label)
		} else {
			note = "Mình chưa nhận ra sự kiện bạn chọn.\n"
		}
	case model.StepSelectTicket:
		if answer == conversation.No {
			return n.cancel(o), nil
		}
		rest := text
		if q, remainder, ok := parseQuantity(text); ok {
			o.Quantity = q
			rest = remainder
		}
		if opt, ok := choose(rest, o.TicketOptions); ok {
			var err error
			if note, err = n.selectTicket(ctx, o, opt.ID); err != nil {
				return nil, err
			}
		} else {
			note = "Mình chưa nhận ra loại vé bạn chọn.\n"
		}
	case model.StepCollectInfo:
		if !n.fillContact(o, text) {
			if answer == conversation.No {
				return n.cancel(o), nil
			}
			note = "Mình chưa đọc được thông tin liên hệ.\n"
		}
	}
	return n.settle(ctx, o, note)
}

// Confirm commits the order. It refuses, without calling the executor,
// when any required field is missing.
func (n *Negotiator) Confirm(ctx context.Context, o *model.PendingOrder) (*model.OrderReceipt, error) {
	missing := o.Missing()
	if o.Quantity <= 0 {
		missing = append(missing, "quantity")
	}
	if len(missing) > 0 {
		n.log.Info("order confirmation refused",
			zap.String("user_id", o.UserID),
			zap.Strings("missing", missing))
		return nil, &IncompleteError{Missing: missing}
	}
	return n.exec.Commit(ctx, o)
}

// settle moves the order to the first step with missing fields and
// builds the prompt for it.
func (n *Negotiator) settle(ctx context.Context, o *model.PendingOrder, note string) (*Result, error) {
	var b strings.Builder
	b.WriteString(note)

	switch {
	case o.EventID == 0:
		o.Step = model.StepSelectEvent
		if err := n.loadEventOptions(ctx, o); err != nil {
			return nil, err
		}
		if len(o.EventOptions) == 0 {
			return &Result{Status: Cancelled, Prompt: "Hiện chưa có sự kiện nào đang mở bán vé."}, nil
		}
		b.WriteString("Bạn muốn mua vé sự kiện nào? Trả lời bằng số thứ tự hoặc tên sự kiện:\n")
		writeOptions(&b, o.EventOptions)
	case o.TicketTypeID == 0:
		o.Step = model.StepSelectTicket
		if err := n.loadTicketOptions(ctx, o); err != nil {
			return nil, err
		}
		if len(o.TicketOptions) == 0 {
			return &Result{Status: Cancelled, Prompt: fmt.Sprintf("Sự kiện %q đã hết vé.", o.EventTitle)}, nil
		}
		fmt.Fprintf(&b, "Sự kiện %q có các loại vé sau, bạn chọn loại nào?\n", o.EventTitle)
		writeOptions(&b, o.TicketOptions)
	case o.ParticipantName == "" || o.Email == "":
		o.Step = model.StepCollectInfo
		b.WriteString("Vui lòng cho mình biết ")
		var ask []string
		if o.ParticipantName == "" {
			ask = append(ask, "họ tên người tham gia")
		}
		if o.Email == "" {
			ask = append(ask, "email")
		}
		b.WriteString(strings.Join(ask, " và "))
		if o.Phone == "" {
			b.WriteString(" (kèm số điện thoại nếu có)")
		}
		b.WriteString(".")
	default:
		o.Step = model.StepConfirmOrder
		b.WriteString(summary(o))
		b.WriteString("\nXác nhận đặt vé? (có/không)")
	}
	return &Result{Status: Awaiting, Order: n.touch(o), Prompt: b.String()}, nil
}

func (n *Negotiator) touch(o *model.PendingOrder) *model.PendingOrder {
	o.UpdatedAt = n.now()
	return o
}

func (n *Negotiator) cancel(o *model.PendingOrder) *Result {
	n.log.Info("order negotiation cancelled",
		zap.String("user_id", o.UserID),
		zap.String("step", string(o.Step)))
	return &Result{Status: Cancelled, Order: o, Prompt: "Đã hủy đơn đặt vé."}
}

func (n *Negotiator) loadEventOptions(ctx context.Context, o *model.PendingOrder) error {
	if len(o.EventOptions) > 0 {
		return nil
	}
	events, err := n.events.ListUpcomingEvents(ctx, n.now(), n.maxOptions)
	if err != nil {
		return fmt.Errorf("failed to list upcoming events: %w", err)
	}
	for _, ev := range events {
		o.EventOptions = append(o.EventOptions, model.Option{ID: ev.ID, Label: ev.Title})
	}
	return nil
}

func (n *Negotiator) loadTicketOptions(ctx context.Context, o *model.PendingOrder) error {
	if len(o.TicketOptions) > 0 {
		return nil
	}
	types, err := n.tickets.ListTicketTypes(ctx, o.EventID)
	if err != nil {
		return fmt.Errorf("failed to list ticket types: %w", err)
	}
	for _, t := range types {
		if t.Remaining <= 0 {
			continue
		}
		o.TicketOptions = append(o.TicketOptions, model.Option{ID: t.ID, Label: t.Name})
		if len(o.TicketOptions) == n.maxOptions {
			break
		}
	}
	return nil
}

func (n *Negotiator) selectEvent(o *model.PendingOrder, id int64, title string) {
	if o.EventID == id {
		return
	}
	o.EventID = id
	o.EventTitle = title
	o.TicketTypeID = 0
	o.TicketTypeName = ""
	o.UnitPrice = 0
	o.Currency = ""
	o.TicketOptions = nil
}

// selectTicket sets the ticket type when enough tickets remain. The
// returned note explains a refusal.
func (n *Negotiator) selectTicket(ctx context.Context, o *model.PendingOrder, id int64) (string, error) {
	t, err := n.tickets.GetTicketType(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to get ticket type: %w", err)
	}
	if t.EventID != o.EventID {
		return "Loại vé này không thuộc sự kiện đã chọn.\n", nil
	}
	if t.Remaining < o.Quantity {
		return fmt.Sprintf("Loại vé %s chỉ còn %d vé.\n", t.Name, t.Remaining), nil
	}
	o.TicketTypeID = t.ID
	o.TicketTypeName = t.Name
	o.UnitPrice = t.Price
	o.Currency = t.Currency
	return "", nil
}

func firstArg(args model.Args, keys ...string) string {
	for _, k := range keys {
		if v := args.String(k); v != "" {
			return v
		}
	}
	return ""
}

func writeOptions(b *strings.Builder, opts []model.Option) {
	for i, opt := range opts {
		fmt.Fprintf(b, "%d. %s\n", i+1, opt.Label)
	}
}

func summary(o *model.PendingOrder) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Đơn hàng: %d vé %s cho sự kiện %q", o.Quantity, o.TicketTypeName, o.EventTitle)
	if o.UnitPrice > 0 {
		fmt.Fprintf(&b, ", tổng %d %s", o.UnitPrice*int64(o.Quantity), o.Currency)
	}
	fmt.Fprintf(&b, ".\nNgười tham gia: %s, email %s", o.ParticipantName, o.Email)
	if o.Phone != "" {
		fmt.Fprintf(&b, ", điện thoại %s", o.Phone)
	}
	b.WriteString(".")
	return b.String()
}

// ReceiptText renders a committed order for the user.
func ReceiptText(o *model.PendingOrder, r *model.OrderReceipt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Đã tạo đơn %s: %d vé %s cho sự kiện %q.", r.Order.ID, r.Order.Quantity, o.TicketTypeName, o.EventTitle)
	if r.Payment != nil {
		fmt.Fprintf(&b, "\nThanh toán tại: %s", r.Payment.URL)
	}
	if r.ReminderScheduled {
		b.WriteString("\nMình sẽ nhắc bạn trước khi sự kiện bắt đầu.")
	}
	return b.String()
}
