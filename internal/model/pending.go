package model

import (
	"time"
)

// PendingEvent is a validated event awaiting explicit user confirmation
// because validation raised a soft warning.
type PendingEvent struct {
	UserID    string    `json:"user_id"`
	Tool      ToolName  `json:"tool"`
	Event     Event     `json:"event"`
	Warning   string    `json:"warning"`
	CreatedAt time.Time `json:"created_at"`
}

// OrderStep is a step of the ticket-order negotiation.
type OrderStep string

const (
	StepSelectEvent  OrderStep = "select_event"
	StepSelectTicket OrderStep = "select_ticket"
	StepCollectInfo  OrderStep = "collect_info"
	StepConfirmOrder OrderStep = "confirm_order"
)

// Option is a numbered choice presented to the user.
type Option struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

// PendingOrder is a multi-step ticket purchase in progress.
type PendingOrder struct {
	UserID          string    `json:"user_id"`
	Step            OrderStep `json:"step"`
	EventID         int64     `json:"event_id,omitempty"`
	EventTitle      string    `json:"event_title,omitempty"`
	TicketTypeID    int64     `json:"ticket_type_id,omitempty"`
	TicketTypeName  string    `json:"ticket_type_name,omitempty"`
	UnitPrice       int64     `json:"unit_price,omitempty"`
	Currency        string    `json:"currency,omitempty"`
	Quantity        int       `json:"quantity"`
	ParticipantName string    `json:"participant_name,omitempty"`
	Email           string    `json:"email,omitempty"`
	Phone           string    `json:"phone,omitempty"`
	EventOptions    []Option  `json:"event_options,omitempty"`
	TicketOptions   []Option  `json:"ticket_options,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Required order fields, in step order.
const (
	FieldEvent      = "event"
	FieldTicketType = "ticket_type"
	FieldName       = "name"
	FieldEmail      = "email"
)

// Missing lists the required fields that are still empty.
func (o *PendingOrder) Missing() []string {
	var missing []string
	if o.EventID == 0 {
		missing = append(missing, FieldEvent)
	}
	if o.TicketTypeID == 0 {
		missing = append(missing, FieldTicketType)
	}
	if o.ParticipantName == "" {
		missing = append(missing, FieldName)
	}
	if o.Email == "" {
		missing = append(missing, FieldEmail)
	}
	return missing
}

// Clone returns a deep copy of the order.
func (o *PendingOrder) Clone() *PendingOrder {
	if o == nil {
		return nil
	}
	cp := *o
	cp.EventOptions = append([]Option(nil), o.EventOptions...)
	cp.TicketOptions = append([]Option(nil), o.TicketOptions...)
	return &cp
}

// Clone returns a deep copy of the pending event.
func (p *PendingEvent) Clone() *PendingEvent {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Event.PlaceIDs = append([]int64(nil), p.Event.PlaceIDs...)
	return &cp
}
