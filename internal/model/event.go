package model

import (
	"time"
)

// Place is a known venue.
type Place struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Address   string   `json:"address,omitempty"`
	Aliases   []string `json:"aliases,omitempty"`
	Latitude  float64  `json:"latitude,omitempty"`
	Longitude float64  `json:"longitude,omitempty"`
}

// Event is a scheduled event owned by a user.
type Event struct {
	ID          int64     `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	EventType   string    `json:"event_type,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	PlaceIDs    []int64   `json:"place_ids"`
	PlaceName   string    `json:"place_name,omitempty"`
	Outdoor     bool      `json:"outdoor,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SharesPlace reports whether the event uses any of the given places.
func (e Event) SharesPlace(placeIDs []int64) bool {
	for _, a := range e.PlaceIDs {
		for _, b := range placeIDs {
			if a == b {
				return true
			}
		}
	}
	return false
}

// TicketType is a purchasable ticket category of an event.
type TicketType struct {
	ID        int64  `json:"id"`
	EventID   int64  `json:"event_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Currency  string `json:"currency"`
	Remaining int    `json:"remaining"`
}

// OrderStatus is the lifecycle state of a committed order.
type OrderStatus string

const (
	OrderStatusAwaitingPayment OrderStatus = "awaiting_payment"
	OrderStatusPaid            OrderStatus = "paid"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

// Order is a committed ticket order.
type Order struct {
	ID              string      `json:"id"`
	UserID          string      `json:"user_id"`
	EventID         int64       `json:"event_id"`
	TicketTypeID    int64       `json:"ticket_type_id"`
	Quantity        int         `json:"quantity"`
	ParticipantName string      `json:"participant_name"`
	Email           string      `json:"email"`
	Phone           string      `json:"phone,omitempty"`
	Amount          int64       `json:"amount"`
	Currency        string      `json:"currency"`
	Status          OrderStatus `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
}

// PaymentLink is a checkout link for an order.
type PaymentLink struct {
	OrderID   string    `json:"order_id"`
	Reference string    `json:"reference"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Reminder is a scheduled notification about an event.
type Reminder struct {
	ID       string    `json:"id"`
	EventID  int64     `json:"event_id"`
	UserID   string    `json:"user_id"`
	RemindAt time.Time `json:"remind_at"`
	Note     string    `json:"note,omitempty"`
}

// OrderReceipt is the result of committing a pending order.
type OrderReceipt struct {
	Order             *Order       `json:"order"`
	Payment           *PaymentLink `json:"payment"`
	ReminderScheduled bool         `json:"reminder_scheduled"`
}
