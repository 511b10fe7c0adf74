// Package model defines data structures for the event assistant.
package model

import (
	"time"
)

// Turn is one message of a conversation session.
type Turn struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`

	// Sequence is populated on read from the conversation log.
	Sequence uint64 `json:"sequence,omitempty"`
}

// ListTurnsResponse is the response for listing session history.
type ListTurnsResponse struct {
	SessionID string `json:"session_id"`
	Turns     []Turn `json:"turns"`
}
