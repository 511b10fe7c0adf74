package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Outcome describes what a turn or a single action resulted in.
type Outcome string

const (
	OutcomeConversational Outcome = "conversational"
	OutcomeCommitted      Outcome = "committed"
	OutcomeSoftWarning    Outcome = "soft_warning"
	OutcomeAwaitingInput  Outcome = "awaiting_input"
	OutcomeCancelled      Outcome = "cancelled"
	OutcomeValidation     Outcome = "validation_failed"
	OutcomeCommitFailed   Outcome = "commit_failed"
	OutcomeUpstream       Outcome = "upstream_unavailable"
	OutcomeSkipped        Outcome = "skipped"
)

// ChatRequest is the request body of the conversational endpoint.
type ChatRequest struct {
	UserID     string  `json:"-"`
	SessionID  string  `json:"session_id"`
	Message    *string `json:"message"`
	Attachment string  `json:"attachment,omitempty"`
}

// CreatedRef identifies something created by a committed action.
type CreatedRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
	URL  string `json:"url,omitempty"`
}

// ActionResult reports what happened to one extracted action.
type ActionResult struct {
	Tool    ToolName     `json:"tool"`
	Outcome Outcome      `json:"outcome"`
	Code    string       `json:"code,omitempty"`
	Message string       `json:"message"`
	Created []CreatedRef `json:"created,omitempty"`
}

// PendingView is the caller-facing view of a user's pending operation.
type PendingView struct {
	Kind    string        `json:"kind"`
	Warning string        `json:"warning,omitempty"`
	Event   *Event        `json:"event,omitempty"`
	Order   *PendingOrder `json:"order,omitempty"`
}

// ChatResponse is the reply of the conversational endpoint.
type ChatResponse struct {
	SessionID string         `json:"session_id"`
	Reply     string         `json:"reply"`
	Outcome   Outcome        `json:"outcome"`
	Code      string         `json:"code,omitempty"`
	Actions   []ActionResult `json:"actions,omitempty"`
	Created   []CreatedRef   `json:"created,omitempty"`
	Pending   *PendingView   `json:"pending,omitempty"`
}

// RejectionEnvelope is returned when a request is refused before it reaches
// the assistant: security gate failures and quota exhaustion.
type RejectionEnvelope struct {
	Rejected   bool       `json:"rejected"`
	Code       string     `json:"code"`
	Reason     string     `json:"reason"`
	RetryAfter int        `json:"retry_after,omitempty"`
	Limit      int        `json:"limit,omitempty"`
	Remaining  *int       `json:"remaining,omitempty"`
	ResetAt    *time.Time `json:"reset_at,omitempty"`
}

// TranslateRequest is the request body of the translation endpoint.
type TranslateRequest struct {
	Text           *string `json:"text"`
	TargetLanguage string  `json:"target_language"`
}

// TranslateResponse is the reply of the translation endpoint.
type TranslateResponse struct {
	Translation    string `json:"translation"`
	TargetLanguage string `json:"target_language"`
}

// LimitStatus is the caller-facing view of a feature quota.
type LimitStatus struct {
	Feature   string    `json:"feature"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}
