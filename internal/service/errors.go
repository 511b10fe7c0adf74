package service

import (
	"errors"
	"fmt"

	"github.com/capitalize-ai/event-assistant/internal/ratelimit"
)

// ErrorKind classifies failures of a turn.
type ErrorKind string

const (
	KindRejectedInput       ErrorKind = "rejected_input"
	KindRateLimited         ErrorKind = "rate_limited"
	KindValidationFailed    ErrorKind = "validation_failed"
	KindCommitFailed        ErrorKind = "commit_failed"
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
)

// Machine-readable codes carried by replies and audit events.
const (
	CodeInvalidWindow    = "invalid_time_window"
	CodeVenueNotFound    = "venue_not_found"
	CodeConflict         = "schedule_conflict"
	CodeMissingField     = "missing_field"
	CodeInvalidField     = "invalid_field"
	CodeEventNotFound    = "event_not_found"
	CodeNotOwner         = "not_owner"
	CodeEventStarted     = "event_started"
	CodeIncomplete       = "incomplete"
	CodeUnsupportedTool  = "unsupported_tool"
	CodeWeatherRisk      = "weather_risk"
	CodeCommitFailed     = "commit_failed"
	CodeModelUnavailable = "model_unavailable"
	CodeUpstream         = "upstream_unavailable"
	CodeRateLimited      = "rate_limited"
)

// ErrUpstream is returned when a collaborator needed to answer failed.
var ErrUpstream = errors.New("upstream unavailable")

// RejectionError is returned when a request is refused before the
// pipeline runs. Nothing was classified, extracted or stored.
type RejectionError struct {
	Kind   ErrorKind
	Code   string
	Reason string
	// Status is set for KindRateLimited.
	Status *ratelimit.Status
	Err    error
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Code)
}

func (e *RejectionError) Unwrap() error {
	return e.Err
}
