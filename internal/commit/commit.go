// Package commit performs validated actions against the persistence and
// payment collaborators. Nothing here retries: a failed commit is
// reported and the caller must resubmit.
package commit

import (
	"errors"
	"fmt"

	"github.com/capitalize-ai/event-assistant/internal/model"
	"github.com/capitalize-ai/event-assistant/pkg/metrics"
)

var (
	// ErrEventNotFound is returned when a target event cannot be resolved.
	ErrEventNotFound = errors.New("event not found")
	// ErrNotOwner is returned when the target event belongs to another user.
	ErrNotOwner = errors.New("event belongs to another user")
	// ErrEventStarted is returned when a reminder is requested for an event
	// that has already started.
	ErrEventStarted = errors.New("event has already started")
)

// Error is a failed collaborator call during a commit.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func record(tool model.ToolName, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.CommitsTotal.WithLabelValues(string(tool), status).Inc()
}
