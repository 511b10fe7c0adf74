// Package schedule validates event time windows and finds venue conflicts.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/capitalize-ai/event-assistant/internal/model"
)

// ErrInvalidWindow is returned when an event does not start before it ends.
var ErrInvalidWindow = errors.New("invalid time window")

// ConflictError lists the events that overlap a proposed window.
type ConflictError struct {
	Conflicts []model.Event
}

func (e *ConflictError) Error() string {
	titles := make([]string, len(e.Conflicts))
	for i, ev := range e.Conflicts {
		titles[i] = fmt.Sprintf("%q", ev.Title)
	}
	return "schedule conflict with " + strings.Join(titles, ", ")
}

// ValidateWindow rejects windows where start is not before end. The window
// is never swapped.
func ValidateWindow(start, end time.Time) error {
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return ErrInvalidWindow
	}
	return nil
}

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect. Adjacent intervals do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Events lists scheduled events whose window intersects [start, end).
// Implementations may return a superset; the detector filters again.
type Events interface {
	ListEventsBetween(ctx context.Context, start, end time.Time) ([]model.Event, error)
}

// Detector finds scheduled events that collide with a proposed window.
type Detector struct {
	events Events
}

// NewDetector creates a detector.
func NewDetector(events Events) *Detector {
	return &Detector{events: events}
}

// FindConflicts returns every event sharing a place with placeIDs whose
// window overlaps [start, end). The event excludeID (0 for none) is
// skipped so an update does not collide with itself.
func (d *Detector) FindConflicts(ctx context.Context, start, end time.Time, placeIDs []int64, excludeID int64) ([]model.Event, error) {
	if err := ValidateWindow(start, end); err != nil {
		return nil, err
	}
	if len(placeIDs) == 0 {
		return nil, nil
	}
	candidates, err := d.events.ListEventsBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	var conflicts []model.Event
	for _, ev := range candidates {
		if excludeID != 0 && ev.ID == excludeID {
			continue
		}
		if ev.SharesPlace(placeIDs) && Overlaps(start, end, ev.StartTime, ev.EndTime) {
			conflicts = append(conflicts, ev)
		}
	}
	sort.Slice(conflicts, func(i, j int) bool {
		return conflicts[i].StartTime.Before(conflicts[j].StartTime)
	})
	return conflicts, nil
}

// Check is FindConflicts returning a *ConflictError when any exist.
func (d *Detector) Check(ctx context.Context, start, end time.Time, placeIDs []int64, excludeID int64) error {
	conflicts, err := d.FindConflicts(ctx, start, end, placeIDs, excludeID)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return &ConflictError{Conflicts: conflicts}
	}
	return nil
}
