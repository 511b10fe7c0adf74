package commit

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/event-assistant/internal/model"
	"github.com/capitalize-ai/event-assistant/internal/store"
	"github.com/capitalize-ai/event-assistant/internal/textnorm"
	"github.com/capitalize-ai/event-assistant/pkg/logger"
)

// DefaultReminderLead is how long before an event a reminder fires when
// the request does not say.
const DefaultReminderLead = time.Hour

// EventExecutor commits event actions.
type EventExecutor struct {
	events    store.EventRepository
	reminders store.ReminderScheduler
	now       func() time.Time
	log       *logger.Logger
}

// NewEventExecutor creates an executor.
func NewEventExecutor(events store.EventRepository, reminders store.ReminderScheduler, log *logger.Logger) *EventExecutor {
	return &EventExecutor{
		events:    events,
		reminders: reminders,
		now:       time.Now,
		log:       logger.OrNop(log).Named("commit"),
	}
}

// Create persists a new event.
func (x *EventExecutor) Create(ctx context.Context, e *model.Event) (*model.Event, error) {
	out, err := x.events.CreateEvent(ctx, e)
	record(model.ToolAddEvent, err)
	if err != nil {
		x.fail("create event", e, err)
		return nil, &Error{Op: "create event", Err: err}
	}
	x.log.Info("event created",
		zap.String("user_id", out.OwnerID),
		zap.Int64("event_id", out.ID),
		zap.String("title", out.Title))
	return out, nil
}

// Update persists changes to an existing event.
func (x *EventExecutor) Update(ctx context.Context, e *model.Event) (*model.Event, error) {
	out, err := x.events.UpdateEvent(ctx, e)
	record(model.ToolUpdateEvent, err)
	if err != nil {
		x.fail("update event", e, err)
		return nil, &Error{Op: "update event", Err: err}
	}
	x.log.Info("event updated",
		zap.String("user_id", out.OwnerID),
		zap.Int64("event_id", out.ID))
	return out, nil
}

// Delete removes an event.
func (x *EventExecutor) Delete(ctx context.Context, e *model.Event) error {
	err := x.events.DeleteEvent(ctx, e.ID)
	record(model.ToolDeleteEvent, err)
	if err != nil {
		x.fail("delete event", e, err)
		return &Error{Op: "delete event", Err: err}
	}
	x.log.Info("event deleted",
		zap.String("user_id", e.OwnerID),
		zap.Int64("event_id", e.ID))
	return nil
}

// AddReminder schedules a reminder lead before the event starts. A
// reminder that would fire in the past fires now instead.
func (x *EventExecutor) AddReminder(ctx context.Context, userID string, e *model.Event, lead time.Duration, note string) (*model.Reminder, error) {
	now := x.now()
	if !e.StartTime.After(now) {
		return nil, ErrEventStarted
	}
	if lead <= 0 {
		lead = DefaultReminderLead
	}
	at := e.StartTime.Add(-lead)
	if at.Before(now) {
		at = now
	}
	r, err := x.reminders.ScheduleReminder(ctx, &model.Reminder{
		EventID:  e.ID,
		UserID:   userID,
		RemindAt: at,
		Note:     note,
	})
	record(model.ToolAddReminder, err)
	if err != nil {
		x.fail("schedule reminder", e, err)
		return nil, &Error{Op: "schedule reminder", Err: err}
	}
	return r, nil
}

// Target resolves the event an update, delete or reminder refers to: by
// id, else by title among the user's own events. Title matching ignores
// case and diacritics; an exact match beats a partial one, and among
// several the next upcoming event wins.
func (x *EventExecutor) Target(ctx context.Context, userID string, id int64, title string) (*model.Event, error) {
	if id != 0 {
		e, err := x.events.GetEvent(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		if err != nil {
			return nil, &Error{Op: "load event", Err: err}
		}
		if e.OwnerID != userID {
			return nil, ErrNotOwner
		}
		return e, nil
	}
	if title == "" {
		return nil, ErrEventNotFound
	}

	owned, err := x.events.ListEventsByOwner(ctx, userID)
	if err != nil {
		return nil, &Error{Op: "list events", Err: err}
	}
	want := textnorm.Fold(title)
	var exact, partial []model.Event
	for _, e := range owned {
		got := textnorm.Fold(e.Title)
		switch {
		case got == want:
			exact = append(exact, e)
		case textnorm.ContainsWord(e.Title, title) || textnorm.ContainsWord(title, e.Title):
			partial = append(partial, e)
		}
	}
	if e, ok := x.pick(exact); ok {
		return e, nil
	}
	if e, ok := x.pick(partial); ok {
		return e, nil
	}
	return nil, ErrEventNotFound
}

// pick returns the first event not yet ended, else the latest one.
// events are ordered by start time.
func (x *EventExecutor) pick(events []model.Event) (*model.Event, bool) {
	if len(events) == 0 {
		return nil, false
	}
	now := x.now()
	for i := range events {
		if events[i].EndTime.After(now) {
			return &events[i], true
		}
	}
	return &events[len(events)-1], true
}

func (x *EventExecutor) fail(op string, e *model.Event, err error) {
	x.log.Error("commit failed",
		zap.String("op", op),
		zap.String("user_id", e.OwnerID),
		zap.Int64("event_id", e.ID),
		zap.String("title", e.Title),
		zap.Error(err))
}
