package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/event-assistant/internal/commit"
	"github.com/capitalize-ai/event-assistant/internal/intent"
	"github.com/capitalize-ai/event-assistant/internal/model"
	"github.com/capitalize-ai/event-assistant/internal/schedule"
	"github.com/capitalize-ai/event-assistant/internal/security"
	"github.com/capitalize-ai/event-assistant/internal/store"
	"github.com/capitalize-ai/event-assistant/internal/venue"
	"github.com/capitalize-ai/event-assistant/internal/weather"
	"github.com/capitalize-ai/event-assistant/pkg/metrics"
)

// outcome is the result of one action.
type outcome struct {
	model.ActionResult
	pending *model.PendingView
}

func single(o outcome) *model.ChatResponse {
	return &model.ChatResponse{
		Reply:   o.Message,
		Outcome: o.Outcome,
		Code:    o.Code,
		Actions: []model.ActionResult{o.ActionResult},
		Created: o.Created,
		Pending: o.pending,
	}
}

func (s *AssistantService) apply(ctx context.Context, t *turn, a model.Action, res intent.Result) outcome {
	ctx, span := s.tracer.Start(ctx, "assistant.action."+string(a.Tool))
	defer span.End()

	switch a.Tool {
	case model.ToolAddEvent:
		return s.addEvent(ctx, t, a, res)
	case model.ToolUpdateEvent:
		return s.updateEvent(ctx, t, a, res)
	case model.ToolDeleteEvent:
		return s.deleteEvent(ctx, t, a)
	case model.ToolAddReminder:
		return s.addReminder(ctx, t, a)
	case model.ToolOrderTicket:
		return s.orderTicket(ctx, t, a)
	default:
		return s.invalid(ctx, t, a, CodeUnsupportedTool, replyUnsupported)
	}
}

func (s *AssistantService) addEvent(ctx context.Context, t *turn, a model.Action, res intent.Result) outcome {
	e := &model.Event{OwnerID: t.userID}
	if o, ok := s.eventText(ctx, t, a, e); !ok {
		return o
	}
	if e.Title == "" {
		return s.invalid(ctx, t, a, CodeMissingField, missingFieldText("tiêu đề"))
	}

	start, ok := a.Args.Time("start_time")
	if !ok {
		if a.Args.Has("start_time") {
			return s.invalid(ctx, t, a, CodeInvalidWindow, replyInvalidTime)
		}
		return s.invalid(ctx, t, a, CodeMissingField, missingFieldText("thời gian bắt đầu"))
	}
	end, ok := a.Args.Time("end_time")
	if !ok {
		if a.Args.Has("end_time") {
			return s.invalid(ctx, t, a, CodeInvalidWindow, replyInvalidTime)
		}
		end = start.Add(s.cfg.DefaultDuration)
	}
	e.StartTime, e.EndTime = start, end
	if err := schedule.ValidateWindow(start, end); err != nil {
		return s.invalid(ctx, t, a, CodeInvalidWindow, replyInvalidWindow)
	}

	place := a.Args.String("place")
	if place == "" {
		return s.invalid(ctx, t, a, CodeMissingField, missingFieldText("địa điểm"))
	}
	match, o, ok := s.resolveVenue(ctx, t, a, place)
	if !ok {
		return o
	}
	e.PlaceIDs = []int64{match.Place.ID}
	e.PlaceName = match.Place.Name

	if o, ok := s.checkConflicts(ctx, t, a, e); !ok {
		return o
	}

	e.Outdoor = s.outdoor(a, res, e)
	if e.Outdoor {
		if o, parked := s.weatherGate(ctx, t, a, e, match.Place); parked {
			return o
		}
	}
	return s.create(ctx, t, a, e)
}

func (s *AssistantService) updateEvent(ctx context.Context, t *turn, a model.Action, res intent.Result) outcome {
	current, o, ok := s.target(ctx, t, a)
	if !ok {
		return o
	}
	e := *current
	if o, ok := s.eventText(ctx, t, a, &e); !ok {
		return o
	}
	if e.Title == "" {
		e.Title = current.Title
	}

	changed := false
	if a.Args.Has("start_time") {
		start, ok := a.Args.Time("start_time")
		if !ok {
			return s.invalid(ctx, t, a, CodeInvalidWindow, replyInvalidTime)
		}
		e.StartTime = start
		e.EndTime = start.Add(current.EndTime.Sub(current.StartTime))
		changed = true
	}
	if a.Args.Has("end_time") {
		end, ok := a.Args.Time("end_time")
		if !ok {
			return s.invalid(ctx, t, a, CodeInvalidWindow, replyInvalidTime)
		}
		e.EndTime = end
		changed = true
	}
	if err := schedule.ValidateWindow(e.StartTime, e.EndTime); err != nil {
		return s.invalid(ctx, t, a, CodeInvalidWindow, replyInvalidWindow)
	}

	var place model.Place
	if name := a.Args.String("place"); name != "" {
		match, o, ok := s.resolveVenue(ctx, t, a, name)
		if !ok {
			return o
		}
		place = match.Place
		e.PlaceIDs = []int64{place.ID}
		e.PlaceName = place.Name
		changed = true
	} else {
		place = model.Place{Name: e.PlaceName}
	}

	if changed {
		if o, ok := s.checkConflicts(ctx, t, a, &e); !ok {
			return o
		}
	}
	e.Outdoor = e.Outdoor || s.outdoor(a, res, &e)
	if changed && e.Outdoor {
		if o, parked := s.weatherGate(ctx, t, a, &e, place); parked {
			return o
		}
	}
	return s.update(ctx, t, a, &e)
}

func (s *AssistantService) deleteEvent(ctx context.Context, t *turn, a model.Action) outcome {
	e, o, ok := s.target(ctx, t, a)
	if !ok {
		return o
	}
	cctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	if err := s.events.Delete(cctx, e); err != nil {
		return s.commitFailed(ctx, t, a, err)
	}
	s.record(ctx, t, model.AuditCommitted, "", a.Summary(), map[string]any{"event_id": e.ID})
	return committed(a, deletedText(e), model.CreatedRef{Kind: "event", ID: strconv.FormatInt(e.ID, 10)})
}

func (s *AssistantService) addReminder(ctx context.Context, t *turn, a model.Action) outcome {
	e, o, ok := s.target(ctx, t, a)
	if !ok {
		return o
	}
	lead := commit.DefaultReminderLead
	if m, ok := a.Args.Int64("remind_before_minutes"); ok {
		if m < 0 {
			return s.invalid(ctx, t, a, CodeInvalidField, invalidFieldText("remind_before_minutes"))
		}
		if m > 0 {
			lead = time.Duration(m) * time.Minute
		}
	}
	note := a.Args.String("note")
	if note != "" {
		var err error
		if note, err = s.gate.ValidateString(note, security.InputDescription); err != nil {
			return s.fieldRejected(ctx, t, a, "note", err)
		}
	}

	cctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	r, err := s.events.AddReminder(cctx, t.userID, e, lead, note)
	if errors.Is(err, commit.ErrEventStarted) {
		return s.invalid(ctx, t, a, CodeEventStarted, eventStartedText(e))
	}
	if err != nil {
		return s.commitFailed(ctx, t, a, err)
	}
	s.record(ctx, t, model.AuditCommitted, "", a.Summary(), map[string]any{"reminder_id": r.ID})
	return committed(a, reminderText(e, r), model.CreatedRef{Kind: "reminder", ID: r.ID})
}

func (s *AssistantService) orderTicket(ctx context.Context, t *turn, a model.Action) outcome {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	res, err := s.orders.Start(cctx, t.userID, a)
	if err != nil {
		return s.upstream(ctx, t, a, "orders", err)
	}
	return s.orderResult(ctx, t, a, res)
}

// eventText copies and gates the free-text fields present in the action.
func (s *AssistantService) eventText(ctx context.Context, t *turn, a model.Action, e *model.Event) (outcome, bool) {
	fields := []struct {
		key string
		typ security.InputType
		dst *string
	}{
		{"title", security.InputTitle, &e.Title},
		{"description", security.InputDescription, &e.Description},
		{"event_type", security.InputTitle, &e.EventType},
	}
	for _, f := range fields {
		raw := a.Args.String(f.key)
		if raw == "" {
			continue
		}
		v, err := s.gate.ValidateString(raw, f.typ)
		if err != nil {
			return s.fieldRejected(ctx, t, a, f.key, err), false
		}
		*f.dst = v
	}
	return outcome{}, true
}

func (s *AssistantService) resolveVenue(ctx context.Context, t *turn, a model.Action, name string) (*venue.Match, outcome, bool) {
	name, err := s.gate.ValidateString(name, security.InputPlace)
	if err != nil {
		return nil, s.fieldRejected(ctx, t, a, "place", err), false
	}
	cctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	m, err := s.venues.Resolve(cctx, name)
	switch {
	case errors.Is(err, venue.ErrNotFound):
		return nil, s.invalid(ctx, t, a, CodeVenueNotFound, venueNotFoundText(name)), false
	case err != nil:
		return nil, s.upstream(ctx, t, a, "places", err), false
	}
	t.log.Debug("venue resolved",
		zap.String("name", name),
		zap.Int64("place_id", m.Place.ID),
		zap.String("tier", string(m.Tier)))
	return m, outcome{}, true
}

// checkConflicts reports whether e may be scheduled.
func (s *AssistantService) checkConflicts(ctx context.Context, t *turn, a model.Action, e *model.Event) (outcome, bool) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	err := s.conflicts.Check(cctx, e.StartTime, e.EndTime, e.PlaceIDs, e.ID)
	if err == nil {
		return outcome{}, true
	}
	var conflict *schedule.ConflictError
	if errors.As(err, &conflict) {
		return s.invalid(ctx, t, a, CodeConflict, conflictText(conflict.Conflicts)), false
	}
	return s.upstream(ctx, t, a, "events", err), false
}

func (s *AssistantService) outdoor(a model.Action, res intent.Result, e *model.Event) bool {
	if v, ok := a.Args["outdoor"].(bool); ok {
		return v
	}
	if res.Outdoor {
		return true
	}
	return s.classifier.IsOutdoor(e.Title + " " + e.EventType + " " + e.Description)
}

// weatherGate parks e for confirmation when rain is likely.
func (s *AssistantService) weatherGate(ctx context.Context, t *turn, a model.Action, e *model.Event, place model.Place) (outcome, bool) {
	loc := weather.Location{Label: place.Name, Latitude: place.Latitude, Longitude: place.Longitude}
	warning, risky := s.weather.Assess(ctx, e.StartTime, loc, e.EventType)
	if !risky {
		return outcome{}, false
	}
	pe := &model.PendingEvent{
		UserID:    t.userID,
		Tool:      a.Tool,
		Event:     *e,
		Warning:   warning,
		CreatedAt: s.now(),
	}
	s.state.PutPendingEvent(pe)
	s.record(ctx, t, model.AuditSoftWarning, CodeWeatherRisk, a.Summary(), map[string]any{"warning": warning})
	t.log.Info("event parked on weather warning", zap.String("action", a.Summary()))

	view := *e
	return outcome{
		ActionResult: model.ActionResult{
			Tool:    a.Tool,
			Outcome: model.OutcomeSoftWarning,
			Code:    CodeWeatherRisk,
			Message: warning + "\n" + replyConfirmPrompt,
		},
		pending: &model.PendingView{Kind: "event", Warning: warning, Event: &view},
	}, true
}

func (s *AssistantService) target(ctx context.Context, t *turn, a model.Action) (*model.Event, outcome, bool) {
	id, _ := a.Args.Int64("event_id")
	title := a.Args.String("original_title")
	if title == "" {
		title = a.Args.String("title")
	}
	cctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	e, err := s.events.Target(cctx, t.userID, id, title)
	switch {
	case err == nil:
		return e, outcome{}, true
	case errors.Is(err, commit.ErrEventNotFound):
		return nil, s.invalid(ctx, t, a, CodeEventNotFound, replyEventNotFound), false
	case errors.Is(err, commit.ErrNotOwner):
		return nil, s.invalid(ctx, t, a, CodeNotOwner, replyNotOwner), false
	default:
		return nil, s.upstream(ctx, t, a, "events", err), false
	}
}

func (s *AssistantService) create(ctx context.Context, t *turn, a model.Action, e *model.Event) outcome {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	out, err := s.events.Create(cctx, e)
	if err != nil {
		return s.writeFailed(ctx, t, a, e, err)
	}
	s.record(ctx, t, model.AuditCommitted, "", a.Summary(), map[string]any{"event_id": out.ID})
	return committed(a, createdText(out), model.CreatedRef{Kind: "event", ID: strconv.FormatInt(out.ID, 10)})
}

func (s *AssistantService) update(ctx context.Context, t *turn, a model.Action, e *model.Event) outcome {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	out, err := s.events.Update(cctx, e)
	if err != nil {
		return s.writeFailed(ctx, t, a, e, err)
	}
	s.record(ctx, t, model.AuditCommitted, "", a.Summary(), map[string]any{"event_id": out.ID})
	return committed(a, updatedText(out), model.CreatedRef{Kind: "event", ID: strconv.FormatInt(out.ID, 10)})
}

// writeFailed reports a failed event write. A slot booked by someone else
// between the conflict check and the write is a conflict, not a failure.
func (s *AssistantService) writeFailed(ctx context.Context, t *turn, a model.Action, e *model.Event, err error) outcome {
	if !errors.Is(err, store.ErrSlotTaken) {
		return s.commitFailed(ctx, t, a, err)
	}
	if o, ok := s.checkConflicts(ctx, t, a, e); !ok {
		return o
	}
	return s.invalid(ctx, t, a, CodeConflict, conflictText(nil))
}

func committed(a model.Action, msg string, refs ...model.CreatedRef) outcome {
	return outcome{ActionResult: model.ActionResult{
		Tool:    a.Tool,
		Outcome: model.OutcomeCommitted,
		Message: msg,
		Created: refs,
	}}
}

func (s *AssistantService) invalid(ctx context.Context, t *turn, a model.Action, code, msg string) outcome {
	metrics.ValidationFailuresTotal.WithLabelValues(code).Inc()
	s.record(ctx, t, model.AuditValidation, code, a.Summary(), nil)
	t.log.Info("action failed validation", zap.String("action", a.Summary()), zap.String("code", code))
	return outcome{ActionResult: model.ActionResult{
		Tool:    a.Tool,
		Outcome: model.OutcomeValidation,
		Code:    code,
		Message: msg,
	}}
}

func (s *AssistantService) fieldRejected(ctx context.Context, t *turn, a model.Action, field string, err error) outcome {
	t.log.Warn("action field rejected", zap.String("field", field), zap.Error(err))
	s.record(ctx, t, model.AuditRejected, CodeInvalidField, a.Summary(), map[string]any{"field": field})
	return s.invalid(ctx, t, a, CodeInvalidField, invalidFieldText(field))
}

func (s *AssistantService) commitFailed(ctx context.Context, t *turn, a model.Action, err error) outcome {
	s.record(ctx, t, model.AuditCommitError, CodeCommitFailed, a.Summary(), map[string]any{"error": err.Error()})
	t.log.Error("commit failed", zap.String("action", a.Summary()), zap.Error(err))
	return outcome{ActionResult: model.ActionResult{
		Tool:    a.Tool,
		Outcome: model.OutcomeCommitFailed,
		Code:    CodeCommitFailed,
		Message: commitFailedText(err),
	}}
}

func (s *AssistantService) upstream(ctx context.Context, t *turn, a model.Action, collaborator string, err error) outcome {
	metrics.RecordUpstreamFailure(collaborator)
	t.log.Error("collaborator unavailable",
		zap.String("collaborator", collaborator),
		zap.String("action", a.Summary()),
		zap.Error(err))
	return outcome{ActionResult: model.ActionResult{
		Tool:    a.Tool,
		Outcome: model.OutcomeUpstream,
		Code:    CodeUpstream,
		Message: replyUpstream,
	}}
}
