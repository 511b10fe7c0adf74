// Package service runs the assistant pipeline: gate, quota, pending-reply
// routing, intent, extraction, validation and commit.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/event-assistant/internal/commit"
	"github.com/capitalize-ai/event-assistant/internal/conversation"
	"github.com/capitalize-ai/event-assistant/internal/extract"
	"github.com/capitalize-ai/event-assistant/internal/intent"
	"github.com/capitalize-ai/event-assistant/internal/llm"
	"github.com/capitalize-ai/event-assistant/internal/model"
	"github.com/capitalize-ai/event-assistant/internal/ordering"
	"github.com/capitalize-ai/event-assistant/internal/ratelimit"
	"github.com/capitalize-ai/event-assistant/internal/schedule"
	"github.com/capitalize-ai/event-assistant/internal/security"
	"github.com/capitalize-ai/event-assistant/internal/venue"
	"github.com/capitalize-ai/event-assistant/internal/weather"
	"github.com/capitalize-ai/event-assistant/pkg/logger"
	"github.com/capitalize-ai/event-assistant/pkg/metrics"
	"github.com/capitalize-ai/event-assistant/pkg/tracing"
)

// Config tunes the pipeline.
type Config struct {
	// HistoryTurns is how many recent turns are sent to the model.
	HistoryTurns int
	// CallTimeout bounds each persistence and venue lookup.
	CallTimeout time.Duration
	// DefaultDuration is used when an event has no end time.
	DefaultDuration time.Duration
	// TranslateModel and TranslateTimeout configure translation calls.
	TranslateModel   string
	TranslateTimeout time.Duration
	// Tokens are the yes/no allow-lists for confirmations.
	Tokens conversation.Tokens
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{
		HistoryTurns:     10,
		CallTimeout:      5 * time.Second,
		DefaultDuration:  2 * time.Hour,
		TranslateTimeout: 20 * time.Second,
		Tokens:           conversation.DefaultTokens(),
	}
}

// Deps are the components the pipeline composes.
type Deps struct {
	Gate       *security.Gate
	Limiter    *ratelimit.Limiter
	Classifier *intent.Classifier
	Extractor  *extract.Extractor
	Venues     *venue.Resolver
	Conflicts  *schedule.Detector
	Weather    *weather.Advisor
	State      *conversation.Store
	Orders     *ordering.Negotiator
	Events     *commit.EventExecutor
	History    History
	// Audit may be nil.
	Audit Auditor
	// LLM serves translation. It may be nil when translation is disabled.
	LLM llm.Client
}

// AssistantService handles conversational turns.
type AssistantService struct {
	gate       *security.Gate
	limiter    *ratelimit.Limiter
	classifier *intent.Classifier
	extractor  *extract.Extractor
	venues     *venue.Resolver
	conflicts  *schedule.Detector
	weather    *weather.Advisor
	state      *conversation.Store
	orders     *ordering.Negotiator
	events     *commit.EventExecutor
	history    History
	audit      Auditor
	llm        llm.Client
	cfg        Config
	now        func() time.Time
	tracer     trace.Tracer
	log        *logger.Logger
}

// NewAssistantService creates the service.
func NewAssistantService(deps Deps, cfg Config, log *logger.Logger) *AssistantService {
	def := DefaultConfig()
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = def.HistoryTurns
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = def.DefaultDuration
	}
	if cfg.TranslateTimeout <= 0 {
		cfg.TranslateTimeout = def.TranslateTimeout
	}
	if len(cfg.Tokens.Affirmative) == 0 || len(cfg.Tokens.Negative) == 0 {
		cfg.Tokens = def.Tokens
	}
	history := deps.History
	if history == nil {
		history = NewMemoryHistory(0)
	}
	return &AssistantService{
		gate:       deps.Gate,
		limiter:    deps.Limiter,
		classifier: deps.Classifier,
		extractor:  deps.Extractor,
		venues:     deps.Venues,
		conflicts:  deps.Conflicts,
		weather:    deps.Weather,
		state:      deps.State,
		orders:     deps.Orders,
		events:     deps.Events,
		history:    history,
		audit:      deps.Audit,
		llm:        deps.LLM,
		cfg:        cfg,
		now:        time.Now,
		tracer:     tracing.Tracer("assistant"),
		log:        logger.OrNop(log).Named("assistant"),
	}
}

// turn carries per-request context through the pipeline.
type turn struct {
	userID    string
	sessionID string
	log       *logger.Logger
}

func (s *AssistantService) newTurn(ctx context.Context, userID, sessionID string) *turn {
	return &turn{
		userID:    userID,
		sessionID: sessionID,
		log:       s.log.WithContext(chimw.GetReqID(ctx), userID, sessionID),
	}
}

// Handle processes one user message. Security and quota refusals are
// returned as *RejectionError; every other outcome, failures included, is
// a reply.
func (s *AssistantService) Handle(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error) {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	ctx, span := s.tracer.Start(ctx, "assistant.handle",
		trace.WithAttributes(attribute.String("session_id", req.SessionID)))
	defer span.End()
	t := s.newTurn(ctx, req.UserID, req.SessionID)

	text, err := s.gate.Validate(req.Message, security.InputChat)
	if err != nil {
		return nil, s.rejectInput(ctx, t, err)
	}
	content := text
	if req.Attachment != "" {
		attachment, err := s.gate.ValidateString(req.Attachment, security.InputURL)
		if err != nil {
			return nil, s.rejectInput(ctx, t, err)
		}
		content += "\n[Tệp đính kèm: " + attachment + "]"
	}
	if err := s.allow(ctx, t, ratelimit.FeatureChat); err != nil {
		return nil, err
	}

	unlock := s.state.Lock(req.UserID)
	defer unlock()
	defer s.reportPending()

	resp, err := s.respond(ctx, t, text, content)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	resp.SessionID = req.SessionID
	resp.Reply = s.safeReply(t, resp.Reply)
	s.remember(ctx, t, model.RoleAssistant, resp.Reply)
	span.SetAttributes(attribute.String("outcome", string(resp.Outcome)))
	return resp, nil
}

// respond routes the message: a pending operation consumes it as a reply,
// otherwise it is classified and sent to the model.
func (s *AssistantService) respond(ctx context.Context, t *turn, text, content string) (*model.ChatResponse, error) {
	if pe, ok := s.state.PendingEvent(t.userID); ok {
		s.remember(ctx, t, model.RoleUser, content)
		return s.answerPendingEvent(ctx, t, pe, text), nil
	}
	if po, ok := s.state.PendingOrder(t.userID); ok {
		s.remember(ctx, t, model.RoleUser, content)
		return s.answerPendingOrder(ctx, t, po, text), nil
	}

	_, span := s.tracer.Start(ctx, "assistant.classify")
	res := s.classifier.Classify(ctx, text, intent.Context{})
	span.SetAttributes(
		attribute.String("category", string(res.Category)),
		attribute.String("source", string(res.Source)),
		attribute.Bool("outdoor", res.Outdoor))
	span.End()
	t.log.Debug("intent classified",
		zap.String("category", string(res.Category)),
		zap.String("source", string(res.Source)),
		zap.Float64("confidence", res.Confidence))

	if res.Category.Mutating() {
		if err := s.allow(ctx, t, ratelimit.FeatureEventAssistant); err != nil {
			return nil, err
		}
	}

	s.remember(ctx, t, model.RoleUser, content)
	history := s.recent(ctx, t, content)

	ectx, span := s.tracer.Start(ctx, "assistant.extract")
	actions, prose, err := s.extractor.Extract(ectx, history)
	span.End()
	if err != nil {
		metrics.RecordUpstreamFailure("llm")
		t.log.Warn("extraction failed", zap.Error(err))
		return &model.ChatResponse{
			Reply:   replyModelUnavailable,
			Outcome: model.OutcomeUpstream,
			Code:    CodeModelUnavailable,
		}, nil
	}
	if len(actions) == 0 {
		if strings.TrimSpace(prose) == "" {
			prose = replyHelp
		}
		return &model.ChatResponse{Reply: prose, Outcome: model.OutcomeConversational}, nil
	}
	return s.runActions(ctx, t, actions, res), nil
}

// runActions applies actions in order. The first one that parks or fails
// stops the rest, which are reported as skipped.
func (s *AssistantService) runActions(ctx context.Context, t *turn, actions []model.Action, res intent.Result) *model.ChatResponse {
	resp := &model.ChatResponse{Outcome: model.OutcomeCommitted}
	var lines []string
	stopped := false
	for _, a := range actions {
		if stopped {
			resp.Actions = append(resp.Actions, model.ActionResult{Tool: a.Tool, Outcome: model.OutcomeSkipped, Message: replySkipped})
			continue
		}
		o := s.apply(ctx, t, a, res)
		resp.Actions = append(resp.Actions, o.ActionResult)
		resp.Created = append(resp.Created, o.Created...)
		lines = append(lines, o.Message)
		if o.pending != nil {
			resp.Pending = o.pending
		}
		if o.Outcome != model.OutcomeCommitted {
			resp.Outcome = o.Outcome
			resp.Code = o.Code
			stopped = true
		}
	}
	if n := len(resp.Actions) - len(lines); n > 0 {
		lines = append(lines, skippedText(n))
	}
	resp.Reply = strings.Join(lines, "\n")
	return resp
}

func (s *AssistantService) answerPendingEvent(ctx context.Context, t *turn, pe *model.PendingEvent, text string) *model.ChatResponse {
	a := model.Action{Tool: pe.Tool, Args: model.Args{"title": pe.Event.Title}}
	switch conversation.ParseConfirmation(text, s.cfg.Tokens) {
	case conversation.Yes:
		s.state.ClearPendingEvent(t.userID)
		e := pe.Event
		if o, ok := s.checkConflicts(ctx, t, a, &e); !ok {
			return single(o)
		}
		if pe.Tool == model.ToolUpdateEvent {
			return single(s.update(ctx, t, a, &e))
		}
		return single(s.create(ctx, t, a, &e))
	case conversation.No:
		s.state.ClearPendingEvent(t.userID)
		s.record(ctx, t, model.AuditCancelled, "", a.Summary(), nil)
		t.log.Info("pending event discarded", zap.String("action", a.Summary()))
		return &model.ChatResponse{
			Reply:   discardedText(pe),
			Outcome: model.OutcomeCancelled,
			Actions: []model.ActionResult{{Tool: pe.Tool, Outcome: model.OutcomeCancelled, Message: discardedText(pe)}},
		}
	default:
		ev := pe.Event
		return &model.ChatResponse{
			Reply:   replyConfirmPrompt + "\n" + pe.Warning,
			Outcome: model.OutcomeAwaitingInput,
			Code:    CodeWeatherRisk,
			Pending: &model.PendingView{Kind: "event", Warning: pe.Warning, Event: &ev},
		}
	}
}

func (s *AssistantService) answerPendingOrder(ctx context.Context, t *turn, po *model.PendingOrder, text string) *model.ChatResponse {
	a := model.Action{Tool: model.ToolOrderTicket, Args: model.Args{"title": po.EventTitle}}
	cctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	res, err := s.orders.Advance(cctx, po, text)
	if err != nil {
		var incomplete *ordering.IncompleteError
		var cerr *commit.Error
		switch {
		case errors.As(err, &incomplete):
			s.state.ClearPendingOrder(t.userID)
			return single(s.invalid(ctx, t, a, CodeIncomplete, incompleteText(incomplete.Missing)))
		case errors.As(err, &cerr):
			s.state.ClearPendingOrder(t.userID)
			return single(s.commitFailed(ctx, t, a, err))
		default:
			return single(s.upstream(ctx, t, a, "orders", err))
		}
	}
	return single(s.orderResult(ctx, t, a, res))
}

func (s *AssistantService) orderResult(ctx context.Context, t *turn, a model.Action, res *ordering.Result) outcome {
	switch res.Status {
	case ordering.Committed:
		s.state.ClearPendingOrder(t.userID)
		created := []model.CreatedRef{{Kind: "order", ID: res.Receipt.Order.ID}}
		if res.Receipt.Payment != nil {
			created = append(created, model.CreatedRef{Kind: "payment", ID: res.Receipt.Payment.Reference, URL: res.Receipt.Payment.URL})
		}
		s.record(ctx, t, model.AuditCommitted, "", a.Summary(), map[string]any{"order_id": res.Receipt.Order.ID})
		return outcome{ActionResult: model.ActionResult{Tool: a.Tool, Outcome: model.OutcomeCommitted, Message: res.Prompt, Created: created}}
	case ordering.Cancelled:
		s.state.ClearPendingOrder(t.userID)
		s.record(ctx, t, model.AuditCancelled, "", a.Summary(), nil)
		return outcome{ActionResult: model.ActionResult{Tool: a.Tool, Outcome: model.OutcomeCancelled, Message: res.Prompt}}
	default:
		s.state.PutPendingOrder(res.Order)
		order := res.Order.Clone()
		return outcome{
			ActionResult: model.ActionResult{Tool: a.Tool, Outcome: model.OutcomeAwaitingInput, Message: res.Prompt},
			pending:      &model.PendingView{Kind: "order", Order: order},
		}
	}
}

// Pending returns the user's pending operation, if any.
func (s *AssistantService) Pending(_ context.Context, userID string) (*model.PendingView, bool) {
	unlock := s.state.Lock(userID)
	defer unlock()
	if pe, ok := s.state.PendingEvent(userID); ok {
		return &model.PendingView{Kind: "event", Warning: pe.Warning, Event: &pe.Event}, true
	}
	if po, ok := s.state.PendingOrder(userID); ok {
		return &model.PendingView{Kind: "order", Order: po}, true
	}
	return nil, false
}

// CancelPending discards the user's pending operations and reports
// whether there were any.
func (s *AssistantService) CancelPending(ctx context.Context, userID string) bool {
	unlock := s.state.Lock(userID)
	defer unlock()
	defer s.reportPending()
	ev := s.state.ClearPendingEvent(userID)
	or := s.state.ClearPendingOrder(userID)
	if ev || or {
		t := s.newTurn(ctx, userID, "")
		s.record(ctx, t, model.AuditCancelled, "", "pending operation cancelled by user", nil)
		t.log.Info("pending operation cancelled")
	}
	return ev || or
}

// LimitStatus returns the user's quota for a feature without counting a
// request.
func (s *AssistantService) LimitStatus(ctx context.Context, userID string, feature ratelimit.Feature) (*model.LimitStatus, error) {
	st, err := s.limiter.Status(ctx, userID, feature)
	if err != nil {
		return nil, err
	}
	return &model.LimitStatus{
		Feature:   string(st.Feature),
		Limit:     st.Limit,
		Remaining: st.Remaining,
		ResetAt:   st.ResetAt,
	}, nil
}

// SessionHistory returns the last limit turns of a session.
func (s *AssistantService) SessionHistory(ctx context.Context, userID, sessionID string, limit int) (*model.ListTurnsResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	turns, err := s.history.Recent(ctx, userID, sessionID, limit)
	if err != nil {
		return nil, errors.Join(ErrUpstream, err)
	}
	if turns == nil {
		turns = []model.Turn{}
	}
	return &model.ListTurnsResponse{SessionID: sessionID, Turns: turns}, nil
}

// Sweep evicts idle pending operations and elapsed rate-limit counters
// and returns how many of each were removed.
func (s *AssistantService) Sweep(now time.Time) (pending, counters int) {
	pending = s.state.Sweep(now)
	s.reportPending()
	return pending, s.limiter.Sweep(now)
}

func (s *AssistantService) allow(ctx context.Context, t *turn, feature ratelimit.Feature) error {
	st, err := s.limiter.Allow(ctx, t.userID, feature)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ratelimit.ErrLimited) {
		t.log.Error("rate limiter misconfigured", zap.String("feature", string(feature)), zap.Error(err))
		return nil
	}
	s.record(ctx, t, model.AuditRateLimited, CodeRateLimited, string(feature), map[string]any{
		"limit":    st.Limit,
		"reset_at": st.ResetAt,
	})
	return &RejectionError{
		Kind:   KindRateLimited,
		Code:   CodeRateLimited,
		Reason: rateLimitedText(feature),
		Status: &st,
		Err:    err,
	}
}

func (s *AssistantService) rejectInput(ctx context.Context, t *turn, err error) error {
	code := "rejected_input"
	var rej *security.RejectionError
	if errors.As(err, &rej) {
		code = string(rej.Reason)
	}
	s.record(ctx, t, model.AuditRejected, code, "input rejected", nil)
	return &RejectionError{Kind: KindRejectedInput, Code: code, Reason: rejectedText(code), Err: err}
}

func (s *AssistantService) remember(ctx context.Context, t *turn, role model.Role, content string) {
	rec := newTurn(t.userID, t.sessionID, role, content, s.now())
	if err := s.history.Append(ctx, rec); err != nil {
		metrics.RecordUpstreamFailure("history")
		t.log.Warn("turn not recorded", zap.String("role", string(role)), zap.Error(err))
	}
}

// recent loads the context sent to the model. The current message is
// always last, even when the history store is unavailable.
func (s *AssistantService) recent(ctx context.Context, t *turn, content string) []model.Turn {
	history, err := s.history.Recent(ctx, t.userID, t.sessionID, s.cfg.HistoryTurns)
	if err != nil {
		metrics.RecordUpstreamFailure("history")
		t.log.Warn("history unavailable", zap.Error(err))
		history = nil
	}
	if n := len(history); n == 0 || history[n-1].Role != model.RoleUser || history[n-1].Content != content {
		history = append(history, model.Turn{UserID: t.userID, SessionID: t.sessionID, Role: model.RoleUser, Content: content})
	}
	return history
}

// safeReply passes a reply through the output gate.
func (s *AssistantService) safeReply(t *turn, reply string) string {
	out, err := s.gate.ValidateOutput(reply)
	if err != nil {
		t.log.Warn("reply withheld by output gate", zap.Error(err))
		return replyWithheld
	}
	return out
}

func (s *AssistantService) reportPending() {
	metrics.SetPending(s.state.Len())
}
