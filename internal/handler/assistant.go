// Package handler provides HTTP handlers for the API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/event-assistant/internal/middleware"
	"github.com/capitalize-ai/event-assistant/internal/model"
	"github.com/capitalize-ai/event-assistant/internal/ratelimit"
	"github.com/capitalize-ai/event-assistant/pkg/logger"
)

// Assistant is the pipeline served over HTTP.
type Assistant interface {
	Handle(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error)
	Translate(ctx context.Context, userID string, req model.TranslateRequest) (*model.TranslateResponse, error)
	LimitStatus(ctx context.Context, userID string, feature ratelimit.Feature) (*model.LimitStatus, error)
	Pending(ctx context.Context, userID string) (*model.PendingView, bool)
	CancelPending(ctx context.Context, userID string) bool
	SessionHistory(ctx context.Context, userID, sessionID string, limit int) (*model.ListTurnsResponse, error)
}

// AssistantHandler handles the assistant endpoints.
type AssistantHandler struct {
	assistant Assistant
	logger    *logger.Logger
	now       func() time.Time
}

// NewAssistantHandler creates a new assistant handler.
func NewAssistantHandler(a Assistant, log *logger.Logger) *AssistantHandler {
	return &AssistantHandler{
		assistant: a,
		logger:    logger.OrNop(log).Named("handler"),
		now:       time.Now,
	}
}

// Chat handles POST /api/v1/assistant/chat
func (h *AssistantHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID != "" {
		if err := middleware.ValidateSessionID(req.SessionID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	req.UserID = middleware.GetUserID(ctx)

	resp, err := h.assistant.Handle(ctx, req)
	if err != nil {
		h.logError("chat failed", r, err)
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Translate handles POST /api/v1/assistant/translate
func (h *AssistantHandler) Translate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.TranslateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.assistant.Translate(ctx, middleware.GetUserID(ctx), req)
	if err != nil {
		h.logError("translation failed", r, err)
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Limit handles GET /api/v1/assistant/limits/{feature}
func (h *AssistantHandler) Limit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	feature := ratelimit.Feature(chi.URLParam(r, "feature"))

	st, err := h.assistant.LimitStatus(ctx, middleware.GetUserID(ctx), feature)
	if errors.Is(err, ratelimit.ErrUnknownFeature) {
		writeError(w, http.StatusNotFound, "unknown feature")
		return
	}
	if err != nil {
		h.logError("limit status failed", r, err)
		writeError(w, http.StatusServiceUnavailable, "rate limit status unavailable")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Pending handles GET /api/v1/assistant/pending
func (h *AssistantHandler) Pending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, ok := h.assistant.Pending(ctx, middleware.GetUserID(ctx))
	if !ok {
		writeError(w, http.StatusNotFound, "nothing pending")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// CancelPending handles DELETE /api/v1/assistant/pending
func (h *AssistantHandler) CancelPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.assistant.CancelPending(ctx, middleware.GetUserID(ctx)) {
		writeError(w, http.StatusNotFound, "nothing pending")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// History handles GET /api/v1/assistant/sessions/{id}/turns
func (h *AssistantHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	resp, err := h.assistant.SessionHistory(ctx, middleware.GetUserID(ctx), sessionID, limit)
	if err != nil {
		h.logError("history failed", r, err)
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AssistantHandler) logError(msg string, r *http.Request, err error) {
	h.logger.Warn(msg,
		zap.String("path", r.URL.Path),
		zap.String("user_id", middleware.GetUserID(r.Context())),
		zap.Error(err))
}
