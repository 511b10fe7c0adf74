package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/event-assistant/internal/middleware"
	"github.com/capitalize-ai/event-assistant/internal/model"
	"github.com/capitalize-ai/event-assistant/internal/ratelimit"
	"github.com/capitalize-ai/event-assistant/internal/service"
)

type fakeAssistant struct {
	lastChat model.ChatRequest
	chatResp *model.ChatResponse
	err      error
	pending  *model.PendingView
	limit    *model.LimitStatus
}

func (f *fakeAssistant) Handle(_ context.Context, req model.ChatRequest) (*model.ChatResponse, error) {
	f.lastChat = req
	return f.chatResp, f.err
}

func (f *fakeAssistant) Translate(_ context.Context, _ string, req model.TranslateRequest) (*model.TranslateResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.TranslateResponse{Translation: "hello", TargetLanguage: req.TargetLanguage}, nil
}

func (f *fakeAssistant) LimitStatus(_ context.Context, _ string, feature ratelimit.Feature) (*model.LimitStatus, error) {
	if feature != ratelimit.FeatureChat {
		return nil, ratelimit.ErrUnknownFeature
	}
	return f.limit, nil
}

func (f *fakeAssistant) Pending(context.Context, string) (*model.PendingView, bool) {
	return f.pending, f.pending != nil
}

func (f *fakeAssistant) CancelPending(context.Context, string) bool {
	ok := f.pending != nil
	f.pending = nil
	return ok
}

func (f *fakeAssistant) SessionHistory(_ context.Context, _, sessionID string, _ int) (*model.ListTurnsResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.ListTurnsResponse{SessionID: sessionID, Turns: []model.Turn{}}, nil
}

func router(a Assistant) http.Handler {
	h := NewAssistantHandler(a, nil)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithUserID(r.Context(), "u1")))
		})
	})
	r.Post("/chat", h.Chat)
	r.Post("/translate", h.Translate)
	r.Get("/limits/{feature}", h.Limit)
	r.Get("/pending", h.Pending)
	r.Delete("/pending", h.CancelPending)
	r.Get("/sessions/{id}/turns", h.History)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestChat(t *testing.T) {
	fa := &fakeAssistant{chatResp: &model.ChatResponse{SessionID: "s1", Reply: "xin chào", Outcome: model.OutcomeConversational}}
	rec := do(t, router(fa), http.MethodPost, "/chat", `{"session_id": "s1", "message": "chào"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", fa.lastChat.UserID)
	assert.Equal(t, "chào", *fa.lastChat.Message)

	var resp model.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "xin chào", resp.Reply)
}

func TestChat_BadRequests(t *testing.T) {
	h := router(&fakeAssistant{})
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/chat", `{`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/chat", `{"session_id": "../x", "message": "hi"}`).Code)
}

func TestChat_RateLimited(t *testing.T) {
	reset := time.Now().Add(30 * time.Second)
	fa := &fakeAssistant{err: &service.RejectionError{
		Kind:   service.KindRateLimited,
		Code:   service.CodeRateLimited,
		Reason: "quota",
		Status: &ratelimit.Status{Feature: ratelimit.FeatureChat, Limit: 30, Remaining: 0, ResetAt: reset},
		Err:    ratelimit.ErrLimited,
	}}
	rec := do(t, router(fa), http.MethodPost, "/chat", `{"message": "hi"}`)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var env model.RejectionEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.True(t, env.Rejected)
	assert.Equal(t, service.CodeRateLimited, env.Code)
	assert.Equal(t, 30, env.Limit)
	require.NotNil(t, env.Remaining)
	assert.Zero(t, *env.Remaining)
	assert.Greater(t, env.RetryAfter, 0)
	assert.LessOrEqual(t, env.RetryAfter, 30)
}

func TestChat_RejectedInput(t *testing.T) {
	fa := &fakeAssistant{err: &service.RejectionError{Kind: service.KindRejectedInput, Code: "malicious_content", Reason: "bad"}}
	rec := do(t, router(fa), http.MethodPost, "/chat", `{"message": "x"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var env model.RejectionEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.True(t, env.Rejected)
	assert.Nil(t, env.Remaining)
	assert.Empty(t, rec.Header().Get("Retry-After"))
}

func TestTranslate_Upstream(t *testing.T) {
	fa := &fakeAssistant{err: errors.Join(service.ErrUpstream, errors.New("timeout"))}
	rec := do(t, router(fa), http.MethodPost, "/translate", `{"text": "xin chào"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLimit(t *testing.T) {
	fa := &fakeAssistant{limit: &model.LimitStatus{Feature: "chat", Limit: 30, Remaining: 29}}
	h := router(fa)

	rec := do(t, h, http.MethodGet, "/limits/chat", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"remaining":29`)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/limits/uploads", "").Code)
}

func TestPending(t *testing.T) {
	fa := &fakeAssistant{pending: &model.PendingView{Kind: "event", Warning: "mưa"}}
	h := router(fa)

	rec := do(t, h, http.MethodGet, "/pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"event"`)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/pending", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/pending", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/pending", "").Code)
}

func TestHistory(t *testing.T) {
	h := router(&fakeAssistant{})
	rec := do(t, h, http.MethodGet, "/sessions/s1/turns?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"session_id":"s1"`)
}

func TestReady(t *testing.T) {
	ok := NewHealthHandler(map[string]Pinger{"db": PingFunc(func(context.Context) error { return nil }), "nats": nil})
	rec := httptest.NewRecorder()
	ok.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	down := NewHealthHandler(map[string]Pinger{"db": PingFunc(func(context.Context) error { return errors.New("down") })})
	rec = httptest.NewRecorder()
	down.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "db unavailable")
}
