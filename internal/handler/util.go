package handler

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/capitalize-ai/event-assistant/internal/model"
	"github.com/capitalize-ai/event-assistant/internal/service"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeRejection writes the rejection envelope: 429 with retry metadata
// for quota refusals, 400 otherwise.
func writeRejection(w http.ResponseWriter, rej *service.RejectionError, now time.Time) {
	env := model.RejectionEnvelope{
		Rejected: true,
		Code:     rej.Code,
		Reason:   rej.Reason,
	}
	status := http.StatusBadRequest
	if rej.Kind == service.KindRateLimited {
		status = http.StatusTooManyRequests
	}
	if st := rej.Status; st != nil {
		retry := int(math.Ceil(st.RetryAfter(now).Seconds()))
		if retry < 1 {
			retry = 1
		}
		remaining := st.Remaining
		resetAt := st.ResetAt
		env.RetryAfter = retry
		env.Limit = st.Limit
		env.Remaining = &remaining
		env.ResetAt = &resetAt
		w.Header().Set("Retry-After", strconv.Itoa(retry))
	}
	writeJSON(w, status, env)
}

// writeServiceError maps pipeline errors to responses.
func (h *AssistantHandler) writeServiceError(w http.ResponseWriter, err error) {
	var rej *service.RejectionError
	switch {
	case errors.As(err, &rej):
		writeRejection(w, rej, h.now())
	case errors.Is(err, service.ErrUpstream):
		writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
