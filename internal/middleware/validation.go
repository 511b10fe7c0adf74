package middleware

import (
	"errors"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

var sessionIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateSessionID accepts UUIDs and short opaque client tokens.
func ValidateSessionID(id string) error {
	if _, err := uuid.Parse(id); err == nil {
		return nil
	}
	if !sessionIDRe.MatchString(id) {
		return errors.New("invalid session ID format")
	}
	return nil
}

// MaxBodySize limits request bodies to n bytes.
func MaxBodySize(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > n {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}
