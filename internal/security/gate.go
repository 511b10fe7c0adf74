// Package security validates and sanitizes untrusted text before it enters
// the assistant pipeline, and model output before it reaches a user.
package security

import (
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/capitalize-ai/event-assistant/pkg/logger"
	"github.com/capitalize-ai/event-assistant/pkg/metrics"
)

// Reason is a machine-readable rejection code.
type Reason string

const (
	ReasonEmpty         Reason = "empty_input"
	ReasonTooLong       Reason = "too_long"
	ReasonMalicious     Reason = "malicious_content"
	ReasonInvalidFormat Reason = "invalid_format"
	ReasonUnknownType   Reason = "unknown_input_type"
)

const excerptLen = 50

// RejectionError is returned when input fails validation.
type RejectionError struct {
	Reason    Reason
	InputType InputType
	// Pattern names the matching pattern family for ReasonMalicious.
	Pattern string
}

func (e *RejectionError) Error() string {
	if e.Pattern != "" {
		return fmt.Sprintf("%s rejected: %s (%s)", e.InputType, e.Reason, e.Pattern)
	}
	return fmt.Sprintf("%s rejected: %s", e.InputType, e.Reason)
}

// Gate applies the rule table. It is safe for concurrent use.
type Gate struct {
	rules map[InputType]Rule
	log   *logger.Logger
}

// NewGate creates a gate. A nil rules table uses DefaultRules.
func NewGate(rules map[InputType]Rule, log *logger.Logger) *Gate {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Gate{rules: rules, log: logger.OrNop(log).Named("security")}
}

// Validate checks input against the rule for t and returns the sanitized
// value. A nil input is rejected as empty.
func (g *Gate) Validate(input *string, t InputType) (string, error) {
	rule, ok := g.rules[t]
	if !ok {
		return "", g.reject(t, ReasonUnknownType, "", "")
	}
	if input == nil {
		return "", g.reject(t, ReasonEmpty, "", "")
	}
	raw := *input
	if rule.MaxLen > 0 && utf8.RuneCountInString(raw) > rule.MaxLen {
		return "", g.reject(t, ReasonTooLong, "", raw)
	}
	if name, bad := matchMalicious(raw); bad {
		return "", g.reject(t, ReasonMalicious, name, raw)
	}

	clean := raw
	if rule.Sanitize != nil {
		clean = rule.Sanitize(raw)
	}
	if clean == "" {
		return "", g.reject(t, ReasonEmpty, "", raw)
	}
	if rule.Format != nil && !rule.Format.MatchString(clean) {
		return "", g.reject(t, ReasonInvalidFormat, "", raw)
	}
	return clean, nil
}

// ValidateString is Validate for a non-nil value.
func (g *Gate) ValidateString(input string, t InputType) (string, error) {
	return g.Validate(&input, t)
}

// ValidateOutput checks model output before it is shown to a user.
func (g *Gate) ValidateOutput(text string) (string, error) {
	return g.Validate(&text, InputModelOutput)
}

func (g *Gate) reject(t InputType, reason Reason, pattern, raw string) error {
	metrics.SecurityRejectionsTotal.WithLabelValues(string(t), string(reason)).Inc()
	g.log.Warn("input rejected",
		zap.String("input_type", string(t)),
		zap.String("reason", string(reason)),
		zap.String("pattern", pattern),
		zap.String("excerpt", Excerpt(raw)),
	)
	return &RejectionError{Reason: reason, InputType: t, Pattern: pattern}
}

// Excerpt truncates s to a short prefix for audit logs.
func Excerpt(s string) string {
	if utf8.RuneCountInString(s) <= excerptLen {
		return s
	}
	r := []rune(s)
	return string(r[:excerptLen]) + "…"
}
