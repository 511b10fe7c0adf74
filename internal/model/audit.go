package model

import (
	"time"
)

// AuditKind represents the type of audit record.
type AuditKind string

const (
	AuditRejected    AuditKind = "rejected"
	AuditRateLimited AuditKind = "rate_limited"
	AuditValidation  AuditKind = "validation_failed"
	AuditSoftWarning AuditKind = "soft_warning"
	AuditCommitted   AuditKind = "committed"
	AuditCommitError AuditKind = "commit_failed"
	AuditCancelled   AuditKind = "cancelled"
)

// AuditEvent records a rejection, warning or commit for later review.
type AuditEvent struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	SessionID string         `json:"session_id,omitempty"`
	Kind      AuditKind      `json:"kind"`
	Code      string         `json:"code,omitempty"`
	Summary   string         `json:"summary"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Sequence  uint64         `json:"sequence,omitempty"`
}
