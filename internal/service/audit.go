package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/event-assistant/internal/model"
	natsclient "github.com/capitalize-ai/event-assistant/internal/nats"
)

// Auditor records rejections, warnings and commits.
type Auditor interface {
	Publish(ctx context.Context, event *model.AuditEvent) error
}

// JetStreamAuditor publishes audit events on the assistant stream.
type JetStreamAuditor struct {
	streams *natsclient.StreamManager
}

// NewJetStreamAuditor creates an auditor backed by JetStream.
func NewJetStreamAuditor(streams *natsclient.StreamManager) *JetStreamAuditor {
	return &JetStreamAuditor{streams: streams}
}

// Publish implements Auditor.
func (a *JetStreamAuditor) Publish(ctx context.Context, event *model.AuditEvent) error {
	seq, err := a.streams.PublishAudit(ctx, event)
	if err != nil {
		return err
	}
	event.Sequence = seq
	return nil
}

const auditTimeout = 2 * time.Second

// record publishes an audit event. Failures are logged and never affect
// the turn.
func (s *AssistantService) record(ctx context.Context, t *turn, kind model.AuditKind, code, summary string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	ev := &model.AuditEvent{
		ID:        uuid.NewString(),
		UserID:    t.userID,
		SessionID: t.sessionID,
		Kind:      kind,
		Code:      code,
		Summary:   summary,
		Metadata:  meta,
		CreatedAt: s.now(),
	}
	if err := s.audit.Publish(ctx, ev); err != nil {
		t.log.Warn("audit event not published",
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}
