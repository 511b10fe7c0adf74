package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/event-assistant/internal/model"
)

const (
	// StreamName is the name of the assistant stream.
	StreamName = "ASSISTANT"

	// SubjectPrefix is the prefix for all assistant subjects.
	SubjectPrefix = "assistant"

	maxFetch = 256
)

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	client *Client
	maxAge time.Duration
}

// NewStreamManager creates a stream manager. maxAge <= 0 keeps messages
// for 90 days.
func NewStreamManager(client *Client, maxAge time.Duration) *StreamManager {
	if maxAge <= 0 {
		maxAge = 90 * 24 * time.Hour
	}
	return &StreamManager{client: client, maxAge: maxAge}
}

// EnsureStream creates the assistant stream if it does not exist.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	} else if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      m.maxAge,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Assistant conversation turns and audit events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// Token makes s safe to use as a single subject token.
func Token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == '.' || r == '*' || r == '>' || r <= ' ' || r == 0x7f:
			return '_'
		default:
			return r
		}
	}, s)
}

// TurnSubject returns the subject for a conversation turn.
func TurnSubject(userID, sessionID string, role model.Role) string {
	return fmt.Sprintf("%s.%s.%s.turn.%s", SubjectPrefix, Token(userID), Token(sessionID), role)
}

// SessionFilter returns the filter subject for all turns of a session.
func SessionFilter(userID, sessionID string) string {
	return fmt.Sprintf("%s.%s.%s.turn.>", SubjectPrefix, Token(userID), Token(sessionID))
}

// AuditSubject returns the subject for an audit event.
func AuditSubject(userID string, kind model.AuditKind) string {
	return fmt.Sprintf("%s.%s.audit.%s", SubjectPrefix, Token(userID), kind)
}

// PublishTurn publishes a conversation turn and returns its stream sequence.
func (m *StreamManager) PublishTurn(ctx context.Context, turn *model.Turn) (uint64, error) {
	return m.publish(ctx, TurnSubject(turn.UserID, turn.SessionID, turn.Role), turn)
}

// PublishAudit publishes an audit event.
func (m *StreamManager) PublishAudit(ctx context.Context, event *model.AuditEvent) (uint64, error) {
	return m.publish(ctx, AuditSubject(event.UserID, event.Kind), event)
}

func (m *StreamManager) publish(ctx context.Context, subject string, v any) (uint64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal %s: %w", subject, err)
	}
	ack, err := m.client.JetStream().Publish(ctx, subject, data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return ack.Sequence, nil
}

// GetTurns returns up to limit turns of a session after afterSequence,
// oldest first, and whether more may follow.
func (m *StreamManager) GetTurns(ctx context.Context, userID, sessionID string, afterSequence uint64, limit int) ([]model.Turn, bool, error) {
	if limit <= 0 || limit > maxFetch {
		limit = maxFetch
	}
	cfg := jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{SessionFilter(userID, sessionID)},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	}
	if afterSequence > 0 {
		cfg.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		cfg.OptStartSeq = afterSequence + 1
	}

	consumer, err := m.client.JetStream().OrderedConsumer(ctx, StreamName, cfg)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create consumer: %w", err)
	}

	// FetchNoWait returns what is already stored instead of waiting
	// FetchMaxWait for a full batch; history reads never wait for new turns.
	batch, err := consumer.FetchNoWait(limit)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch turns: %w", err)
	}

	var turns []model.Turn
	for msg := range batch.Messages() {
		var turn model.Turn
		if err := json.Unmarshal(msg.Data(), &turn); err != nil {
			continue
		}
		if meta, err := msg.Metadata(); err == nil {
			turn.Sequence = meta.Sequence.Stream
		}
		turns = append(turns, turn)
	}
	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, false, fmt.Errorf("batch error: %w", err)
	}
	return turns, len(turns) == limit, nil
}

// LastTurns returns the most recent n turns of a session, oldest first.
// It reads backwards from the session's last sequence in widening windows
// instead of replaying the whole session.
func (m *StreamManager) LastTurns(ctx context.Context, userID, sessionID string, n int) ([]model.Turn, error) {
	if n <= 0 {
		return nil, nil
	}
	last, err := m.lastSequence(ctx, userID, sessionID)
	if err != nil || last == 0 {
		return nil, err
	}

	window := max(uint64(n)*lookbackFactor, minLookback)
	for {
		start := lookbackStart(last, window)
		turns, err := m.turnsBetween(ctx, userID, sessionID, start, last)
		if err != nil {
			return nil, err
		}
		if len(turns) >= n || start == 1 {
			return tail(turns, n), nil
		}
		window *= lookbackFactor
	}
}

const (
	lookbackFactor = 4
	minLookback    = 64
)

// lookbackStart returns the first stream sequence of a window ending at last.
func lookbackStart(last, window uint64) uint64 {
	if window >= last {
		return 1
	}
	return last - window + 1
}

func tail(turns []model.Turn, n int) []model.Turn {
	if len(turns) > n {
		return turns[len(turns)-n:]
	}
	return turns
}

// lastSequence returns the stream sequence of the session's newest turn,
// or 0 when the session has none.
func (m *StreamManager) lastSequence(ctx context.Context, userID, sessionID string) (uint64, error) {
	stream, err := m.client.JetStream().Stream(ctx, StreamName)
	if err != nil {
		return 0, fmt.Errorf("failed to look up stream: %w", err)
	}
	var last uint64
	for _, role := range []model.Role{model.RoleUser, model.RoleAssistant, model.RoleSystem} {
		msg, err := stream.GetLastMsgForSubject(ctx, TurnSubject(userID, sessionID, role))
		if errors.Is(err, jetstream.ErrMsgNotFound) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to get last turn: %w", err)
		}
		last = max(last, msg.Sequence)
	}
	return last, nil
}

// turnsBetween returns the session's turns with stream sequences in
// [from, to], oldest first.
func (m *StreamManager) turnsBetween(ctx context.Context, userID, sessionID string, from, to uint64) ([]model.Turn, error) {
	var out []model.Turn
	after := from - 1
	for {
		page, more, err := m.GetTurns(ctx, userID, sessionID, after, maxFetch)
		if err != nil {
			return nil, err
		}
		for _, turn := range page {
			if turn.Sequence > to {
				return out, nil
			}
			out = append(out, turn)
		}
		if !more || len(page) == 0 {
			return out, nil
		}
		after = page[len(page)-1].Sequence
	}
}
