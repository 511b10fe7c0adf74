package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/event-assistant/internal/model"
	natsclient "github.com/capitalize-ai/event-assistant/internal/nats"
)

// History is the per-session conversation log.
type History interface {
	// Append records a turn and sets its sequence.
	Append(ctx context.Context, turn *model.Turn) error
	// Recent returns the last n turns of a session, oldest first.
	Recent(ctx context.Context, userID, sessionID string, n int) ([]model.Turn, error)
}

// MemoryHistory keeps a bounded number of turns per session in memory.
type MemoryHistory struct {
	mu       sync.Mutex
	sessions map[string][]model.Turn
	max      int
	seq      uint64
}

// NewMemoryHistory creates a history keeping at most max turns per
// session. max <= 0 keeps 100.
func NewMemoryHistory(max int) *MemoryHistory {
	if max <= 0 {
		max = 100
	}
	return &MemoryHistory{sessions: make(map[string][]model.Turn), max: max}
}

func sessionKey(userID, sessionID string) string {
	return userID + "\x00" + sessionID
}

// Append implements History.
func (h *MemoryHistory) Append(_ context.Context, turn *model.Turn) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	turn.Sequence = h.seq
	k := sessionKey(turn.UserID, turn.SessionID)
	turns := append(h.sessions[k], *turn)
	if len(turns) > h.max {
		turns = append([]model.Turn(nil), turns[len(turns)-h.max:]...)
	}
	h.sessions[k] = turns
	return nil
}

// Recent implements History.
func (h *MemoryHistory) Recent(_ context.Context, userID, sessionID string, n int) ([]model.Turn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	turns := h.sessions[sessionKey(userID, sessionID)]
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return append([]model.Turn(nil), turns...), nil
}

// JetStreamHistory stores turns on the assistant stream.
type JetStreamHistory struct {
	streams *natsclient.StreamManager
}

// NewJetStreamHistory creates a history backed by JetStream.
func NewJetStreamHistory(streams *natsclient.StreamManager) *JetStreamHistory {
	return &JetStreamHistory{streams: streams}
}

// Append implements History.
func (h *JetStreamHistory) Append(ctx context.Context, turn *model.Turn) error {
	seq, err := h.streams.PublishTurn(ctx, turn)
	if err != nil {
		return fmt.Errorf("failed to publish turn: %w", err)
	}
	turn.Sequence = seq
	return nil
}

// Recent implements History.
func (h *JetStreamHistory) Recent(ctx context.Context, userID, sessionID string, n int) ([]model.Turn, error) {
	turns, err := h.streams.LastTurns(ctx, userID, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to read turns: %w", err)
	}
	return turns, nil
}

func newTurn(userID, sessionID string, role model.Role, content string, now time.Time) *model.Turn {
	return &model.Turn{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    userID,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}
}
