// Package extract turns language-model replies into typed actions.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/event-assistant/internal/llm"
	"github.com/capitalize-ai/event-assistant/internal/model"
	"github.com/capitalize-ai/event-assistant/pkg/logger"
)

// ErrModelUnavailable wraps a failed or timed-out model call.
var ErrModelUnavailable = errors.New("language model unavailable")

const systemPrompt = `Bạn là trợ lý quản lý sự kiện. You help users create, update and delete events, set reminders and buy tickets.
Current time: %s (%s).

When the user asks for one of these operations, include exactly one JSON array of tool calls anywhere in your reply:
[{"tool": "ADD_EVENT", "args": {"title": "...", "start_time": "YYYY-MM-DDTHH:MM", "end_time": "YYYY-MM-DDTHH:MM", "place": "...", "event_type": "...", "description": "..."}}]

Tools:
- ADD_EVENT: title, start_time, end_time, place, event_type, description
- UPDATE_EVENT: event_id or original_title, then any fields to change
- DELETE_EVENT: event_id or original_title
- ADD_REMINDER: event_id or title, remind_before_minutes
- ORDER_TICKET: event_id or event_title, ticket_type, quantity, name, email, phone

Use the user's own words for titles and places. Do not invent missing times or places; ask instead.
If no operation is requested, reply conversationally without JSON. Reply in the user's language.`

// Config configures an Extractor.
type Config struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	Location    *time.Location
}

// Extractor asks the model for tool calls and parses them leniently.
type Extractor struct {
	client   llm.Client
	firewall *ToolFirewall
	cfg      Config
	now      func() time.Time
	log      *logger.Logger
}

// NewExtractor creates an extractor. now may be nil.
func NewExtractor(client llm.Client, firewall *ToolFirewall, cfg Config, now func() time.Time, log *logger.Logger) *Extractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Extractor{client: client, firewall: firewall, cfg: cfg, now: now, log: logger.OrNop(log).Named("extract")}
}

// Extract sends history to the model and returns the actions it asked
// for plus its prose reply. A reply without tool calls yields no actions
// and no error.
func (e *Extractor) Extract(ctx context.Context, history []model.Turn) ([]model.Action, string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	now := e.now().In(e.cfg.Location)
	req := &llm.CompletionRequest{
		Model:       e.cfg.Model,
		System:      fmt.Sprintf(systemPrompt, now.Format("2006-01-02T15:04 Monday"), e.cfg.Location.String()),
		Messages:    toMessages(history),
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	}
	resp, err := e.client.Complete(ctx, req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	actions, prose := e.Parse(resp.Content)
	return actions, prose, nil
}

// Parse extracts validated, coerced actions from a model reply. Calls
// rejected by the firewall are dropped.
func (e *Extractor) Parse(reply string) ([]model.Action, string) {
	calls, prose, err := ParseCalls(reply)
	if err != nil {
		e.log.Warn("model reply contained an unusable tool block", zap.Error(err))
		return nil, prose
	}

	actions := make([]model.Action, 0, len(calls))
	for _, c := range calls {
		tool, err := e.firewall.Check(c)
		if err != nil {
			e.log.Warn("tool call dropped", zap.String("tool", c.Name), zap.Error(err))
			continue
		}
		actions = append(actions, model.Action{Tool: tool, Args: Coerce(c.Args, e.cfg.Location)})
	}
	return actions, prose
}

func toMessages(history []model.Turn) []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(history))
	for _, t := range history {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		out = append(out, llm.ChatMessage{Role: string(t.Role), Content: t.Content})
	}
	return out
}
