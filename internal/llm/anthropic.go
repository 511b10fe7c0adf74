package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicModel     = "claude-3-5-haiku-20241022"
	defaultAnthropicMaxTokens = 1024
)

// AnthropicClient talks to the Messages API.
type AnthropicClient struct {
	api *anthropic.Client
}

// NewAnthropicClient creates an Anthropic client.
func NewAnthropicClient(apiKey string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	return &AnthropicClient{api: anthropic.NewClient(option.WithAPIKey(apiKey))}, nil
}

func (c *AnthropicClient) Name() string { return string(ProviderAnthropic) }

// Complete implements Client. Text blocks of the reply are concatenated; a
// reply with no text is ErrEmptyCompletion.
func (c *AnthropicClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	started := time.Now()

	turns := anthropicTurns(req.System, req.Messages)
	params := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		params = append(params, anthropic.MessageParam{
			Role: anthropic.F(anthropic.MessageParamRole(t.Role)),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(t.Content),
				},
			}),
		})
	}

	out, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.F(orDefault(req.Model, defaultAnthropicModel)),
		MaxTokens: anthropic.F(int64(positiveOr(req.MaxTokens, defaultAnthropicMaxTokens))),
		Messages:  anthropic.F(params),
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("anthropic: %w", ErrEmptyCompletion)
	}

	return &CompletionResponse{
		Content:    text.String(),
		Model:      out.Model,
		TokensIn:   int(out.Usage.InputTokens),
		TokensOut:  int(out.Usage.OutputTokens),
		StopReason: string(out.StopReason),
		LatencyMs:  time.Since(started).Milliseconds(),
	}, nil
}

// anthropicTurns shapes messages for the Messages API: only user and
// assistant roles, alternating, starting with user. The system prompt is
// carried in the first user turn.
func anthropicTurns(system string, msgs []ChatMessage) []ChatMessage {
	var out []ChatMessage
	for _, m := range msgs {
		role := m.Role
		switch role {
		case "user", "assistant":
		case "system":
			if system == "" {
				system = m.Content
			} else {
				system += "\n\n" + m.Content
			}
			continue
		default:
			role = "user"
		}
		if len(out) == 0 && role == "assistant" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n\n" + m.Content
			continue
		}
		out = append(out, ChatMessage{Role: role, Content: m.Content})
	}
	if len(out) == 0 {
		out = append(out, ChatMessage{Role: "user", Content: ""})
	}
	if system = strings.TrimSpace(system); system != "" {
		out[0].Content = system + "\n\n" + out[0].Content
	}
	return out
}
