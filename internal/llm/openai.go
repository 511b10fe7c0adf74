package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
)

const (
	defaultOpenAIModel     = "gpt-4o-mini"
	defaultOpenAIMaxTokens = 1024
)

// OpenAIClient talks to the chat completions API.
type OpenAIClient struct {
	api *openai.Client
}

// NewOpenAIClient creates an OpenAI client.
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	return &OpenAIClient{api: openai.NewClient(apiKey)}, nil
}

func (c *OpenAIClient) Name() string { return string(ProviderOpenAI) }

// Complete implements Client. A reply without any choice is ErrEmptyCompletion.
func (c *OpenAIClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	started := time.Now()

	params := openai.ChatCompletionRequest{
		Model:       orDefault(req.Model, defaultOpenAIModel),
		Messages:    openAIMessages(req.System, req.Messages),
		MaxTokens:   positiveOr(req.MaxTokens, defaultOpenAIMaxTokens),
		Temperature: float32(req.Temperature),
	}
	out, err := c.api.CreateChatCompletion(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("openai: %w", ErrEmptyCompletion)
	}

	choice := out.Choices[0]
	return &CompletionResponse{
		Content:    choice.Message.Content,
		Model:      out.Model,
		TokensIn:   out.Usage.PromptTokens,
		TokensOut:  out.Usage.CompletionTokens,
		StopReason: string(choice.FinishReason),
		LatencyMs:  time.Since(started).Milliseconds(),
	}, nil
}

// openAIMessages puts the system prompt first and passes turns through.
func openAIMessages(system string, msgs []ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range msgs {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
