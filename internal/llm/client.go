// Package llm provides LLM client interfaces and implementations.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/capitalize-ai/event-assistant/pkg/metrics"
)

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// ChatMessage represents a chat message for LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string
}

// ErrEmptyCompletion is returned when a provider answers without any text.
var ErrEmptyCompletion = errors.New("empty completion")

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// NewClient creates a new LLM client based on provider. The returned client
// records call metrics.
func NewClient(provider Provider, apiKey string) (Client, error) {
	var (
		c   Client
		err error
	)
	switch provider {
	case ProviderOpenAI:
		c, err = NewOpenAIClient(apiKey)
	case ProviderAnthropic, "":
		c, err = NewAnthropicClient(apiKey)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
	if err != nil {
		return nil, err
	}
	return WithMetrics(c), nil
}

type instrumented struct {
	Client
}

// WithMetrics wraps c so every call is recorded in pkg/metrics.
func WithMetrics(c Client) Client {
	return instrumented{Client: c}
}

func (c instrumented) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	resp, err := c.Client.Complete(ctx, req)
	elapsed := time.Since(start).Seconds()

	model := req.Model
	if model == "" {
		model = c.Name()
	}
	if err != nil {
		metrics.RecordLLMCall(model, "error", elapsed, 0, 0)
		metrics.RecordUpstreamFailure("llm")
		return nil, err
	}
	if resp.Model != "" {
		model = resp.Model
	}
	metrics.RecordLLMCall(model, "ok", elapsed, resp.TokensIn, resp.TokensOut)
	return resp, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
