package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicTurns(t *testing.T) {
	got := anthropicTurns("You are an assistant.", []ChatMessage{
		{Role: "assistant", Content: "stale greeting"},
		{Role: "user", Content: "Tạo sự kiện"},
		{Role: "user", Content: "ở Main Hall"},
		{Role: "system", Content: "Today is 2025-01-15."},
		{Role: "assistant", Content: "Khi nào?"},
		{Role: "user", Content: "9h sáng mai"},
	})

	require.Len(t, got, 3)
	assert.Equal(t, "user", got[0].Role)
	assert.Equal(t, "You are an assistant.\n\nToday is 2025-01-15.\n\nTạo sự kiện\n\nở Main Hall", got[0].Content)
	assert.Equal(t, "assistant", got[1].Role)
	assert.Equal(t, "user", got[2].Role)
}

func TestAnthropicTurns_Empty(t *testing.T) {
	got := anthropicTurns("sys", nil)
	require.Len(t, got, 1)
	assert.Equal(t, "sys\n\n", got[0].Content)
}

func TestOpenAIMessages(t *testing.T) {
	got := openAIMessages("sys", []ChatMessage{{Role: "user", Content: "hi"}})
	require.Len(t, got, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, got[0].Role)
	assert.Equal(t, "hi", got[1].Content)

	assert.Len(t, openAIMessages("", []ChatMessage{{Role: "user", Content: "hi"}}), 1)
}

type stubClient struct {
	resp *CompletionResponse
	err  error
}

func (s stubClient) Complete(context.Context, *CompletionRequest) (*CompletionResponse, error) {
	return s.resp, s.err
}

func (stubClient) Name() string { return "stub" }

func TestWithMetrics_PassesThrough(t *testing.T) {
	c := WithMetrics(stubClient{resp: &CompletionResponse{Content: "ok", TokensIn: 3, TokensOut: 1}})
	resp, err := c.Complete(context.Background(), &CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, "stub", c.Name())

	c = WithMetrics(stubClient{err: errors.New("overloaded")})
	_, err = c.Complete(context.Background(), &CompletionRequest{Model: "m"})
	assert.EqualError(t, err, "overloaded")
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(ProviderOpenAI, "")
	assert.Error(t, err)
	_, err = NewClient(Provider("mystery"), "k")
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	assert.Equal(t, "m", orDefault("", "m"))
	assert.Equal(t, "x", orDefault("x", "m"))
	assert.Equal(t, 1024, positiveOr(0, 1024))
	assert.Equal(t, 1024, positiveOr(-5, 1024))
	assert.Equal(t, 7, positiveOr(7, 1024))
}
