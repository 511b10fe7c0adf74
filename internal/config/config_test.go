package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/event-assistant/internal/conversation"
	"github.com/capitalize-ai/event-assistant/internal/intent"
	"github.com/capitalize-ai/event-assistant/internal/ratelimit"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 10*time.Minute, cfg.PendingTTL)
	assert.Equal(t, 30, cfg.ChatLimit)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("PENDING_TTL", "2m")
	t.Setenv("RATE_LIMIT_CHAT", "5")
	t.Setenv("TRACING_ENABLED", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("HISTORY_TURNS", "not-a-number")

	cfg := Load()
	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, 2*time.Minute, cfg.PendingTTL)
	assert.Equal(t, 5, cfg.ChatLimit)
	assert.True(t, cfg.TracingEnabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 10, cfg.HistoryTurns)
}

func writePolicy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadPolicy(t *testing.T) {
	path := writePolicy(t, `
confirmation:
  affirmative: ["chốt"]
intent_references:
  order_ticket: ["cho tôi hai vé"]
outdoor_keywords: ["sân golf"]
limits:
  chat: 50
venue_similarity_floor: 0.9
intent_confidence_floor: 0.8
`)
	p, err := LoadPolicy(path)
	require.NoError(t, err)

	tokens := p.Tokens()
	assert.Equal(t, []string{"chốt"}, tokens.Affirmative)
	assert.Equal(t, conversation.DefaultTokens().Negative, tokens.Negative)

	ic := p.IntentConfig()
	assert.Equal(t, []string{"cho tôi hai vé"}, ic.References[intent.CategoryOrderTicket])
	assert.NotEmpty(t, ic.References[intent.CategoryCreateEvent])
	assert.Equal(t, []string{"sân golf"}, ic.OutdoorKeywords)
	assert.Equal(t, 0.8, ic.Floor)

	limits := p.RateLimits(Load())
	assert.Equal(t, 50, limits[ratelimit.FeatureChat])
	assert.Equal(t, 10, limits[ratelimit.FeatureEventAssistant])
	assert.Equal(t, 0.9, p.VenueSimilarityFloor)
}

func TestLoadPolicy_Empty(t *testing.T) {
	p, err := LoadPolicy("")
	require.NoError(t, err)
	assert.Equal(t, conversation.DefaultTokens(), p.Tokens())
}

func TestLoadPolicy_Invalid(t *testing.T) {
	tests := map[string]string{
		"unknown feature":  "limits:\n  uploads: 5\n",
		"zero limit":       "limits:\n  chat: 0\n",
		"floor range":      "venue_similarity_floor: 1.5\n",
		"unknown category": "intent_references:\n  dance: [\"nhảy\"]\n",
		"bad yaml":         "limits: [",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadPolicy(writePolicy(t, body))
			assert.Error(t, err)
		})
	}

	_, err := LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
