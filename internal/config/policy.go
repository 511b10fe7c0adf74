package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/capitalize-ai/event-assistant/internal/conversation"
	"github.com/capitalize-ai/event-assistant/internal/intent"
	"github.com/capitalize-ai/event-assistant/internal/ratelimit"
)

// Policy is the optional assistant tuning file. Zero values keep the
// built-in defaults.
type Policy struct {
	Confirmation          conversation.Tokens `yaml:"confirmation"`
	IntentReferences      map[string][]string `yaml:"intent_references"`
	OutdoorKeywords       []string            `yaml:"outdoor_keywords"`
	Limits                map[string]int      `yaml:"limits"`
	VenueSimilarityFloor  float64             `yaml:"venue_similarity_floor"`
	IntentConfidenceFloor float64             `yaml:"intent_confidence_floor"`
}

// LoadPolicy reads a policy file. An empty path returns an empty policy.
func LoadPolicy(path string) (*Policy, error) {
	p := &Policy{}
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse policy %s: %w", path, err)
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("policy %s: %w", path, err)
	}
	return p, nil
}

func (p *Policy) validate() error {
	for _, f := range []float64{p.VenueSimilarityFloor, p.IntentConfidenceFloor} {
		if f < 0 || f > 1 {
			return fmt.Errorf("similarity floor %v out of range [0, 1]", f)
		}
	}
	known := map[string]bool{}
	for _, f := range []ratelimit.Feature{ratelimit.FeatureChat, ratelimit.FeatureEventAssistant, ratelimit.FeatureTranslation} {
		known[string(f)] = true
	}
	for name, n := range p.Limits {
		if !known[name] {
			return fmt.Errorf("unknown rate limit feature %q", name)
		}
		if n <= 0 {
			return fmt.Errorf("rate limit for %q must be positive", name)
		}
	}
	valid := map[intent.Category]bool{}
	for c := range intent.DefaultReferences() {
		valid[c] = true
	}
	for name := range p.IntentReferences {
		if !valid[intent.Category(name)] {
			return fmt.Errorf("unknown intent category %q", name)
		}
	}
	return nil
}

// Tokens returns the confirmation allow-lists, falling back to the
// defaults for an empty list.
func (p *Policy) Tokens() conversation.Tokens {
	t := conversation.DefaultTokens()
	if len(p.Confirmation.Affirmative) > 0 {
		t.Affirmative = p.Confirmation.Affirmative
	}
	if len(p.Confirmation.Negative) > 0 {
		t.Negative = p.Confirmation.Negative
	}
	return t
}

// IntentConfig merges the policy into the default classifier tables.
// Reference phrases replace the defaults per category.
func (p *Policy) IntentConfig() intent.Config {
	cfg := intent.DefaultConfig()
	for name, phrases := range p.IntentReferences {
		if len(phrases) > 0 {
			cfg.References[intent.Category(name)] = phrases
		}
	}
	if len(p.OutdoorKeywords) > 0 {
		cfg.OutdoorKeywords = p.OutdoorKeywords
	}
	if p.IntentConfidenceFloor > 0 {
		cfg.Floor = p.IntentConfidenceFloor
	}
	return cfg
}

// RateLimits combines the env ceilings with policy overrides.
func (p *Policy) RateLimits(c *Config) map[ratelimit.Feature]int {
	limits := map[ratelimit.Feature]int{
		ratelimit.FeatureChat:           c.ChatLimit,
		ratelimit.FeatureEventAssistant: c.EventAssistantLimit,
		ratelimit.FeatureTranslation:    c.TranslationLimit,
	}
	for name, n := range p.Limits {
		limits[ratelimit.Feature(name)] = n
	}
	return limits
}
