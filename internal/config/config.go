// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	AllowedOrigins     []string

	// NATS settings. An empty URL keeps history in memory and disables
	// the audit stream.
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string
	StreamMaxAge time.Duration

	// JWT settings
	JWTSecret string

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	DefaultLLM      string
	LLMModel        string
	LLMMaxTokens    int
	LLMTimeout      time.Duration
	EmbeddingModel  string
	Timezone        string

	// Persistence. Empty values fall back to in-memory implementations.
	PostgresDSN    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	PaymentBaseURL string

	// Weather
	ForecastURL       string
	GeocodeURL        string
	ForecastTimeout   time.Duration
	RainRiskThreshold int

	// Pipeline
	CallTimeout          time.Duration
	HistoryTurns         int
	PendingTTL           time.Duration
	PendingSweepInterval time.Duration
	ReminderLead         time.Duration
	PolicyFile           string

	// Rate limiting
	ChatLimit           int
	EventAssistantLimit int
	TranslationLimit    int
	IPRateLimit         int
	IPRateWindow        time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),
		AllowedOrigins:     getListEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),
		StreamMaxAge: getDurationEnv("STREAM_MAX_AGE", 7*24*time.Hour),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		DefaultLLM:      getEnv("DEFAULT_LLM", "anthropic"),
		LLMModel:        getEnv("LLM_MODEL", ""),
		LLMMaxTokens:    getIntEnv("LLM_MAX_TOKENS", 1024),
		LLMTimeout:      getDurationEnv("LLM_TIMEOUT", 30*time.Second),
		EmbeddingModel:  getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		Timezone:        getEnv("ASSISTANT_TIMEZONE", "Asia/Ho_Chi_Minh"),

		// Persistence
		PostgresDSN:    getEnv("DATABASE_URL", ""),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getIntEnv("REDIS_DB", 0),
		PaymentBaseURL: getEnv("PAYMENT_BASE_URL", "https://pay.localhost"),

		// Weather
		ForecastURL:       getEnv("FORECAST_URL", "https://api.open-meteo.com"),
		GeocodeURL:        getEnv("GEOCODE_URL", "https://geocoding-api.open-meteo.com"),
		ForecastTimeout:   getDurationEnv("FORECAST_TIMEOUT", 5*time.Second),
		RainRiskThreshold: getIntEnv("RAIN_RISK_THRESHOLD", 50),

		// Pipeline
		CallTimeout:          getDurationEnv("CALL_TIMEOUT", 5*time.Second),
		HistoryTurns:         getIntEnv("HISTORY_TURNS", 10),
		PendingTTL:           getDurationEnv("PENDING_TTL", 10*time.Minute),
		PendingSweepInterval: getDurationEnv("PENDING_SWEEP_INTERVAL", time.Minute),
		ReminderLead:         getDurationEnv("REMINDER_LEAD", time.Hour),
		PolicyFile:           getEnv("ASSISTANT_POLICY_FILE", ""),

		// Rate limiting
		ChatLimit:           getIntEnv("RATE_LIMIT_CHAT", 30),
		EventAssistantLimit: getIntEnv("RATE_LIMIT_EVENT_ASSISTANT", 10),
		TranslationLimit:    getIntEnv("RATE_LIMIT_TRANSLATION", 20),
		IPRateLimit:         getIntEnv("RATE_LIMIT_REQUESTS", 120),
		IPRateWindow:        getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
