// Package main is the entry point for the API server.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/capitalize-ai/event-assistant/internal/commit"
	"github.com/capitalize-ai/event-assistant/internal/config"
	"github.com/capitalize-ai/event-assistant/internal/conversation"
	"github.com/capitalize-ai/event-assistant/internal/embedding"
	"github.com/capitalize-ai/event-assistant/internal/extract"
	"github.com/capitalize-ai/event-assistant/internal/handler"
	"github.com/capitalize-ai/event-assistant/internal/intent"
	"github.com/capitalize-ai/event-assistant/internal/llm"
	"github.com/capitalize-ai/event-assistant/internal/middleware"
	"github.com/capitalize-ai/event-assistant/internal/model"
	natsclient "github.com/capitalize-ai/event-assistant/internal/nats"
	"github.com/capitalize-ai/event-assistant/internal/ordering"
	"github.com/capitalize-ai/event-assistant/internal/ratelimit"
	"github.com/capitalize-ai/event-assistant/internal/schedule"
	"github.com/capitalize-ai/event-assistant/internal/security"
	"github.com/capitalize-ai/event-assistant/internal/service"
	"github.com/capitalize-ai/event-assistant/internal/store"
	"github.com/capitalize-ai/event-assistant/internal/vectorindex"
	"github.com/capitalize-ai/event-assistant/internal/venue"
	"github.com/capitalize-ai/event-assistant/internal/weather"
	"github.com/capitalize-ai/event-assistant/pkg/logger"
	"github.com/capitalize-ai/event-assistant/pkg/tracing"
)

// repository is everything the assistant reads and writes.
type repository interface {
	store.EventRepository
	store.PlaceRepository
	store.TicketRepository
	store.OrderRepository
	store.ReminderScheduler
}

func main() {
	// Load configuration
	cfg := config.Load()
	pflag.StringVar(&cfg.PolicyFile, "config", cfg.PolicyFile, "assistant policy YAML file")
	pflag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	pflag.StringVar(&cfg.ServerPort, "port", cfg.ServerPort, "HTTP listen port")
	pflag.Parse()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log.Logger)

	log.Info("starting API server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "event-assistant", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		log.Fatal("failed to load policy", zap.Error(err))
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Warn("unknown timezone, using UTC", zap.String("timezone", cfg.Timezone), zap.Error(err))
		loc = time.UTC
	}

	checks := map[string]handler.Pinger{}

	// Persistence
	var repo repository
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.Fatal("failed to open database", zap.Error(err))
		}
		defer db.Close()
		pg := store.NewPostgres(db)
		if err := pg.Migrate(ctx); err != nil {
			log.Fatal("failed to migrate database", zap.Error(err))
		}
		repo = pg
		checks["postgres"] = pg
	} else {
		log.Warn("DATABASE_URL not set, using in-memory store")
		repo = devStore()
	}

	// Rate limiting
	var counters ratelimit.Store = ratelimit.NewMemoryStore()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		counters = ratelimit.NewRedisStore(rdb, "assistant:rl")
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}
	limiter := ratelimit.NewLimiter(counters, policy.RateLimits(cfg), log)

	// Conversation log and audit stream
	var (
		history service.History = service.NewMemoryHistory(0)
		audit   service.Auditor
	)
	if cfg.NATSURL != "" {
		natsClient, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			Name:     "event-assistant",
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		streams := natsclient.NewStreamManager(natsClient, cfg.StreamMaxAge)
		if err := streams.EnsureStream(ctx); err != nil {
			log.Fatal("failed to ensure stream", zap.Error(err))
		}
		history = service.NewJetStreamHistory(streams)
		audit = service.NewJetStreamAuditor(streams)
		checks["nats"] = natsClient
	} else {
		log.Warn("NATS_URL not set, history kept in memory and audit disabled")
	}

	// Language model and embeddings
	provider, apiKey := llm.Provider(cfg.DefaultLLM), cfg.AnthropicAPIKey
	if provider == llm.ProviderOpenAI || apiKey == "" {
		provider, apiKey = llm.ProviderOpenAI, cfg.OpenAIAPIKey
	}
	llmClient, err := llm.NewClient(provider, apiKey)
	if err != nil {
		log.Fatal("failed to create LLM client", zap.String("provider", string(provider)), zap.Error(err))
	}
	var embedder embedding.Embedder = embedding.Noop{}
	if cfg.OpenAIAPIKey != "" {
		embedder = embedding.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.CallTimeout)
	}
	index := vectorindex.NewMemory()

	// Pipeline
	gate := security.NewGate(nil, log)
	firewall, err := extract.NewToolFirewall()
	if err != nil {
		log.Fatal("failed to compile tool schemas", zap.Error(err))
	}
	tokens := policy.Tokens()
	state := conversation.NewStore(cfg.PendingTTL, conversation.WithLogger(log))
	orderExec := commit.NewOrderExecutor(repo, store.NewLinkPaymentGateway(cfg.PaymentBaseURL, 0), repo, repo, cfg.ReminderLead, log)
	venues := venue.NewResolver(repo, embedder, index, policy.VenueSimilarityFloor, log)

	assistant := service.NewAssistantService(service.Deps{
		Gate:       gate,
		Limiter:    limiter,
		Classifier: intent.NewClassifier(embedder, index, policy.IntentConfig(), log),
		Extractor: extract.NewExtractor(llmClient, firewall, extract.Config{
			Model:     cfg.LLMModel,
			MaxTokens: cfg.LLMMaxTokens,
			Timeout:   cfg.LLMTimeout,
			Location:  loc,
		}, nil, log),
		Venues:    venues,
		Conflicts: schedule.NewDetector(repo),
		Weather:   weather.NewAdvisor(weather.NewHTTPForecaster(cfg.ForecastURL, cfg.GeocodeURL, cfg.ForecastTimeout), cfg.RainRiskThreshold, cfg.ForecastTimeout, log),
		State:     state,
		Orders:    ordering.NewNegotiator(repo, repo, orderExec, gate, log, ordering.WithTokens(tokens)),
		Events:    commit.NewEventExecutor(repo, repo, log),
		History:   history,
		Audit:     audit,
		LLM:       llmClient,
	}, service.Config{
		HistoryTurns:   cfg.HistoryTurns,
		CallTimeout:    cfg.CallTimeout,
		TranslateModel: cfg.LLMModel,
		Tokens:         tokens,
	}, log)

	if err := venues.Index(ctx); err != nil {
		log.Warn("venue vectors not built, resolving by name only", zap.Error(err))
	}
	go sweep(ctx, assistant, cfg.PendingSweepInterval, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(checks)
	assistantHandler := handler.NewAssistantHandler(assistant, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1/assistant", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.IPRateLimit, cfg.IPRateWindow))
		r.Use(middleware.MaxBodySize(64 << 10))

		r.Post("/chat", assistantHandler.Chat)
		r.Post("/translate", assistantHandler.Translate)
		r.Get("/limits/{feature}", assistantHandler.Limit)
		r.Get("/pending", assistantHandler.Pending)
		r.Delete("/pending", assistantHandler.CancelPending)
		r.Get("/sessions/{id}/turns", assistantHandler.History)
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

// sweep evicts idle pending operations and rate-limit counters until ctx
// is done.
func sweep(ctx context.Context, a *service.AssistantService, every time.Duration, log *logger.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if pending, counters := a.Sweep(now); pending+counters > 0 {
				log.Debug("expired state evicted",
					zap.Int("pending", pending),
					zap.Int("rate_counters", counters))
			}
		}
	}
}

// devStore seeds a few venues for local runs without a database.
func devStore() *store.Memory {
	mem := store.NewMemory()
	mem.AddPlace(model.Place{Name: "Nhà Văn hóa Thanh niên", Aliases: []string{"NVH Thanh Niên"}, Latitude: 10.7789, Longitude: 106.6997})
	mem.AddPlace(model.Place{Name: "Công viên Tao Đàn", Aliases: []string{"Tao Đàn"}, Latitude: 10.7745, Longitude: 106.6923})
	mem.AddPlace(model.Place{Name: "Trung tâm Hội nghị White Palace", Aliases: []string{"White Palace"}, Latitude: 10.7990, Longitude: 106.6780})
	return mem
}
