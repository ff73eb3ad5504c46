package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/audit"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/config"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/database"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/handler"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/jobs"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/middleware"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/pending"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/redis"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/repository"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/service"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/sse"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/webhook"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	db, err := database.Connect(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Str("path", cfg.DatabasePath).Msg("database ready")

	convRepo := repository.NewConversationRepository(db)

	jobs.NewRetentionSweep(convRepo, cfg.MessageRetentionDays, log.Logger).
		Run(context.Background())

	// Redis is optional. Without it there is no live event stream and no
	// rate limiting, but the bridge itself works fine.
	var redisClient *redis.Client
	var broker *sse.Broker
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")

		broker = sse.NewBroker(redisClient)
		defer broker.Close()
	}

	registry := pending.NewRegistry()
	callbackLog := audit.NewCallbackLog(log.Logger)
	backendClient := webhook.NewClient(cfg.AIWebhookURL, cfg.AIAPIKey, cfg.AITimeout(), log.Logger)

	memoryService := service.NewMemoryService(convRepo, cfg, log.Logger)
	chatService := service.NewChatService(convRepo, registry, backendClient, cfg, log.Logger)

	var publisher service.ResponsePublisher
	if broker != nil {
		publisher = broker
	}
	dispatcher := service.NewDispatcher(registry, callbackLog, publisher, cfg.FrontendWebhookURL, log.Logger)

	chatHandler := handler.NewChatHandler(chatService, cfg)
	callbackHandler := handler.NewCallbackHandler(memoryService, dispatcher)
	memoryHandler := handler.NewMemoryHandler(memoryService, callbackLog)
	webhookHandler := handler.NewWebhookHandler(backendClient, cfg)

	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(log.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("AI bridge: chat relay at /v1/chat/completions, callbacks at /callback."))
	})

	r.Post("/callback", callbackHandler.Callback)

	r.Route("/v1", func(r chi.Router) {
		if redisClient != nil {
			rateLimitMiddleware := middleware.NewRedisRateLimitMiddleware(redisClient.Client, cfg.RateLimitPerMin)
			r.Use(rateLimitMiddleware.Handler)
		}

		// The completions route blocks until the backend answers, which
		// can take minutes. No per-request timeout here; the response
		// timeout bounds the wait.
		r.Post("/chat/completions", chatHandler.Completions)
		r.Get("/models", chatHandler.Models)
		r.Post("/responses", callbackHandler.Responses)
		r.Get("/messages", memoryHandler.Messages)
		r.Get("/webhooks", webhookHandler.List)
		r.Post("/webhooks/{name}", webhookHandler.Trigger)

		if broker != nil {
			eventsHandler := handler.NewEventsHandler(broker)
			r.Get("/events", eventsHandler.ServeHTTP)
		} else {
			r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{
					"error": "event streaming requires redis",
				})
			})
		}
	})

	r.Get("/conversations", memoryHandler.ListConversations)
	r.Route("/conversations/{sessionID}", func(r chi.Router) {
		r.Get("/", memoryHandler.ConversationDetail)
		r.Delete("/", memoryHandler.DeleteConversation)
	})
	r.Get("/memory/recall", memoryHandler.Recall)
	r.Post("/memory/recall", memoryHandler.Recall)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
