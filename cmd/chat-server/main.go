package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"localbiz-chat/api"
	"localbiz-chat/internal/auth"
	"localbiz-chat/internal/config"
	"localbiz-chat/internal/handler"
	"localbiz-chat/internal/messaging"
	"localbiz-chat/internal/middleware"
	"localbiz-chat/internal/observability"
	"localbiz-chat/internal/presence"
	"localbiz-chat/internal/repository/postgres"
	"localbiz-chat/internal/service"
	"localbiz-chat/internal/websocket"
)

const dbStatsInterval = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting chat server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connCtx, connCancel := context.WithTimeout(ctx, 10*time.Second)
	defer connCancel()

	db, err := config.NewPostgresConnection(connCtx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgresql")

	if err := postgres.Migrate(connCtx, db); err != nil {
		slog.Error("failed to apply schema", slog.String("error", err.Error()))
		os.Exit(1)
	}

	checks := map[string]handler.Check{
		"database": handler.DatabaseCheck(db),
	}

	// Group registry: Redis when several processes serve the same users,
	// otherwise process-local.
	var (
		registry    presence.Registry
		redisClient redis.UniversalClient
	)
	if cfg.RedisURL != "" {
		redisClient, err = config.NewRedisClient(connCtx, cfg.RedisURL)
		if err != nil {
			slog.Error("failed to connect to redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer redisClient.Close()
		registry = presence.NewRedisRegistry(redisClient)
		checks["redis"] = handler.RedisCheck(redisClient)
		slog.Info("using redis group registry")
	} else {
		registry = presence.NewMemoryRegistry()
		slog.Info("using in-memory group registry")
	}

	manager := presence.NewManager(registry)
	hub := websocket.NewHub(registry)

	go func() {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("hub error", slog.String("error", err.Error()))
		}
	}()
	slog.Info("websocket hub started")

	var broadcaster service.Broadcaster = hub
	if redisClient != nil {
		backplane := websocket.NewRedisBackplane(redisClient, hub)
		go func() {
			if err := backplane.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("redis backplane stopped", slog.String("error", err.Error()))
			}
		}()
		broadcaster = backplane
	}

	var (
		rmq    *messaging.RabbitMQ
		events service.EventPublisher
	)
	if cfg.RabbitMQURL != "" {
		rmqCtx, rmqCancel := context.WithTimeout(ctx, cfg.BrokerRetryLimit+5*time.Second)
		rmq, err = messaging.NewRabbitMQWithRetry(rmqCtx, cfg.RabbitMQURL, cfg.BrokerRetryLimit)
		rmqCancel()
		if err != nil {
			slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rmq.Close()
		events = rmq
		checks["rabbitmq"] = handler.PingCheck(rmq)
	} else {
		slog.Warn("RABBITMQ_URL not set, message events and notifications disabled")
	}

	conversations := postgres.NewConversationStore(db)
	businesses := postgres.NewBusinessRepository(db)

	chatService := service.NewChatService(conversations, businesses, manager, broadcaster, events)
	analyticsService := service.NewAnalyticsService(
		businesses,
		postgres.NewReviewRepository(db),
		postgres.NewAppointmentRepository(db),
		conversations,
	)

	if rmq != nil {
		consumer := messaging.NewNotificationConsumer(rmq, chatService)
		if err := consumer.Start(ctx); err != nil {
			slog.Error("failed to start notification consumer", slog.String("error", err.Error()))
			os.Exit(1)
		}
		slog.Info("notification consumer started")
	}

	go recordDBStats(ctx, db.Stats)

	origins := cfg.AllowedOriginList()

	openapiValidator, err := middleware.OpenAPIValidator(middleware.DefaultOpenAPIValidatorConfig(api.OpenAPISpec))
	if err != nil {
		slog.Error("failed to load OpenAPI spec", slog.String("error", err.Error()))
		os.Exit(1)
	}

	router := newRouter(&routes{
		verifier:    auth.NewTokenVerifier(cfg.JWTSecret, cfg.JWTIssuer),
		origins:     origins,
		rateLimiter: middleware.NewRateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst),
		openapi:     openapiValidator,
		chatrooms:   handler.NewChatroomHandler(chatService),
		analytics:   handler.NewAnalyticsHandler(analyticsService),
		websocket:   handler.NewWebSocketHandler(hub, manager, chatService, origins),
		ready:       handler.Ready(checks),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("chat server listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	// Stops the hub, which closes every websocket, then the consumer and backplane.
	cancel()

	time.Sleep(100 * time.Millisecond)

	slog.Info("server stopped gracefully")
}

// recordDBStats exports connection pool gauges until ctx is cancelled.
func recordDBStats(ctx context.Context, stats func() sql.DBStats) {
	ticker := time.NewTicker(dbStatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.RecordDBStats(stats())
		}
	}
}
