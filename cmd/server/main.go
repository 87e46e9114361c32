package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Baaaki/pharmsoc-messaging/internal/broker"
	"github.com/Baaaki/pharmsoc-messaging/internal/config"
	"github.com/Baaaki/pharmsoc-messaging/internal/database"
	"github.com/Baaaki/pharmsoc-messaging/internal/handler"
	"github.com/Baaaki/pharmsoc-messaging/internal/middleware"
	"github.com/Baaaki/pharmsoc-messaging/internal/presence"
	"github.com/Baaaki/pharmsoc-messaging/internal/realtime"
	"github.com/Baaaki/pharmsoc-messaging/internal/repository"
	"github.com/Baaaki/pharmsoc-messaging/internal/service"
	"github.com/Baaaki/pharmsoc-messaging/internal/wal"
	"github.com/Baaaki/pharmsoc-messaging/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	if err := logger.Init(!cfg.IsProduction()); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.JWTSecret == "" {
		logger.Log.Fatal("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database.Connect(cfg)
	database.Migrate()

	// Send journal
	var journal *wal.WAL
	if cfg.WALEnabled {
		var err error
		journal, err = wal.NewWAL(cfg.WALPath)
		if err != nil {
			logger.Log.Fatal("Failed to initialize WAL", zap.String("path", cfg.WALPath), zap.Error(err))
		}
		defer journal.Close()
	}

	// Repositories and services
	userRepo := repository.NewUserRepository(database.DB)
	messageRepo := repository.NewMessageRepository(database.DB)

	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.JWTExpiry, cfg.Environment)
	messageService := service.NewMessageService(messageRepo, userRepo, journal, cfg.MaxMessageLength)
	conversationService := service.NewConversationService(messageRepo, userRepo)

	if restored, err := messageService.RecoverJournal(ctx); err != nil {
		logger.Log.Error("Journal recovery failed", zap.Error(err))
	} else if restored > 0 {
		logger.Log.Warn("Recovered journaled messages", zap.Int("count", restored))
	}

	// Real-time delivery. Without Redis the instance delivers to its own rooms only.
	var (
		eventBroker broker.EventBroker
		httpLimiter *middleware.RateLimiter
		sendLimiter *middleware.RateLimiter
	)
	if cfg.RedisURL != "" {
		redisBroker, err := broker.NewRedisEventBroker(cfg.RedisURL)
		if err != nil {
			logger.Log.Fatal("Failed to initialize Redis broker", zap.Error(err))
		}
		defer redisBroker.Close()
		eventBroker = redisBroker

		httpLimiter = middleware.NewRateLimiter(redisBroker.Client(), middleware.RateLimiterConfig{
			MaxRequests: cfg.RateLimitMaxRequests,
			Window:      cfg.RateLimitWindow,
			Prefix:      "ratelimit:http",
		})
		sendLimiter = middleware.NewRateLimiter(redisBroker.Client(), middleware.RateLimiterConfig{
			MaxRequests: cfg.WSSendLimit,
			Window:      cfg.WSSendWindow,
			Prefix:      "ratelimit:ws",
		})
	} else {
		logger.Log.Warn("REDIS_URL not set: single-instance delivery, rate limiting disabled")
	}

	hub := realtime.NewHub(eventBroker)
	if err := hub.Start(ctx); err != nil {
		logger.Log.Fatal("Failed to subscribe to broker", zap.Error(err))
	}

	typingTTL := cfg.TypingTTL
	if typingTTL <= 0 {
		typingTTL = presence.DefaultTTL
	}
	typing := presence.NewTracker(typingTTL)
	go typing.Run(ctx, typingTTL)

	gateway := realtime.NewGateway(hub, messageService, typing)
	if sendLimiter != nil {
		gateway.SetSendLimiter(sendLimiter)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	handler.Routes{
		Auth:           handler.NewAuthHandler(authService),
		Admin:          handler.NewAdminHandler(authService),
		Messages:       handler.NewMessageHandler(messageService, conversationService, gateway),
		WebSocket:      handler.NewWebSocketHandler(gateway, cfg.AllowedOrigins, cfg.WSSessionLifetime),
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.AllowedOrigins,
		IsProduction:   cfg.IsProduction(),
		Limiter:        httpLimiter,
	}.Register(router)

	srv := &http.Server{
		Addr:              cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("Server starting", zap.String("addr", cfg.ServerPort), zap.String("env", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Graceful shutdown failed", zap.Error(err))
	}
}
