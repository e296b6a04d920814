package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lodging/api/routes"
	"lodging/internal/calendarsync"
	"lodging/internal/notifications"
	"lodging/internal/payments"
	"lodging/internal/shared/config"
	"lodging/internal/shared/database"
	"lodging/internal/shared/middleware"
	"lodging/pkg/logger"
	"lodging/pkg/obs"
	"lodging/pkg/ratelimit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	appLogger := logger.GetDefault()

	if err := godotenv.Load(); err != nil {
		if os.Getenv("GIN_MODE") == "release" || os.Getenv("DOCKER_CONTAINER") == "true" {
			appLogger.Info("Production environment: using container environment variables")
		} else {
			appLogger.Info("No .env file found, using system environment variables")
		}
	} else {
		appLogger.Info("Development environment: loaded .env file")
	}

	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	if !cfg.PaymentsEnabled() {
		// Availability and calendar sync keep running without the gateway.
		appLogger.Warn("Payment gateway not configured, payment routes will answer 503",
			slog.Any("error", cfg.PaymentErr))
	}

	shutdownTracer, err := obs.InitTracer(context.Background(), cfg.Tracing, Version)
	if err != nil {
		appLogger.Error("Tracing disabled", slog.Any("error", err))
		shutdownTracer = func(context.Context) error { return nil }
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		appLogger.Error("failed to connect", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	var rateLimiter *ratelimit.RateLimiter
	if cfg.RateLimit.Enabled && db.Redis != nil {
		rateLimiter = ratelimit.NewRateLimiter(db.Redis, &cfg.RateLimit)
		appLogger.Info("Rate limiter initialized",
			slog.Duration("window", cfg.RateLimit.WindowDuration),
			slog.Int("default_requests", cfg.RateLimit.DefaultRequests),
		)
	} else {
		appLogger.Info("Rate limiting disabled")
	}

	// Payment event producer and the notification consumer behind it.
	var publisher payments.EventPublisher
	var notificationService *notifications.Service
	if cfg.Kafka.Enabled {
		publisherConfig := payments.DefaultKafkaPublisherConfig()
		publisherConfig.Brokers = cfg.Kafka.Brokers
		publisherConfig.Topic = cfg.Kafka.PaymentEventsTopic

		if p, err := payments.NewKafkaPublisher(publisherConfig); err != nil {
			appLogger.Error("Payment events will not be published", slog.Any("error", err))
		} else {
			publisher = p
		}

		notificationService, err = notifications.NewService(cfg)
		if err != nil {
			appLogger.Error("Continuing without notification service", slog.Any("error", err))
			notificationService = nil
		} else if err := notificationService.Start(context.Background()); err != nil {
			appLogger.Error("Failed to start notification service", slog.Any("error", err))
			notificationService = nil
		}
	}

	appRouter := routes.NewRouter(cfg, db, publisher)
	if notificationService != nil {
		appRouter.SetNotificationHealth(notificationService)
	}
	engine := setupRouter(cfg, appRouter, rateLimiter)

	var syncJob *calendarsync.JobProcessor
	if cfg.Calendar.SyncEnabled {
		syncJob = calendarsync.NewJobProcessor(appRouter.SyncService(), &calendarsync.JobConfig{
			Interval:    cfg.Calendar.SyncInterval,
			RunOnStart:  cfg.Calendar.SyncOnStartup,
			SyncTimeout: 5 * time.Minute,
		})
		syncJob.Start(context.Background())
	}

	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        engine,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	go func() {
		appLogger.Info("Server running",
			slog.String("address", cfg.GetServerAddress()),
			slog.String("health_check", fmt.Sprintf("http://localhost:%s/health", cfg.Port)),
			slog.String("version", Version),
			slog.String("commit", GitCommit),
			slog.String("built", BuildTime),
			slog.Bool("payments", cfg.PaymentsEnabled()),
			slog.Bool("calendar_sync", cfg.Calendar.SyncEnabled),
			slog.Bool("kafka", publisher != nil),
			slog.Bool("rate_limiting", cfg.RateLimit.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Server failed", slog.Any("error", err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Forced shutdown", slog.Any("error", err))
	}

	if syncJob != nil {
		syncJob.Stop()
	}
	if notificationService != nil {
		if err := notificationService.Stop(); err != nil {
			appLogger.Error("Error stopping notification service", slog.Any("error", err))
		}
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			appLogger.Error("Error closing payment event producer", slog.Any("error", err))
		}
	}
	if err := shutdownTracer(ctx); err != nil {
		appLogger.Error("Error flushing traces", slog.Any("error", err))
	}

	appLogger.Info("Server exited gracefully")
}

func setupRouter(cfg *config.Config, appRouter *routes.Router, rateLimiter *ratelimit.RateLimiter) *gin.Engine {
	engine := gin.New()
	appLogger := logger.GetDefault()

	engine.Use(middleware.RequestLogger(appLogger), gin.Recovery())

	engine.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After", "X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if rateLimiter != nil {
		engine.Use(ratelimit.Middleware(rateLimiter))
	}

	appRouter.SetupRoutes(engine)
	return engine
}
