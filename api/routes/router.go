package routes

import (
	"context"
	"net/http"
	"time"

	"lodging/docs"
	"lodging/internal/auth"
	"lodging/internal/availability"
	"lodging/internal/calendarsync"
	"lodging/internal/payments"
	"lodging/internal/reservations"
	"lodging/internal/rooms"
	"lodging/internal/shared/config"
	"lodging/internal/shared/database"
	"lodging/internal/shared/middleware"
	"lodging/pkg/cache"
	"lodging/pkg/logger"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Router holds all route dependencies
type Router struct {
	config    *config.Config
	db        *database.DB
	cache     cache.Service
	publisher payments.EventPublisher

	roomService        rooms.Service
	reservationService reservations.Service
	syncService        calendarsync.Service

	notifications HealthChecker
}

// HealthChecker is a background component reported on /status.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// SetNotificationHealth reports the notification consumers on /status.
func (r *Router) SetNotificationHealth(h HealthChecker) {
	r.notifications = h
}

// NewRouter builds the services shared between routes and background jobs.
// publisher may be nil when Kafka is disabled.
func NewRouter(cfg *config.Config, db *database.DB, publisher payments.EventPublisher) *Router {
	r := &Router{config: cfg, db: db, publisher: publisher}

	if db.Redis != nil {
		r.cache = cache.NewService(db.Redis)
	}

	r.roomService = rooms.NewService(rooms.NewRepository(db.PostgreSQL), r.cache)
	r.reservationService = reservations.NewService(
		reservations.NewRepository(db.PostgreSQL),
		r.roomService,
		r.cache,
		reservations.FeedOptions{
			UIDDomain: cfg.Calendar.ExportUIDHost,
			ProductID: cfg.Calendar.ExportProdID,
		},
		cfg.Redis.FeedCacheTTL,
	)
	r.syncService = calendarsync.NewService(
		calendarsync.NewRepository(db.PostgreSQL),
		calendarsync.NewHTTPFetcher(cfg.Calendar.FetchTimeout, cfg.Calendar.MaxFeedBytes),
		r.roomService,
		r.reservationService,
		calendarsync.Options{Workers: cfg.Calendar.Workers},
	)
	return r
}

// SyncService is shared with the periodic sync job.
func (r *Router) SyncService() calendarsync.Service {
	return r.syncService
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	r.setupHealthRoutes(engine)
	r.setupDocsRoutes(engine)

	api := engine.Group(r.config.GetAPIBasePath())
	{
		r.setupAuthRoutes(api)

		admin := api.Group("/admin")
		admin.Use(middleware.JWTAuthWithConfig(r.config), middleware.RequireOperator())

		optionalAuth := middleware.OptionalAuthWithConfig(r.config)

		rooms.SetupRoomRoutes(api, admin, rooms.NewController(r.roomService))
		r.setupAvailabilityRoutes(api, admin)
		reservations.SetupReservationRoutes(api, admin, reservations.NewController(r.reservationService), optionalAuth)
		calendarsync.SetupCalendarSyncRoutes(admin, calendarsync.NewController(r.syncService))
		r.setupPaymentRoutes(api, admin, optionalAuth)
	}
}

// setupHealthRoutes sets up health check and system status routes
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		report := r.db.Check(c.Request.Context())
		code, status := http.StatusOK, "healthy"
		if !report.Healthy() {
			code, status = http.StatusServiceUnavailable, "unhealthy"
		} else if report.Redis == database.ComponentDown {
			status = "degraded"
		}
		c.JSON(code, gin.H{
			"status":     status,
			"components": report,
			"timestamp":  time.Now(),
			"service":    "lodging-backend",
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})

	engine.GET("/status", func(c *gin.Context) {
		notificationState := database.ComponentDisabled
		if r.notifications != nil {
			notificationState = database.ComponentUp
			if err := r.notifications.HealthCheck(c.Request.Context()); err != nil {
				notificationState = database.ComponentDown
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":           "operational",
			"api_version":      r.config.APIVersion,
			"payments_enabled": r.config.PaymentsEnabled(),
			"calendar_sync":    r.config.Calendar.SyncEnabled,
			"notifications":    notificationState,
			"timestamp":        time.Now(),
		})
	})
}

func (r *Router) setupDocsRoutes(engine *gin.Engine) {
	docs.SwaggerInfo.BasePath = r.config.GetAPIBasePath()
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

// setupAuthRoutes configures operator authentication routes
func (r *Router) setupAuthRoutes(rg *gin.RouterGroup) {
	var revoker auth.TokenRevoker
	if r.db.Redis != nil {
		revoker = auth.NewRedisRevoker(r.db.Redis)
	}
	authService := auth.NewService(auth.NewRepository(r.db.PostgreSQL), r.config, revoker)
	auth.NewRouter(auth.NewController(authService), r.config).SetupRoutes(rg)
}

func (r *Router) setupAvailabilityRoutes(api, admin *gin.RouterGroup) {
	service := availability.NewService(availability.NewRepository(r.db.PostgreSQL), r.roomService, r.cache)
	availability.SetupAvailabilityRoutes(api, admin, availability.NewController(service))
}

// setupPaymentRoutes always registers the payment routes; without valid
// gateway credentials the controller answers 503.
func (r *Router) setupPaymentRoutes(api, admin *gin.RouterGroup, optionalAuth gin.HandlerFunc) {
	var coordinator payments.Coordinator
	if r.config.PaymentsEnabled() {
		var err error
		coordinator, err = payments.NewCoordinator(
			payments.NewRepository(r.db.PostgreSQL, r.config.Payment.LockTimeout),
			r.config.Payment,
			r.publisher,
			r.reservationService,
		)
		if err != nil {
			logger.GetDefault().WithError(err).Error("payments disabled: coordinator could not start")
			coordinator = nil
		}
	} else {
		logger.GetDefault().WithError(r.config.PaymentErr).Warn("payments disabled: gateway configuration missing or invalid")
	}
	payments.SetupPaymentRoutes(api, admin, payments.NewController(coordinator), optionalAuth)
}
