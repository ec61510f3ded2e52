// Package server contains the HTTP handlers for the marketplace API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	_ "kindkart/docs" // swagger docs
	"kindkart/internal/cache"
	"kindkart/internal/config"
	"kindkart/internal/database"
	"kindkart/internal/featureflags"
	"kindkart/internal/middleware"
	"kindkart/internal/models"
	"kindkart/internal/notifications"
	"kindkart/internal/observability"
	"kindkart/internal/repository"
	"kindkart/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config       *config.Config
	db           *gorm.DB
	redis        *redis.Client
	app          *fiber.App
	shutdownCtx  context.Context
	shutdownFn   context.CancelFunc
	auth         *middleware.Authenticator
	notifier     *notifications.Notifier
	featureFlags *featureflags.Manager

	requestService      *service.RequestService
	conversationService *service.ConversationService
	itemService         *service.ItemService
	userService         *service.UserService
	sweeper             *service.ExpirySweeper
}

// NewServer connects to the database and Redis, then builds a Server.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	return NewServerWithDeps(cfg, db, cache.GetClient())
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil: caching, rate limits and event publishing degrade
// to no-ops.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}

	aside := cache.NewAside(redisClient)
	notifier := notifications.NewNotifier(redisClient)

	requests := service.NewRequestService(db,
		service.WithPublisher(notifier),
		service.WithPendingTTL(cfg.RequestPendingTTL()),
		service.WithCache(aside),
	)

	s := &Server{
		config:              cfg,
		db:                  db,
		redis:               redisClient,
		auth:                middleware.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience),
		notifier:            notifier,
		featureFlags:        featureflags.NewManager(cfg.FeatureFlags),
		requestService:      requests,
		conversationService: service.NewConversationService(db, requests, notifier),
		itemService:         service.NewItemService(repository.NewItemRepository(db), aside),
		userService: service.NewUserService(
			repository.NewUserRepository(db),
			repository.NewItemRepository(db),
			repository.NewRequestRepository(db),
			aside,
			cfg.ProfileCacheTTL(),
		),
		sweeper: service.NewExpirySweeper(requests, cfg.ExpirySweepInterval(), cfg.ExpirySweepBatch),
	}
	return s, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	app.Use(middleware.TracingMiddleware())

	// Context Middleware to propagate Request ID and Trace ID
	app.Use(middleware.ContextMiddleware())

	// Prometheus metrics; registers /metrics before the route middleware
	middleware.InitMetrics(app, "kindkart-api")
	app.Use(middleware.MetricsMiddleware())

	// Security headers
	app.Use(helmet.New())

	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so browser clients still receive CORS
	// headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/swagger/*", swagger.HandlerDefault)

	api := app.Group("/api")

	// Public browse routes. Registered before the protected group so its
	// auth middleware never runs for them.
	api.Get("/items", s.ListItems)
	api.Get("/items/:id", s.GetItem)
	api.Get("/users/leaderboard", s.GetLeaderboard)
	api.Get("/users/profile", append(s.AuthRequired(), s.GetMyProfile)...)
	api.Get("/users/:id/items", s.ListUserItems)
	api.Get("/users/:id", s.GetUserProfile)

	protected := api.Group("", s.AuthRequired()...)

	items := protected.Group("/items")
	items.Post("/", s.CreateItem)
	items.Post("/:id/withdraw", s.WithdrawItem)
	items.Post("/:id/relist", s.RelistItem)
	items.Put("/:id", s.UpdateItem)
	items.Delete("/:id", s.DeleteItem)

	protected.Get("/users/:id/stats", s.GetUserStats)

	requests := protected.Group("/requests")
	requests.Post("/", middleware.RateLimit(
		s.redis, 10, time.Hour, "create_request"), s.CreateRequest)
	requests.Get("/sent", s.ListSentRequests)
	requests.Get("/received", s.ListReceivedRequests)
	// Specific /:id/:action routes before generic /:id
	requests.Post("/:id/accept", s.AcceptRequest)
	requests.Post("/:id/reject", s.RejectRequest)
	requests.Post("/:id/complete", s.CompleteRequest)
	requests.Post("/:id/cancel", s.CancelRequest)
	requests.Post("/:id/messages", middleware.RateLimit(
		s.redis, 30, time.Minute, "post_message"), s.PostMessage)
	requests.Post("/:id/read", s.MarkRequestRead)
	requests.Get("/:id", s.GetRequest)

	admin := protected.Group("/admin", s.AdminRequired())
	admin.Get("/dashboard", s.GetAdminDashboard)
	admin.Get("/analytics", s.GetAnalytics)
	admin.Get("/requests", s.ListAllRequests)
	admin.Get("/users", s.ListUsers)
	admin.Get("/items", s.ListAllItems)
	admin.Post("/users/:id/block", s.BlockUser)
	admin.Post("/users/:id/unblock", s.UnblockUser)
	admin.Post("/users/:id/verify", s.VerifyUser)
	admin.Post("/users/:id/reconcile-stats", s.ReconcileUserStats)
	admin.Put("/items/:id/visibility", s.SetItemVisibility)
}

// App builds a Fiber app with middleware and routes installed.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "KindKart API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			observability.GlobalLogger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	// Redis is optional: without it the API still serves, uncached.
	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	} else if redisStatus == "unhealthy" {
		overallStatus = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// AuthRequired verifies the bearer token and resolves the principal.
// Blocked users are refused with 403.
func (s *Server) AuthRequired() []fiber.Handler {
	return []fiber.Handler{s.auth.Required(), s.loadPrincipal}
}

func (s *Server) loadPrincipal(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(uint)
	user, err := s.userService.Principal(c.UserContext(), userID)
	if err != nil {
		return s.fail(c, err)
	}
	c.Locals(principalKey, user)
	return c.Next()
}

// AdminRequired returns middleware that rejects non-admin users with 403.
// Must be placed after AuthRequired so that the principal is available.
func (s *Server) AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !actorOf(c).IsAdmin() {
			return models.RespondWithAppError(c, models.NewForbiddenError("Admin access required"))
		}
		return c.Next()
	}
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	s.app = s.App()

	if s.featureFlags.EnabledGlobally(featureflags.ExpirySweep) && s.config.ExpirySweepInterval() > 0 {
		s.sweeper.Start(s.shutdownCtx)
	}

	observability.GlobalLogger.Info("server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Stops the sweeper goroutine
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			observability.GlobalLogger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			observability.GlobalLogger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			observability.GlobalLogger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	observability.GlobalLogger.Info("server shutdown complete")
	return nil
}
