package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vinetrail/vinetrail-backend/config"
	"github.com/vinetrail/vinetrail-backend/handlers"
	"github.com/vinetrail/vinetrail-backend/middleware"
)

// Dependencies struct holds all dependencies required for setting up routes.
type Dependencies struct {
	Config               *config.Config
	RedisClient          *redis.Client
	ProposalHandler      *handlers.ProposalHandler
	AdminProposalHandler *handlers.AdminProposalHandler
	SmartImportHandler   *handlers.SmartImportHandler
	HealthHandler        *handlers.HealthHandler
	Logger               *zap.SugaredLogger
	// SmartImportEnabled registers the upload route. The venue catalogue is
	// served either way.
	SmartImportEnabled bool
}

// SetupRouter configures and returns the main Gin engine with all routes defined.
func SetupRouter(deps Dependencies) *gin.Engine {
	if deps.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// Only the listed proxies may set X-Forwarded-For; client IPs feed the
	// public rate limiter and the acceptance audit trail.
	if err := r.SetTrustedProxies(deps.Config.Server.TrustedProxies); err != nil {
		deps.Logger.Warnw("Invalid trusted proxies, ignoring forwarded headers", "error", err)
		_ = r.SetTrustedProxies(nil)
	}

	// Global Middleware
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.SecurityHeadersMiddleware(deps.Config))
	r.Use(middleware.CORSMiddleware(&deps.Config.Server))

	// Health and Metrics Routes
	r.GET("/health", deps.HealthHandler.DetailedHealth)
	r.GET("/health/liveness", deps.HealthHandler.LivenessCheck)
	r.GET("/health/readiness", deps.HealthHandler.ReadinessCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	window := time.Duration(deps.Config.RateLimit.WindowSeconds) * time.Second

	v1 := r.Group("/v1")
	{
		// Customer-facing proposal routes, addressed by proposal number
		public := v1.Group("/proposals/:proposalNumber")
		public.Use(middleware.RateLimiter(deps.RedisClient, "public",
			deps.Config.RateLimit.PublicRequestsPerMinute, window, middleware.ByClientIP))
		{
			public.GET("", deps.ProposalHandler.GetProposalHandler)
			public.POST("/accept", deps.ProposalHandler.AcceptProposalHandler)
			public.POST("/deposit-intent", deps.ProposalHandler.CreateDepositIntentHandler)
			public.POST("/confirm-payment", deps.ProposalHandler.ConfirmPaymentHandler)
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.AdminAuth(deps.Config.Server.AdminJWTSecret))
		{
			proposals := admin.Group("/proposals")
			{
				proposals.POST("", deps.AdminProposalHandler.CreateProposalHandler)
				proposals.GET("", deps.AdminProposalHandler.ListProposalsHandler)
				proposals.GET("/:id", deps.AdminProposalHandler.GetProposalHandler)
				proposals.PUT("/:id", deps.AdminProposalHandler.UpdateProposalHandler)
				proposals.POST("/:id/send", deps.AdminProposalHandler.SendProposalHandler)
				proposals.POST("/:id/cancel", deps.AdminProposalHandler.CancelProposalHandler)
				proposals.GET("/:id/payments", deps.AdminProposalHandler.ListPaymentsHandler)
				proposals.GET("/:id/activity", deps.AdminProposalHandler.ListActivityHandler)
			}

			if deps.SmartImportEnabled {
				admin.POST("/smart-import",
					middleware.RateLimiter(deps.RedisClient, "import",
						deps.Config.RateLimit.ImportRequestsPerMinute, window, middleware.ByStaff),
					deps.SmartImportHandler.ImportHandler,
				)
			}
			admin.GET("/venues", deps.SmartImportHandler.ListVenuesHandler)
		}
	}

	return r
}
