// Package v1 wires the HTTP API surface.
package v1

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/pkg/logger"
)

// RouterConfig carries the dependencies needed to build the router.
type RouterConfig struct {
	Logger       *logger.Logger
	Validator    middleware.JWTValidator
	Health       *handlers.HealthHandler
	Ledger       *handlers.LedgerHandler
	Jobs         *handlers.JobsHandler
	DebugMode    bool
	TrustedProxy string
}

// NewRouter builds the gin engine with the full middleware stack.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.DebugMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	if cfg.TrustedProxy != "" {
		_ = router.SetTrustedProxies([]string{cfg.TrustedProxy})
	} else {
		_ = router.SetTrustedProxies(nil)
	}

	// Order matters: recovery outermost, then tracing so every log line
	// carries a trace id, then request logging, then error rendering.
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	health := router.Group("/health")
	{
		health.GET("/live", cfg.Health.Liveness)
		health.GET("/ready", cfg.Health.Readiness)
	}

	api := router.Group("/api/v1")
	api.Use(middleware.Auth(cfg.Validator))
	{
		api.POST("/movements", cfg.Ledger.RegisterMovement)
		api.POST("/movements/recalculate", cfg.Ledger.Recalculate)

		products := api.Group("/products/:product_id")
		{
			products.GET("/position", cfg.Ledger.Position)
			products.GET("/movements", cfg.Ledger.Movements)
			products.GET("/snapshots", cfg.Ledger.Snapshots)
		}

		jobs := api.Group("/jobs")
		jobs.Use(middleware.RequireAdmin())
		{
			jobs.POST("/carry-forward", cfg.Jobs.RunCarryForward)
			jobs.POST("/gap-repair", cfg.Jobs.RunGapRepair)
		}
	}

	return router
}
