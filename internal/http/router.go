// Package httpapi wires the admin HTTP transport (Gin) to the pool services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, structured logging, panic recovery, metrics,
// CORS, and rate limiting.
//
// The surface is an operator API, not a public product: pool management,
// ledger control, stats, health, and Prometheus metrics.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/AhaCompany/crawl-reddit-sub000/internal/config"
	"github.com/AhaCompany/crawl-reddit-sub000/internal/http/handlers"
	"github.com/AhaCompany/crawl-reddit-sub000/internal/http/middleware"
	"github.com/AhaCompany/crawl-reddit-sub000/internal/repo"
)

// storageStatsShim adapts the repository free functions to the
// handlers.StatsSource interface. This keeps handlers decoupled from the
// concrete repo package while reusing existing queries.
type storageStatsShim struct{ db *gorm.DB }

// Storage proxies repo.CollectStorageStats.
func (s storageStatsShim) Storage(ctx context.Context) (repo.StorageStats, error) {
	return repo.CollectStorageStats(ctx, s.db)
}

// Deps bundles the injected collaborators for the admin API.
type Deps struct {
	DB       *gorm.DB
	Accounts handlers.AccountPool
	Proxies  handlers.ProxyAdmin
	Tracking handlers.TrackingAdmin
}

// RegisterRoutes attaches all middleware and admin endpoints to the given
// Gin engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured request logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per client IP)
//  8. CORS
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())

	// Pool management payloads are small; 256 KiB covers bulk imports.
	r.Use(limitBody(256 << 10))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
	r.Use(rl.Handler())

	if len(cfg.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	h := handlers.New(deps.Accounts, deps.Proxies, deps.Tracking, storageStatsShim{db: deps.DB})

	api := r.Group("/api/v1")
	{
		// Credential pool
		api.POST("/accounts", h.AddAccount)
		api.GET("/accounts", h.ListAccounts)
		api.DELETE("/accounts/:username", h.DisableAccount)

		// Proxy pool
		api.POST("/proxies", h.AddProxy)
		api.GET("/proxies", h.ListProxies)
		api.DELETE("/proxies/:id", h.DisableProxy)

		// Tracking ledger
		api.POST("/tracking", h.TrackPost)
		api.DELETE("/tracking/:post_id", h.UntrackPost)
		api.GET("/tracking/stats", h.GetTrackingStats)

		// Combined health snapshot
		api.GET("/stats", h.GetStats)
	}
}

// limitBody caps the request body size for all endpoints using
// http.MaxBytesReader. Requests exceeding the cap cause downstream body
// reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
