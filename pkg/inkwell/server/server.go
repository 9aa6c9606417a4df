// Package server assembles the HTTP router.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/inkwell/pkg/inkwell/admin"
	"github.com/mikepea/inkwell/pkg/inkwell/auth"
	"github.com/mikepea/inkwell/pkg/inkwell/comments"
	"github.com/mikepea/inkwell/pkg/inkwell/config"
	"github.com/mikepea/inkwell/pkg/inkwell/media"
	"github.com/mikepea/inkwell/pkg/inkwell/observability"
	"github.com/mikepea/inkwell/pkg/inkwell/posts"
	"github.com/mikepea/inkwell/pkg/inkwell/ratelimit"
	"github.com/mikepea/inkwell/pkg/inkwell/tags"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps are the shared resources the router is built from
type Deps struct {
	Config *config.Config
	DB     *gorm.DB
	// Redis backs rate limiting and may be nil
	Redis *redis.Client
}

// New builds the gin engine with every route registered
func New(deps Deps) *gin.Engine {
	cfg := deps.Config
	db := deps.DB

	auth.Configure(cfg.JWTSecret, time.Duration(cfg.TokenTTLHours)*time.Hour)

	r := gin.New()
	r.HandleMethodNotAllowed = true
	// ClientIP keys the rate limiter, so forwarded headers only count from known proxies
	if err := r.SetTrustedProxies(cfg.TrustedProxyList()); err != nil {
		slog.Error("Invalid TRUSTED_PROXIES, trusting none", "error", err)
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(
		gin.Recovery(),
		observability.RequestID(),
		observability.Tracing(),
		observability.RequestLogger(),
		observability.Metrics(),
	)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(observability.MetricsHandler()))

	images := media.NewStore(cfg.MediaRoot, cfg.MediaURL, cfg.ImageMaxUploadSizeMB).
		WithMaxPixels(cfg.ImageMaxPixels)
	r.Static(cfg.MediaURL, cfg.MediaRoot)

	limiter := ratelimit.New(deps.Redis, cfg.RateLimitPerMinute, time.Minute)

	// API routes
	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "ok",
				"service": "inkwell",
			})
		})

		tokenAuth := auth.TokenAuthMiddleware(db)
		protected := api.Group("", tokenAuth)

		// Signup and login are public and rate limited
		authHandler := auth.NewHandler(db, cfg.TokenType)
		authHandler.RegisterRoutes(api.Group("", limiter.Middleware("auth")), protected)

		tags.NewHandler(db).RegisterRoutes(protected)
		posts.NewHandler(db, images).RegisterRoutes(protected)
		comments.NewHandler(db, images).RegisterRoutes(protected)

		// Admin routes (staff only)
		adminGroup := api.Group("/admin")
		adminGroup.Use(tokenAuth, auth.RequireStaff())
		admin.NewHandler(db, images).RegisterRoutes(adminGroup)
	}

	return r
}
