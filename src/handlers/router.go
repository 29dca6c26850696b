package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/khabaroff/hwid-license-server/src/metrics"
	"github.com/khabaroff/hwid-license-server/src/middleware"
	"github.com/khabaroff/hwid-license-server/src/services"
	"github.com/prometheus/client_golang/prometheus"
)

// Dependencies are the services and settings the HTTP layer is built from
type Dependencies struct {
	Store             Pinger
	ValidationService *services.ValidationService
	KeyService        *services.KeyService
	BlacklistService  *services.BlacklistService
	AdminService      *services.AdminService

	// Registry is served on /metrics when set
	Registry *prometheus.Registry

	AllowedOrigins    []string
	TrustedProxies    []string
	ValidateRateLimit middleware.RateLimitConfig
	Driver            string
	Version           string
	SecureCookie      bool
}

// Router is the configured gin engine plus the resources it owns
type Router struct {
	*gin.Engine
	limiters []*middleware.RateLimiter
}

// Close stops the rate limiter cleanup goroutines
func (r *Router) Close() {
	for _, l := range r.limiters {
		l.Stop()
	}
}

// NewRouter builds the HTTP API
func NewRouter(deps Dependencies) (*Router, error) {
	if err := RegisterValidators(); err != nil {
		return nil, err
	}

	engine := gin.New()
	// ClientIP only trusts forwarding headers from these peers
	if err := engine.SetTrustedProxies(deps.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(middleware.LoggingMiddleware("/health", "/ready", "/metrics"))
	engine.Use(gin.Recovery())

	if len(deps.AllowedOrigins) > 0 {
		allowed := make(map[string]bool, len(deps.AllowedOrigins))
		for _, origin := range deps.AllowedOrigins {
			allowed[origin] = true
		}
		engine.Use(cors.New(cors.Config{
			AllowOriginFunc: func(origin string) bool {
				return allowed[origin]
			},
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
			ExposeHeaders:    []string{"Content-Length", "Retry-After", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r := &Router{Engine: engine}
	validateLimiter := middleware.NewIPRateLimiter(deps.ValidateRateLimit)
	loginLimiter := middleware.AuthRateLimiter()
	r.limiters = append(r.limiters, validateLimiter, loginLimiter)

	healthHandler := NewHealthHandler(deps.Store, deps.Driver, deps.Version)
	validationHandler := NewValidationHandler(deps.ValidationService)
	keyHandler := NewKeyHandler(deps.KeyService)
	blacklistHandler := NewBlacklistHandler(deps.BlacklistService)
	adminHandler := NewAdminHandler(deps.AdminService, deps.SecureCookie)

	// Health check endpoints
	engine.GET("/health", healthHandler.HandleHealth)
	engine.GET("/ready", healthHandler.HandleReady)
	engine.GET("/info", healthHandler.HandleInfo)
	if deps.Registry != nil {
		engine.GET("/metrics", gin.WrapH(metrics.Handler(deps.Registry)))
	}

	// Public validation endpoint
	engine.POST("/keys/validate", validateLimiter.Middleware(), validationHandler.HandleValidate)

	// Admin authentication endpoints
	engine.POST("/admin/login", loginLimiter.Middleware(), adminHandler.HandleAdminLogin)
	session := engine.Group("/admin", middleware.AdminAuthMiddleware())
	{
		session.POST("/logout", adminHandler.HandleAdminLogout)
		session.GET("/status", adminHandler.HandleAdminStatus)
	}

	// Admin endpoints (all require the admin role)
	admin := engine.Group("/", middleware.AdminAuthMiddleware(), middleware.RequireAdmin())
	{
		admin.POST("/keys", keyHandler.HandleCreateKey)
		admin.GET("/keys", keyHandler.HandleListKeys)
		admin.GET("/keys/:key", keyHandler.HandleGetKey)
		admin.DELETE("/keys/:key", keyHandler.HandleDeleteKey)
		admin.POST("/keys/:key/reset-hwid", keyHandler.HandleResetHWID)

		admin.GET("/blacklist", blacklistHandler.HandleList)
		admin.POST("/blacklist", blacklistHandler.HandleAdd)
		admin.DELETE("/blacklist/:key", blacklistHandler.HandleRemove)
	}

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return r, nil
}
