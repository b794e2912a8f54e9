// Package api provides the HTTP API for the LODO server.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/lodomap/lodo/internal/activity"
	"github.com/lodomap/lodo/internal/api/handlers"
	"github.com/lodomap/lodo/internal/api/middleware"
	"github.com/lodomap/lodo/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Config holds configuration for the API router.
type Config struct {
	// AllowedOrigins for CORS. Empty means all origins allowed in dev mode.
	AllowedOrigins []string
	Environment    config.Environment
	// RateLimitRequests is the number of requests allowed per period.
	RateLimitRequests int64
	// RateLimitPeriod is the duration string for rate limiting (e.g. "1m", "1h").
	RateLimitPeriod string
	// Version information for the version endpoint.
	Version   string
	Commit    string
	BuildDate string
}

// DefaultConfig returns a Config with sensible defaults for development.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins:    []string{},
		Environment:       config.EnvDevelopment,
		RateLimitRequests: 100,
		RateLimitPeriod:   "1m",
		Version:           "dev",
		Commit:            "unknown",
		BuildDate:         "unknown",
	}
}

// Handlers bundles the endpoint handlers wired into the router.
type Handlers struct {
	Organizations *handlers.OrganizationsHandler
	Public        *handlers.PublicHandler
	Taxonomies    *handlers.TaxonomiesHandler
	Auth          *handlers.AuthHandler
	Health        *handlers.HealthHandler
	Version       *handlers.VersionHandler
}

// Router wraps a Gin engine with configured middleware and routes.
type Router struct {
	Engine *gin.Engine
	logger zerolog.Logger
}

// NewRouter creates a new Router with the given dependencies. rateLimiter
// and feed may be nil.
func NewRouter(
	cfg Config,
	h Handlers,
	authenticator *middleware.Authenticator,
	rateLimiter gin.HandlerFunc,
	feed *activity.Feed,
	registry *prometheus.Registry,
	logger zerolog.Logger,
) *Router {
	r := &Router{
		Engine: gin.New(),
		logger: logger.With().Str("component", "router").Logger(),
	}

	// Global middleware
	r.Engine.Use(gin.Recovery())
	r.Engine.Use(middleware.RequestLogger(logger))
	r.Engine.Use(middleware.CORS(cfg.AllowedOrigins, cfg.Environment))
	if rateLimiter != nil {
		r.Engine.Use(rateLimiter)
	}

	// Health, metrics and version endpoints (no auth required)
	h.Health.RegisterRoutes(r.Engine)
	r.Engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	r.Engine.GET("/version", h.Version.Version)

	// Public directory surface (no auth required)
	apiV1 := r.Engine.Group("/api/v1")
	public := apiV1.Group("/public")
	h.Public.RegisterRoutes(public)
	h.Taxonomies.RegisterPublicRoutes(public)
	h.Auth.RegisterPublicRoutes(apiV1)

	// Authenticated surface
	authed := apiV1.Group("")
	authed.Use(authenticator.RequireAuth())
	h.Auth.RegisterPrivateRoutes(authed)

	// Admin console: full record set, lifecycle and taxonomy management
	admin := apiV1.Group("")
	admin.Use(authenticator.RequireAuth(), authenticator.RequireAdmin())
	h.Organizations.RegisterRoutes(admin)
	h.Taxonomies.RegisterAdminRoutes(admin)
	if feed != nil {
		admin.GET("/activity/ws", feed.HandleWS)
	}

	return r
}
