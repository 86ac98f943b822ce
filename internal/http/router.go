package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/simple-tenant/internal/config"
	"github.com/tendant/simple-tenant/internal/http/features/admin"
	"github.com/tendant/simple-tenant/internal/http/features/billing"
	"github.com/tendant/simple-tenant/internal/http/features/resolve"
	"github.com/tendant/simple-tenant/internal/http/middleware"
	"github.com/tendant/simple-tenant/internal/httputil"
	"github.com/tendant/simple-tenant/pkg/tenant"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger *slog.Logger
	// Manager is the tenant manager backing every endpoint.
	Manager *tenant.Manager
	// Invalidator handles invalidations; the Manager itself for a single
	// replica, the Redis broadcaster when fan-out is enabled.
	Invalidator tenant.Invalidator

	ServiceAuthSecret  []byte
	ServiceAuthIssuer  string
	MaxRequestBodySize int64
	RateLimit          config.RateLimitConfig
	SecurityHeaders    config.SecurityHeadersConfig
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders(cfg.SecurityHeaders))
	r.Use(middleware.RequestSizeLimit(cfg.MaxRequestBodySize))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	rateLimiters := middleware.CreateRateLimiters(cfg.RateLimit, cfg.Logger)

	// Tenant resolution
	resolveHandler := resolve.NewHandler(cfg.Logger, cfg.Manager)
	r.Group(func(r chi.Router) {
		r.Use(rateLimiters["resolve"])
		r.Get("/v1/tenants/resolve", resolveHandler.Resolve)
	})

	// Cache administration, behind service auth
	adminHandler := admin.NewHandler(cfg.Logger, cfg.Manager, cfg.Invalidator)
	r.Group(func(r chi.Router) {
		r.Use(rateLimiters["admin"])
		r.Use(middleware.ServiceAuth(cfg.ServiceAuthSecret, cfg.ServiceAuthIssuer, middleware.ScopeAdmin))
		r.Get("/v1/admin/cache", adminHandler.Stats)
		r.Get("/v1/admin/cache/{cacheKey}", adminHandler.Peek)
		r.Post("/v1/admin/cache/flush", adminHandler.Flush)
		r.Post("/v1/admin/tenants/{cacheKey}/invalidate", adminHandler.Invalidate)
	})

	// Billing events, behind service auth
	billingHandler := billing.NewHandler(cfg.Logger, cfg.Invalidator)
	r.Group(func(r chi.Router) {
		r.Use(rateLimiters["webhook"])
		r.Use(middleware.ServiceAuth(cfg.ServiceAuthSecret, cfg.ServiceAuthIssuer, middleware.ScopeWebhook))
		r.Post("/v1/billing/events", billingHandler.Event)
	})

	return r
}
