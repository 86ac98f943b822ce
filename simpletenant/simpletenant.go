// Package simpletenant provides an embeddable multi-tenant database routing
// core: it maps tenant identifiers to live, pooled connections to each
// tenant's dedicated database, enforcing tenant status and subscription
// validity before any tenant-scoped query runs.
//
// Setup:
//
//  1. Run migrations from migrations/ folder against the main registry
//     database using your preferred tool
//  2. Create an instance and resolve tenants, or mount the middleware
//
// Basic usage:
//
//	db, _ := sql.Open("postgres", "postgres://localhost/tenant_registry?sslmode=disable")
//
//	st, err := simpletenant.New(simpletenant.Config{DB: db})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Shutdown()
//
//	tctx, err := st.Resolve(ctx, tenant.Identifier{TenantKey: "acme"})
//	if err != nil {
//	    // *domain.TenantError for refusals, raw error for registry outages
//	}
//	rows, err := tctx.Client.QueryContext(ctx, "SELECT ... FROM orders")
//
// As HTTP middleware:
//
//	r := chi.NewRouter()
//	r.Use(st.Middleware("X-Tenant-Key"))
//	r.Get("/orders", ordersHandler) // simpletenant.FromContext(r.Context())
package simpletenant

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tendant/simple-tenant/internal/http/middleware"
	"github.com/tendant/simple-tenant/pkg/audit"
	"github.com/tendant/simple-tenant/pkg/registry"
	"github.com/tendant/simple-tenant/pkg/tenant"
)

// Config holds the configuration for the embeddable routing core.
type Config struct {
	// DB is the main registry database connection (required).
	DB *sql.DB

	// CacheTTL is the sliding idle lifetime of a cached tenant context
	// (default: 5 minutes).
	CacheTTL time.Duration

	// CacheSize caps the number of cached tenant contexts (default: 50).
	CacheSize int

	// Logger for operational events (default: slog.Default()).
	Logger *slog.Logger

	// Connector builds per-tenant database clients (default: lazy Postgres
	// pools via sql.Open).
	Connector tenant.Connector

	// Audit receives resolution denials and invalidations (optional).
	Audit audit.Recorder
}

// SimpleTenant is the embeddable routing core.
type SimpleTenant struct {
	mgr *tenant.Manager
}

// New creates the routing core.
func New(cfg Config) (*SimpleTenant, error) {
	if cfg.DB == nil {
		return nil, errors.New("simpletenant: Config.DB is required")
	}
	connector := cfg.Connector
	if connector == nil {
		connector = tenant.PostgresConnector()
	}

	mgr := tenant.NewManager(registry.NewTenantRegistry(cfg.DB), connector, tenant.Config{
		CacheTTL:  cfg.CacheTTL,
		CacheSize: cfg.CacheSize,
		Logger:    cfg.Logger,
		Audit:     cfg.Audit,
	})
	return &SimpleTenant{mgr: mgr}, nil
}

// Manager returns the underlying tenant manager.
func (s *SimpleTenant) Manager() *tenant.Manager {
	return s.mgr
}

// Resolve maps a tenant identifier to a ready-to-use tenant context.
func (s *SimpleTenant) Resolve(ctx context.Context, id tenant.Identifier) (*tenant.Context, error) {
	return s.mgr.Resolve(ctx, id)
}

// Invalidate drops a cache key so the next access re-resolves.
func (s *SimpleTenant) Invalidate(ctx context.Context, cacheKey string) {
	s.mgr.Invalidate(ctx, cacheKey)
}

// Middleware returns a handler wrapper that resolves the tenant named by the
// given header and injects the tenant context into the request context.
func (s *SimpleTenant) Middleware(header string) func(http.Handler) http.Handler {
	return middleware.RequireTenant(s.mgr, middleware.TenantSource{Header: header})
}

// FromContext extracts the tenant context injected by Middleware.
func FromContext(ctx context.Context) (*tenant.Context, bool) {
	return middleware.GetTenantContext(ctx)
}

// Shutdown closes every cached tenant client and clears the cache.
func (s *SimpleTenant) Shutdown() {
	s.mgr.Shutdown()
}
