package admin

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/simple-tenant/internal/httputil"
	"github.com/tendant/simple-tenant/pkg/tenant"
)

// Cache is the read-only slice of the tenant manager the ops endpoints use.
type Cache interface {
	Stats() tenant.CacheStats
	Cached(cacheKey string) *tenant.Context
}

// Handler handles cache administration endpoints.
type Handler struct {
	logger      *slog.Logger
	cache       Cache
	invalidator tenant.Invalidator
}

// NewHandler creates a new admin handler. The invalidator is the manager
// itself for single-replica deployments or the Redis broadcaster when
// cross-replica fan-out is enabled.
func NewHandler(logger *slog.Logger, cache Cache, invalidator tenant.Invalidator) *Handler {
	return &Handler{logger: logger, cache: cache, invalidator: invalidator}
}

// Stats reports cache occupancy.
// GET /v1/admin/cache
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, h.cache.Stats())
}

// CachedEntryResponse summarizes one cached tenant context.
type CachedEntryResponse struct {
	CacheKey     string `json:"cache_key"`
	TenantID     string `json:"tenant_id"`
	TenantKey    string `json:"tenant_key"`
	TenantStatus string `json:"tenant_status"`
	PlanCode     string `json:"plan_code,omitempty"`
}

// Peek returns the cached context for a cache key without resolving on a miss.
// GET /v1/admin/cache/{cacheKey}
func (h *Handler) Peek(w http.ResponseWriter, r *http.Request) {
	cacheKey := chi.URLParam(r, "cacheKey")

	tctx := h.cache.Cached(cacheKey)
	if tctx == nil {
		httputil.Error(w, http.StatusNotFound, "cache key not present")
		return
	}

	resp := CachedEntryResponse{
		CacheKey:     cacheKey,
		TenantID:     tctx.Tenant.ID.String(),
		TenantKey:    tctx.Tenant.Key,
		TenantStatus: string(tctx.Tenant.Status),
	}
	if tctx.Plan != nil {
		resp.PlanCode = tctx.Plan.Code
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// Invalidate drops a cache key so the next access re-resolves from the
// registry. Admin flows that change tenant status call this after committing.
// POST /v1/admin/tenants/{cacheKey}/invalidate
func (h *Handler) Invalidate(w http.ResponseWriter, r *http.Request) {
	cacheKey := chi.URLParam(r, "cacheKey")

	h.invalidator.Invalidate(r.Context(), cacheKey)
	h.logger.Info("cache key invalidated via admin API", "cache_key", cacheKey)
	w.WriteHeader(http.StatusNoContent)
}

// Flush drops every cached entry.
// POST /v1/admin/cache/flush
func (h *Handler) Flush(w http.ResponseWriter, r *http.Request) {
	h.invalidator.InvalidateAll(r.Context())
	h.logger.Info("tenant cache flushed via admin API")
	w.WriteHeader(http.StatusNoContent)
}
