package resolve

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-tenant/internal/httputil"
	"github.com/tendant/simple-tenant/pkg/domain"
	"github.com/tendant/simple-tenant/pkg/tenant"
)

// Resolver is the slice of the tenant manager this handler needs.
type Resolver interface {
	Resolve(ctx context.Context, id tenant.Identifier) (*tenant.Context, error)
}

// Handler handles tenant resolution endpoints.
type Handler struct {
	logger   *slog.Logger
	resolver Resolver
}

// NewHandler creates a new resolve handler.
func NewHandler(logger *slog.Logger, resolver Resolver) *Handler {
	return &Handler{logger: logger, resolver: resolver}
}

// TenantResponse is the tenant summary returned to callers. The tenant's
// database URL is deliberately absent.
type TenantResponse struct {
	ID            string          `json:"id"`
	Key           string          `json:"key"`
	Name          string          `json:"name"`
	PrimaryDomain string          `json:"primary_domain,omitempty"`
	Status        string          `json:"status"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// SubscriptionResponse summarizes the tenant's current subscription.
type SubscriptionResponse struct {
	ID                 string     `json:"id"`
	Status             string     `json:"status"`
	TrialEndsAt        *time.Time `json:"trial_ends_at,omitempty"`
	CurrentPeriodStart time.Time  `json:"current_period_start"`
	CurrentPeriodEnd   time.Time  `json:"current_period_end"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end"`
}

// PlanResponse summarizes the subscription's plan.
type PlanResponse struct {
	ID         string          `json:"id"`
	Code       string          `json:"code"`
	Name       string          `json:"name"`
	PriceCents int64           `json:"price_cents"`
	Currency   string          `json:"currency"`
	Interval   string          `json:"interval"`
	Limits     json.RawMessage `json:"limits,omitempty"`
	Features   json.RawMessage `json:"features,omitempty"`
}

// ResolveResponse is the full resolution result.
type ResolveResponse struct {
	Tenant       TenantResponse        `json:"tenant"`
	Subscription *SubscriptionResponse `json:"subscription,omitempty"`
	Plan         *PlanResponse         `json:"plan,omitempty"`
}

// Resolve resolves a tenant by id or key.
// GET /v1/tenants/resolve?tenant_id=...&tenant_key=...
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var id tenant.Identifier

	if raw := r.URL.Query().Get("tenant_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "tenant_id must be a valid UUID")
			return
		}
		id.TenantID = parsed
	}
	id.TenantKey = r.URL.Query().Get("tenant_key")

	tctx, err := h.resolver.Resolve(r.Context(), id)
	if err != nil {
		if _, ok := domain.AsTenantError(err); !ok {
			h.logger.Error("tenant resolution failed", "error", err)
		}
		httputil.TenantError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, toResponse(tctx))
}

func toResponse(tctx *tenant.Context) ResolveResponse {
	resp := ResolveResponse{
		Tenant: TenantResponse{
			ID:            tctx.Tenant.ID.String(),
			Key:           tctx.Tenant.Key,
			Name:          tctx.Tenant.Name,
			PrimaryDomain: tctx.Tenant.PrimaryDomain,
			Status:        string(tctx.Tenant.Status),
			Metadata:      tctx.Tenant.Metadata,
			CreatedAt:     tctx.Tenant.CreatedAt,
		},
	}
	if sub := tctx.Subscription; sub != nil {
		resp.Subscription = &SubscriptionResponse{
			ID:                 sub.ID.String(),
			Status:             string(sub.Status),
			TrialEndsAt:        sub.TrialEndsAt,
			CurrentPeriodStart: sub.CurrentPeriodStart,
			CurrentPeriodEnd:   sub.CurrentPeriodEnd,
			CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		}
	}
	if plan := tctx.Plan; plan != nil {
		resp.Plan = &PlanResponse{
			ID:         plan.ID.String(),
			Code:       plan.Code,
			Name:       plan.Name,
			PriceCents: plan.PriceCents,
			Currency:   plan.Currency,
			Interval:   plan.Interval,
			Limits:     plan.Limits,
			Features:   plan.Features,
		}
	}
	return resp
}
