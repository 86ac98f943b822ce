package billing

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tendant/simple-tenant/internal/httputil"
	"github.com/tendant/simple-tenant/pkg/domain"
	"github.com/tendant/simple-tenant/pkg/tenant"
)

// Handler receives billing lifecycle events from the external billing system
// and drops the affected tenant from the context cache, so the next access
// re-resolves fresh subscription state instead of serving cached validity.
type Handler struct {
	logger      *slog.Logger
	invalidator tenant.Invalidator
}

// NewHandler creates a new billing webhook handler.
func NewHandler(logger *slog.Logger, invalidator tenant.Invalidator) *Handler {
	return &Handler{logger: logger, invalidator: invalidator}
}

// EventRequest is the webhook payload. At least one tenant identifier is
// required; the event type is informational.
type EventRequest struct {
	Type      string `json:"type"`
	TenantID  string `json:"tenant_id,omitempty"`
	TenantKey string `json:"tenant_key,omitempty"`
}

// Event processes one billing event.
// POST /v1/billing/events
func (h *Handler) Event(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	key := domain.NormalizeKey(req.TenantKey)
	if req.TenantID == "" && key == "" {
		httputil.Error(w, http.StatusBadRequest, "tenant_id or tenant_key is required")
		return
	}

	// A tenant may be cached under its id or its key, depending on how the
	// first caller identified it. Drop both forms.
	if req.TenantID != "" {
		h.invalidator.Invalidate(r.Context(), req.TenantID)
	}
	if key != "" {
		h.invalidator.Invalidate(r.Context(), key)
	}

	h.logger.Info("billing event processed",
		"type", req.Type,
		"tenant_id", req.TenantID,
		"tenant_key", key,
	)
	w.WriteHeader(http.StatusAccepted)
}
