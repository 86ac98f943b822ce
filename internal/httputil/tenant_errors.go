package httputil

import (
	"net/http"

	"github.com/tendant/simple-tenant/pkg/domain"
)

// TenantError translates a tenant resolution failure into an HTTP response.
// Not-found and inactive map to access-style statuses, an invalid subscription
// maps to payment-required so callers can show a paywall, and anything outside
// the tenant taxonomy (registry connectivity and the like) is a plain 500 with
// no detail leaked.
func TenantError(w http.ResponseWriter, err error) {
	te, ok := domain.AsTenantError(err)
	if !ok {
		Error(w, http.StatusInternalServerError, "tenant resolution failed")
		return
	}

	switch te.Code {
	case domain.ErrCodeIdentifierMissing:
		ErrorCode(w, http.StatusBadRequest, string(te.Code), te.Error())
	case domain.ErrCodeTenantNotFound:
		ErrorCode(w, http.StatusNotFound, string(te.Code), te.Error())
	case domain.ErrCodeTenantInactive:
		ErrorCode(w, http.StatusForbidden, string(te.Code), te.Error())
	case domain.ErrCodeSubscriptionInvalid:
		ErrorCode(w, http.StatusPaymentRequired, string(te.Code), te.Error())
	default:
		Error(w, http.StatusInternalServerError, "tenant resolution failed")
	}
}
