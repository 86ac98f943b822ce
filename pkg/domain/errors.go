package domain

import (
	"errors"
	"fmt"
)

// ErrorCode classifies why tenant resolution was refused. Infrastructure
// failures (registry connectivity and the like) are deliberately not part of
// this taxonomy; they propagate untyped so callers can tell an outage apart
// from a legitimate tenant-state refusal.
type ErrorCode string

const (
	ErrCodeIdentifierMissing   ErrorCode = "TENANT_IDENTIFIER_MISSING"
	ErrCodeTenantNotFound      ErrorCode = "TENANT_NOT_FOUND"
	ErrCodeTenantInactive      ErrorCode = "TENANT_INACTIVE"
	ErrCodeSubscriptionInvalid ErrorCode = "TENANT_SUBSCRIPTION_INVALID"
)

// TenantError is the single error type tenant resolution returns for
// tenant-state refusals. TenantID/TenantKey carry the identifiers that were
// tried; Status is set for TENANT_INACTIVE. Database URLs never appear here.
type TenantError struct {
	Code      ErrorCode
	TenantID  string
	TenantKey string
	Status    TenantStatus
}

func (e *TenantError) Error() string {
	switch e.Code {
	case ErrCodeIdentifierMissing:
		return "tenant identifier missing: provide a tenant id or tenant key"
	case ErrCodeTenantNotFound:
		return fmt.Sprintf("tenant not found (id=%q key=%q)", e.TenantID, e.TenantKey)
	case ErrCodeTenantInactive:
		return fmt.Sprintf("tenant is not active (status=%s)", e.Status)
	case ErrCodeSubscriptionInvalid:
		return "tenant has no valid subscription"
	}
	return string(e.Code)
}

// NewIdentifierMissing reports that a caller supplied neither id nor key.
func NewIdentifierMissing() *TenantError {
	return &TenantError{Code: ErrCodeIdentifierMissing}
}

// NewTenantNotFound reports that no registry row matched the identifiers tried.
func NewTenantNotFound(tenantID, tenantKey string) *TenantError {
	return &TenantError{Code: ErrCodeTenantNotFound, TenantID: tenantID, TenantKey: tenantKey}
}

// NewTenantInactive reports a tenant that exists but is not active.
func NewTenantInactive(tenantID string, status TenantStatus) *TenantError {
	return &TenantError{Code: ErrCodeTenantInactive, TenantID: tenantID, Status: status}
}

// NewSubscriptionInvalid reports an active tenant with no usable subscription.
func NewSubscriptionInvalid(tenantID string) *TenantError {
	return &TenantError{Code: ErrCodeSubscriptionInvalid, TenantID: tenantID}
}

// AsTenantError unwraps err into a *TenantError if it is one.
func AsTenantError(err error) (*TenantError, bool) {
	var te *TenantError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
