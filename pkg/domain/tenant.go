package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TenantStatus represents the lifecycle state of a tenant.
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusInactive  TenantStatus = "inactive"
	TenantStatusSuspended TenantStatus = "suspended"
)

// Tenant represents one customer organization with its own dedicated database.
// This core is read-only with respect to tenants; provisioning and status
// changes happen in external admin flows.
type Tenant struct {
	ID            uuid.UUID
	Key           string // URL-safe unique slug, stored normalized
	Name          string
	PrimaryDomain string
	Status        TenantStatus
	DatabaseURL   string // connection string to the tenant's database; never logged
	Metadata      json.RawMessage
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
}

// IsActive returns true if the tenant may serve traffic.
func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive && t.DeletedAt == nil
}

// TenantAccount is the unit the registry returns: a tenant joined with its
// single most recent subscription (and that subscription's plan, when present).
type TenantAccount struct {
	Tenant       Tenant
	Subscription *Subscription
}

// NormalizeKey canonicalizes a tenant key for lookup and storage. Keys are
// case-insensitive unique, so every lookup path must pass through here.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
