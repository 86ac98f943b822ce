package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-tenant/pkg/domain"
)

// TenantRegistry reads tenant, subscription, and plan metadata from the main
// registry database. It is strictly read-only; tenant provisioning and billing
// mutations live in external systems.
type TenantRegistry struct {
	db *sql.DB
}

// NewTenantRegistry creates a new registry reader.
func NewTenantRegistry(db *sql.DB) *TenantRegistry {
	return &TenantRegistry{db: db}
}

// Each lookup returns the tenant joined with its single newest subscription
// (creation order, not period dates) and that subscription's plan. The lateral
// join keeps "newest" server-side so callers never see history.
const accountColumns = `
		t.id, t.tenant_key, t.name, t.primary_domain, t.status, t.database_url, t.metadata, t.created_at, t.updated_at,
		s.id, s.plan_id, s.status, s.trial_ends_at, s.current_period_start, s.current_period_end,
		s.cancel_at_period_end, s.cancelled_at, s.created_at, s.updated_at,
		p.id, p.code, p.name, p.price_cents, p.currency, p.billing_interval, p.trial_period_days,
		p.is_active, p.limits, p.features, p.created_at, p.updated_at
	FROM tenants t
	LEFT JOIN LATERAL (
		SELECT * FROM subscriptions sub
		WHERE sub.tenant_id = t.id
		ORDER BY sub.created_at DESC
		LIMIT 1
	) s ON TRUE
	LEFT JOIN plans p ON p.id = s.plan_id`

// FindTenantByID retrieves a tenant account by tenant id. Returns (nil, nil)
// when no tenant matches; errors are reserved for data-layer failures.
func (r *TenantRegistry) FindTenantByID(ctx context.Context, id uuid.UUID) (*domain.TenantAccount, error) {
	query := `SELECT` + accountColumns + `
	WHERE t.id = $1 AND t.deleted_at IS NULL`
	return r.scanAccount(r.db.QueryRowContext(ctx, query, id))
}

// FindTenantByKey retrieves a tenant account by its normalized tenant key.
// Callers must normalize the key first (see domain.NormalizeKey). Returns
// (nil, nil) when no tenant matches.
func (r *TenantRegistry) FindTenantByKey(ctx context.Context, key string) (*domain.TenantAccount, error) {
	query := `SELECT` + accountColumns + `
	WHERE t.tenant_key = $1 AND t.deleted_at IS NULL`
	return r.scanAccount(r.db.QueryRowContext(ctx, query, key))
}

func (r *TenantRegistry) scanAccount(row *sql.Row) (*domain.TenantAccount, error) {
	var (
		account       domain.TenantAccount
		primaryDomain sql.NullString
		metadata      []byte

		subID       uuid.NullUUID
		subPlanID   uuid.NullUUID
		subStatus   sql.NullString
		trialEndsAt sql.NullTime
		periodStart sql.NullTime
		periodEnd   sql.NullTime
		cancelAtEnd sql.NullBool
		cancelledAt sql.NullTime
		subCreated  sql.NullTime
		subUpdated  sql.NullTime

		planID       uuid.NullUUID
		planCode     sql.NullString
		planName     sql.NullString
		priceCents   sql.NullInt64
		currency     sql.NullString
		interval     sql.NullString
		trialDays    sql.NullInt64
		planIsActive sql.NullBool
		limits       []byte
		features     []byte
		planCreated  sql.NullTime
		planUpdated  sql.NullTime
	)

	err := row.Scan(
		&account.Tenant.ID,
		&account.Tenant.Key,
		&account.Tenant.Name,
		&primaryDomain,
		&account.Tenant.Status,
		&account.Tenant.DatabaseURL,
		&metadata,
		&account.Tenant.CreatedAt,
		&account.Tenant.UpdatedAt,
		&subID,
		&subPlanID,
		&subStatus,
		&trialEndsAt,
		&periodStart,
		&periodEnd,
		&cancelAtEnd,
		&cancelledAt,
		&subCreated,
		&subUpdated,
		&planID,
		&planCode,
		&planName,
		&priceCents,
		&currency,
		&interval,
		&trialDays,
		&planIsActive,
		&limits,
		&features,
		&planCreated,
		&planUpdated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Not an error: "no such tenant" is a valid result the manager
			// interprets. Data-layer failures take the error path below.
			return nil, nil
		}
		return nil, err
	}

	account.Tenant.PrimaryDomain = primaryDomain.String
	account.Tenant.Metadata = json.RawMessage(metadata)

	if subID.Valid {
		sub := &domain.Subscription{
			ID:                 subID.UUID,
			TenantID:           account.Tenant.ID,
			Status:             domain.SubscriptionStatus(subStatus.String),
			CurrentPeriodStart: periodStart.Time,
			CurrentPeriodEnd:   periodEnd.Time,
			CancelAtPeriodEnd:  cancelAtEnd.Bool,
			CreatedAt:          subCreated.Time,
			UpdatedAt:          subUpdated.Time,
		}
		if subPlanID.Valid {
			sub.PlanID = subPlanID.UUID
		}
		if trialEndsAt.Valid {
			sub.TrialEndsAt = timePtr(trialEndsAt.Time)
		}
		if cancelledAt.Valid {
			sub.CancelledAt = timePtr(cancelledAt.Time)
		}
		if planID.Valid {
			sub.Plan = &domain.Plan{
				ID:              planID.UUID,
				Code:            planCode.String,
				Name:            planName.String,
				PriceCents:      priceCents.Int64,
				Currency:        currency.String,
				Interval:        interval.String,
				TrialPeriodDays: int(trialDays.Int64),
				IsActive:        planIsActive.Bool,
				Limits:          json.RawMessage(limits),
				Features:        json.RawMessage(features),
				CreatedAt:       planCreated.Time,
				UpdatedAt:       planUpdated.Time,
			}
		}
		account.Subscription = sub
	}

	return &account, nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}
