package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus represents the billing state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusTrial     SubscriptionStatus = "trial"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// Subscription represents one tenant's billing state for a plan. Only the most
// recently created subscription row counts; history is a billing concern.
type Subscription struct {
	ID                 uuid.UUID
	TenantID           uuid.UUID
	PlanID             uuid.UUID
	Status             SubscriptionStatus
	TrialEndsAt        *time.Time
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	CancelledAt        *time.Time
	Plan               *Plan
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
