package tenant

import (
	"time"

	"github.com/tendant/simple-tenant/pkg/domain"
)

// IsSubscriptionValid reports whether a subscription entitles its tenant to
// database access at the given instant. Pure and deterministic; this is the
// crux of tenant gating and is exercised directly by tests.
//
// Grace handling for past-due accounts belongs to billing, not to connection
// routing, so past_due is unconditionally invalid here.
func IsSubscriptionValid(sub *domain.Subscription, now time.Time) bool {
	if sub == nil {
		return false
	}

	switch sub.Status {
	case domain.SubscriptionStatusCancelled, domain.SubscriptionStatusPastDue:
		return false
	case domain.SubscriptionStatusActive:
		return sub.CurrentPeriodEnd.After(now)
	case domain.SubscriptionStatusTrial:
		end := sub.CurrentPeriodEnd
		if sub.TrialEndsAt != nil {
			end = *sub.TrialEndsAt
		}
		return end.After(now)
	default:
		// Unknown status: fail closed.
		return false
	}
}
