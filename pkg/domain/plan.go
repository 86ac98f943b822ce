package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Plan represents a subscription tier. Read-only reference data owned by the
// billing system.
type Plan struct {
	ID              uuid.UUID
	Code            string
	Name            string
	PriceCents      int64
	Currency        string
	Interval        string // "month" or "year"
	TrialPeriodDays int
	IsActive        bool
	Limits          json.RawMessage
	Features        json.RawMessage
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
