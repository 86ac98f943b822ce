// Package audit defines the hook the tenant manager reports access decisions
// through. The audit-logging subsystem proper lives outside this service; it
// consumes these events via the Recorder interface.
package audit

import (
	"context"
	"log/slog"
)

// Action identifies what happened.
type Action string

const (
	ActionTenantRefused       Action = "tenant.refused"
	ActionSubscriptionRefused Action = "tenant.subscription_refused"
	ActionTenantInvalidated   Action = "tenant.invalidated"
)

// Event is one recorded access decision.
type Event struct {
	Action    Action
	TenantID  string
	TenantKey string
	// Detail carries the refusal reason (tenant status, subscription status).
	Detail string
}

// Recorder receives audit events. Implementations must not block the caller;
// recording is best-effort and failures stay inside the recorder.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Event) {}

// Nop returns a recorder that discards everything.
func Nop() Recorder {
	return nopRecorder{}
}

// SlogRecorder writes audit events to a structured logger.
type SlogRecorder struct {
	logger *slog.Logger
}

// NewSlogRecorder creates a recorder backed by the given logger.
func NewSlogRecorder(logger *slog.Logger) *SlogRecorder {
	return &SlogRecorder{logger: logger}
}

func (r *SlogRecorder) Record(ctx context.Context, ev Event) {
	r.logger.LogAttrs(ctx, slog.LevelInfo, "audit",
		slog.String("action", string(ev.Action)),
		slog.String("tenant_id", ev.TenantID),
		slog.String("tenant_key", ev.TenantKey),
		slog.String("detail", ev.Detail),
	)
}
