package billing

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

type fakeInvalidator struct {
	keys    []string
	flushed int
}

func (f *fakeInvalidator) Invalidate(_ context.Context, cacheKey string) {
	f.keys = append(f.keys, cacheKey)
}

func (f *fakeInvalidator) InvalidateAll(_ context.Context) {
	f.flushed++
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func postEvent(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/billing/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Event(rec, req)
	return rec
}

func TestEvent_InvalidatesByKey(t *testing.T) {
	inv := &fakeInvalidator{}
	h := NewHandler(testLogger(), inv)

	rec := postEvent(t, h, `{"type":"subscription.updated","tenant_key":"ACME "}`)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	if len(inv.keys) != 1 || inv.keys[0] != "acme" {
		t.Errorf("invalidated keys = %v, want [acme]", inv.keys)
	}
}

func TestEvent_InvalidatesBothForms(t *testing.T) {
	inv := &fakeInvalidator{}
	h := NewHandler(testLogger(), inv)

	id := uuid.New().String()
	rec := postEvent(t, h, `{"type":"subscription.cancelled","tenant_id":"`+id+`","tenant_key":"acme"}`)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	if len(inv.keys) != 2 || inv.keys[0] != id || inv.keys[1] != "acme" {
		t.Errorf("invalidated keys = %v, want [%s acme]", inv.keys, id)
	}
}

func TestEvent_Rejections(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"type":`},
		{"no identifiers", `{"type":"subscription.updated"}`},
		{"blank key only", `{"type":"subscription.updated","tenant_key":"   "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &fakeInvalidator{}
			h := NewHandler(testLogger(), inv)

			rec := postEvent(t, h, tt.body)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			if len(inv.keys) != 0 {
				t.Errorf("cache touched on rejected event: %v", inv.keys)
			}
		})
	}
}
