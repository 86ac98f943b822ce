package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/tendant/simple-tenant/internal/httputil"
	"github.com/tendant/simple-tenant/pkg/tenant"
)

type contextKey string

// TenantContextKey is the context key for the resolved tenant context.
const TenantContextKey contextKey = "tenant_context"

// Resolver is the slice of the tenant manager this middleware needs.
type Resolver interface {
	Resolve(ctx context.Context, id tenant.Identifier) (*tenant.Context, error)
}

// TenantSource controls where RequireTenant reads the tenant key from.
type TenantSource struct {
	// Header carrying the tenant key, e.g. "X-Tenant-Key".
	Header string
	// BaseDomain enables subdomain parsing: a request for acme.api.example.com
	// with BaseDomain "api.example.com" resolves tenant key "acme". Empty
	// disables subdomain parsing.
	BaseDomain string
}

// RequireTenant creates middleware that resolves the request's tenant and
// injects the resolved context. Handlers behind it get a live tenant database
// handle via GetTenantContext; requests with no resolvable, active, paid-up
// tenant never reach them.
func RequireTenant(resolver Resolver, src TenantSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := tenantKeyFromRequest(r, src)
			if key == "" {
				httputil.Error(w, http.StatusBadRequest, "tenant key missing")
				return
			}

			tctx, err := resolver.Resolve(r.Context(), tenant.Identifier{TenantKey: key})
			if err != nil {
				httputil.TenantError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), TenantContextKey, tctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetTenantContext extracts the resolved tenant context from the request context.
func GetTenantContext(ctx context.Context) (*tenant.Context, bool) {
	tctx, ok := ctx.Value(TenantContextKey).(*tenant.Context)
	return tctx, ok
}

func tenantKeyFromRequest(r *http.Request, src TenantSource) string {
	if src.Header != "" {
		if key := r.Header.Get(src.Header); key != "" {
			return key
		}
	}
	if src.BaseDomain != "" {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		suffix := "." + src.BaseDomain
		if strings.HasSuffix(host, suffix) {
			sub := strings.TrimSuffix(host, suffix)
			// Only a single label counts as a tenant key.
			if sub != "" && !strings.Contains(sub, ".") {
				return sub
			}
		}
	}
	return ""
}
