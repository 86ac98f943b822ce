package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tendant/simple-tenant/internal/httputil"
)

// ScopeAdmin grants access to the cache admin endpoints; ScopeWebhook grants
// access to the billing event endpoint.
const (
	ScopeAdmin   = "tenant:admin"
	ScopeWebhook = "tenant:webhook"
)

// ServiceClaims are the claims carried by service-to-service tokens issued to
// internal callers of the admin and webhook endpoints.
type ServiceClaims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope,omitempty"`
}

// ServiceAuth creates middleware that validates HS256-signed service tokens
// from the Authorization header and requires the given scope. This guards the
// router's own ops surface only; end-user authentication is out of scope for
// this service.
func ServiceAuth(secret []byte, issuer, requiredScope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var tokenString string

			authHeader := r.Header.Get("Authorization")
			if authHeader != "" {
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
					tokenString = parts[1]
				}
			}

			if tokenString == "" {
				httputil.Error(w, http.StatusUnauthorized, "missing authorization")
				return
			}

			claims := &ServiceClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secret, nil
			}, jwt.WithIssuer(issuer))
			if err != nil || !token.Valid {
				httputil.Error(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			if !hasScope(claims.Scope, requiredScope) {
				httputil.Error(w, http.StatusForbidden, "insufficient scope")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// hasScope reports whether a space-separated scope claim contains want.
func hasScope(scopes, want string) bool {
	for _, s := range strings.Fields(scopes) {
		if s == want {
			return true
		}
	}
	return false
}
