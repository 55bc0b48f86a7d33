package middleware

import (
	"log/slog"
	"net/http"

	"github.com/caxulex/shiftcore/internal/access"
)

// RequireRole builds a middleware that authorizes the caller resolved by
// RequireAuth against a minimum role in the hierarchy (admin-only
// operations use "company_admin"; platform-only operations should use
// RequireExactRole instead).
func RequireRole(minRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, err := GetCaller(r.Context())
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if err := access.RequireRole(caller, minRole); err != nil {
				slog.Warn("rbac_denied", "have", caller.Role, "need", minRole)
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireExactRole builds a middleware that authorizes only an exact
// role match — used for super-admin-only operations.
func RequireExactRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, err := GetCaller(r.Context())
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if err := access.RequireExactRole(caller, role); err != nil {
				slog.Warn("rbac_denied_exact", "have", caller.Role, "need", role)
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
