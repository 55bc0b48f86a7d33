package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/caxulex/shiftcore/internal/access"
)

// RequireAuth validates the bearer access token and injects the
// resolved access.Caller into the request context. Every verification
// failure mode collapses to a generic 401 — the caller never learns
// which check failed.
func RequireAuth(guard *access.Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			caller, err := guard.Resolve(r.Context(), parts[1])
			if err != nil {
				slog.Warn("auth_rejected", "ip", r.RemoteAddr)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			SetSentryUser(r.Context(), caller.UserID.String(), caller.Role, r.RemoteAddr)
			if caller.CompanyID != nil {
				SetSentryTenant(r.Context(), caller.CompanyID.String(), "token-derived")
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}
