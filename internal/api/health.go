package api

import (
	"net/http"

	"github.com/caxulex/shiftcore/internal/api/helpers"
)

// HealthHandler liveness-checks the Store and KV dependencies before
// reporting healthy; deployment tooling uses this for rollout gating.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if err := s.Store.Ping(ctx); err != nil {
			s.Logger.Error("health_check_failed", "error", err, "detail", "database_unreachable")
			helpers.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  "service temporarily unavailable",
			})
			return
		}

		if err := s.KV.Ping(ctx); err != nil {
			s.Logger.Error("health_check_failed", "error", err, "detail", "kv_unreachable")
			helpers.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  "service temporarily unavailable",
			})
			return
		}

		helpers.RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}
