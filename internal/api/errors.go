package api

import (
	"errors"
	"net/http"

	"github.com/caxulex/shiftcore/internal/access"
	"github.com/caxulex/shiftcore/internal/api/helpers"
	"github.com/caxulex/shiftcore/internal/identity"
	"github.com/caxulex/shiftcore/internal/loginsec"
	"github.com/caxulex/shiftcore/internal/store"
	"github.com/caxulex/shiftcore/internal/timer"
	"github.com/go-chi/chi/v5/middleware"
)

// writeDomainError maps a domain error to the HTTP status spec'd for its
// taxonomy kind and writes a generic JSON body — internal detail never
// crosses this boundary, only the correlation id a caller can hand back
// to support.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := requestID(r)

	var rle *access.RateLimitError
	switch {
	case errors.Is(err, identity.ErrUnauthenticated), errors.Is(err, access.ErrUnauthenticated):
		helpers.RespondError(w, http.StatusUnauthorized, "unauthenticated")
	case errors.Is(err, identity.ErrBadCredentials):
		helpers.RespondError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, identity.ErrWeakPassword):
		helpers.RespondError(w, http.StatusUnprocessableEntity, "password does not meet policy")
	case errors.Is(err, loginsec.ErrAccountLocked):
		helpers.RespondError(w, http.StatusUnauthorized, "account locked, try again later")
	case errors.Is(err, access.ErrForbidden):
		helpers.RespondError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, store.ErrNotFound), errors.Is(err, timer.ErrNotFound):
		helpers.RespondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, timer.ErrTimerAlreadyRunning):
		helpers.RespondError(w, http.StatusConflict, "a timer is already running")
	case errors.Is(err, timer.ErrNoRunningTimer):
		helpers.RespondError(w, http.StatusConflict, "no running timer")
	case errors.Is(err, timer.ErrInvariantViolation), errors.Is(err, timer.ErrClockSkew):
		helpers.RespondError(w, http.StatusUnprocessableEntity, "request violates a time-tracking invariant")
	case errors.Is(err, timer.ErrUserInactive):
		helpers.RespondError(w, http.StatusForbidden, "user is not active")
	case errors.Is(err, store.ErrConflict):
		helpers.RespondError(w, http.StatusConflict, "conflict")
	case errors.As(err, &rle):
		w.Header().Set("Retry-After", rle.RetryAfter.String())
		helpers.RespondError(w, http.StatusTooManyRequests, "rate limited")
	default:
		helpers.RespondJSON(w, http.StatusInternalServerError, map[string]string{
			"error":      "internal error",
			"request_id": reqID,
		})
	}
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}
