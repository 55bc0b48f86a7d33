package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/caxulex/shiftcore/internal/access"
	"github.com/caxulex/shiftcore/internal/identity"
	"github.com/caxulex/shiftcore/internal/loginsec"
	"github.com/caxulex/shiftcore/internal/store"
	"github.com/caxulex/shiftcore/internal/timer"
	"github.com/stretchr/testify/assert"
)

func TestWriteDomainError_MapsErrorTaxonomyToStatusCodes(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"unauthenticated", identity.ErrUnauthenticated, http.StatusUnauthorized},
		{"access unauthenticated", access.ErrUnauthenticated, http.StatusUnauthorized},
		{"bad credentials", identity.ErrBadCredentials, http.StatusUnauthorized},
		{"weak password", identity.ErrWeakPassword, http.StatusUnprocessableEntity},
		{"account locked", loginsec.ErrAccountLocked, http.StatusUnauthorized},
		{"forbidden", access.ErrForbidden, http.StatusForbidden},
		{"not found", store.ErrNotFound, http.StatusNotFound},
		{"timer not found", timer.ErrNotFound, http.StatusNotFound},
		{"timer already running", timer.ErrTimerAlreadyRunning, http.StatusConflict},
		{"no running timer", timer.ErrNoRunningTimer, http.StatusConflict},
		{"invariant violation", timer.ErrInvariantViolation, http.StatusUnprocessableEntity},
		{"clock skew", timer.ErrClockSkew, http.StatusUnprocessableEntity},
		{"user inactive", timer.ErrUserInactive, http.StatusForbidden},
		{"conflict", store.ErrConflict, http.StatusConflict},
		{"unmapped error falls back to internal", assertUnmappedErr{}, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			writeDomainError(w, r, tc.err)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestWriteDomainError_RateLimitedSetsRetryAfterHeader(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	err := &access.RateLimitError{RetryAfter: 30 * time.Second}

	writeDomainError(w, r, err)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, (30 * time.Second).String(), w.Header().Get("Retry-After"))
}

type assertUnmappedErr struct{}

func (assertUnmappedErr) Error() string { return "something unexpected" }
