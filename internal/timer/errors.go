// Package timer implements the Timer Engine: the single-running-timer
// invariant, manual entry CRUD, and edit authority rules. Authority
// itself (self vs. same-company admin) is checked by callers via
// internal/access before any Engine method runs; the Engine re-checks
// only the invariants that depend on entity relationships (project/task
// ownership, time ordering).
package timer

import "errors"

var (
	ErrTimerAlreadyRunning = errors.New("timer: already running")
	ErrNoRunningTimer      = errors.New("timer: no running timer")
	ErrInvariantViolation  = errors.New("timer: invariant violation")
	ErrClockSkew           = errors.New("timer: negative duration")
	ErrNotFound            = errors.New("timer: not found")
	ErrUserInactive        = errors.New("timer: user is not active")
)
