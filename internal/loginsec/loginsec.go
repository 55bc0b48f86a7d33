// Package loginsec counts failed login attempts per identity and origin
// and enforces the resulting lockout window.
package loginsec

import (
	"context"
	"errors"
	"time"

	"github.com/caxulex/shiftcore/internal/kv"
)

// ErrAccountLocked is returned by Guard when an identity has exceeded
// the failure threshold within the lockout window.
var ErrAccountLocked = errors.New("loginsec: account locked")

// Guard tracks failed-login counters over a KV backend.
type Guard struct {
	kv        kv.KV
	threshold int
	window    time.Duration
}

// New constructs a Guard with the configured threshold and window.
func New(cache kv.KV, threshold int, window time.Duration) *Guard {
	return &Guard{kv: cache, threshold: threshold, window: window}
}

func attemptsKey(identity string) string { return "attempts:" + identity }
func originKey(identity, origin string) string { return "attempts:" + identity + ":" + origin }

// Outcome is the result of a login attempt, recorded by Record.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFail    Outcome = "fail"
)

// Record updates the failure counters for identity (and its origin IP)
// on a failed attempt; a success clears them.
func (g *Guard) Record(ctx context.Context, identity, origin string, outcome Outcome) error {
	if outcome == OutcomeSuccess {
		return g.Clear(ctx, identity, origin)
	}
	if _, err := g.kv.Incr(ctx, attemptsKey(identity), g.window); err != nil {
		return err
	}
	if origin != "" {
		if _, err := g.kv.Incr(ctx, originKey(identity, origin), g.window); err != nil {
			return err
		}
	}
	return nil
}

// IsLocked reports whether identity has reached the failure threshold,
// and if so the remaining lockout duration (best-effort; a KV without
// TTL introspection simply reports the configured window).
func (g *Guard) IsLocked(ctx context.Context, identity string) (locked bool, retryAfter time.Duration, err error) {
	raw, err := g.kv.Get(ctx, attemptsKey(identity))
	if errors.Is(err, kv.ErrNotFound) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	count := parseCount(raw)
	if count < g.threshold {
		return false, 0, nil
	}
	return true, g.window, nil
}

// Clear removes the identity counter and, when origin is known, its
// per-origin counter too. Called on successful login.
func (g *Guard) Clear(ctx context.Context, identity, origin string) error {
	if err := g.kv.Delete(ctx, attemptsKey(identity)); err != nil {
		return err
	}
	if origin == "" {
		return nil
	}
	return g.kv.Delete(ctx, originKey(identity, origin))
}

func parseCount(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + int(c-'0')
	}
	return n
}
