// Package kv defines the key-value contract used for rate-limit counters,
// token revocation, login-attempt tracking and the presence backup keys.
// It is deliberately narrow: callers never need more than strings,
// atomic counters and sets with TTLs.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when a key does not exist.
var ErrNotFound = errors.New("kv: key not found")

// KV is the storage-agnostic contract every caching/rate-limit/revocation
// concern is built against. The Redis implementation is the production
// backend; an in-memory implementation backs unit tests.
type KV interface {
	// Ping verifies the backend is reachable, used by health checks.
	Ping(ctx context.Context) error

	// Get returns the raw value stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value at key with the given TTL. A zero TTL means no
	// expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key, if present. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// Incr atomically increments the integer stored at key (treating a
	// missing key as 0) and returns the new value. If ttl is non-zero and
	// this call created the key, the TTL is applied atomically.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// SetNX sets key to value only if it does not already exist,
	// returning whether the set happened. Used for single-writer
	// optimistic claims (e.g. session dedupe).
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
}
