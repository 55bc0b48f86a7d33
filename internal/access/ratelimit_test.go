package access_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/caxulex/shiftcore/internal/access"
	"github.com/caxulex/shiftcore/internal/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// erroringKV simulates a KV backend that is down, so RateLimiter.Allow
// can be exercised along its fail-open path.
type erroringKV struct{}

func (erroringKV) Ping(context.Context) error { return nil }
func (erroringKV) Get(context.Context, string) (string, error) {
	return "", errors.New("kv unavailable")
}
func (erroringKV) Set(context.Context, string, string, time.Duration) error {
	return errors.New("kv unavailable")
}
func (erroringKV) Delete(context.Context, string) error { return errors.New("kv unavailable") }
func (erroringKV) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("kv unavailable")
}
func (erroringKV) SetNX(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("kv unavailable")
}
func (erroringKV) Exists(context.Context, string) (bool, error) {
	return false, errors.New("kv unavailable")
}

func TestRateLimiter_AllowsWithinBudgetRejectsOverBudget(t *testing.T) {
	limiter := access.NewRateLimiter(kv.NewMemory(), 3, 3)

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Allow(context.Background(), access.BucketGeneral, "1.2.3.4"))
	}

	err := limiter.Allow(context.Background(), access.BucketGeneral, "1.2.3.4")
	require.Error(t, err)
	var rle *access.RateLimitError
	assert.ErrorAs(t, err, &rle)
	assert.Greater(t, rle.RetryAfter.Nanoseconds(), int64(0))
}

func TestRateLimiter_BucketsAreIndependentPerIP(t *testing.T) {
	limiter := access.NewRateLimiter(kv.NewMemory(), 1, 1)

	require.NoError(t, limiter.Allow(context.Background(), access.BucketGeneral, "1.1.1.1"))
	// A different IP must not be penalized by the first IP's budget.
	require.NoError(t, limiter.Allow(context.Background(), access.BucketGeneral, "2.2.2.2"))
}

func TestRateLimiter_FailsOpenOnKVError(t *testing.T) {
	limiter := access.NewRateLimiter(&erroringKV{}, 1000, 1000)
	require.NoError(t, limiter.Allow(context.Background(), access.BucketGeneral, "9.9.9.9"))
}
