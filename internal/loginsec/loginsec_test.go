package loginsec_test

import (
	"context"
	"testing"
	"time"

	"github.com/caxulex/shiftcore/internal/kv"
	"github.com/caxulex/shiftcore/internal/loginsec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsLocked_BelowThreshold(t *testing.T) {
	guard := loginsec.New(kv.NewMemory(), 3, time.Minute)
	ctx := context.Background()

	require.NoError(t, guard.Record(ctx, "a@example.com", "1.1.1.1", loginsec.OutcomeFail))
	require.NoError(t, guard.Record(ctx, "a@example.com", "1.1.1.1", loginsec.OutcomeFail))

	locked, _, err := guard.IsLocked(ctx, "a@example.com")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestIsLocked_AtThreshold(t *testing.T) {
	guard := loginsec.New(kv.NewMemory(), 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, guard.Record(ctx, "a@example.com", "1.1.1.1", loginsec.OutcomeFail))
	}

	locked, retryAfter, err := guard.IsLocked(ctx, "a@example.com")
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Equal(t, time.Minute, retryAfter)
}

func TestRecord_SuccessClearsCounters(t *testing.T) {
	guard := loginsec.New(kv.NewMemory(), 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, guard.Record(ctx, "a@example.com", "1.1.1.1", loginsec.OutcomeFail))
	}
	locked, _, err := guard.IsLocked(ctx, "a@example.com")
	require.NoError(t, err)
	require.True(t, locked)

	require.NoError(t, guard.Record(ctx, "a@example.com", "1.1.1.1", loginsec.OutcomeSuccess))

	locked, _, err = guard.IsLocked(ctx, "a@example.com")
	require.NoError(t, err)
	assert.False(t, locked, "a successful login must clear the failure counter")
}

func TestRecord_SuccessClearsPerOriginCounterToo(t *testing.T) {
	cache := kv.NewMemory()
	guard := loginsec.New(cache, 3, time.Minute)
	ctx := context.Background()

	require.NoError(t, guard.Record(ctx, "a@example.com", "9.9.9.9", loginsec.OutcomeFail))
	_, err := cache.Get(ctx, "attempts:a@example.com:9.9.9.9")
	require.NoError(t, err, "a failed attempt with an origin must set the per-origin counter")

	require.NoError(t, guard.Record(ctx, "a@example.com", "9.9.9.9", loginsec.OutcomeSuccess))

	_, err = cache.Get(ctx, "attempts:a@example.com:9.9.9.9")
	assert.ErrorIs(t, err, kv.ErrNotFound, "a successful login must clear the per-origin counter, not just the identity counter")
}

func TestIsLocked_UnknownIdentityIsNotLocked(t *testing.T) {
	guard := loginsec.New(kv.NewMemory(), 3, time.Minute)
	locked, _, err := guard.IsLocked(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, locked)
}
