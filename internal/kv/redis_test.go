package kv_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/caxulex/shiftcore/internal/kv"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisKV(t *testing.T) *kv.RedisKV {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return kv.NewRedisFromClient(client)
}

func TestRedisKV_SetGetDelete(t *testing.T) {
	r := newRedisKV(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k", "v", 0))
	val, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)

	require.NoError(t, r.Delete(ctx, "k"))
	_, err = r.Get(ctx, "k")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestRedisKV_IncrSetsTTLOnlyOnFirstCall(t *testing.T) {
	r := newRedisKV(t)
	ctx := context.Background()

	n, err := r.Incr(ctx, "counter", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = r.Incr(ctx, "counter", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "the window's count must accumulate across calls")
}

func TestRedisKV_IncrExpiresAfterWindow(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	r := kv.NewRedisFromClient(client)

	ctx := context.Background()
	_, err = r.Incr(ctx, "window", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	exists, err := r.Exists(ctx, "window")
	require.NoError(t, err)
	assert.False(t, exists, "a rate-limit window's counter must expire so it resets")
}

func TestRedisKV_SetNXClaimsOnlyOnce(t *testing.T) {
	r := newRedisKV(t)
	ctx := context.Background()

	ok, err := r.SetNX(ctx, "claim", "owner-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.SetNX(ctx, "claim", "owner-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a second claimant must not win an already-set key")
}

func TestRedisKV_Ping(t *testing.T) {
	r := newRedisKV(t)
	assert.NoError(t, r.Ping(context.Background()))
}
