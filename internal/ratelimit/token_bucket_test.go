package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestBucket(t *testing.T, capacity int, refill float64) *TokenBucket {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewTokenBucket(client, capacity, refill, time.Minute)
}

func TestTokenBucketCapacity(t *testing.T) {
	ctx := context.Background()
	bucket := newTestBucket(t, 2, 1)

	allowed, _, err := bucket.Allow(ctx, "tenant")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, _, err = bucket.Allow(ctx, "tenant")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, _, err = bucket.Allow(ctx, "tenant")
	require.NoError(t, err)
	require.False(t, allowed, "third token should be rejected")

	// Note: refill cannot be tested with miniredis.FastForward because the
	// Lua script takes its clock from Go's time.Now, not Redis.
}

func TestTokenBucketKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	bucket := newTestBucket(t, 1, 1)

	allowed, _, err := bucket.Allow(ctx, "tenant-a")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, _, err = bucket.Allow(ctx, "tenant-b")
	require.NoError(t, err)
	require.True(t, allowed, "a drained bucket must not affect other keys")
}

func TestWaitHonorsContext(t *testing.T) {
	bucket := newTestBucket(t, 1, 0.001)

	ctx := context.Background()
	require.NoError(t, bucket.Wait(ctx, "slow"))

	// Bucket is empty and refills far too slowly; Wait must give up when
	// the context expires.
	ctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
	defer cancel()
	err := bucket.Wait(ctx, "slow")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
