package cron

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carzavenue/backend/pkg/redis"
)

func newLockStore(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	return redis.NewFromClient(raw), mr
}

func TestRedisLockIsExclusive(t *testing.T) {
	store, mr := newLockStore(t)
	ctx := context.Background()

	first, err := NewRedisLock(store, "cron", time.Minute)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "cron", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "carz:lock:cron", first.Key())

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Minute, mr.TTL(first.Key()))

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// A non-owner release must not drop someone else's lease.
	require.NoError(t, second.Release(ctx))
	assert.True(t, mr.Exists(first.Key()))

	require.NoError(t, first.Release(ctx))
	assert.False(t, mr.Exists(first.Key()))

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockReleaseAfterExpiry(t *testing.T) {
	store, mr := newLockStore(t)
	ctx := context.Background()

	lock, err := NewRedisLock(store, "cron", time.Second)
	require.NoError(t, err)
	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	require.NoError(t, lock.Release(ctx))

	other, err := NewRedisLock(store, "cron", time.Minute)
	require.NoError(t, err)
	ok, err = other.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// The expired owner must not release the new holder's lease.
	require.NoError(t, lock.Release(ctx))
	assert.True(t, mr.Exists(other.Key()))
}

func TestNewRedisLockValidates(t *testing.T) {
	_, err := NewRedisLock(nil, "cron", time.Minute)
	assert.Error(t, err)

	store, _ := newLockStore(t)
	_, err = NewRedisLock(store, "", time.Minute)
	assert.Error(t, err)

	lock, err := NewRedisLock(store, "cron", 0)
	require.NoError(t, err)
	assert.Equal(t, defaultLockTTL, lock.ttl)
}
