package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocks(t *testing.T) (*RedisLockProvider, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLockProvider(client, "app:"), mr
}

func TestRedisLockProvider_GetAndRelease(t *testing.T) {
	locks, mr := newRedisLocks(t)
	ctx := context.Background()

	ok, err := locks.GetLock(ctx, "cache:prune", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("app:schedule_lock:cache:prune"))
	assert.Equal(t, time.Minute, mr.TTL("app:schedule_lock:cache:prune"))

	ok, err = locks.GetLock(ctx, "cache:prune", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locks.ReleaseLock(ctx, "cache:prune"))
	assert.False(t, mr.Exists("app:schedule_lock:cache:prune"))

	ok, err = locks.GetLock(ctx, "cache:prune", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockProvider_KeepsForeignLock(t *testing.T) {
	locks, mr := newRedisLocks(t)
	ctx := context.Background()

	ok, err := locks.GetLock(ctx, "cache:prune", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// Our lock expired and another server took it over.
	require.NoError(t, mr.Set("app:schedule_lock:cache:prune", "someone-else"))

	require.NoError(t, locks.ReleaseLock(ctx, "cache:prune"))
	value, err := mr.Get("app:schedule_lock:cache:prune")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", value)
}

func TestRedisLockProvider_ReleaseUnknown(t *testing.T) {
	locks, _ := newRedisLocks(t)
	assert.NoError(t, locks.ReleaseLock(context.Background(), "never-acquired"))
}
