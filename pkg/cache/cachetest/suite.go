// Package cachetest holds the behaviour every cache.Backend must show,
// written once and run against each engine.
package cachetest

import (
	"context"
	"testing"
	"time"

	"github.com/pixelvide/cachely/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ShortTTL is the TTL the suite uses for entries meant to expire.
const ShortTTL = 20 * time.Millisecond

// Run exercises the backend returned by newBackend. Each subtest gets a fresh,
// empty backend.
func Run(t *testing.T, newBackend func(t *testing.T) cache.Backend) {
	t.Run("SaveThenLoad", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		require.NoError(t, b.Save(ctx, "k", []byte("payload"), nil))
		mustLoad(t, b, "k", "payload")
	})

	t.Run("LoadMissing", func(t *testing.T) {
		mustMiss(t, newBackend(t), "missing")
	})

	t.Run("SaveReplaces", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		require.NoError(t, b.Save(ctx, "a", []byte("old"), []string{"old"}, cache.WithTTL(ShortTTL)))
		require.NoError(t, b.Save(ctx, "a", []byte("new"), []string{"new"}, cache.WithoutExpiration()))

		require.NoError(t, b.InvalidateTags(ctx, []string{"old"}))
		time.Sleep(2 * ShortTTL)
		mustLoad(t, b, "a", "new")
	})

	t.Run("ExpiresAfterTTL", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		require.NoError(t, b.Save(ctx, "greeting", []byte("hello"), []string{"lang:en"}, cache.WithTTL(ShortTTL)))
		mustLoad(t, b, "greeting", "hello")

		time.Sleep(2 * ShortTTL)
		mustMiss(t, b, "greeting")
	})

	t.Run("ZeroTTL", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Save(context.Background(), "k", []byte("v"), nil, cache.WithTTL(0)))
		time.Sleep(time.Millisecond)
		mustMiss(t, b, "k")
	})

	t.Run("InvalidateTags", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		require.NoError(t, b.Save(ctx, "a", []byte("v1"), []string{"x"}))
		require.NoError(t, b.Save(ctx, "b", []byte("v2"), []string{"x"}))
		require.NoError(t, b.Save(ctx, "c", []byte("v3"), []string{"y"}))
		require.NoError(t, b.Save(ctx, "d", []byte("v4"), []string{"y", "z"}))

		require.NoError(t, b.InvalidateTags(ctx, []string{"x", "z"}))

		mustMiss(t, b, "a")
		mustMiss(t, b, "b")
		mustMiss(t, b, "d")
		mustLoad(t, b, "c", "v3")
	})

	t.Run("InvalidateNoTags", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		require.NoError(t, b.Save(ctx, "a", []byte("v"), []string{"x"}))
		require.NoError(t, b.InvalidateTags(ctx, nil))
		mustLoad(t, b, "a", "v")
	})

	t.Run("InvalidateExpired", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		require.NoError(t, b.Save(ctx, "short", []byte("1"), nil, cache.WithTTL(ShortTTL)))
		require.NoError(t, b.Save(ctx, "long", []byte("2"), nil, cache.WithTTL(time.Hour)))
		require.NoError(t, b.Save(ctx, "forever", []byte("3"), nil, cache.WithoutExpiration()))

		time.Sleep(2 * ShortTTL)
		require.NoError(t, b.InvalidateExpired(ctx))

		mustMiss(t, b, "short")
		mustLoad(t, b, "long", "2")
		mustLoad(t, b, "forever", "3")
	})

	t.Run("Remove", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		require.NoError(t, b.Save(ctx, "a", []byte("v"), nil))
		require.NoError(t, b.Remove(ctx, "a"))
		mustMiss(t, b, "a")
		assert.NoError(t, b.Remove(ctx, "a"))
	})

	t.Run("Clear", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		require.NoError(t, b.Save(ctx, "a", []byte("1"), []string{"x"}))
		require.NoError(t, b.Save(ctx, "b", []byte("2"), nil, cache.WithoutExpiration()))
		require.NoError(t, b.Clear(ctx))

		mustMiss(t, b, "a")
		mustMiss(t, b, "b")

		require.NoError(t, b.Save(ctx, "a", []byte("again"), nil))
		mustLoad(t, b, "a", "again")
	})
}

func mustLoad(t *testing.T, b cache.Backend, id, want string) {
	t.Helper()
	payload, found, err := b.Load(context.Background(), id)
	require.NoError(t, err)
	require.True(t, found, "expected %q to be present", id)
	assert.Equal(t, want, string(payload))
}

func mustMiss(t *testing.T, b cache.Backend, id string) {
	t.Helper()
	_, found, err := b.Load(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, found, "expected %q to be absent", id)
}
