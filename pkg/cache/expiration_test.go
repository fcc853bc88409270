package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeExpiration(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	at, ok := ComputeExpiration(now, time.Minute)
	assert.True(t, ok)
	assert.Equal(t, now.Add(time.Minute), at)

	at, ok = ComputeExpiration(now, 0)
	assert.True(t, ok)
	assert.Equal(t, now, at)

	_, ok = ComputeExpiration(now, NoExpiration)
	assert.False(t, ok)
}

func TestConfig_ExpiresAt(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()

	at := cfg.ExpiresAt(now)
	require.NotNil(t, at)
	assert.Equal(t, now.Add(DefaultLifetime), *at)

	at = cfg.ExpiresAt(now, WithTTL(time.Second))
	require.NotNil(t, at)
	assert.Equal(t, now.Add(time.Second), *at)

	assert.Nil(t, cfg.ExpiresAt(now, WithoutExpiration()))

	cfg.Lifetime = NoExpiration
	assert.Nil(t, cfg.ExpiresAt(now))
	assert.NotNil(t, cfg.ExpiresAt(now, WithTTL(time.Second)))
}

func TestEntry(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	assert.True(t, (&Entry{ExpiresAt: &past}).Expired(now))
	assert.False(t, (&Entry{ExpiresAt: &future}).Expired(now))
	assert.False(t, (&Entry{ExpiresAt: &now}).Expired(now), "expiry is strict")
	assert.False(t, (&Entry{}).Expired(now))

	e := &Entry{Tags: []string{"a", "b"}}
	assert.True(t, e.HasAnyTag([]string{"c", "b"}))
	assert.False(t, e.HasAnyTag([]string{"c"}))
	assert.False(t, e.HasAnyTag(nil))
}
