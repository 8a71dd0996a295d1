package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheServiceNamespacesKeys(t *testing.T) {
	store := newMemoryCache()
	cache := NewCacheService(CacheServiceParams{Repo: store, Prefix: "academy:", Enabled: true})

	require.NoError(t, cache.Set(context.Background(), "dashboard:summary", map[string]int{"n": 1}, 0))
	_, ok := store.entries["academy:dashboard:summary"]
	assert.True(t, ok)

	require.NoError(t, cache.Invalidate(context.Background(), "dashboard:*"))
	assert.Equal(t, []string{"academy:dashboard:*"}, store.deleted)
	assert.Empty(t, store.entries)
}

func TestRememberLoadsOnceThenHits(t *testing.T) {
	cache := NewCacheService(CacheServiceParams{Repo: newMemoryCache(), Enabled: true})
	calls := 0
	load := func(context.Context) (int, error) {
		calls++
		return 42, nil
	}

	v, hit, err := Remember(context.Background(), cache, "answer", time.Minute, load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 42, v)

	v, hit, err = Remember(context.Background(), cache, "answer", time.Minute, load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
}

func TestRememberWithoutCacheAlwaysLoads(t *testing.T) {
	var cache *CacheService
	_, hit, err := Remember(context.Background(), cache, "k", 0, func(context.Context) (string, error) {
		return "", errors.New("boom")
	})
	assert.EqualError(t, err, "boom")
	assert.False(t, hit)

	disabled := NewCacheService(CacheServiceParams{Repo: newMemoryCache(), Enabled: false})
	v, hit, err := Remember(context.Background(), disabled, "k", 0, func(context.Context) (string, error) {
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "fresh", v)
}
