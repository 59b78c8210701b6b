package stash

import (
	"errors"
	"testing"

	"github.com/mfellner/kvstash/lib/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnCacheFailedOpenNotCached(t *testing.T) {
	cache := newConnCache()
	boom := errors.New("boom")

	_, err := cache.acquire("k", func() (engine.Connection, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	// the failed entry must be gone so a later acquire retries the open
	calls := 0
	_, err = cache.acquire("k", func() (engine.Connection, error) {
		calls++
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestConnCacheReleaseIsScopedToDatabase(t *testing.T) {
	cache := newConnCache()

	open := func() (engine.Connection, error) { return nil, nil }
	_, err := cache.acquire(cacheKey("db", 1, "c"), open)
	require.NoError(t, err)
	_, err = cache.acquire(cacheKey("db2", 1, "c"), open)
	require.NoError(t, err)

	// releasing "db" must not evict entries of "db2"
	cache.releaseDatabase("db")

	calls := 0
	_, err = cache.acquire(cacheKey("db2", 1, "c"), func() (engine.Connection, error) {
		calls++
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, calls)
}
