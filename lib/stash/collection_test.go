package stash

import (
	"fmt"
	"testing"

	"github.com/mfellner/kvstash/lib/engine"
	"github.com/mfellner/kvstash/lib/engine/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStash creates a stash backed by a fresh in-memory engine.
func newTestStash(t *testing.T, database string) *Stash {
	t.Helper()
	s := New(&Options{
		Database: database,
		Engine:   memory.NewEngine(),
	})
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestCollectionRoundTrip(t *testing.T) {
	s := newTestStash(t, "round-trip")
	c := s.Collection("users")

	require.NoError(t, c.Set("alice", []byte("admin")))

	value, found, err := c.Get("alice")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("admin"), value)
}

func TestCollectionGetMissing(t *testing.T) {
	s := newTestStash(t, "get-missing")
	c := s.DefaultCollection()

	value, found, err := c.Get("nope")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, value)

	has, err := c.Has("nope")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestCollectionDeleteIdempotent(t *testing.T) {
	s := newTestStash(t, "delete")
	c := s.Collection("items")

	require.NoError(t, c.Set("k", []byte("v")))
	require.NoError(t, c.Delete("k"))
	// deleting again must not fail
	require.NoError(t, c.Delete("k"))

	_, found, err := c.Get("k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCollectionUpdate(t *testing.T) {
	s := newTestStash(t, "update")
	c := s.Collection("counters")

	// missing key: fn sees found == false
	err := c.Update("hits", func(value []byte, found bool) []byte {
		assert.False(t, found)
		assert.Nil(t, value)
		return []byte("1")
	})
	require.NoError(t, err)

	err = c.Update("hits", func(value []byte, found bool) []byte {
		assert.True(t, found)
		assert.Equal(t, []byte("1"), value)
		return []byte("2")
	})
	require.NoError(t, err)

	value, _, err := c.Get("hits")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), value)
}

func TestCollectionBatchOperations(t *testing.T) {
	s := newTestStash(t, "batch")
	c := s.Collection("data")

	records := []engine.Record{
		{Key: "a", Value: []byte("1")},
		{Key: "b", Value: []byte("2")},
		{Key: "c", Value: []byte("3")},
	}
	require.NoError(t, c.SetMany(records))

	// order preserved, missing key yields nil
	values, err := c.GetMany([]string{"c", "missing", "a"})
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.Equal(t, []byte("3"), values[0])
	assert.Nil(t, values[1])
	assert.Equal(t, []byte("1"), values[2])

	require.NoError(t, c.DeleteMany([]string{"a", "b"}))

	keys, err := c.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, keys)
}

func TestCollectionClearAndScan(t *testing.T) {
	s := newTestStash(t, "scan")
	c := s.Collection("data")

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Set(fmt.Sprintf("key-%d", i), []byte{byte(i)}))
	}

	keys, err := c.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"key-0", "key-1", "key-2", "key-3", "key-4"}, keys)

	entries, err := c.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 5)
	assert.Equal(t, "key-0", entries[0].Key)
	assert.Equal(t, []byte{0}, entries[0].Value)

	values, err := c.Values()
	require.NoError(t, err)
	require.Len(t, values, 5)
	assert.Equal(t, []byte{4}, values[4])

	require.NoError(t, c.Clear())

	keys, err = c.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestCollectionValuesCountsOneScan(t *testing.T) {
	s := newTestStash(t, "values-metric")
	c := s.Collection("data")
	require.NoError(t, c.Set("k", []byte("v")))

	before := scanOps.Get()
	_, err := c.Values()
	require.NoError(t, err)
	assert.Equal(t, before+1, scanOps.Get())
}

func TestStashDropCollection(t *testing.T) {
	s := newTestStash(t, "drop")
	c := s.Collection("data")

	require.NoError(t, c.Set("k", []byte("v")))
	require.NoError(t, s.DropCollection("data"))

	keys, err := c.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)

	// the collection stays usable after the drop
	require.NoError(t, c.Set("k2", []byte("v2")))
}

func TestStashesShareData(t *testing.T) {
	eng := memory.NewEngine()
	s1 := New(&Options{Database: "shared", Engine: eng})
	defer func() { _ = s1.Close() }()
	s2 := New(&Options{Database: "shared", Engine: eng})

	require.NoError(t, s1.Collection("c").Set("k", []byte("v")))

	value, found, err := s2.Collection("c").Get("k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), value)
}

func TestStashClosed(t *testing.T) {
	s := newTestStash(t, "closed")
	c := s.Collection("c")
	require.NoError(t, c.Set("k", []byte("v")))

	require.NoError(t, s.Close())
	// closing twice is a no-op
	require.NoError(t, s.Close())

	err := c.Set("k", []byte("v2"))
	require.Error(t, err)
	var stashErr *Error
	require.ErrorAs(t, err, &stashErr)
	assert.Equal(t, RetCClosed, stashErr.Code)
}
