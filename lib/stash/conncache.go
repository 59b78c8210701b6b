package stash

import (
	"fmt"
	"strings"

	"github.com/mfellner/kvstash/lib/engine"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Connection Cache
// --------------------------------------------------------------------------

// connFuture is the cache entry for one (database, version, collection)
// triple. It is created before the open starts so that concurrent callers
// join the in-flight open instead of starting their own.
type connFuture struct {
	done chan struct{} // closed once conn/err are set
	conn engine.Connection
	err  error
}

// connCache deduplicates concurrent opens of the same
// (database, version, collection) triple. There is one cache per gateway,
// which makes it process-wide state for all stashes sharing an engine.
type connCache struct {
	entries *xsync.MapOf[string, *connFuture]
}

func newConnCache() *connCache {
	return &connCache{
		entries: xsync.NewMapOf[string, *connFuture](),
	}
}

// cacheKey builds the cache key for one open. The version is delimited by
// colons so that database names cannot collide with key prefixes used by
// releaseDatabase.
func cacheKey(database string, version uint64, collection string) string {
	return fmt.Sprintf("%s:%d:%s", database, version, collection)
}

// acquire returns the cached connection for key, joining an in-flight open
// if one exists. Otherwise it registers a new entry and runs open itself.
// Failed opens are removed from the cache so the next acquire starts fresh.
//
// Thread-safety: This method is thread-safe; the registration is a single
// atomic LoadOrCompute, so no two opens for the same key run concurrently.
func (c *connCache) acquire(key string, open func() (engine.Connection, error)) (engine.Connection, error) {
	f, loaded := c.entries.LoadOrCompute(key, func() *connFuture {
		return &connFuture{done: make(chan struct{})}
	})
	if loaded {
		<-f.done
		return f.conn, f.err
	}

	f.conn, f.err = open()
	if f.err != nil {
		c.entries.Delete(key)
	}
	close(f.done)
	return f.conn, f.err
}

// release drops the cached entry for key so the next acquire starts fresh.
func (c *connCache) release(key string) {
	c.entries.Delete(key)
}

// releaseDatabase drops every completed entry belonging to the named
// database and returns their connections so the caller can close them.
// In-flight entries are left alone; they belong to their opener.
func (c *connCache) releaseDatabase(database string) []engine.Connection {
	prefix := database + ":"
	var conns []engine.Connection
	c.entries.Range(func(key string, f *connFuture) bool {
		if !strings.HasPrefix(key, prefix) {
			return true
		}
		select {
		case <-f.done:
			if f.err == nil && f.conn != nil {
				conns = append(conns, f.conn)
			}
			c.entries.Delete(key)
		default:
		}
		return true
	})
	return conns
}
