package stash

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mfellner/kvstash/lib/engine"
	"github.com/mfellner/kvstash/lib/logging"
)

// maxVersionBumps caps the version-escalation retry loop of openValidated.
// The original behavior is an unbounded loop; the cap turns a buggy upgrade
// path into a terminal RetCVersionEscalation error instead of a spin.
const maxVersionBumps = 8

// --------------------------------------------------------------------------
// Database Gateway
// --------------------------------------------------------------------------

// Gateway produces open, validated database connections for one engine.
// It owns the connection cache: all opens for the same
// (database, version, collection) triple share one connection, and a forced
// version change purges every cache entry of the affected database.
type Gateway struct {
	engine engine.Engine
	cache  *connCache
	logger logging.ILogger
}

func newGateway(eng engine.Engine) *Gateway {
	return &Gateway{
		engine: eng,
		cache:  newConnCache(),
		logger: logging.GetLogger("stash/gateway"),
	}
}

// gateways maps each engine instance to its process-wide gateway, so that
// independent stashes sharing an engine also share connections.
var (
	gatewaysMu sync.Mutex
	gateways   = map[engine.Engine]*Gateway{}
)

// GatewayFor returns the process-wide gateway for the given engine
// instance, creating it on first use.
//
// Thread-safety: This function is thread-safe and can be called concurrently.
func GatewayFor(eng engine.Engine) *Gateway {
	gatewaysMu.Lock()
	defer gatewaysMu.Unlock()
	g, ok := gateways[eng]
	if !ok {
		g = newGateway(eng)
		gateways[eng] = g
	}
	return g
}

// Open returns an open connection to the database that is guaranteed to
// contain the given collection. Concurrent calls for the same triple share
// one in-flight open through the cache.
func (g *Gateway) Open(database, collection string, version uint64, onForceClose func()) (engine.Connection, error) {
	key := cacheKey(database, version, collection)
	return g.cache.acquire(key, func() (engine.Connection, error) {
		return g.openValidated(database, collection, version, onForceClose)
	})
}

// Release purges all cached connections of the named database and returns
// them so the caller can close them.
func (g *Gateway) Release(database string) []engine.Connection {
	return g.cache.releaseDatabase(database)
}

// openValidated opens the database and validates that the collection exists
// in it. A missing collection escalates the version by one and reopens,
// which routes collection creation through the upgrade transaction. The
// escalation is capped at maxVersionBumps.
func (g *Gateway) openValidated(database, collection string, version uint64, onForceClose func()) (engine.Connection, error) {
	v := version
	for attempt := 0; attempt <= maxVersionBumps; attempt++ {
		conn, err := g.open(database, collection, v, onForceClose)
		if errors.Is(err, engine.ErrVersionTooLow) {
			// the database already has a higher version; adopt it
			g.logger.Warningf("database %q already at a higher version than %d, adopting existing version", database, v)
			conn, err = g.open(database, collection, 0, onForceClose)
		}
		if err != nil {
			return nil, NewError(RetCOpenError, fmt.Sprintf("open database %q", database), err)
		}

		found, err := conn.HasCollection(collection)
		if err != nil {
			_ = conn.Close()
			return nil, NewError(RetCOpenError, fmt.Sprintf("validate collection %q in database %q", collection, database), err)
		}
		if found {
			return conn, nil
		}

		// the collection is missing although the upgrade callback creates
		// it, which means the database predates this collection: bump the
		// version so the upgrade transaction runs again
		v = conn.Version() + 1
		_ = conn.Close()
		g.logger.Infof("collection %q missing in database %q, escalating to version %d", collection, database, v)
	}
	return nil, NewError(
		RetCVersionEscalation,
		fmt.Sprintf("collection %q in database %q not created after %d version bumps", collection, database, maxVersionBumps),
		nil,
	)
}

// open requests a single open from the engine, wiring the upgrade callback
// that ensures the collection and the version-change handler that purges
// this database from the cache.
func (g *Gateway) open(database, collection string, version uint64, onForceClose func()) (engine.Connection, error) {
	upgrade := func(tx engine.UpgradeTx, _, _ uint64) error {
		return tx.CreateCollection(collection)
	}
	onVersionChange := func() {
		g.logger.Warningf("connection to database %q force-closed by a version change", database)
		g.cache.releaseDatabase(database)
		if onForceClose != nil {
			onForceClose()
		}
	}
	return g.engine.Open(database, version, upgrade, onVersionChange)
}
