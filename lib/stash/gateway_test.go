package stash

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mfellner/kvstash/lib/engine"
	"github.com/mfellner/kvstash/lib/engine/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEngine wraps an engine and counts Open invocations.
type countingEngine struct {
	engine.Engine
	opens atomic.Int64
}

func (e *countingEngine) Open(name string, version uint64, upgrade engine.UpgradeFunc, onVersionChange engine.VersionChangeFunc) (engine.Connection, error) {
	e.opens.Add(1)
	return e.Engine.Open(name, version, upgrade, onVersionChange)
}

// collectionlessEngine opens connections to databases that never contain
// any collection, no matter how often the version is bumped.
type collectionlessEngine struct {
	opens atomic.Int64
}

func (e *collectionlessEngine) Open(name string, version uint64, _ engine.UpgradeFunc, _ engine.VersionChangeFunc) (engine.Connection, error) {
	e.opens.Add(1)
	if version == 0 {
		version = 1
	}
	return &collectionlessConn{name: name, version: version}, nil
}

func (e *collectionlessEngine) DeleteDatabase(string) error { return nil }

type collectionlessConn struct {
	name    string
	version uint64
}

func (c *collectionlessConn) Name() string { return c.name }
func (c *collectionlessConn) Version() uint64 { return c.version }
func (c *collectionlessConn) Collections() ([]string, error) { return nil, nil }
func (c *collectionlessConn) HasCollection(string) (bool, error) { return false, nil }
func (c *collectionlessConn) View(func(engine.ReadTx) error) error { return nil }
func (c *collectionlessConn) Update(func(engine.WriteTx) error) error { return nil }
func (c *collectionlessConn) Close() error { return nil }

func TestGatewayEscalationIsCapped(t *testing.T) {
	eng := &collectionlessEngine{}
	g := newGateway(eng)

	// collection creation never takes effect, the version bump loop must
	// terminate with an error instead of spinning
	_, err := g.Open("db", "c", 1, nil)
	require.Error(t, err)

	var stashErr *Error
	require.ErrorAs(t, err, &stashErr)
	assert.Equal(t, RetCVersionEscalation, stashErr.Code)
	assert.LessOrEqual(t, eng.opens.Load(), int64(maxVersionBumps+2))
}

func TestGatewayCreatesMissingCollection(t *testing.T) {
	g := newGateway(memory.NewEngine())

	conn, err := g.Open("db", "first", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), conn.Version())

	// opening a collection the database does not have yet escalates the
	// version by one and creates it in the upgrade transaction
	conn2, err := g.Open("db", "second", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), conn2.Version())

	found, err := conn2.HasCollection("second")
	require.NoError(t, err)
	assert.True(t, found)

	// the first collection survives the upgrade
	found, err = conn2.HasCollection("first")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestGatewayAdoptsHigherVersion(t *testing.T) {
	eng := memory.NewEngine()
	g := newGateway(eng)

	// bring the database to version 5 directly
	conn, err := eng.Open("db", 5, func(tx engine.UpgradeTx, _, _ uint64) error {
		return tx.CreateCollection("c")
	}, nil)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	// a lower requested version must not fail, the existing version wins
	conn2, err := g.Open("db", "c", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), conn2.Version())
}

func TestGatewaySharesConnections(t *testing.T) {
	eng := &countingEngine{Engine: memory.NewEngine()}
	g := newGateway(eng)

	var wg sync.WaitGroup
	conns := make([]engine.Connection, 16)
	for i := range conns {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, err := g.Open("db", "c", 1, nil)
			assert.NoError(t, err)
			conns[i] = conn
		}(i)
	}
	wg.Wait()

	// all callers share one connection from a single underlying open
	assert.Equal(t, int64(1), eng.opens.Load())
	for _, conn := range conns[1:] {
		assert.Same(t, conns[0], conn)
	}
}

func TestGatewayForIsProcessWide(t *testing.T) {
	eng := memory.NewEngine()
	assert.Same(t, GatewayFor(eng), GatewayFor(eng))
	assert.NotSame(t, GatewayFor(eng), GatewayFor(memory.NewEngine()))
}

func TestGatewayReleasePurgesCache(t *testing.T) {
	eng := &countingEngine{Engine: memory.NewEngine()}
	g := newGateway(eng)

	_, err := g.Open("db", "c", 1, nil)
	require.NoError(t, err)
	opensBefore := eng.opens.Load()

	released := g.Release("db")
	require.Len(t, released, 1)

	// the next open must hit the engine again
	_, err = g.Open("db", "c", 1, nil)
	require.NoError(t, err)
	assert.Greater(t, eng.opens.Load(), opensBefore)
}
