package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mfellner/kvstash/lib/engine"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Engine Implementation
// --------------------------------------------------------------------------

// engineImpl implements engine.Engine with in-process concurrent maps.
// Databases live for the lifetime of the engine instance; there is no
// durability. The implementation exists for tests and for callers that want
// the full version/collection semantics without touching the filesystem.
type engineImpl struct {
	databases *xsync.MapOf[string, *database]
}

// NewEngine creates a new in-memory engine.
func NewEngine() engine.Engine {
	return &engineImpl{
		databases: xsync.NewMapOf[string, *database](),
	}
}

// database holds one named database. The RWMutex provides the transaction
// isolation: View holds the read lock, Update and Open hold the write lock.
type database struct {
	name string

	mu          sync.RWMutex
	version     uint64
	collections map[string]*xsync.MapOf[string, []byte]
	conns       map[*connImpl]struct{}
}

// forceCloseAllLocked marks every live connection closed and collects their
// version-change callbacks, to be invoked after the lock is released.
func (d *database) forceCloseAllLocked() []engine.VersionChangeFunc {
	var fired []engine.VersionChangeFunc
	for c := range d.conns {
		c.closed = true
		if c.onVC != nil {
			fired = append(fired, c.onVC)
		}
		delete(d.conns, c)
	}
	return fired
}

// --------------------------------------------------------------------------
// Engine Interface Methods
// --------------------------------------------------------------------------

// Open opens the named database at the given version (see engine.Engine for
// the version semantics).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (e *engineImpl) Open(name string, version uint64, upgrade engine.UpgradeFunc, onVersionChange engine.VersionChangeFunc) (engine.Connection, error) {
	d, _ := e.databases.LoadOrCompute(name, func() *database {
		return &database{
			name:        name,
			collections: make(map[string]*xsync.MapOf[string, []byte]),
			conns:       make(map[*connImpl]struct{}),
		}
	})

	d.mu.Lock()

	target := version
	if target == 0 {
		target = d.version
		if target == 0 {
			target = 1
		}
	}
	if target < d.version {
		d.mu.Unlock()
		return nil, engine.ErrVersionTooLow
	}

	var fired []engine.VersionChangeFunc
	if target > d.version {
		fired = d.forceCloseAllLocked()

		if upgrade != nil {
			wtx := &writeTx{readTx: readTx{d: d}}
			if err := upgrade(upgradeTx{wtx}, d.version, target); err != nil {
				wtx.rollback()
				d.mu.Unlock()
				for _, fn := range fired {
					fn()
				}
				return nil, err
			}
		}
		d.version = target
	}

	c := &connImpl{d: d, version: d.version, onVC: onVersionChange}
	d.conns[c] = struct{}{}
	d.mu.Unlock()

	for _, fn := range fired {
		fn()
	}
	return c, nil
}

// DeleteDatabase force-closes all connections and drops the database with
// all its collections. Deleting a missing database is a no-op.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (e *engineImpl) DeleteDatabase(name string) error {
	d, ok := e.databases.Load(name)
	if !ok {
		return nil
	}
	d.mu.Lock()
	fired := d.forceCloseAllLocked()
	d.collections = make(map[string]*xsync.MapOf[string, []byte])
	d.version = 0
	e.databases.Delete(name)
	d.mu.Unlock()

	for _, fn := range fired {
		fn()
	}
	return nil
}

// --------------------------------------------------------------------------
// Connection Implementation
// --------------------------------------------------------------------------

type connImpl struct {
	d       *database
	version uint64
	closed  bool // guarded by d.mu
	onVC    engine.VersionChangeFunc
}

func (c *connImpl) Name() string {
	return c.d.name
}

func (c *connImpl) Version() uint64 {
	return c.version
}

func (c *connImpl) Collections() ([]string, error) {
	c.d.mu.RLock()
	defer c.d.mu.RUnlock()
	if c.closed {
		return nil, engine.ErrClosed
	}
	names := make([]string, 0, len(c.d.collections))
	for name := range c.d.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (c *connImpl) HasCollection(name string) (bool, error) {
	c.d.mu.RLock()
	defer c.d.mu.RUnlock()
	if c.closed {
		return false, engine.ErrClosed
	}
	_, found := c.d.collections[name]
	return found, nil
}

func (c *connImpl) View(fn func(tx engine.ReadTx) error) error {
	c.d.mu.RLock()
	defer c.d.mu.RUnlock()
	if c.closed {
		return engine.ErrClosed
	}
	return fn(readTx{d: c.d})
}

func (c *connImpl) Update(fn func(tx engine.WriteTx) error) error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if c.closed {
		return engine.ErrClosed
	}
	wtx := &writeTx{readTx: readTx{d: c.d}}
	if err := fn(wtx); err != nil {
		wtx.rollback()
		return err
	}
	return nil
}

// Close releases the connection. The database and its data stay alive for
// later opens. Close is idempotent.
func (c *connImpl) Close() error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	delete(c.d.conns, c)
	return nil
}

// --------------------------------------------------------------------------
// Transaction Implementations
// --------------------------------------------------------------------------

type readTx struct {
	d *database
}

func (t readTx) coll(name string) (*xsync.MapOf[string, []byte], error) {
	m, found := t.d.collections[name]
	if !found {
		return nil, fmt.Errorf("%w: %s", engine.ErrNoCollection, name)
	}
	return m, nil
}

func (t readTx) Get(collection, key string) ([]byte, bool, error) {
	m, err := t.coll(collection)
	if err != nil {
		return nil, false, err
	}
	v, found := m.Load(key)
	if !found {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (t readTx) Keys(collection string) ([]string, error) {
	m, err := t.coll(collection)
	if err != nil {
		return nil, err
	}
	var keys []string
	m.Range(func(k string, _ []byte) bool {
		keys = append(keys, k)
		return true
	})
	sort.Strings(keys)
	return keys, nil
}

func (t readTx) Entries(collection string) ([]engine.Record, error) {
	m, err := t.coll(collection)
	if err != nil {
		return nil, err
	}
	var records []engine.Record
	m.Range(func(k string, v []byte) bool {
		value := make([]byte, len(v))
		copy(value, v)
		records = append(records, engine.Record{Key: k, Value: value})
		return true
	})
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records, nil
}

// writeTx applies mutations directly and keeps an undo log so that a failed
// transaction can be rolled back, matching the all-or-nothing semantics of
// the write transactions of the durable engine.
type writeTx struct {
	readTx
	undo []func()
}

func (t *writeTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *writeTx) Put(collection, key string, value []byte) error {
	m, err := t.coll(collection)
	if err != nil {
		return err
	}
	prev, existed := m.Load(key)
	t.undo = append(t.undo, func() {
		if existed {
			m.Store(key, prev)
		} else {
			m.Delete(key)
		}
	})
	stored := make([]byte, len(value))
	copy(stored, value)
	m.Store(key, stored)
	return nil
}

func (t *writeTx) Delete(collection, key string) error {
	m, err := t.coll(collection)
	if err != nil {
		return err
	}
	prev, existed := m.Load(key)
	if !existed {
		return nil
	}
	t.undo = append(t.undo, func() {
		m.Store(key, prev)
	})
	m.Delete(key)
	return nil
}

func (t *writeTx) Clear(collection string) error {
	m, err := t.coll(collection)
	if err != nil {
		return err
	}
	var snapshot []engine.Record
	m.Range(func(k string, v []byte) bool {
		snapshot = append(snapshot, engine.Record{Key: k, Value: v})
		return true
	})
	t.undo = append(t.undo, func() {
		for _, r := range snapshot {
			m.Store(r.Key, r.Value)
		}
	})
	for _, r := range snapshot {
		m.Delete(r.Key)
	}
	return nil
}

type upgradeTx struct {
	*writeTx
}

func (t upgradeTx) CreateCollection(name string) error {
	if name == "" {
		return fmt.Errorf("invalid collection name %q", name)
	}
	if _, found := t.d.collections[name]; found {
		return nil
	}
	t.d.collections[name] = xsync.NewMapOf[string, []byte]()
	t.undo = append(t.undo, func() {
		delete(t.d.collections, name)
	})
	return nil
}

func (t upgradeTx) DropCollection(name string) error {
	m, found := t.d.collections[name]
	if !found {
		return nil
	}
	delete(t.d.collections, name)
	t.undo = append(t.undo, func() {
		t.d.collections[name] = m
	})
	return nil
}
