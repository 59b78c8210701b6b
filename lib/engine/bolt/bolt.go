package bolt

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mfellner/kvstash/lib/engine"
	"github.com/puzpuzpuz/xsync/v3"
	"go.etcd.io/bbolt"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	metaBucket = "__meta"  // reserved bucket holding database metadata
	versionKey = "version" // meta key storing the schema version (uint64 BE)
	fileSuffix = ".db"
)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures the bolt engine during initialization.
type Options struct {
	Dir         string        // Directory holding one file per database
	OpenTimeout time.Duration // File lock timeout (0 = use default: 1 sec)
	FileMode    os.FileMode   // Mode for created database files (0 = 0600)
}

// DefaultOptions returns the default bolt engine options.
func DefaultOptions() *Options {
	return &Options{
		Dir:         ".kvstash",
		OpenTimeout: time.Second,
		FileMode:    0o600,
	}
}

// --------------------------------------------------------------------------
// Engine Implementation
// --------------------------------------------------------------------------

// engineImpl implements engine.Engine on top of bbolt. Each database lives
// in its own file under opts.Dir; each collection is a bucket. The engine
// keeps an in-process registry of open databases so that a later Open at a
// higher version can force-close earlier connections to the same database.
type engineImpl struct {
	opts      Options
	databases *xsync.MapOf[string, *database]
}

// NewEngine creates a new bolt engine with the specified options (optional).
func NewEngine(opts *Options) engine.Engine {
	if opts == nil {
		opts = DefaultOptions()
	}
	resolved := *opts
	if resolved.Dir == "" {
		resolved.Dir = DefaultOptions().Dir
	}
	if resolved.OpenTimeout == 0 {
		resolved.OpenTimeout = DefaultOptions().OpenTimeout
	}
	if resolved.FileMode == 0 {
		resolved.FileMode = DefaultOptions().FileMode
	}
	return &engineImpl{
		opts:      resolved,
		databases: xsync.NewMapOf[string, *database](),
	}
}

func (e *engineImpl) path(name string) string {
	return filepath.Join(e.opts.Dir, name+fileSuffix)
}

// database is the registry entry for one database file. All fields except
// name are guarded by mu.
type database struct {
	eng  *engineImpl
	name string

	mu      sync.Mutex
	db      *bbolt.DB // nil while no file handle is open
	version uint64
	conns   map[*connImpl]struct{}
	dead    bool // entry has been removed from the registry
}

// retireLocked removes the registry entry so the next Open starts fresh.
func (d *database) retireLocked() {
	d.dead = true
	d.eng.databases.Delete(d.name)
}

// closeIfIdleLocked closes the file handle and retires the registry entry
// once no connection is left. Closing the handle releases the file lock.
func (d *database) closeIfIdleLocked() {
	if len(d.conns) > 0 || d.db == nil {
		return
	}
	_ = d.db.Close()
	d.db = nil
	d.retireLocked()
}

// forceCloseAllLocked marks every live connection closed and collects their
// version-change callbacks. The callbacks must be invoked after mu has been
// released, since they may re-enter the engine.
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
// Opens of the same database are serialized on a per-database mutex.
func (e *engineImpl) Open(name string, version uint64, upgrade engine.UpgradeFunc, onVersionChange engine.VersionChangeFunc) (engine.Connection, error) {
	for {
		d, _ := e.databases.LoadOrCompute(name, func() *database {
			return &database{eng: e, name: name, conns: make(map[*connImpl]struct{})}
		})

		d.mu.Lock()
		if d.dead {
			// entry was retired between LoadOrCompute and Lock, start over
			d.mu.Unlock()
			continue
		}
		conn, fired, err := e.openLocked(d, version, upgrade, onVersionChange)
		d.mu.Unlock()

		for _, fn := range fired {
			fn()
		}
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

func (e *engineImpl) openLocked(d *database, version uint64, upgrade engine.UpgradeFunc, onVC engine.VersionChangeFunc) (*connImpl, []engine.VersionChangeFunc, error) {
	if d.db == nil {
		if err := os.MkdirAll(e.opts.Dir, 0o755); err != nil {
			d.retireLocked()
			return nil, nil, err
		}
		bdb, err := bbolt.Open(e.path(d.name), e.opts.FileMode, &bbolt.Options{Timeout: e.opts.OpenTimeout})
		if err != nil {
			d.retireLocked()
			return nil, nil, err
		}
		// load the stored version, creating the meta bucket on first touch
		err = bdb.Update(func(tx *bbolt.Tx) error {
			meta, err := tx.CreateBucketIfNotExists([]byte(metaBucket))
			if err != nil {
				return err
			}
			if raw := meta.Get([]byte(versionKey)); raw != nil {
				d.version = binary.BigEndian.Uint64(raw)
			}
			return nil
		})
		if err != nil {
			_ = bdb.Close()
			d.retireLocked()
			return nil, nil, err
		}
		d.db = bdb
	}

	target := version
	if target == 0 {
		target = d.version
		if target == 0 {
			target = 1
		}
	}
	if target < d.version {
		d.closeIfIdleLocked()
		return nil, nil, engine.ErrVersionTooLow
	}

	var fired []engine.VersionChangeFunc
	if target > d.version {
		// a higher version forces every live connection closed before the
		// upgrade transaction runs
		fired = d.forceCloseAllLocked()

		old := d.version
		err := d.db.Update(func(tx *bbolt.Tx) error {
			if upgrade != nil {
				if err := upgrade(upgradeTx{writeTx{readTx{tx}}}, old, target); err != nil {
					return err
				}
			}
			var buf [8]byte
			binary.BigEndian.PutUint64(buf[:], target)
			return tx.Bucket([]byte(metaBucket)).Put([]byte(versionKey), buf[:])
		})
		if err != nil {
			d.closeIfIdleLocked()
			return nil, fired, err
		}
		d.version = target
	}

	c := &connImpl{d: d, version: d.version, onVC: onVC}
	d.conns[c] = struct{}{}
	return c, fired, nil
}

// DeleteDatabase force-closes all connections to the named database and
// removes its file. Deleting a database that does not exist is a no-op.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (e *engineImpl) DeleteDatabase(name string) error {
	var fired []engine.VersionChangeFunc
	if d, ok := e.databases.Load(name); ok {
		d.mu.Lock()
		if !d.dead {
			fired = d.forceCloseAllLocked()
			if d.db != nil {
				_ = d.db.Close()
				d.db = nil
			}
			d.retireLocked()
		}
		d.mu.Unlock()
	}
	for _, fn := range fired {
		fn()
	}
	if err := os.Remove(e.path(name)); err != nil && !os.IsNotExist(err) {
		return err
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

// handle returns the shared bbolt handle, failing once the connection has
// been closed explicitly or by a forced version change.
func (c *connImpl) handle() (*bbolt.DB, error) {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if c.closed || c.d.db == nil {
		return nil, engine.ErrClosed
	}
	return c.d.db, nil
}

func (c *connImpl) Collections() ([]string, error) {
	db, err := c.handle()
	if err != nil {
		return nil, err
	}
	var names []string
	err = db.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			if string(name) != metaBucket {
				names = append(names, string(name))
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (c *connImpl) HasCollection(name string) (bool, error) {
	db, err := c.handle()
	if err != nil {
		return false, err
	}
	var found bool
	err = db.View(func(tx *bbolt.Tx) error {
		found = name != metaBucket && tx.Bucket([]byte(name)) != nil
		return nil
	})
	return found, err
}

func (c *connImpl) View(fn func(tx engine.ReadTx) error) error {
	db, err := c.handle()
	if err != nil {
		return err
	}
	return db.View(func(tx *bbolt.Tx) error {
		return fn(readTx{tx})
	})
}

func (c *connImpl) Update(fn func(tx engine.WriteTx) error) error {
	db, err := c.handle()
	if err != nil {
		return err
	}
	return db.Update(func(tx *bbolt.Tx) error {
		return fn(writeTx{readTx{tx}})
	})
}

// Close releases the connection. The file handle is closed once the last
// connection to the database is gone. Close is idempotent.
func (c *connImpl) Close() error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	delete(c.d.conns, c)
	c.d.closeIfIdleLocked()
	return nil
}

// --------------------------------------------------------------------------
// Transaction Implementations
// --------------------------------------------------------------------------

type readTx struct {
	tx *bbolt.Tx
}

func (t readTx) bucket(collection string) (*bbolt.Bucket, error) {
	if collection == metaBucket {
		return nil, fmt.Errorf("%w: %s", engine.ErrNoCollection, collection)
	}
	b := t.tx.Bucket([]byte(collection))
	if b == nil {
		return nil, fmt.Errorf("%w: %s", engine.ErrNoCollection, collection)
	}
	return b, nil
}

func (t readTx) Get(collection, key string) ([]byte, bool, error) {
	b, err := t.bucket(collection)
	if err != nil {
		return nil, false, err
	}
	v := b.Get([]byte(key))
	if v == nil {
		return nil, false, nil
	}
	// bbolt values are only valid for the lifetime of the transaction
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (t readTx) Keys(collection string) ([]string, error) {
	b, err := t.bucket(collection)
	if err != nil {
		return nil, err
	}
	var keys []string
	err = b.ForEach(func(k, _ []byte) error {
		keys = append(keys, string(k))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (t readTx) Entries(collection string) ([]engine.Record, error) {
	b, err := t.bucket(collection)
	if err != nil {
		return nil, err
	}
	var records []engine.Record
	err = b.ForEach(func(k, v []byte) error {
		value := make([]byte, len(v))
		copy(value, v)
		records = append(records, engine.Record{Key: string(k), Value: value})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

type writeTx struct {
	readTx
}

func (t writeTx) Put(collection, key string, value []byte) error {
	b, err := t.bucket(collection)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), value)
}

func (t writeTx) Delete(collection, key string) error {
	b, err := t.bucket(collection)
	if err != nil {
		return err
	}
	return b.Delete([]byte(key))
}

func (t writeTx) Clear(collection string) error {
	if _, err := t.bucket(collection); err != nil {
		return err
	}
	if err := t.tx.DeleteBucket([]byte(collection)); err != nil {
		return err
	}
	_, err := t.tx.CreateBucket([]byte(collection))
	return err
}

type upgradeTx struct {
	writeTx
}

func (t upgradeTx) CreateCollection(name string) error {
	if name == "" || name == metaBucket {
		return fmt.Errorf("invalid collection name %q", name)
	}
	_, err := t.tx.CreateBucketIfNotExists([]byte(name))
	return err
}

func (t upgradeTx) DropCollection(name string) error {
	if name == metaBucket {
		return fmt.Errorf("invalid collection name %q", name)
	}
	if t.tx.Bucket([]byte(name)) == nil {
		return nil
	}
	return t.tx.DeleteBucket([]byte(name))
}
