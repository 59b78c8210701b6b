package engine

import "errors"

// --------------------------------------------------------------------------
// Sentinel Errors
// --------------------------------------------------------------------------

var (
	// ErrVersionTooLow is returned by Open when the requested version is
	// lower than the version already stored for the database.
	ErrVersionTooLow = errors.New("engine: requested version is lower than existing database version")

	// ErrClosed is returned by operations on a connection that has been
	// closed, either explicitly or by a forced version change.
	ErrClosed = errors.New("engine: connection is closed")

	// ErrNoCollection is returned by transaction operations that address a
	// collection which does not exist in the open database.
	ErrNoCollection = errors.New("engine: collection does not exist")
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

// Record is a single key-value entry of a collection.
type Record struct {
	Key   string
	Value []byte
}

// UpgradeFunc runs inside the upgrade transaction of an Open call. It is
// invoked on first-ever creation of a database and on every version increase,
// with the previous and the new version. It is the only place where
// collections can be created or dropped.
type UpgradeFunc func(tx UpgradeTx, oldVersion, newVersion uint64) error

// VersionChangeFunc is invoked (at most once) after a connection has been
// force-closed because a later Open requested a higher version for the same
// database. The connection is already unusable when the callback fires.
type VersionChangeFunc func()

// --------------------------------------------------------------------------
// Engine Interface
// --------------------------------------------------------------------------

// Engine is the storage engine boundary: a transactional key-value engine
// addressable by (database name, version, collection name, key) with
// open-with-version semantics.
//
// Version semantics:
//   - version == 0 adopts whatever version the database already has
//     (a brand-new database is created at version 1).
//   - version greater than the stored one force-closes all live connections
//     to the database (firing their VersionChangeFunc), runs the upgrade
//     transaction and records the new version.
//   - version lower than the stored one fails with ErrVersionTooLow.
type Engine interface {
	// Open opens the named database at the given version and returns a live
	// connection. See the Engine doc comment for the version semantics.
	//
	// Thread-safety: implementations must allow concurrent Open calls.
	Open(name string, version uint64, upgrade UpgradeFunc, onVersionChange VersionChangeFunc) (Connection, error)

	// DeleteDatabase removes the named database entirely, force-closing any
	// live connections first. Deleting a database that does not exist is a
	// no-op.
	DeleteDatabase(name string) error
}

// --------------------------------------------------------------------------
// Connection Interface
// --------------------------------------------------------------------------

// Connection wraps an open database at a specific version. A connection is
// shared freely between goroutines and stays valid until Close is called or
// the engine force-closes it because of a version change elsewhere.
type Connection interface {
	// Name returns the database name.
	Name() string

	// Version returns the version the database was opened at.
	Version() uint64

	// Collections returns the names of all collections in the database.
	Collections() ([]string, error)

	// HasCollection reports whether the named collection exists.
	HasCollection(name string) (bool, error)

	// View runs fn inside a read-only transaction.
	View(fn func(tx ReadTx) error) error

	// Update runs fn inside a read-write transaction. If fn returns an
	// error the transaction is aborted and none of its writes are applied.
	Update(fn func(tx WriteTx) error) error

	// Close releases the connection. Close is idempotent.
	Close() error
}

// --------------------------------------------------------------------------
// Transaction Interfaces
// --------------------------------------------------------------------------

// ReadTx is a read-only transaction over the collections of one database.
type ReadTx interface {
	// Get retrieves the value for a key in a collection. The boolean return
	// value indicates whether the key was found; a missing key is not an
	// error.
	Get(collection, key string) (value []byte, found bool, err error)

	// Keys returns all keys of a collection in lexicographic order.
	Keys(collection string) ([]string, error)

	// Entries returns all records of a collection ordered by key.
	Entries(collection string) ([]Record, error)
}

// WriteTx extends ReadTx with mutating operations.
type WriteTx interface {
	ReadTx

	// Put inserts or unconditionally overwrites the value for a key.
	Put(collection, key string, value []byte) error

	// Delete removes a key. Deleting a missing key is a no-op.
	Delete(collection, key string) error

	// Clear removes every entry of a collection. The collection itself
	// survives.
	Clear(collection string) error
}

// UpgradeTx extends WriteTx with schema operations. It is only ever handed
// to an UpgradeFunc.
type UpgradeTx interface {
	WriteTx

	// CreateCollection creates the named collection if it does not exist.
	CreateCollection(name string) error

	// DropCollection removes the named collection and all its entries.
	// Dropping a missing collection is a no-op.
	DropCollection(name string) error
}
