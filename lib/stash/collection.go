package stash

import (
	"errors"
	"fmt"

	"github.com/VictoriaMetrics/metrics"
	"github.com/mfellner/kvstash/lib/engine"
)

// wrapInternal wraps an engine error as an internal error. Errors that are
// already stash errors (e.g. from a closed stash) pass through unchanged.
func wrapInternal(msg string, err error) error {
	var stashErr *Error
	if errors.As(err, &stashErr) {
		return err
	}
	return NewError(RetCInternalError, msg, err)
}

// --------------------------------------------------------------------------
// Operation Counters
// --------------------------------------------------------------------------

var (
	getOps    = metrics.NewCounter(`kvstash_collection_ops_total{op="get"}`)
	setOps    = metrics.NewCounter(`kvstash_collection_ops_total{op="set"}`)
	deleteOps = metrics.NewCounter(`kvstash_collection_ops_total{op="delete"}`)
	batchOps  = metrics.NewCounter(`kvstash_collection_ops_total{op="batch"}`)
	scanOps   = metrics.NewCounter(`kvstash_collection_ops_total{op="scan"}`)
)

// --------------------------------------------------------------------------
// Collection Accessor
// --------------------------------------------------------------------------

// Collection provides key-value access to one collection of a stash's
// database. Accessors are cheap handles; all state lives in the stash and
// the engine.
//
// Thread-safety: All methods are thread-safe and can be called concurrently.
type Collection struct {
	stash *Stash
	name  string
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// view runs fn in a read transaction on a validated connection.
func (c *Collection) view(fn func(tx engine.ReadTx) error) error {
	conn, err := c.stash.conn(c.name)
	if err != nil {
		return err
	}
	return conn.View(fn)
}

// update runs fn in a write transaction on a validated connection.
func (c *Collection) update(fn func(tx engine.WriteTx) error) error {
	conn, err := c.stash.conn(c.name)
	if err != nil {
		return err
	}
	return conn.Update(fn)
}

// Get returns the value stored under key. The second return value reports
// whether the key exists; a missing key is not an error.
func (c *Collection) Get(key string) ([]byte, bool, error) {
	getOps.Inc()
	var (
		value []byte
		found bool
	)
	err := c.view(func(tx engine.ReadTx) error {
		var err error
		value, found, err = tx.Get(c.name, key)
		return err
	})
	if err != nil {
		return nil, false, wrapInternal(fmt.Sprintf("get %q", key), err)
	}
	return value, found, nil
}

// Has reports whether key exists in the collection.
func (c *Collection) Has(key string) (bool, error) {
	_, found, err := c.Get(key)
	return found, err
}

// Set stores value under key, overwriting any existing value.
func (c *Collection) Set(key string, value []byte) error {
	setOps.Inc()
	err := c.update(func(tx engine.WriteTx) error {
		return tx.Put(c.name, key, value)
	})
	if err != nil {
		return wrapInternal(fmt.Sprintf("set %q", key), err)
	}
	return nil
}

// Delete removes key from the collection. Deleting a missing key is a
// no-op.
func (c *Collection) Delete(key string) error {
	deleteOps.Inc()
	err := c.update(func(tx engine.WriteTx) error {
		return tx.Delete(c.name, key)
	})
	if err != nil {
		return wrapInternal(fmt.Sprintf("delete %q", key), err)
	}
	return nil
}

// GetMany returns the values for the given keys in the same order. Missing
// keys yield a nil entry. The reads are independent; there is no atomicity
// guarantee across the entries.
func (c *Collection) GetMany(keys []string) ([][]byte, error) {
	batchOps.Inc()
	values := make([][]byte, len(keys))
	for i, key := range keys {
		value, _, err := c.Get(key)
		if err != nil {
			return nil, err
		}
		values[i] = value
	}
	return values, nil
}

// SetMany stores all records in one write transaction. Either all records
// are written or none.
func (c *Collection) SetMany(records []engine.Record) error {
	batchOps.Inc()
	err := c.update(func(tx engine.WriteTx) error {
		for _, r := range records {
			if err := tx.Put(c.name, r.Key, r.Value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrapInternal(fmt.Sprintf("set %d records", len(records)), err)
	}
	return nil
}

// DeleteMany removes all given keys in one write transaction.
func (c *Collection) DeleteMany(keys []string) error {
	batchOps.Inc()
	err := c.update(func(tx engine.WriteTx) error {
		for _, key := range keys {
			if err := tx.Delete(c.name, key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrapInternal(fmt.Sprintf("delete %d keys", len(keys)), err)
	}
	return nil
}

// Update applies fn to the current value of key and stores the result, all
// within one write transaction. fn receives the current value (nil if the
// key is missing) and the found flag; the returned value is written back.
// Returning nil stores an empty value, it does not delete the key.
func (c *Collection) Update(key string, fn func(value []byte, found bool) []byte) error {
	setOps.Inc()
	err := c.update(func(tx engine.WriteTx) error {
		value, found, err := tx.Get(c.name, key)
		if err != nil {
			return err
		}
		return tx.Put(c.name, key, fn(value, found))
	})
	if err != nil {
		return wrapInternal(fmt.Sprintf("update %q", key), err)
	}
	return nil
}

// Clear removes all entries from the collection. The collection itself
// stays registered in the database schema.
func (c *Collection) Clear() error {
	deleteOps.Inc()
	err := c.update(func(tx engine.WriteTx) error {
		return tx.Clear(c.name)
	})
	if err != nil {
		return wrapInternal("clear collection", err)
	}
	return nil
}

// Keys returns all keys of the collection in lexicographic order.
func (c *Collection) Keys() ([]string, error) {
	scanOps.Inc()
	var keys []string
	err := c.view(func(tx engine.ReadTx) error {
		var err error
		keys, err = tx.Keys(c.name)
		return err
	})
	if err != nil {
		return nil, wrapInternal("list keys", err)
	}
	return keys, nil
}

// Values returns all values of the collection, ordered by their keys.
// The scan is counted once, by the Entries call underneath.
func (c *Collection) Values() ([][]byte, error) {
	entries, err := c.Entries()
	if err != nil {
		return nil, err
	}
	values := make([][]byte, len(entries))
	for i, e := range entries {
		values[i] = e.Value
	}
	return values, nil
}

// Entries returns all records of the collection in lexicographic key
// order.
func (c *Collection) Entries() ([]engine.Record, error) {
	scanOps.Inc()
	var entries []engine.Record
	err := c.view(func(tx engine.ReadTx) error {
		var err error
		entries, err = tx.Entries(c.name)
		return err
	})
	if err != nil {
		return nil, wrapInternal("list entries", err)
	}
	return entries, nil
}
