package enginetest

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/mfellner/kvstash/lib/engine"
)

// EngineFactory is a function that creates a fresh instance of an
// engine.Engine implementation for one test.
type EngineFactory func(t *testing.T) engine.Engine

// RunEngineTests runs a standardized test suite for an engine.Engine
// implementation.
func RunEngineTests(t *testing.T, name string, factory EngineFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("OpenAndCreate", func(t *testing.T) {
			testOpenAndCreate(t, factory(t))
		})

		t.Run("AdoptExistingVersion", func(t *testing.T) {
			testAdoptExistingVersion(t, factory(t))
		})

		t.Run("VersionTooLow", func(t *testing.T) {
			testVersionTooLow(t, factory(t))
		})

		t.Run("UpgradeCallbackVersions", func(t *testing.T) {
			testUpgradeCallbackVersions(t, factory(t))
		})

		t.Run("ForcedClose", func(t *testing.T) {
			testForcedClose(t, factory(t))
		})

		t.Run("TransactionRollback", func(t *testing.T) {
			testTransactionRollback(t, factory(t))
		})

		t.Run("DeleteAndClear", func(t *testing.T) {
			testDeleteAndClear(t, factory(t))
		})

		t.Run("KeysAndEntries", func(t *testing.T) {
			testKeysAndEntries(t, factory(t))
		})

		t.Run("MissingCollection", func(t *testing.T) {
			testMissingCollection(t, factory(t))
		})

		t.Run("DeleteDatabase", func(t *testing.T) {
			testDeleteDatabase(t, factory(t))
		})

		t.Run("ConcurrentOpens", func(t *testing.T) {
			testConcurrentOpens(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// createCollection returns an upgrade func that ensures the given collection
// exists.
func createCollection(name string) engine.UpgradeFunc {
	return func(tx engine.UpgradeTx, _, _ uint64) error {
		return tx.CreateCollection(name)
	}
}

func mustOpen(t *testing.T, eng engine.Engine, db, collection string, version uint64) engine.Connection {
	t.Helper()
	conn, err := eng.Open(db, version, createCollection(collection), nil)
	if err != nil {
		t.Fatalf("Open(%s, %d) failed: %v", db, version, err)
	}
	return conn
}

func put(t *testing.T, conn engine.Connection, collection, key, value string) {
	t.Helper()
	err := conn.Update(func(tx engine.WriteTx) error {
		return tx.Put(collection, key, []byte(value))
	})
	if err != nil {
		t.Fatalf("Put(%s, %s) failed: %v", collection, key, err)
	}
}

func get(t *testing.T, conn engine.Connection, collection, key string) (string, bool) {
	t.Helper()
	var (
		value []byte
		found bool
	)
	err := conn.View(func(tx engine.ReadTx) error {
		var err error
		value, found, err = tx.Get(collection, key)
		return err
	})
	if err != nil {
		t.Fatalf("Get(%s, %s) failed: %v", collection, key, err)
	}
	return string(value), found
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testOpenAndCreate(t *testing.T, eng engine.Engine) {
	conn := mustOpen(t, eng, "testdb", "items", 1)
	defer conn.Close()

	if conn.Name() != "testdb" {
		t.Errorf("Expected database name testdb, got %s", conn.Name())
	}
	if conn.Version() != 1 {
		t.Errorf("Expected version 1, got %d", conn.Version())
	}

	found, err := conn.HasCollection("items")
	if err != nil || !found {
		t.Errorf("Expected collection items to exist (found=%v, err=%v)", found, err)
	}
	found, err = conn.HasCollection("nope")
	if err != nil || found {
		t.Errorf("Expected collection nope to be absent (found=%v, err=%v)", found, err)
	}

	put(t, conn, "items", "k1", "v1")
	if v, found := get(t, conn, "items", "k1"); !found || v != "v1" {
		t.Errorf("Expected v1, got %q (found=%v)", v, found)
	}
	if _, found := get(t, conn, "items", "missing"); found {
		t.Errorf("Expected missing key to be absent")
	}
}

func testAdoptExistingVersion(t *testing.T, eng engine.Engine) {
	conn := mustOpen(t, eng, "testdb", "items", 3)
	if conn.Version() != 3 {
		t.Errorf("Expected version 3, got %d", conn.Version())
	}
	put(t, conn, "items", "k", "v")
	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// version 0 adopts whatever already exists
	conn = mustOpen(t, eng, "testdb", "items", 0)
	defer conn.Close()
	if conn.Version() != 3 {
		t.Errorf("Expected adopted version 3, got %d", conn.Version())
	}
	if v, found := get(t, conn, "items", "k"); !found || v != "v" {
		t.Errorf("Expected v, got %q (found=%v)", v, found)
	}
}

func testVersionTooLow(t *testing.T, eng engine.Engine) {
	conn := mustOpen(t, eng, "testdb", "items", 2)
	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	_, err := eng.Open("testdb", 1, createCollection("items"), nil)
	if !errors.Is(err, engine.ErrVersionTooLow) {
		t.Errorf("Expected ErrVersionTooLow, got %v", err)
	}
}

func testUpgradeCallbackVersions(t *testing.T, eng engine.Engine) {
	type bump struct{ old, new uint64 }
	var bumps []bump
	record := func(tx engine.UpgradeTx, oldV, newV uint64) error {
		bumps = append(bumps, bump{oldV, newV})
		return tx.CreateCollection("items")
	}

	conn, err := eng.Open("testdb", 2, record, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	conn.Close()

	// same version again must not trigger an upgrade
	conn, err = eng.Open("testdb", 2, record, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	conn.Close()

	conn, err = eng.Open("testdb", 5, record, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	conn.Close()

	want := []bump{{0, 2}, {2, 5}}
	if len(bumps) != len(want) {
		t.Fatalf("Expected %d upgrade calls, got %d (%v)", len(want), len(bumps), bumps)
	}
	for i := range want {
		if bumps[i] != want[i] {
			t.Errorf("Upgrade call %d: expected %v, got %v", i, want[i], bumps[i])
		}
	}
}

func testForcedClose(t *testing.T, eng engine.Engine) {
	fired := 0
	connA, err := eng.Open("testdb", 1, createCollection("items"), func() {
		fired++
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	put(t, connA, "items", "k", "v")

	// a higher version elsewhere force-closes connA
	connB := mustOpen(t, eng, "testdb", "items", 2)
	defer connB.Close()

	if fired != 1 {
		t.Errorf("Expected version-change callback to fire once, fired %d times", fired)
	}

	err = connA.View(func(tx engine.ReadTx) error { return nil })
	if !errors.Is(err, engine.ErrClosed) {
		t.Errorf("Expected ErrClosed on force-closed connection, got %v", err)
	}
	if err := connA.Close(); err != nil {
		t.Errorf("Close after forced close should be a no-op, got %v", err)
	}

	// data survives the version bump
	if v, found := get(t, connB, "items", "k"); !found || v != "v" {
		t.Errorf("Expected v after version bump, got %q (found=%v)", v, found)
	}
}

func testTransactionRollback(t *testing.T, eng engine.Engine) {
	conn := mustOpen(t, eng, "testdb", "items", 1)
	defer conn.Close()

	put(t, conn, "items", "keep", "old")

	boom := errors.New("boom")
	err := conn.Update(func(tx engine.WriteTx) error {
		if err := tx.Put("items", "new", []byte("x")); err != nil {
			return err
		}
		if err := tx.Put("items", "keep", []byte("changed")); err != nil {
			return err
		}
		if err := tx.Delete("items", "keep"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected the transaction error to propagate, got %v", err)
	}

	if _, found := get(t, conn, "items", "new"); found {
		t.Errorf("Expected write to be rolled back")
	}
	if v, found := get(t, conn, "items", "keep"); !found || v != "old" {
		t.Errorf("Expected keep=old after rollback, got %q (found=%v)", v, found)
	}
}

func testDeleteAndClear(t *testing.T, eng engine.Engine) {
	conn := mustOpen(t, eng, "testdb", "items", 1)
	defer conn.Close()

	put(t, conn, "items", "a", "1")
	put(t, conn, "items", "b", "2")

	err := conn.Update(func(tx engine.WriteTx) error {
		// deleting a missing key is a no-op
		if err := tx.Delete("items", "missing"); err != nil {
			return err
		}
		return tx.Delete("items", "a")
	})
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, found := get(t, conn, "items", "a"); found {
		t.Errorf("Expected a to be deleted")
	}

	err = conn.Update(func(tx engine.WriteTx) error {
		return tx.Clear("items")
	})
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, found := get(t, conn, "items", "b"); found {
		t.Errorf("Expected collection to be empty after Clear")
	}
	if found, err := conn.HasCollection("items"); err != nil || !found {
		t.Errorf("Expected collection to survive Clear (found=%v, err=%v)", found, err)
	}
}

func testKeysAndEntries(t *testing.T, eng engine.Engine) {
	conn := mustOpen(t, eng, "testdb", "items", 1)
	defer conn.Close()

	for i := 3; i >= 1; i-- {
		put(t, conn, "items", fmt.Sprintf("k%d", i), fmt.Sprintf("v%d", i))
	}

	err := conn.View(func(tx engine.ReadTx) error {
		keys, err := tx.Keys("items")
		if err != nil {
			return err
		}
		wantKeys := []string{"k1", "k2", "k3"}
		if len(keys) != len(wantKeys) {
			t.Fatalf("Expected %d keys, got %v", len(wantKeys), keys)
		}
		for i, k := range wantKeys {
			if keys[i] != k {
				t.Errorf("Expected key %s at %d, got %s", k, i, keys[i])
			}
		}

		records, err := tx.Entries("items")
		if err != nil {
			return err
		}
		if len(records) != 3 {
			t.Fatalf("Expected 3 entries, got %d", len(records))
		}
		for i, r := range records {
			if r.Key != wantKeys[i] || string(r.Value) != fmt.Sprintf("v%d", i+1) {
				t.Errorf("Unexpected entry %d: %s=%s", i, r.Key, r.Value)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
}

func testMissingCollection(t *testing.T, eng engine.Engine) {
	conn := mustOpen(t, eng, "testdb", "items", 1)
	defer conn.Close()

	err := conn.View(func(tx engine.ReadTx) error {
		_, _, err := tx.Get("ghost", "k")
		return err
	})
	if !errors.Is(err, engine.ErrNoCollection) {
		t.Errorf("Expected ErrNoCollection for reads, got %v", err)
	}

	err = conn.Update(func(tx engine.WriteTx) error {
		return tx.Put("ghost", "k", []byte("v"))
	})
	if !errors.Is(err, engine.ErrNoCollection) {
		t.Errorf("Expected ErrNoCollection for writes, got %v", err)
	}
}

func testDeleteDatabase(t *testing.T, eng engine.Engine) {
	fired := 0
	conn, err := eng.Open("testdb", 1, createCollection("items"), func() {
		fired++
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	put(t, conn, "items", "k", "v")

	if err := eng.DeleteDatabase("testdb"); err != nil {
		t.Fatalf("DeleteDatabase failed: %v", err)
	}
	if fired != 1 {
		t.Errorf("Expected version-change callback on database deletion, fired %d times", fired)
	}

	// deleting again is a no-op
	if err := eng.DeleteDatabase("testdb"); err != nil {
		t.Errorf("Expected idempotent DeleteDatabase, got %v", err)
	}

	// the database starts fresh afterwards
	conn = mustOpen(t, eng, "testdb", "items", 1)
	defer conn.Close()
	if conn.Version() != 1 {
		t.Errorf("Expected fresh database at version 1, got %d", conn.Version())
	}
	if _, found := get(t, conn, "items", "k"); found {
		t.Errorf("Expected no data after database deletion")
	}
}

func testConcurrentOpens(t *testing.T, eng engine.Engine) {
	const workers = 16

	var wg sync.WaitGroup
	wg.Add(workers)
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			conn, err := eng.Open("testdb", 1, createCollection("items"), nil)
			if err != nil {
				errs <- err
				return
			}
			errs <- conn.Update(func(tx engine.WriteTx) error {
				return tx.Put("items", "shared", []byte("x"))
			})
			conn.Close()
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Concurrent open/write failed: %v", err)
		}
	}
}
