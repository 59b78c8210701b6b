package bolt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mfellner/kvstash/lib/engine"
	"github.com/mfellner/kvstash/lib/engine/enginetest"
)

// TestBoltEngineInterface validates that the bolt engine conforms to the
// engine.Engine interface contract.
func TestBoltEngineInterface(t *testing.T) {
	enginetest.RunEngineTests(t, "bolt", func(t *testing.T) engine.Engine {
		return NewEngine(&Options{Dir: t.TempDir()})
	})
}

// TestBoltEnginePersistence checks that data and version survive a full
// close/reopen cycle of the underlying file.
func TestBoltEnginePersistence(t *testing.T) {
	dir := t.TempDir()

	eng := NewEngine(&Options{Dir: dir})
	conn, err := eng.Open("persist", 2, func(tx engine.UpgradeTx, _, _ uint64) error {
		return tx.CreateCollection("items")
	}, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	err = conn.Update(func(tx engine.WriteTx) error {
		return tx.Put("items", "k", []byte("v"))
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// a second engine instance simulates a process restart
	eng = NewEngine(&Options{Dir: dir})
	conn, err = eng.Open("persist", 0, nil, nil)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer conn.Close()

	if conn.Version() != 2 {
		t.Errorf("Expected persisted version 2, got %d", conn.Version())
	}
	var value []byte
	var found bool
	err = conn.View(func(tx engine.ReadTx) error {
		var err error
		value, found, err = tx.Get("items", "k")
		return err
	})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found || string(value) != "v" {
		t.Errorf("Expected persisted value v, got %q (found=%v)", value, found)
	}
}

// TestBoltEngineDeleteDatabaseRemovesFile checks that the database file is
// gone after DeleteDatabase.
func TestBoltEngineDeleteDatabaseRemovesFile(t *testing.T) {
	dir := t.TempDir()
	eng := NewEngine(&Options{Dir: dir})

	conn, err := eng.Open("gone", 1, nil, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	conn.Close()

	path := filepath.Join(dir, "gone"+fileSuffix)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Expected database file at %s: %v", path, err)
	}

	if err := eng.DeleteDatabase("gone"); err != nil {
		t.Fatalf("DeleteDatabase failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Expected database file to be removed, stat err = %v", err)
	}
}
