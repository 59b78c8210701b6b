// Package stash is the high-level convenience layer of kvstash. It hides
// the version and connection handling of the engine layer behind a small
// facade:
//
//	s := stash.New(&stash.Options{Database: "app"})
//	defer s.Close()
//
//	users := s.Collection("users")
//	_ = users.Set("alice", []byte(`{"admin":true}`))
//
// Collections that do not exist yet are created transparently: the gateway
// bumps the database version by one and creates the collection inside the
// resulting upgrade transaction. Connections are cached process-wide per
// (database, version, collection), so any number of stashes and collection
// accessors share a single underlying connection.
//
// Configuration is resolved from three layers (lowest precedence first):
// built-in defaults, KVSTASH_* environment variables, and the Options
// passed to New.
package stash
