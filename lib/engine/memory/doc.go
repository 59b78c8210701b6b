// Package memory implements the engine.Engine interface with in-process
// concurrent maps. It carries the full version and collection semantics of
// the boundary (upgrade transactions, forced close on version change,
// transactional rollback) but offers no durability: all data is gone when
// the engine instance is garbage collected.
//
// The implementation is used by the test suites of the higher layers and is
// a valid substrate whenever durable storage is not wanted.
package memory
