// Package enginetest provides a standardized test suite for implementations
// of the engine.Engine interface.
//
//   - RunEngineTests: Runs a conformance suite validating version
//     negotiation, forced close, transactional rollback and the collection
//     operations.
//
// Engine packages run the suite from their own interface test file and add
// implementation-specific tests (e.g. durability across reopen) there.
package enginetest
