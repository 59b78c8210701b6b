// Package bolt implements the engine.Engine interface on top of bbolt.
//
// Each database is stored in its own file (<name>.db) under the configured
// directory; each collection is a bbolt bucket. A reserved bucket (__meta)
// holds the schema version so that open-with-version semantics survive
// process restarts.
//
// The engine keeps an in-process registry of open databases. The registry
// serves two purposes:
//   - the bbolt file handle is shared (and refcounted) between all
//     connections to the same database, since bbolt allows only one open
//     handle per file
//   - opening a database at a higher version force-closes all live
//     connections, firing their version-change callbacks, before the
//     upgrade transaction runs
//
// The registry only coordinates within one process. Cross-process access to
// the same file is serialized by the bbolt file lock and is not otherwise
// coordinated.
package bolt
