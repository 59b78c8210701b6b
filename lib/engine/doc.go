// Package engine defines the storage engine boundary of kvstash: a
// transactional key-value engine addressable by (database name, version,
// collection name, key).
//
// The package focuses on:
//   - Open-with-version semantics with an upgrade transaction that runs on
//     first creation and on every version increase
//   - Forced-close notification when a higher version is requested for an
//     already open database
//   - Read and read-write transactions scoped to the collections of one
//     database
//
// Key Components:
//
//   - Engine Interface: opens databases and deletes them. Implementations
//     must be safe for concurrent use.
//
//   - Connection Interface: an open database at a specific version, shared
//     by all accessors derived from it until closed explicitly or by a
//     forced version change.
//
//   - Transaction Interfaces: ReadTx for reads, WriteTx for mutations
//     (aborted as a whole when any sub-operation fails) and UpgradeTx which
//     additionally may create and drop collections.
//
// Implementations:
//
//	The bolt package (github.com/mfellner/kvstash/lib/engine/bolt) stores
//	each database in its own bbolt file with a bucket per collection; it is
//	the durable default.
//
//	The memory package (github.com/mfellner/kvstash/lib/engine/memory)
//	implements the same semantics over in-process concurrent maps without
//	durability.
//
//	The enginetest package (github.com/mfellner/kvstash/lib/engine/enginetest)
//	provides a standardized conformance suite for Engine implementations.
package engine
