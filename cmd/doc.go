// Package cmd implements the command-line interface of kvstash. It provides
// a hierarchical command structure for inspecting and manipulating databases
// from the shell.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for key-value operations (get, set, delete, keys, etc.)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See kvstash -help for a list of all commands.
package cmd
