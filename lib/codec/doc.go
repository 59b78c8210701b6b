// Package codec provides pluggable value codecs for the typed layers of
// kvstash. The storage layer itself treats values as opaque byte slices; a
// codec bridges between those bytes and application types.
//
// Two implementations are provided:
//   - JSON (NewJSONCodec): human-readable, the default for bindings
//   - GOB (NewGOBCodec): Go-native binary encoding
package codec
