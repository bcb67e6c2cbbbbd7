// Package expando provides dynamic containers for duck-typed code.
//
// This package contains:
//   - Expando: an insertion-ordered dictionary usable as a dispatch.Object
//   - List: a dynamic list usable as a dispatch.Indexer
//   - Marshal/Unmarshal: canonical CBOR encoding that keeps numeric kinds
//   - Store: SQLite persistence keyed by UUID
package expando
