// Package dispatch implements structural member dispatch for Go values.
//
// This package contains:
//   - Signatures identifying one member operation
//   - The call-site cache and its per-receiver-type inline caches
//   - Structural resolution of fields, methods, map keys and funcs
//   - The dynamic Object protocol for values whose members are only known
//     at run time
package dispatch
