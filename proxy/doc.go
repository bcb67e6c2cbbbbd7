// Package proxy presents arbitrary values as Go interfaces they do not
// implement.
//
// This package contains:
//   - Descriptor and Type: the per (context, interface set) forwarding table
//   - Projector: the type cache and adapter registry
//   - Base: the state embedded by adapter structs
//   - DressAs: wrapping a value in the adapter for an interface
//   - Informal: typed property projections without a declared interface
//
// Go cannot add methods at run time, so every interface needs an adapter
// struct that embeds Base and forwards each method:
//
//	type greeterProxy struct{ proxy.Base }
//
//	func (p *greeterProxy) Greet(s string) string {
//		return proxy.Value[string](p.Forward("Greet", s))
//	}
//
// Adapters are written by hand or generated with ducktape gen, then
// registered with AdapterFor or PreLoad.
package proxy
