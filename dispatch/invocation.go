package dispatch

import "reflect"

// Invocation is a bound operation: resolve once, call many times against
// any number of targets.
type Invocation struct {
	site *CallSite
}

// NewInvocation resolves the call site for an operation of kind on member
// name. context may be nil when the receiver's static type is unknown.
func NewInvocation(c *Cache, kind Kind, name string, context reflect.Type, args Args, opts ...SignatureOption) (*Invocation, error) {
	site, err := c.Resolve(NewSignature(kind, name, context, args, opts...))
	if err != nil {
		return nil, err
	}
	return &Invocation{site: site}, nil
}

// Kind returns the kind of operation performed.
func (inv *Invocation) Kind() Kind { return inv.site.sig.kind }

// Name returns the member name, empty for direct invocation.
func (inv *Invocation) Name() string { return inv.site.sig.name }

// Signature returns the bound signature.
func (inv *Invocation) Signature() Signature { return inv.site.sig }

// CallSite returns the dispatcher the invocation is bound to.
func (inv *Invocation) CallSite() *CallSite { return inv.site }

// Invoke performs the operation on target.
func (inv *Invocation) Invoke(target any, args ...any) (any, error) {
	return inv.site.Call(target, args...)
}

// Try performs the operation on target and reports the outcome.
func (inv *Invocation) Try(target any, args ...any) Outcome {
	return inv.site.Try(target, args...)
}

// TryInvoke performs the operation, reporting failure as false.
func (inv *Invocation) TryInvoke(target any, args ...any) (any, bool) {
	o := inv.site.Try(target, args...)
	return o.Value, o.OK()
}
