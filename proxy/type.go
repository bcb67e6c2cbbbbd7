package proxy

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/chazu/ducktape/dispatch"
)

// DefaultMaxArity is the largest parameter count a forwarded method may have.
const DefaultMaxArity = 16

// Descriptor identifies a proxy type: a context type plus either a set of
// interfaces or an informal name to type map.
type Descriptor struct {
	Context    reflect.Type
	Interfaces []reflect.Type           // canonical order, no duplicates
	Informal   map[string]reflect.Type // nil for interface proxies
}

// IsInformal reports whether the descriptor describes an informal interface.
func (d Descriptor) IsInformal() bool {
	return d.Informal != nil
}

func (d Descriptor) String() string {
	var b strings.Builder
	b.WriteString(typeName(d.Context))
	b.WriteString(" as ")
	if d.IsInformal() {
		b.WriteString("{")
		for i, name := range sortedNames(d.Informal) {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(name)
			b.WriteString(" ")
			b.WriteString(typeName(d.Informal[name]))
		}
		b.WriteString("}")
		return b.String()
	}
	for i, t := range d.Interfaces {
		if i > 0 {
			b.WriteString(" & ")
		}
		b.WriteString(typeName(t))
	}
	return b.String()
}

// matches reports whether d describes the same proxy type as o. Interface
// sets compare as sets, by type identity.
func (d Descriptor) matches(o Descriptor) bool {
	if d.Context != o.Context || d.IsInformal() != o.IsInformal() {
		return false
	}
	if d.IsInformal() {
		if len(d.Informal) != len(o.Informal) {
			return false
		}
		for name, t := range d.Informal {
			if ot, ok := o.Informal[name]; !ok || ot != t {
				return false
			}
		}
		return true
	}
	return sameSet(d.Interfaces, o.Interfaces)
}

func sameSet(a, b []reflect.Type) bool {
	if len(a) != len(b) {
		return false
	}
	for _, t := range a {
		if !slices.Contains(b, t) {
			return false
		}
	}
	return true
}

// canonical removes duplicate interfaces and orders the rest by package
// path and name. The order decides which interface covers a method first.
func canonical(ifaces []reflect.Type) []reflect.Type {
	out := make([]reflect.Type, 0, len(ifaces))
	for _, t := range ifaces {
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, func(a, b reflect.Type) int {
		if c := strings.Compare(a.PkgPath(), b.PkgPath()); c != 0 {
			return c
		}
		return strings.Compare(a.String(), b.String())
	})
	return out
}

// Type is a built proxy type: the immutable table of forwarding members
// for one Descriptor. Equal descriptors share one *Type per Projector.
type Type struct {
	desc     Descriptor
	forwards []*Forward
	byName   map[string][]*Forward
}

// Descriptor returns what the type was built for.
func (t *Type) Descriptor() Descriptor { return t.desc }

// Forwards returns every forwarding member in build order.
func (t *Type) Forwards() []*Forward { return slices.Clone(t.forwards) }

// Lookup returns the forwarding members for a method name. More than one
// means interfaces in the set declare the name with different signatures.
func (t *Type) Lookup(name string) []*Forward { return t.byName[name] }

// Overloaded returns the method names declared with more than one
// signature, in build order. No Go adapter can implement such a type; it
// serves forward-level dispatch only.
func (t *Type) Overloaded() []string {
	var names []string
	for _, f := range t.forwards {
		if len(t.byName[f.Name]) > 1 && !slices.Contains(names, f.Name) {
			names = append(names, f.Name)
		}
	}
	return names
}

// Implements reports whether iface is part of the type's interface set.
func (t *Type) Implements(iface reflect.Type) bool {
	return slices.Contains(t.desc.Interfaces, iface)
}

func (t *Type) String() string { return "proxy " + t.desc.String() }

func (t *Type) add(f *Forward) {
	t.forwards = append(t.forwards, f)
	t.byName[f.Name] = append(t.byName[f.Name], f)
}

// forward selects the forwarding member for method called with args.
func (t *Type) forward(method string, args []any) (*Forward, error) {
	fwds := t.byName[method]
	switch len(fwds) {
	case 0:
		return nil, &dispatch.Error{Code: dispatch.ErrNoSuchMember, Member: method, Err: fmt.Errorf("not part of %s", t)}
	case 1:
		return fwds[0], nil
	}
	var found *Forward
	for _, f := range fwds {
		if !f.accepts(args) {
			continue
		}
		if found != nil {
			return nil, &dispatch.Error{Code: dispatch.ErrAmbiguousMember, Member: method, Err: fmt.Errorf("%s and %s both accept the arguments", found.Method, f.Method)}
		}
		found = f
	}
	if found == nil {
		return nil, &dispatch.Error{Code: dispatch.ErrNoSuchMember, Member: method, Err: fmt.Errorf("no overload of %s accepts the arguments", method)}
	}
	return found, nil
}

// Forward is one forwarding member: an interface method (or informal
// property accessor) and the call site that performs it on the target.
type Forward struct {
	Name      string       // method name on the proxy
	Member    string       // member addressed on the target
	Interface reflect.Type // declaring interface, nil for informal members
	Method    reflect.Type // func type of the method, without receiver
	Kind      dispatch.Kind

	site *dispatch.CallSite
}

// Signature returns the signature the forward dispatches through.
func (f *Forward) Signature() dispatch.Signature { return f.site.Signature() }

// CallSite returns the dispatcher the forward is bound to.
func (f *Forward) CallSite() *dispatch.CallSite { return f.site }

func (f *Forward) String() string {
	return fmt.Sprintf("%s%s -> %s", f.Name, strings.TrimPrefix(typeName(f.Method), "func"), f.site.Signature())
}

// call performs the forward against target.
func (f *Forward) call(target any, args []any) (any, error) {
	return f.site.Call(target, args...)
}

// accepts reports whether args could be passed to the method.
func (f *Forward) accepts(args []any) bool {
	if f.Method == nil {
		return true
	}
	mt := f.Method
	if mt.IsVariadic() {
		if len(args) < mt.NumIn()-1 {
			return false
		}
	} else if len(args) != mt.NumIn() {
		return false
	}
	for i, a := range args {
		pt := mt.In(min(i, mt.NumIn()-1))
		if mt.IsVariadic() && i >= mt.NumIn()-1 {
			if a != nil && reflect.TypeOf(a).AssignableTo(pt) {
				continue
			}
			pt = pt.Elem()
		}
		if _, err := dispatch.Coerce(a, pt); err != nil {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Building
// ---------------------------------------------------------------------------

// informalContext is the declared context of informal property forwards.
type informalContext interface{ informalShape() }

var informalContextType = reflect.TypeFor[informalContext]()

func buildFailure(d Descriptor, format string, args ...any) error {
	return &dispatch.Error{Code: dispatch.ErrBuildFailure, Type: d.Context, Err: fmt.Errorf("%s: %s", d, fmt.Sprintf(format, args...))}
}

// build creates the forwarding table for an interface descriptor. Every
// problem is reported before anything is returned.
func (p *Projector) build(d Descriptor) (*Type, error) {
	t := &Type{desc: d, byName: make(map[string][]*Forward)}
	for _, iface := range d.Interfaces {
		if iface.Kind() != reflect.Interface {
			return nil, buildFailure(d, "%s is not an interface", iface)
		}
		for i := 0; i < iface.NumMethod(); i++ {
			m := iface.Method(i)
			if !m.IsExported() {
				return nil, buildFailure(d, "%s has unexported method %s", iface, m.Name)
			}
			if m.Type.NumIn() > p.maxArity {
				return nil, buildFailure(d, "%s.%s has %d parameters, more than %d", iface, m.Name, m.Type.NumIn(), p.maxArity)
			}
			if covered(t, m) {
				continue
			}
			f, err := p.forwardFor(iface, m)
			if err != nil {
				return nil, buildFailure(d, "%s.%s: %v", iface, m.Name, err)
			}
			t.add(f)
		}
	}
	return t, nil
}

// covered reports whether an earlier interface already declared m with
// the same signature.
func covered(t *Type, m reflect.Method) bool {
	for _, f := range t.byName[m.Name] {
		if f.Method == m.Type {
			return true
		}
	}
	return false
}

// forwardFor maps an interface method to an invocation:
//
//	X() T, X() (T, error)     Get X
//	SetX(v T), SetX(v) error  Set X
//	AddX(fn), RemoveX(fn)     AddAssign / SubtractAssign on event X
//	anything else             InvokeMember, or InvokeMemberAction without results
func (p *Projector) forwardFor(iface reflect.Type, m reflect.Method) (*Forward, error) {
	mt := m.Type
	values := valueResults(mt)
	for i := 0; i < values; i++ {
		if mt.Out(i) == errorType {
			return nil, fmt.Errorf("only a trailing error result is supported")
		}
	}

	kind, member := dispatch.InvokeMember, m.Name
	var opts []dispatch.SignatureOption
	switch {
	case mt.NumIn() == 0 && values == 1:
		kind = dispatch.Get
	case mt.NumIn() == 1 && values == 0 && hasPrefix(m.Name, "Set"):
		kind, member = dispatch.Set, m.Name[len("Set"):]
	case mt.NumIn() == 1 && values == 0 && mt.In(0).Kind() == reflect.Func && hasPrefix(m.Name, "Add"):
		kind, member = dispatch.AddAssign, m.Name[len("Add"):]
		opts = append(opts, dispatch.EventMember())
	case mt.NumIn() == 1 && values == 0 && mt.In(0).Kind() == reflect.Func && hasPrefix(m.Name, "Remove"):
		kind, member = dispatch.SubtractAssign, m.Name[len("Remove"):]
		opts = append(opts, dispatch.EventMember())
	case values == 0:
		kind = dispatch.InvokeMemberAction
	}

	sig := dispatch.NewSignature(kind, member, iface, paramArgs(mt), opts...)
	site, err := p.cache.Resolve(sig)
	if err != nil {
		return nil, err
	}
	return &Forward{Name: m.Name, Member: member, Interface: iface, Method: mt, Kind: kind, site: site}, nil
}

// buildInformal creates get and set forwards for every property of an
// informal descriptor.
func (p *Projector) buildInformal(d Descriptor) (*Type, error) {
	t := &Type{desc: d, byName: make(map[string][]*Forward)}
	for _, name := range sortedNames(d.Informal) {
		pt := d.Informal[name]
		if name == "" || pt == nil {
			return nil, buildFailure(d, "property %q needs a name and a type", name)
		}
		get, err := p.cache.Resolve(dispatch.NewSignature(dispatch.Get, name, informalContextType, dispatch.Args{}))
		if err != nil {
			return nil, buildFailure(d, "%s: %v", name, err)
		}
		set, err := p.cache.Resolve(dispatch.NewSignature(dispatch.Set, name, informalContextType, dispatch.Typed(pt)))
		if err != nil {
			return nil, buildFailure(d, "%s: %v", name, err)
		}
		t.add(&Forward{Name: name, Member: name, Method: reflect.FuncOf(nil, []reflect.Type{pt}, false), Kind: dispatch.Get, site: get})
		t.add(&Forward{Name: "Set" + name, Member: name, Method: reflect.FuncOf([]reflect.Type{pt}, nil, false), Kind: dispatch.Set, site: set})
	}
	return t, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var errorType = reflect.TypeFor[error]()

func paramArgs(mt reflect.Type) dispatch.Args {
	params := make([]reflect.Type, mt.NumIn())
	for i := range params {
		params[i] = mt.In(i)
	}
	return dispatch.Typed(params...)
}

func valueResults(mt reflect.Type) int {
	n := mt.NumOut()
	if n > 0 && mt.Out(n-1) == errorType {
		n--
	}
	return n
}

// hasPrefix reports whether name is prefix followed by an exported name.
func hasPrefix(name, prefix string) bool {
	if !strings.HasPrefix(name, prefix) || len(name) == len(prefix) {
		return false
	}
	c := name[len(prefix)]
	return c >= 'A' && c <= 'Z'
}

func sortedNames(m map[string]reflect.Type) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "nil"
	}
	return t.String()
}
