package dispatch

import (
	"hash/fnv"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// ArgMode distinguishes count-only signatures from exact type-sequence
// signatures. Signatures without arguments have no mode.
type ArgMode uint8

const (
	ArgsNone ArgMode = iota
	ArgsArity
	ArgsTyped
)

// Args describes the argument shape of a signature.
type Args struct {
	mode  ArgMode
	count int
	types []reflect.Type
	names []string
}

// Arity returns a count-only argument shape.
func Arity(n int) Args {
	if n <= 0 {
		return Args{}
	}
	return Args{mode: ArgsArity, count: n}
}

// Typed returns an exact type-sequence argument shape. A nil entry stands
// for an untyped nil argument.
func Typed(types ...reflect.Type) Args {
	if len(types) == 0 {
		return Args{}
	}
	return Args{mode: ArgsTyped, count: len(types), types: slices.Clone(types)}
}

// TypesOf returns the typed shape of the dynamic types of args.
func TypesOf(args []any) Args {
	types := make([]reflect.Type, len(args))
	for i, a := range args {
		types[i] = reflect.TypeOf(a)
	}
	return Typed(types...)
}

// WithNames attaches argument names to the trailing arguments. Nil and
// empty name lists are the same: positional only.
func (a Args) WithNames(names ...string) Args {
	if len(names) == 0 {
		a.names = nil
		return a
	}
	a.names = slices.Clone(names)
	return a
}

func (a Args) Mode() ArgMode { return a.mode }
func (a Args) Len() int { return a.count }
func (a Args) Names() []string { return a.names }
func (a Args) Types() []reflect.Type { return a.types }

// Named reports whether any argument is passed by name.
func (a Args) Named() bool { return len(a.names) > 0 }

func (a Args) equal(b Args) bool {
	if a.mode != b.mode || a.count != b.count || len(a.names) != len(b.names) {
		return false
	}
	for i := range a.types {
		if a.types[i] != b.types[i] {
			return false
		}
	}
	for i := range a.names {
		if a.names[i] != b.names[i] {
			return false
		}
	}
	return true
}

// Signature identifies one potential member operation: what is done, to
// which member, from which declared context type, with which arguments.
// Signatures are values and never change after construction.
type Signature struct {
	kind     Kind
	name     string
	context  reflect.Type
	args     Args
	static   bool
	event    bool
	convType reflect.Type
	explicit bool
	hash     uint64
}

// SignatureOption adjusts optional signature attributes.
type SignatureOption func(*Signature)

// Static marks a signature as addressing a member through a type rather
// than an instance.
func Static() SignatureOption {
	return func(s *Signature) { s.static = true }
}

// EventMember marks a signature as addressing an event.
func EventMember() SignatureOption {
	return func(s *Signature) { s.event = true }
}

// ConvertTo sets the target type and explicitness of a Convert signature.
func ConvertTo(t reflect.Type, explicit bool) SignatureOption {
	return func(s *Signature) {
		s.convType = t
		s.explicit = explicit
	}
}

// NewSignature builds a signature. It is a pure function of its inputs.
func NewSignature(kind Kind, name string, context reflect.Type, args Args, opts ...SignatureOption) Signature {
	s := Signature{
		kind:    kind,
		name:    name,
		context: context,
		args:    args,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if kind == Constructor {
		s.static = true
	}
	s.hash = s.computeHash()
	return s
}

func (s Signature) Kind() Kind { return s.kind }
func (s Signature) Name() string { return s.name }
func (s Signature) Context() reflect.Type { return s.context }
func (s Signature) Args() Args { return s.args }
func (s Signature) IsStatic() bool { return s.static }
func (s Signature) IsEvent() bool { return s.event }
func (s Signature) ConvertType() reflect.Type { return s.convType }
func (s Signature) Explicit() bool { return s.explicit }
func (s Signature) Hash() uint64 { return s.hash }

// Equal reports whether two signatures identify the same operation.
func (s Signature) Equal(o Signature) bool {
	return s.hash == o.hash &&
		s.kind == o.kind &&
		s.name == o.name &&
		s.context == o.context &&
		s.static == o.static &&
		s.event == o.event &&
		s.convType == o.convType &&
		s.explicit == o.explicit &&
		s.args.equal(o.args)
}

// family identifies signatures that must agree on their argument mode.
type family struct {
	kind    Kind
	name    string
	context reflect.Type
	static  bool
}

func (s Signature) family() family {
	return family{kind: s.kind, name: s.name, context: s.context, static: s.static}
}

func (s Signature) computeHash() uint64 {
	h := fnv.New64a()
	h.Write([]byte{byte(s.kind), byte(s.args.mode), flag(s.static), flag(s.event), flag(s.explicit)})
	h.Write([]byte(s.name))
	h.Write([]byte{0})
	h.Write([]byte(typeKey(s.context)))
	h.Write([]byte{0})
	h.Write([]byte(typeKey(s.convType)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(s.args.count)))
	for _, t := range s.args.types {
		h.Write([]byte{0})
		h.Write([]byte(typeKey(t)))
	}
	for _, n := range s.args.names {
		h.Write([]byte{1})
		h.Write([]byte(n))
	}
	return h.Sum64()
}

func (s Signature) String() string {
	var b strings.Builder
	b.WriteString(s.kind.String())
	if s.static {
		b.WriteString(" static")
	}
	if s.event {
		b.WriteString(" event")
	}
	if s.name != "" {
		b.WriteString(" ")
		b.WriteString(s.name)
	}
	b.WriteString("(")
	switch s.args.mode {
	case ArgsArity:
		b.WriteString("#")
		b.WriteString(strconv.Itoa(s.args.count))
	case ArgsTyped:
		for i, t := range s.args.types {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(typeName(t))
		}
	}
	if len(s.args.names) > 0 {
		b.WriteString("; ")
		b.WriteString(strings.Join(s.args.names, ", "))
	}
	b.WriteString(")")
	if s.convType != nil {
		if s.explicit {
			b.WriteString(" explicit")
		}
		b.WriteString(" -> ")
		b.WriteString(typeName(s.convType))
	}
	if s.context != nil {
		b.WriteString(" in ")
		b.WriteString(typeName(s.context))
	}
	return b.String()
}

func flag(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func typeKey(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.PkgPath() + "\x00" + t.String()
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "nil"
	}
	return t.String()
}
