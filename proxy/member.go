package proxy

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/chazu/ducktape/dispatch"
)

// MemberKind distinguishes properties from methods in a projection.
type MemberKind uint8

const (
	PropertyMember MemberKind = iota + 1
	MethodMember
)

func (k MemberKind) String() string {
	switch k {
	case PropertyMember:
		return "property"
	case MethodMember:
		return "method"
	}
	return "member"
}

// Member is a declarative description of one property or method. Members
// describe informal interfaces, prototypes and aspect pointcuts.
type Member struct {
	Name     string
	Kind     MemberKind
	Type     reflect.Type   // property type, or first method result; nil for none
	Args     []reflect.Type // method parameter types
	ArgNames []string

	Value any // initial property value
	Impl  any // method implementation, a func
}

// Property describes a property of type t.
func Property(name string, t reflect.Type) Member {
	return Member{Name: name, Kind: PropertyMember, Type: t}
}

// PropertyOf describes a property of type T.
func PropertyOf[T any](name string) Member {
	return Property(name, reflect.TypeFor[T]())
}

// Field describes a property with an initial value. Its type is the value's
// dynamic type.
func Field(name string, value any) Member {
	return Member{Name: name, Kind: PropertyMember, Type: reflect.TypeOf(value), Value: value}
}

// Method describes a method implemented by fn. Parameter and result types
// are taken from the func's type.
func Method(name string, fn any) Member {
	ft := reflect.TypeOf(fn)
	m := Member{Name: name, Kind: MethodMember, Impl: fn}
	if ft == nil || ft.Kind() != reflect.Func {
		return m
	}
	for i := 0; i < ft.NumIn(); i++ {
		m.Args = append(m.Args, ft.In(i))
	}
	if ft.NumOut() > 0 {
		m.Type = ft.Out(0)
	}
	return m
}

// MethodSig describes a method by signature alone, for pointcuts.
func MethodSig(name string, args ...reflect.Type) Member {
	return Member{Name: name, Kind: MethodMember, Args: slices.Clone(args)}
}

// Key identifies the member within a projection set: name, kind and
// argument types.
func (m Member) Key() string {
	key := m.Kind.String() + " " + m.Name + "("
	for i, a := range m.Args {
		if i > 0 {
			key += ", "
		}
		if a != nil {
			key += a.PkgPath() + "." + a.String()
		}
	}
	return key + ")"
}

func (m Member) String() string {
	if m.Kind == PropertyMember && m.Type != nil {
		return m.Name + " " + m.Type.String()
	}
	return m.Key()
}

// Projections is an ordered set of members with unique keys.
type Projections struct {
	members []Member
	index   map[string]int
}

// NewProjections builds a set from members. A repeated key is an error.
func NewProjections(members ...Member) (*Projections, error) {
	p := &Projections{index: make(map[string]int)}
	for _, m := range members {
		if err := p.Add(m); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Add inserts m. Members are immutable once added.
func (p *Projections) Add(m Member) error {
	if m.Name == "" {
		return fmt.Errorf("member without a name")
	}
	if m.Kind == MethodMember && m.Impl != nil {
		if ft := reflect.TypeOf(m.Impl); ft.Kind() != reflect.Func {
			return fmt.Errorf("method %s: implementation is %s, not a func", m.Name, ft)
		}
	}
	key := m.Key()
	if _, dup := p.index[key]; dup {
		return &dispatch.Error{Code: dispatch.ErrAmbiguousMember, Member: m.Name, Err: fmt.Errorf("duplicate %s", key)}
	}
	m.Args = slices.Clone(m.Args)
	m.ArgNames = slices.Clone(m.ArgNames)
	p.index[key] = len(p.members)
	p.members = append(p.members, m)
	return nil
}

// Members returns the members in insertion order.
func (p *Projections) Members() []Member {
	return slices.Clone(p.members)
}

// Named returns every member called name.
func (p *Projections) Named(name string) []Member {
	var out []Member
	for _, m := range p.members {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}

// Len returns the number of members.
func (p *Projections) Len() int {
	return len(p.members)
}

// Shape returns the name to type map of the properties, the form accepted
// by informal interfaces.
func (p *Projections) Shape() map[string]reflect.Type {
	shape := make(map[string]reflect.Type)
	for _, m := range p.members {
		if m.Kind == PropertyMember {
			shape[m.Name] = m.Type
		}
	}
	return shape
}
