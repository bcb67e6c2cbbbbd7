package builder

import (
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/chazu/ducktape/dispatch"
	"github.com/chazu/ducktape/expando"
	"github.com/chazu/ducktape/proxy"
)

// ObjectBuilder collects members for a new expando.
type ObjectBuilder struct {
	e *expando.Expando
}

// Object starts building an expando.
func Object() *ObjectBuilder {
	return &ObjectBuilder{e: expando.New()}
}

// Set adds or replaces a member. Funcs become methods.
func (b *ObjectBuilder) Set(name string, value any) *ObjectBuilder {
	b.e.Set(name, value)
	return b
}

// SetAll adds every entry of m in sorted key order.
func (b *ObjectBuilder) SetAll(m map[string]any) *ObjectBuilder {
	for _, k := range slices.Sorted(maps.Keys(m)) {
		b.e.Set(k, m[k])
	}
	return b
}

// Build returns the expando. The builder must not be used afterwards.
func (b *ObjectBuilder) Build() *expando.Expando {
	e := b.e
	b.e = nil
	return e
}

// List builds a dynamic list.
func List(items ...any) *expando.List {
	return expando.NewList(items...)
}

// Prototype builds an expando from member projections. Properties start
// at their Value, or the zero value of their Type; methods need an Impl.
func Prototype(members ...proxy.Member) (*expando.Expando, error) {
	ps, err := proxy.NewProjections(members...)
	if err != nil {
		return nil, err
	}
	e := expando.New()
	for _, m := range ps.Members() {
		switch m.Kind {
		case proxy.MethodMember:
			if m.Impl == nil {
				return nil, fmt.Errorf("method %s has no implementation", m.Name)
			}
			if len(ps.Named(m.Name)) > 1 {
				return nil, &dispatch.Error{Code: dispatch.ErrAmbiguousMember, Member: m.Name, Err: fmt.Errorf("an expando holds one value per name")}
			}
			e.Set(m.Name, m.Impl)
		default:
			v := m.Value
			if v == nil && m.Type != nil {
				v = reflect.Zero(m.Type).Interface()
			}
			e.Set(m.Name, v)
		}
	}
	return e, nil
}

// As builds a prototype and presents it as I.
func As[I any](p *proxy.Projector, members ...proxy.Member) (I, error) {
	e, err := Prototype(members...)
	if err != nil {
		var zero I
		return zero, err
	}
	return proxy.DressAs[I](p, e)
}

// Activate creates a value of type t through the Constructor kind.
func Activate(c *dispatch.Cache, t reflect.Type, args ...any) (any, error) {
	return c.Construct(t, args...)
}

// ActivateNamed creates a value of type t; names label the trailing args.
func ActivateNamed(c *dispatch.Cache, t reflect.Type, names []string, args ...any) (any, error) {
	return c.ConstructNamed(t, names, args...)
}

// ActivateAs creates a value of type T. Struct types come back as *T, so
// T is usually a pointer type.
func ActivateAs[T any](c *dispatch.Cache, args ...any) (T, error) {
	var zero T
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct {
		t = t.Elem()
	}
	v, err := c.Construct(t, args...)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("activate: got %T, want %s", v, reflect.TypeFor[T]())
	}
	return out, nil
}
