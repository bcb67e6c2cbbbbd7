package proxy

import (
	"fmt"
	"reflect"

	"github.com/chazu/ducktape/dispatch"
)

// Informal exposes a fixed set of typed properties of a target without a
// Go interface declaring them. It is a dispatch.Object, so informal
// projections can themselves be dispatched on and dressed.
type Informal struct {
	target any
	typ    *Type
}

var _ dispatch.Object = (*Informal)(nil)

// SelectProperties projects target onto props.
func (p *Projector) SelectProperties(target any, props map[string]reflect.Type) (*Informal, error) {
	if target == nil {
		return nil, &dispatch.Error{Code: dispatch.ErrBuildFailure, Err: fmt.Errorf("cannot project nil")}
	}
	t, err := p.BuildOrGetInformal(reflect.TypeOf(target), props)
	if err != nil {
		return nil, err
	}
	return &Informal{target: target, typ: t}, nil
}

// Target returns the projected value.
func (in *Informal) Target() any { return in.target }

// Type returns the informal proxy type.
func (in *Informal) Type() *Type { return in.typ }

// Properties returns the projected names and types.
func (in *Informal) Properties() map[string]reflect.Type {
	props := make(map[string]reflect.Type, len(in.typ.desc.Informal))
	for name, t := range in.typ.desc.Informal {
		props[name] = t
	}
	return props
}

// GetMember reads a projected property, converted to its declared type.
func (in *Informal) GetMember(name string) (any, error) {
	f := in.accessor(name, name, dispatch.Get)
	if f == nil {
		return nil, dispatch.NoSuchMember(name, reflect.TypeOf(in.target))
	}
	v, err := f.call(in.target, nil)
	if err != nil {
		return nil, err
	}
	rv, err := dispatch.Coerce(v, in.typ.desc.Informal[name])
	if err != nil {
		return nil, fmt.Errorf("property %s: %w", name, err)
	}
	return rv.Interface(), nil
}

// SetMember writes a projected property after converting value to its
// declared type.
func (in *Informal) SetMember(name string, value any) error {
	f := in.accessor("Set"+name, name, dispatch.Set)
	if f == nil {
		return dispatch.NoSuchMember(name, reflect.TypeOf(in.target))
	}
	rv, err := dispatch.Coerce(value, in.typ.desc.Informal[name])
	if err != nil {
		return fmt.Errorf("property %s: %w", name, err)
	}
	_, err = f.call(in.target, []any{rv.Interface()})
	return err
}

// InvokeMember fails: informal projections carry properties only.
func (in *Informal) InvokeMember(name string, _ []any) (any, error) {
	return nil, dispatch.NoSuchMember(name, reflect.TypeOf(in.target))
}

func (in *Informal) accessor(method, member string, kind dispatch.Kind) *Forward {
	for _, f := range in.typ.Lookup(method) {
		if f.Kind == kind && f.Member == member {
			return f
		}
	}
	return nil
}
