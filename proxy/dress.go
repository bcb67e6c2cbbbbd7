package proxy

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/chazu/ducktape/dispatch"
)

// Dress wraps target in an adapter presenting it as every interface in
// ifaces. Interfaces declaring one method name with different signatures
// are rejected, as no Go type can implement them together.
func (p *Projector) Dress(target any, ifaces ...reflect.Type) (Proxy, error) {
	if target == nil {
		return nil, &dispatch.Error{Code: dispatch.ErrBuildFailure, Err: fmt.Errorf("cannot dress nil")}
	}
	t, err := p.BuildOrGetType(reflect.TypeOf(target), ifaces...)
	if err != nil {
		return nil, err
	}
	if names := t.Overloaded(); len(names) > 0 {
		return nil, buildFailure(t.desc, "no adapter can implement %s declared with different signatures", strings.Join(names, ", "))
	}
	adapter, err := p.adapterFor(t)
	if err != nil {
		return nil, err
	}
	px := reflect.New(adapter.Elem()).Interface().(Proxy)
	if err := px.InitProxy(target, t, p); err != nil {
		return nil, err
	}
	return px, nil
}

// DressAs presents target as T. A target already implementing T is
// returned as is.
func DressAs[T any](p *Projector, target any) (T, error) {
	var zero T
	if v, ok := target.(T); ok {
		return v, nil
	}
	iface := reflect.TypeFor[T]()
	px, err := p.Dress(target, iface)
	if err != nil {
		return zero, err
	}
	v, ok := px.(T)
	if !ok {
		return zero, &dispatch.Error{Code: dispatch.ErrBuildFailure, Type: reflect.TypeOf(px), Err: fmt.Errorf("adapter does not implement %s", iface)}
	}
	return v, nil
}

// MustDressAs is like DressAs but panics on error.
func MustDressAs[T any](p *Projector, target any) T {
	v, err := DressAs[T](p, target)
	if err != nil {
		panic(err)
	}
	return v
}
