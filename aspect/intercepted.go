package aspect

import (
	"reflect"

	"github.com/chazu/ducktape/dispatch"
)

// Intercepted is a target wrapped by a factory. Every member access runs
// through the woven aspects before reaching the target.
type Intercepted struct {
	target any
	woven  *woven
}

var (
	_               dispatch.Object = (*Intercepted)(nil)
	interceptedType                 = reflect.TypeFor[*Intercepted]()
)

// Target returns the wrapped value.
func (in *Intercepted) Target() any { return in.target }

func (in *Intercepted) GetMember(name string) (any, error) {
	inv := &Invocation{Target: in.target, Kind: dispatch.Get, Member: name}
	return in.woven.run(inv, func() (any, error) {
		return in.woven.cache.Get(in.target, name)
	})
}

func (in *Intercepted) SetMember(name string, value any) error {
	inv := &Invocation{Target: in.target, Kind: dispatch.Set, Member: name, Args: []any{value}}
	_, err := in.woven.run(inv, func() (any, error) {
		return nil, in.woven.cache.Set(in.target, name, inv.Args[0])
	})
	return err
}

// InvokeMember calls a method with or without results; a method without
// results yields nil.
func (in *Intercepted) InvokeMember(name string, args []any) (any, error) {
	inv := &Invocation{Target: in.target, Kind: dispatch.InvokeMember, Member: name, Args: args}
	return in.woven.run(inv, func() (any, error) {
		o := in.woven.cache.InvokeMemberUnknown(in.target, name, inv.Args...)
		return o.Value, o.Err
	})
}
