package dispatch

import (
	"reflect"
)

// One-shot operations. Each resolves (or reuses) the call site for a
// count-only signature with no declared context, so repeated calls with
// the same member and argument count share one dispatcher.

func (c *Cache) site(kind Kind, name string, n int, opts ...SignatureOption) (*CallSite, error) {
	return c.Resolve(NewSignature(kind, name, nil, Arity(n), opts...))
}

func (c *Cache) do(kind Kind, name string, target any, args []any, opts ...SignatureOption) (any, error) {
	site, err := c.site(kind, name, len(args), opts...)
	if err != nil {
		return nil, err
	}
	return site.Call(target, args...)
}

func (c *Cache) try(kind Kind, name string, target any, args []any, opts ...SignatureOption) Outcome {
	site, err := c.site(kind, name, len(args), opts...)
	if err != nil {
		return Outcome{Err: err}
	}
	return site.Try(target, args...)
}

// Get reads member name of target.
func (c *Cache) Get(target any, name string) (any, error) {
	return c.do(Get, name, target, nil)
}

// TryGet reads member name of target, reporting failure as false.
func (c *Cache) TryGet(target any, name string) (any, bool) {
	o := c.try(Get, name, target, nil)
	return o.Value, o.OK()
}

// Set assigns member name of target.
func (c *Cache) Set(target any, name string, value any) error {
	_, err := c.do(Set, name, target, []any{value})
	return err
}

// TrySet assigns member name of target, reporting failure as false.
func (c *Cache) TrySet(target any, name string, value any) bool {
	return c.try(Set, name, target, []any{value}).OK()
}

// GetIndex reads target[keys...].
func (c *Cache) GetIndex(target any, keys ...any) (any, error) {
	return c.do(GetIndex, "", target, keys)
}

// SetIndex assigns target[keys...] = value.
func (c *Cache) SetIndex(target any, value any, keys ...any) error {
	args := make([]any, 0, len(keys)+1)
	args = append(args, keys...)
	args = append(args, value)
	_, err := c.do(SetIndex, "", target, args)
	return err
}

// InvokeMember calls method name of target and returns its value.
func (c *Cache) InvokeMember(target any, name string, args ...any) (any, error) {
	return c.do(InvokeMember, name, target, args)
}

// InvokeMemberAction calls method name of target, discarding its results.
func (c *Cache) InvokeMemberAction(target any, name string, args ...any) error {
	_, err := c.do(InvokeMemberAction, name, target, args)
	return err
}

// InvokeMemberUnknown calls method name of target as a function if it has
// a result, otherwise as an action.
func (c *Cache) InvokeMemberUnknown(target any, name string, args ...any) Outcome {
	return c.try(InvokeMemberUnknown, name, target, args)
}

// TryInvokeMember is InvokeMemberUnknown reporting only value and success.
func (c *Cache) TryInvokeMember(target any, name string, args ...any) (any, bool) {
	o := c.InvokeMemberUnknown(target, name, args...)
	return o.Value, o.OK()
}

// Invoke calls fn, which must be a func or Callable, and returns its value.
func (c *Cache) Invoke(fn any, args ...any) (any, error) {
	return c.do(Invoke, "", fn, args)
}

// InvokeAction calls fn, discarding its results.
func (c *Cache) InvokeAction(fn any, args ...any) error {
	_, err := c.do(InvokeAction, "", fn, args)
	return err
}

// InvokeUnknown calls fn as a function if it has a result, otherwise as an
// action.
func (c *Cache) InvokeUnknown(fn any, args ...any) Outcome {
	return c.try(InvokeUnknown, "", fn, args)
}

// TryInvoke is InvokeUnknown reporting only value and success.
func (c *Cache) TryInvoke(fn any, args ...any) (any, bool) {
	o := c.InvokeUnknown(fn, args...)
	return o.Value, o.OK()
}

// Construct creates a value of type t from positional arguments.
func (c *Cache) Construct(t reflect.Type, args ...any) (any, error) {
	return c.do(Constructor, "", t, args)
}

// ConstructNamed creates a value of type t. Names label the trailing
// arguments.
func (c *Cache) ConstructNamed(t reflect.Type, names []string, args ...any) (any, error) {
	site, err := c.Resolve(NewSignature(Constructor, "", nil, Arity(len(args)).WithNames(names...)))
	if err != nil {
		return nil, err
	}
	return site.Call(t, args...)
}

// InvokeStatic calls the method expression t.name. The receiver is the
// first argument.
func (c *Cache) InvokeStatic(t reflect.Type, name string, args ...any) (any, error) {
	return c.do(InvokeMemberUnknown, name, t, args, Static())
}

// AddAssign performs target.name += value: adds an event handler when name
// is an event, otherwise reads, adds and writes back.
func (c *Cache) AddAssign(target any, name string, value any) error {
	_, err := c.do(AddAssign, name, target, []any{value})
	return err
}

// SubtractAssign performs target.name -= value.
func (c *Cache) SubtractAssign(target any, name string, value any) error {
	_, err := c.do(SubtractAssign, name, target, []any{value})
	return err
}

// IsEvent reports whether member name of target is an event.
func (c *Cache) IsEvent(target any, name string) bool {
	v, err := c.do(IsEvent, name, target, nil)
	if err != nil {
		return false
	}
	ok, _ := v.(bool)
	return ok
}

// Convert converts v to type t. Implicit conversions only widen; explicit
// conversions follow Go conversion rules. Values implementing Converter
// are asked last.
func (c *Cache) Convert(v any, t reflect.Type, explicit bool) (any, error) {
	return c.do(Convert, "", v, nil, ConvertTo(t, explicit))
}
