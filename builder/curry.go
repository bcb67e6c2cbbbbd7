package builder

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/chazu/ducktape/dispatch"
)

// Curried accumulates arguments for a call until its arity is reached.
// Applying arguments returns a new Curried; the receiver is not changed.
type Curried struct {
	cache  *dispatch.Cache
	target any
	member string // empty for a direct call of target
	arity  int
	args   []any
}

var _ dispatch.Callable = (*Curried)(nil)

// Curry partially applies fn. A non-positive arity is taken from fn's
// parameter count, which requires a non-variadic func.
func Curry(c *dispatch.Cache, fn any, arity int) (*Curried, error) {
	if arity <= 0 {
		ft := reflect.TypeOf(fn)
		if ft == nil || ft.Kind() != reflect.Func || ft.IsVariadic() {
			return nil, fmt.Errorf("curry: arity of %T must be given", fn)
		}
		arity = ft.NumIn()
	}
	return &Curried{cache: c, target: fn, arity: arity}, nil
}

// CurryMember partially applies the method name of target.
func CurryMember(c *dispatch.Cache, target any, name string, arity int) (*Curried, error) {
	if name == "" || arity <= 0 {
		return nil, fmt.Errorf("curry: member and positive arity required")
	}
	return &Curried{cache: c, target: target, member: name, arity: arity}, nil
}

// Arity returns the total number of arguments.
func (c *Curried) Arity() int { return c.arity }

// Pending returns how many arguments are still missing.
func (c *Curried) Pending() int { return c.arity - len(c.args) }

// Args returns the arguments collected so far.
func (c *Curried) Args() []any { return slices.Clone(c.args) }

// Apply adds args. While arguments are missing it returns a *Curried;
// once the arity is reached it performs the call and returns its value,
// nil for a call without results.
func (c *Curried) Apply(args ...any) (any, error) {
	total := len(c.args) + len(args)
	switch {
	case total > c.arity:
		return nil, fmt.Errorf("curry: %d arguments for arity %d", total, c.arity)
	case total < c.arity:
		next := *c
		next.args = append(slices.Clone(c.args), args...)
		return &next, nil
	}

	all := append(slices.Clone(c.args), args...)
	var o dispatch.Outcome
	if c.member == "" {
		o = c.cache.InvokeUnknown(c.target, all...)
	} else {
		o = c.cache.InvokeMemberUnknown(c.target, c.member, all...)
	}
	return o.Value, o.Err
}

// Call implements dispatch.Callable, so curried functions can be invoked
// dynamically.
func (c *Curried) Call(args []any) (any, error) {
	return c.Apply(args...)
}
