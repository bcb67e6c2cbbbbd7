package proxy

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/chazu/ducktape/dispatch"
)

// Proxy is the initialization contract every adapter satisfies by
// embedding Base.
type Proxy interface {
	InitProxy(target any, t *Type, p *Projector) error
	Target() any
	ProxyType() *Type
}

// Base is the state of one proxy instance: the target it forwards to and
// the type describing how. The target does not know about the proxy.
type Base struct {
	mu     sync.Mutex
	target any
	typ    *Type
	proj   *Projector
	ready  atomic.Bool // set once the fields above are assigned
}

// InitProxy attaches the proxy to its target. It may be called once.
func (b *Base) InitProxy(target any, t *Type, p *Projector) error {
	if target == nil || t == nil || p == nil {
		return dispatch.Violation("InitProxy needs a target, a type and a projector")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ready.Load() {
		return dispatch.Violation("proxy for %s is already initialized", typeName(reflect.TypeOf(b.target)))
	}
	b.target, b.typ, b.proj = target, t, p
	b.ready.Store(true)
	return nil
}

// Target returns the wrapped value.
func (b *Base) Target() any { return b.target }

// ProxyType returns the proxy type the instance was created for.
func (b *Base) ProxyType() *Type { return b.typ }

// Forward performs method on the target with args.
func (b *Base) Forward(method string, args ...any) Result {
	if !b.ready.Load() {
		return Result{err: dispatch.Violation("%s called on an uninitialized proxy", method)}
	}
	f, err := b.typ.forward(method, args)
	if err != nil {
		return Result{err: err, proj: b.proj}
	}
	v, err := f.call(b.target, args)
	return Result{v: v, err: err, proj: b.proj}
}

// Target returns the value behind v when v is a proxy, and v otherwise.
func Target(v any) any {
	if p, ok := v.(Proxy); ok {
		return p.Target()
	}
	return v
}

// Result is the outcome of a forwarded call, converted to the method's
// declared results by Value, ValueErr, Void, VoidErr and Nth.
type Result struct {
	v    any
	err  error
	proj *Projector
}

// Err returns the failure, if any.
func (r Result) Err() error { return r.err }

// Raw returns the unconverted value.
func (r Result) Raw() any { return r.v }

// Must panics when the call failed. Methods without an error result use it.
func (r Result) Must() {
	if r.err != nil {
		panic(r.err)
	}
}

// Value converts the result for a method returning T alone. A failure
// panics, there being no error result to carry it.
func Value[T any](r Result) T {
	r.Must()
	v, err := convert[T](r.proj, r.v)
	if err != nil {
		panic(err)
	}
	return v
}

// ValueErr converts the result for a method returning (T, error).
func ValueErr[T any](r Result) (T, error) {
	if r.err != nil {
		var zero T
		return zero, r.err
	}
	return convert[T](r.proj, r.v)
}

// Void completes a method without results.
func Void(r Result) {
	r.Must()
}

// VoidErr completes a method returning only an error.
func VoidErr(r Result) error {
	return r.err
}

// Nth converts result i of a method with several value results. Callers
// with an error result check Err first.
func Nth[T any](r Result, i int) T {
	r.Must()
	vals, ok := r.v.([]any)
	if !ok {
		if i == 0 {
			vals = []any{r.v}
		} else {
			panic(fmt.Errorf("result %d requested from a single value", i))
		}
	}
	if i >= len(vals) {
		panic(fmt.Errorf("result %d requested from %d values", i, len(vals)))
	}
	v, err := convert[T](r.proj, vals[i])
	if err != nil {
		panic(err)
	}
	return v
}

// convert turns a dynamic result into T: directly, by dressing it when T
// is an interface it does not implement, or by value coercion.
func convert[T any](p *Projector, v any) (T, error) {
	var zero T
	if out, ok := v.(T); ok {
		return out, nil
	}
	t := reflect.TypeFor[T]()
	if v == nil {
		return zero, nil
	}
	if t.Kind() == reflect.Interface && p != nil {
		return DressAs[T](p, v)
	}
	rv, err := dispatch.Coerce(v, t)
	if err != nil {
		return zero, fmt.Errorf("result: %w", err)
	}
	return rv.Interface().(T), nil
}
