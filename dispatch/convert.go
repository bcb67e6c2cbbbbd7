package dispatch

import (
	"fmt"
	"math"
	"reflect"
)

// ---------------------------------------------------------------------------
// Value coercion: dynamic arguments to declared Go types
// ---------------------------------------------------------------------------

// coerce converts v to a reflect.Value assignable to t. Numbers convert
// between kinds when the value survives the trip unchanged.
func coerce(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		if nillable(t) {
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("cannot use nil as %s", t)
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if isNumber(rv.Kind()) && isNumber(t.Kind()) {
		if out, ok := convertNumber(rv, t); ok {
			return out, nil
		}
		return reflect.Value{}, fmt.Errorf("%v does not fit in %s", v, t)
	}
	if rv.Kind() == t.Kind() && rv.Type().ConvertibleTo(t) {
		// Named types sharing an underlying type: string to a named string,
		// []any to a named slice of any, and so on.
		return rv.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", v, t)
}

// Coerce converts v to a value of type t using the argument conversion
// rules: assignability, value-preserving numeric conversion and named
// types sharing an underlying type.
func Coerce(v any, t reflect.Type) (reflect.Value, error) {
	return coerce(v, t)
}

// callWith coerces args to the parameters of fn that follow prefix and
// calls fn. A final argument that already is the variadic slice is passed
// as the slice.
func callWith(fn reflect.Value, prefix []reflect.Value, args []any) ([]reflect.Value, error) {
	in, spread, err := coerceArgsFrom(fn.Type(), len(prefix), args)
	if err != nil {
		return nil, err
	}
	full := make([]reflect.Value, 0, len(prefix)+len(in))
	full = append(full, prefix...)
	full = append(full, in...)
	if spread {
		return fn.CallSlice(full), nil
	}
	return fn.Call(full), nil
}

// coerceArgsFrom converts args to the parameter types of fn after its first
// skip parameters, such as the receiver of a method expression.
func coerceArgsFrom(fn reflect.Type, skip int, args []any) ([]reflect.Value, bool, error) {
	numIn := fn.NumIn() - skip
	if !arityMatches(fn, skip, len(args)) {
		if fn.IsVariadic() {
			return nil, false, fmt.Errorf("expected at least %d arguments, got %d", numIn-1, len(args))
		}
		return nil, false, fmt.Errorf("expected %d arguments, got %d", numIn, len(args))
	}

	spread := spreads(fn, skip, args)
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		var pt reflect.Type
		if fn.IsVariadic() && i >= numIn-1 && !spread {
			pt = fn.In(fn.NumIn() - 1).Elem()
		} else {
			pt = fn.In(i + skip)
		}
		v, err := coerce(a, pt)
		if err != nil {
			return nil, false, fmt.Errorf("argument %d: %w", i, err)
		}
		in[i] = v
	}
	return in, spread, nil
}

// spreads reports whether the last of args is the variadic slice of fn
// rather than its first element.
func spreads(fn reflect.Type, skip int, args []any) bool {
	if !fn.IsVariadic() || len(args) != fn.NumIn()-skip {
		return false
	}
	last := args[len(args)-1]
	return last != nil && reflect.TypeOf(last).AssignableTo(fn.In(fn.NumIn()-1))
}

func arityMatches(fn reflect.Type, skip, n int) bool {
	numIn := fn.NumIn() - skip
	if fn.IsVariadic() {
		return n >= numIn-1
	}
	return n == numIn
}

// typedArgsFit reports whether arguments of the given static types could be
// passed to fn. A nil entry is an untyped nil.
func typedArgsFit(fn reflect.Type, skip int, types []reflect.Type) bool {
	if !arityMatches(fn, skip, len(types)) {
		return false
	}
	numIn := fn.NumIn() - skip
	for i, at := range types {
		if fn.IsVariadic() && i == numIn-1 && len(types) == numIn && at != nil && at.AssignableTo(fn.In(fn.NumIn()-1)) {
			continue // the variadic slice itself
		}
		var pt reflect.Type
		if fn.IsVariadic() && i >= numIn-1 {
			pt = fn.In(fn.NumIn() - 1).Elem()
		} else {
			pt = fn.In(i + skip)
		}
		if !argTypeFits(at, pt) {
			return false
		}
	}
	return true
}

func argTypeFits(at, pt reflect.Type) bool {
	switch {
	case at == nil:
		return nillable(pt)
	case at.AssignableTo(pt):
		return true
	case isNumber(at.Kind()) && isNumber(pt.Kind()):
		// Value-checked at call time.
		return true
	case pt.Kind() == reflect.Interface:
		// Dynamic values of interface static type are checked at call time.
		return at.Kind() == reflect.Interface
	case at.Kind() == reflect.Interface:
		return true
	}
	return at.Kind() == pt.Kind() && at.ConvertibleTo(pt)
}

// collect turns call results into a single value. A trailing non-nil error
// is returned as the error. Several non-error results become a []any.
func collect(out []reflect.Value) (any, error) {
	n := len(out)
	if n > 0 && out[n-1].Type() == errorType {
		if err, _ := out[n-1].Interface().(error); err != nil {
			return nil, err
		}
		out = out[:n-1]
	}
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0].Interface(), nil
	}
	vals := make([]any, len(out))
	for i, o := range out {
		vals[i] = o.Interface()
	}
	return vals, nil
}

// valueResults counts the results of fn that are not a trailing error.
func valueResults(fn reflect.Type) int {
	n := fn.NumOut()
	if n > 0 && fn.Out(n-1) == errorType {
		n--
	}
	return n
}

// ---------------------------------------------------------------------------
// Conversion rules for the Convert kind
// ---------------------------------------------------------------------------

// implicitlyConvertible reports whether values of from convert to to
// without loss and without an explicit request.
func implicitlyConvertible(from, to reflect.Type) bool {
	if from.AssignableTo(to) {
		return true
	}
	fk, tk := from.Kind(), to.Kind()
	switch {
	case isSigned(fk) && isSigned(tk):
		return from.Size() <= to.Size()
	case isUnsigned(fk) && isUnsigned(tk):
		return from.Size() <= to.Size()
	case isUnsigned(fk) && isSigned(tk):
		return from.Size() < to.Size()
	case (isSigned(fk) || isUnsigned(fk)) && isFloat(tk):
		// float64 holds every int up to 2^53; allow widths that always fit.
		return from.Size() < to.Size()
	case isFloat(fk) && isFloat(tk):
		return from.Size() <= to.Size()
	}
	return false
}

func convertValue(v any, to reflect.Type, explicit bool) (any, error) {
	if v == nil {
		if nillable(to) {
			return reflect.Zero(to).Interface(), nil
		}
		return nil, fmt.Errorf("cannot convert nil to %s", to)
	}
	rv := reflect.ValueOf(v)
	from := rv.Type()
	if implicitlyConvertible(from, to) {
		if from.AssignableTo(to) {
			out := reflect.New(to).Elem()
			out.Set(rv)
			return out.Interface(), nil
		}
		return rv.Convert(to).Interface(), nil
	}
	if explicit && explicitlyConvertible(from, to) {
		return rv.Convert(to).Interface(), nil
	}
	if c, ok := v.(Converter); ok {
		return c.ConvertTo(to, explicit)
	}
	return nil, fmt.Errorf("no %s conversion from %s to %s", conversionWord(explicit), from, to)
}

// explicitlyConvertible is Go conversion minus the integer to string
// conversion, which yields a rune rather than a number.
func explicitlyConvertible(from, to reflect.Type) bool {
	if to.Kind() == reflect.String && (isSigned(from.Kind()) || isUnsigned(from.Kind())) {
		return false
	}
	return from.ConvertibleTo(to)
}

func conversionWord(explicit bool) string {
	if explicit {
		return "explicit"
	}
	return "implicit"
}

// ---------------------------------------------------------------------------
// Numeric helpers
// ---------------------------------------------------------------------------

func convertNumber(rv reflect.Value, t reflect.Type) (reflect.Value, bool) {
	out := reflect.New(t).Elem()
	switch {
	case isSigned(rv.Kind()):
		i := rv.Int()
		switch {
		case isSigned(t.Kind()):
			if out.OverflowInt(i) {
				return reflect.Value{}, false
			}
			out.SetInt(i)
		case isUnsigned(t.Kind()):
			if i < 0 || out.OverflowUint(uint64(i)) {
				return reflect.Value{}, false
			}
			out.SetUint(uint64(i))
		default:
			out.SetFloat(float64(i))
		}
	case isUnsigned(rv.Kind()):
		u := rv.Uint()
		switch {
		case isSigned(t.Kind()):
			if u > math.MaxInt64 || out.OverflowInt(int64(u)) {
				return reflect.Value{}, false
			}
			out.SetInt(int64(u))
		case isUnsigned(t.Kind()):
			if out.OverflowUint(u) {
				return reflect.Value{}, false
			}
			out.SetUint(u)
		default:
			out.SetFloat(float64(u))
		}
	default:
		f := rv.Float()
		switch {
		case isFloat(t.Kind()):
			if out.OverflowFloat(f) {
				return reflect.Value{}, false
			}
			out.SetFloat(f)
		case f != math.Trunc(f):
			return reflect.Value{}, false
		case isSigned(t.Kind()):
			if f < math.MinInt64 || f > math.MaxInt64 || out.OverflowInt(int64(f)) {
				return reflect.Value{}, false
			}
			out.SetInt(int64(f))
		default:
			if f < 0 || f > math.MaxUint64 || out.OverflowUint(uint64(f)) {
				return reflect.Value{}, false
			}
			out.SetUint(uint64(f))
		}
	}
	return out, true
}

func isSigned(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUnsigned(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func isNumber(k reflect.Kind) bool {
	return isSigned(k) || isUnsigned(k) || isFloat(k)
}

func nillable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return true
	}
	return false
}
