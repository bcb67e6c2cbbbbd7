package dispatch

import (
	"fmt"
	"reflect"
)

// applyOp computes cur+operand (AddAssign) or cur-operand (SubtractAssign)
// for the value kinds that have a meaning for them: numbers, strings (+
// only), slices (append and remove) and funcs (combining with nil).
func applyOp(kind Kind, cur, operand any) (any, error) {
	sym := "+"
	if kind == SubtractAssign {
		sym = "-"
	}

	if cur == nil {
		if kind == AddAssign && operand != nil && reflect.TypeOf(operand).Kind() == reflect.Func {
			return operand, nil
		}
		return nil, fmt.Errorf("operator %s= not defined on nil", sym)
	}

	cv := reflect.ValueOf(cur)
	ct := cv.Type()
	switch {
	case isNumber(ct.Kind()):
		ov, err := coerce(operand, ct)
		if err != nil {
			return nil, err
		}
		out := reflect.New(ct).Elem()
		switch {
		case isSigned(ct.Kind()):
			if kind == AddAssign {
				out.SetInt(cv.Int() + ov.Int())
			} else {
				out.SetInt(cv.Int() - ov.Int())
			}
		case isUnsigned(ct.Kind()):
			if kind == AddAssign {
				out.SetUint(cv.Uint() + ov.Uint())
			} else {
				out.SetUint(cv.Uint() - ov.Uint())
			}
		default:
			if kind == AddAssign {
				out.SetFloat(cv.Float() + ov.Float())
			} else {
				out.SetFloat(cv.Float() - ov.Float())
			}
		}
		return out.Interface(), nil

	case ct.Kind() == reflect.String && kind == AddAssign:
		ov, err := coerce(operand, ct)
		if err != nil {
			return nil, err
		}
		out := reflect.New(ct).Elem()
		out.SetString(cv.String() + ov.String())
		return out.Interface(), nil

	case ct.Kind() == reflect.Slice:
		if kind == AddAssign {
			return appendValue(cv, operand)
		}
		return removeValue(cv, operand)

	case ct.Kind() == reflect.Func && kind == SubtractAssign:
		ov := reflect.ValueOf(operand)
		if ov.IsValid() && ov.Type() == ct && ov.Pointer() == cv.Pointer() {
			return reflect.Zero(ct).Interface(), nil
		}
		return cur, nil
	}
	return nil, fmt.Errorf("operator %s= not defined on %s", sym, ct)
}

// appendValue appends operand to the slice s, or all of operand when it is
// a slice of the same type.
func appendValue(s reflect.Value, operand any) (any, error) {
	ov := reflect.ValueOf(operand)
	if ov.IsValid() && ov.Type() == s.Type() {
		return reflect.AppendSlice(s, ov).Interface(), nil
	}
	ev, err := coerce(operand, s.Type().Elem())
	if err != nil {
		return nil, err
	}
	return reflect.Append(s, ev).Interface(), nil
}

// removeValue removes the last element of s equal to operand. Funcs are
// equal when they share a code pointer.
func removeValue(s reflect.Value, operand any) (any, error) {
	for i := s.Len() - 1; i >= 0; i-- {
		if sameValue(s.Index(i), operand) {
			out := reflect.MakeSlice(s.Type(), 0, s.Len()-1)
			out = reflect.AppendSlice(out, s.Slice(0, i))
			out = reflect.AppendSlice(out, s.Slice(i+1, s.Len()))
			return out.Interface(), nil
		}
	}
	return s.Interface(), nil
}

func sameValue(ev reflect.Value, operand any) bool {
	if ev.Kind() == reflect.Interface {
		if ev.IsNil() {
			return operand == nil
		}
		ev = ev.Elem()
	}
	ov := reflect.ValueOf(operand)
	if !ov.IsValid() {
		return false
	}
	if ev.Kind() == reflect.Func {
		return ov.Kind() == reflect.Func && ev.Type() == ov.Type() && ev.Pointer() == ov.Pointer()
	}
	if !ev.Type().Comparable() || ev.Type() != ov.Type() {
		return false
	}
	return ev.Interface() == operand
}
