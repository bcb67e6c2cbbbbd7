package dispatch

import (
	"errors"
	"fmt"
	"reflect"
)

// bindConstructor resolves a Constructor signature for type t: a registered
// constructor accepting the arguments, else the zero value for no
// arguments, else named arguments assigned to struct fields or map keys.
func (c *Cache) bindConstructor(sig Signature, t reflect.Type) (binding, error) {
	if ctor, err := c.constructor(sig, t); err != nil {
		return nil, err
	} else if ctor.IsValid() {
		return func(_ reflect.Value, args []any) (any, error) {
			out, err := callWith(ctor, nil, args)
			if err != nil {
				return nil, fmt.Errorf("new %s: %w", t, err)
			}
			return collect(out)
		}, nil
	}

	names := sig.args.names
	positional := sig.args.count - len(names)
	switch {
	case sig.args.count == 0:
		return func(reflect.Value, []any) (any, error) {
			return newValue(t).Interface(), nil
		}, nil
	case positional != 0:
		return nil, noSuchMember(Constructor, "", t, fmt.Errorf("no constructor accepting %s", argShape(sig)))
	}

	st, ptr := t, false
	if st.Kind() == reflect.Pointer {
		st, ptr = st.Elem(), true
	}
	switch st.Kind() {
	case reflect.Struct:
		m := c.members(reflect.PointerTo(st))
		fields := make([]reflect.StructField, len(names))
		for i, name := range names {
			f, ok := m.field(name)
			if !ok {
				return nil, noSuchMember(Constructor, name, t, errors.New("no such field"))
			}
			fields[i] = f
		}
		return func(_ reflect.Value, args []any) (any, error) {
			v := reflect.New(st)
			for i, f := range fields {
				fv, err := fieldValue(v, f)
				if err != nil {
					return nil, err
				}
				av, err := coerce(args[i], f.Type)
				if err != nil {
					return nil, fmt.Errorf("new %s: field %s: %w", t, f.Name, err)
				}
				fv.Set(av)
			}
			return v.Interface(), nil
		}, nil

	case reflect.Map:
		if st.Key().Kind() != reflect.String || ptr {
			break
		}
		return func(_ reflect.Value, args []any) (any, error) {
			v := reflect.MakeMapWithSize(st, len(names))
			for i, name := range names {
				av, err := coerce(args[i], st.Elem())
				if err != nil {
					return nil, fmt.Errorf("new %s: key %s: %w", t, name, err)
				}
				v.SetMapIndex(reflect.ValueOf(name).Convert(st.Key()), av)
			}
			return v.Interface(), nil
		}, nil
	}
	return nil, noSuchMember(Constructor, "", t, errors.New("named arguments need a struct or string-keyed map"))
}

// constructor returns the registered constructor of t that accepts the
// arguments of sig. More than one match is ambiguous.
func (c *Cache) constructor(sig Signature, t reflect.Type) (reflect.Value, error) {
	if sig.args.Named() {
		return reflect.Value{}, nil
	}
	c.extMu.RLock()
	ctors := c.ctors[t]
	c.extMu.RUnlock()

	var found reflect.Value
	for _, ctor := range ctors {
		if !funcFits(ctor.Type(), sig) {
			continue
		}
		if found.IsValid() {
			return reflect.Value{}, ambiguous(Constructor, "", t, fmt.Errorf("%s and %s", found.Type(), ctor.Type()))
		}
		found = ctor
	}
	return found, nil
}

// newValue returns a fresh value of t: a pointer to a new struct for
// struct types, an empty map, slice or channel, otherwise the zero value.
func newValue(t reflect.Type) reflect.Value {
	switch t.Kind() {
	case reflect.Struct:
		return reflect.New(t)
	case reflect.Pointer:
		return reflect.New(t.Elem())
	case reflect.Map:
		return reflect.MakeMap(t)
	case reflect.Slice:
		return reflect.MakeSlice(t, 0, 0)
	case reflect.Chan:
		return reflect.MakeChan(t, 0)
	}
	return reflect.Zero(t)
}
