package dispatch

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// binding performs one resolved operation against a receiver of the type it
// was bound for. Static bindings ignore recv.
type binding func(recv reflect.Value, args []any) (any, error)

// noValue is returned by *Unknown bindings that took the action form.
type noValue struct{}

// form selects how call results are reported.
type form uint8

const (
	valueForm  form = iota // results required
	actionForm             // results discarded, except a trailing error
	eitherForm             // results if there are any
)

func formOf(k Kind) form {
	switch k {
	case InvokeMemberAction, InvokeAction:
		return actionForm
	case InvokeMemberUnknown, InvokeUnknown:
		return eitherForm
	}
	return valueForm
}

// finish reports the results of a call made under form f.
func finish(out []reflect.Value, f form, fn reflect.Type) (any, error) {
	switch {
	case f == actionForm:
		_, err := collect(out)
		return nil, err
	case f == eitherForm && valueResults(fn) == 0:
		if _, err := collect(out); err != nil {
			return nil, err
		}
		return noValue{}, nil
	}
	return collect(out)
}

// withKind returns s as a signature of kind k with the same arguments.
func (s Signature) withKind(k Kind) Signature {
	s.kind = k
	s.hash = s.computeHash()
	return s
}

// bind performs structural resolution of sig against receivers of type t.
// For static signatures t is the addressed type itself.
func (c *Cache) bind(sig Signature, t reflect.Type) (binding, error) {
	if sig.static {
		return c.bindStatic(sig, t)
	}
	if sig.kind == Convert {
		return bindConvert(sig, t)
	}

	if sig.kind.Named() {
		if t.Implements(objectType) {
			return bindObject(sig, t, func(v reflect.Value) Object {
				return v.Interface().(Object)
			}), nil
		}
		if a := c.adapterFor(t); a != nil {
			return bindObject(sig, t, func(v reflect.Value) Object {
				return a.Adapt(v.Interface())
			}), nil
		}
	}

	switch sig.kind {
	case Get:
		return bindGet(sig, c.members(t))
	case Set:
		return bindSet(sig, c.members(t))
	case InvokeMember, InvokeMemberAction, InvokeMemberUnknown:
		return bindInvokeMember(sig, c.members(t))
	case GetIndex, SetIndex:
		return bindIndex(sig, t)
	case Invoke, InvokeAction, InvokeUnknown:
		return bindCall(sig, t)
	case AddAssign, SubtractAssign:
		return bindAssign(sig, c.members(t))
	case IsEvent:
		return bindIsEvent(sig, c.members(t))
	}
	return nil, noSuchMember(sig.kind, sig.name, t, fmt.Errorf("unsupported kind"))
}

// ---------------------------------------------------------------------------
// Dynamic objects
// ---------------------------------------------------------------------------

func bindObject(sig Signature, t reflect.Type, obj func(reflect.Value) Object) binding {
	name, kind := sig.name, sig.kind
	switch kind {
	case Get:
		return func(recv reflect.Value, _ []any) (any, error) {
			return obj(recv).GetMember(name)
		}
	case Set:
		return func(recv reflect.Value, args []any) (any, error) {
			return nil, obj(recv).SetMember(name, args[0])
		}
	case InvokeMemberAction:
		return func(recv reflect.Value, args []any) (any, error) {
			_, err := obj(recv).InvokeMember(name, args)
			return nil, err
		}
	case AddAssign, SubtractAssign:
		return func(recv reflect.Value, args []any) (any, error) {
			o := obj(recv)
			cur, err := o.GetMember(name)
			if err != nil {
				return nil, err
			}
			return nil, assign(kind, name, t, cur, args[0], func(v any) error {
				return o.SetMember(name, v)
			})
		}
	case IsEvent:
		return func(recv reflect.Value, _ []any) (any, error) {
			v, err := obj(recv).GetMember(name)
			if err != nil {
				if IsNoSuchMember(err) {
					return false, nil
				}
				return nil, err
			}
			_, ok := v.(EventSource)
			return ok, nil
		}
	}
	// InvokeMember and InvokeMemberUnknown: a dynamic object answers
	// with a value or nil either way.
	return func(recv reflect.Value, args []any) (any, error) {
		return obj(recv).InvokeMember(name, args)
	}
}

// ---------------------------------------------------------------------------
// Properties
// ---------------------------------------------------------------------------

func bindGet(sig Signature, m *members) (binding, error) {
	name := sig.name
	var (
		cands []binding
		descs []string
	)

	if f, ok := m.field(name); ok {
		cands = append(cands, func(recv reflect.Value, _ []any) (any, error) {
			fv, err := fieldValue(recv, f)
			if err != nil {
				return nil, err
			}
			return fieldInterface(fv), nil
		})
		descs = append(descs, "field "+name)
	}
	for _, mn := range []string{name, "Get" + name} {
		if meth, ok := m.getter(mn); ok {
			cands = append(cands, func(recv reflect.Value, _ []any) (any, error) {
				return collect(meth.Func.Call([]reflect.Value{recv}))
			})
			descs = append(descs, "method "+mn)
		}
	}

	switch {
	case len(cands) == 1:
		return cands[0], nil
	case len(cands) > 1:
		return nil, ambiguous(Get, name, m.typ, fmt.Errorf("%s", strings.Join(descs, " and ")))
	case m.strMap:
		return mapGet(Get, name, m.typ), nil
	}
	if meth, ok := m.method(name); ok {
		return nil, noSuchMember(Get, name, m.typ, fmt.Errorf("method %s is not a getter (%s)", name, meth.Type))
	}
	return nil, noSuchMember(Get, name, m.typ, nil)
}

// fieldInterface returns the field value, or its address when the field
// is an event held by value.
func fieldInterface(fv reflect.Value) any {
	if fv.Kind() != reflect.Pointer && fv.CanAddr() && reflect.PointerTo(fv.Type()).Implements(eventSourceType) {
		return fv.Addr().Interface()
	}
	return fv.Interface()
}

func mapGet(kind Kind, name string, t reflect.Type) binding {
	key := reflect.ValueOf(name).Convert(t.Key())
	return func(recv reflect.Value, _ []any) (any, error) {
		v := recv.MapIndex(key)
		if !v.IsValid() {
			return nil, noSuchMember(kind, name, t, nil)
		}
		return v.Interface(), nil
	}
}

func mapSet(name string, t reflect.Type) binding {
	key := reflect.ValueOf(name).Convert(t.Key())
	return func(recv reflect.Value, args []any) (any, error) {
		if recv.IsNil() {
			return nil, fmt.Errorf("set %q: assignment to nil map", name)
		}
		v, err := coerce(args[0], t.Elem())
		if err != nil {
			return nil, fmt.Errorf("set %q: %w", name, err)
		}
		recv.SetMapIndex(key, v)
		return nil, nil
	}
}

func bindSet(sig Signature, m *members) (binding, error) {
	name := sig.name
	var (
		cands  []binding
		descs  []string
		reason error
	)

	if f, ok := m.field(name); ok {
		switch {
		case !m.settable():
			reason = fmt.Errorf("field %s is not settable through %s", name, m.typ)
		case !valueFits(sig, f.Type):
			reason = fmt.Errorf("field %s has type %s", name, f.Type)
		default:
			cands = append(cands, func(recv reflect.Value, args []any) (any, error) {
				fv, err := fieldValue(recv, f)
				if err != nil {
					return nil, err
				}
				v, err := coerce(args[0], f.Type)
				if err != nil {
					return nil, fmt.Errorf("set %s: %w", name, err)
				}
				fv.Set(v)
				return nil, nil
			})
			descs = append(descs, "field "+name)
		}
	}
	if meth, ok := m.setter(name); ok && valueFits(sig, meth.Type.In(1)) {
		cands = append(cands, func(recv reflect.Value, args []any) (any, error) {
			out, err := callMethod(recv, meth, args[:1])
			if err != nil {
				return nil, fmt.Errorf("set %s: %w", name, err)
			}
			_, err = collect(out)
			return nil, err
		})
		descs = append(descs, "method Set"+name)
	}

	switch {
	case len(cands) == 1:
		return cands[0], nil
	case len(cands) > 1:
		return nil, ambiguous(Set, name, m.typ, fmt.Errorf("%s", strings.Join(descs, " and ")))
	case m.strMap:
		return mapSet(name, m.typ), nil
	}
	return nil, noSuchMember(Set, name, m.typ, reason)
}

// valueFits reports whether the single typed argument of sig, if any, can
// be stored in t.
func valueFits(sig Signature, t reflect.Type) bool {
	if sig.args.mode != ArgsTyped || len(sig.args.types) != 1 {
		return true
	}
	return argTypeFits(sig.args.types[0], t)
}

// ---------------------------------------------------------------------------
// Methods and funcs
// ---------------------------------------------------------------------------

func bindInvokeMember(sig Signature, m *members) (binding, error) {
	name, kind := sig.name, sig.kind
	f := formOf(kind)
	if sig.args.Named() {
		return nil, noSuchMember(kind, name, m.typ, errors.New("named arguments need a dynamic object"))
	}

	if meth, ok := m.method(name); ok {
		if !methodFits(meth, sig, 1) {
			return nil, noSuchMember(kind, name, m.typ, fmt.Errorf("method %s%s does not accept %s", name, meth.Type, argShape(sig)))
		}
		if f == valueForm && valueResults(meth.Type) == 0 {
			return nil, noSuchMember(kind, name, m.typ, fmt.Errorf("method %s returns no value", name))
		}
		return func(recv reflect.Value, args []any) (any, error) {
			out, err := callMethod(recv, meth, args)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			return finish(out, f, meth.Type)
		}, nil
	}

	if fld, ok := m.field(name); ok && fld.Type.Kind() == reflect.Func {
		if !funcFits(fld.Type, sig) {
			return nil, noSuchMember(kind, name, m.typ, fmt.Errorf("func field %s does not accept %s", name, argShape(sig)))
		}
		if f == valueForm && valueResults(fld.Type) == 0 {
			return nil, noSuchMember(kind, name, m.typ, fmt.Errorf("func field %s returns no value", name))
		}
		return func(recv reflect.Value, args []any) (any, error) {
			fv, err := fieldValue(recv, fld)
			if err != nil {
				return nil, err
			}
			return callFunc(kind, name, m.typ, fv, args, f)
		}, nil
	}

	if m.strMap {
		key := reflect.ValueOf(name).Convert(m.typ.Key())
		return func(recv reflect.Value, args []any) (any, error) {
			v := recv.MapIndex(key)
			if !v.IsValid() {
				return nil, noSuchMember(kind, name, m.typ, nil)
			}
			return callFunc(kind, name, m.typ, v, args, f)
		}, nil
	}
	return nil, noSuchMember(kind, name, m.typ, nil)
}

// callFunc calls a func value found at run time, checking its shape first.
func callFunc(kind Kind, name string, owner reflect.Type, fv reflect.Value, args []any, f form) (any, error) {
	if fv.Kind() == reflect.Interface {
		fv = fv.Elem()
	}
	if !fv.IsValid() || fv.Kind() != reflect.Func {
		if fv.IsValid() && fv.Type().Implements(callableType) {
			return fv.Interface().(Callable).Call(args)
		}
		return nil, noSuchMember(kind, name, owner, errors.New("not a func"))
	}
	if fv.IsNil() {
		return nil, noSuchMember(kind, name, owner, errors.New("nil func"))
	}
	ft := fv.Type()
	if !arityMatches(ft, 0, len(args)) {
		return nil, noSuchMember(kind, name, owner, fmt.Errorf("%s does not accept %d arguments", ft, len(args)))
	}
	if f == valueForm && valueResults(ft) == 0 {
		return nil, noSuchMember(kind, name, owner, fmt.Errorf("%s returns no value", ft))
	}
	out, err := callWith(fv, nil, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return finish(out, f, ft)
}

// CallFunc calls fn, a func or a Callable, directly without a call site.
// A func without value results yields nil. Errors name the call name.
func CallFunc(name string, fn any, args ...any) (any, error) {
	v, err := callFunc(InvokeUnknown, name, reflect.TypeOf(fn), reflect.ValueOf(fn), args, eitherForm)
	if _, ok := v.(noValue); ok {
		return nil, err
	}
	return v, err
}

func bindCall(sig Signature, t reflect.Type) (binding, error) {
	kind := sig.kind
	f := formOf(kind)

	if t.Implements(callableType) {
		return func(recv reflect.Value, args []any) (any, error) {
			v, err := recv.Interface().(Callable).Call(args)
			if f == actionForm {
				return nil, err
			}
			return v, err
		}, nil
	}
	if t.Kind() != reflect.Func {
		return nil, noSuchMember(kind, "", t, errors.New("not a func"))
	}
	if !funcFits(t, sig) {
		return nil, noSuchMember(kind, "", t, fmt.Errorf("does not accept %s", argShape(sig)))
	}
	if f == valueForm && valueResults(t) == 0 {
		return nil, noSuchMember(kind, "", t, errors.New("returns no value"))
	}
	return func(recv reflect.Value, args []any) (any, error) {
		if recv.IsNil() {
			return nil, noSuchMember(kind, "", t, errors.New("nil func"))
		}
		out, err := callWith(recv, nil, args)
		if err != nil {
			return nil, err
		}
		return finish(out, f, t)
	}, nil
}

// ---------------------------------------------------------------------------
// Indexing
// ---------------------------------------------------------------------------

func bindIndex(sig Signature, t reflect.Type) (binding, error) {
	kind := sig.kind
	if t.Implements(indexerType) {
		if kind == GetIndex {
			return func(recv reflect.Value, args []any) (any, error) {
				return recv.Interface().(Indexer).GetIndex(args)
			}, nil
		}
		return func(recv reflect.Value, args []any) (any, error) {
			n := len(args) - 1
			return nil, recv.Interface().(Indexer).SetIndex(args[:n], args[n])
		}, nil
	}

	keys := sig.args.count
	if kind == SetIndex {
		keys--
	}
	if sig.args.mode != ArgsNone && keys != 1 {
		return nil, noSuchMember(kind, "", t, fmt.Errorf("%d index keys", keys))
	}

	base, ptr := t, false
	if base.Kind() == reflect.Pointer {
		base, ptr = base.Elem(), true
	}
	deref := func(recv reflect.Value) (reflect.Value, error) {
		if !ptr {
			return recv, nil
		}
		if recv.IsNil() {
			return reflect.Value{}, fmt.Errorf("index of nil %s", t)
		}
		return recv.Elem(), nil
	}

	switch base.Kind() {
	case reflect.Slice, reflect.Array, reflect.String:
		if kind == SetIndex {
			if base.Kind() == reflect.String || (base.Kind() == reflect.Array && !ptr) {
				return nil, noSuchMember(kind, "", t, errors.New("elements are not assignable"))
			}
			return func(recv reflect.Value, args []any) (any, error) {
				v, err := deref(recv)
				if err != nil {
					return nil, err
				}
				ev, err := position(v, args[0])
				if err != nil {
					return nil, err
				}
				nv, err := coerce(args[len(args)-1], base.Elem())
				if err != nil {
					return nil, err
				}
				ev.Set(nv)
				return nil, nil
			}, nil
		}
		return func(recv reflect.Value, args []any) (any, error) {
			v, err := deref(recv)
			if err != nil {
				return nil, err
			}
			ev, err := position(v, args[0])
			if err != nil {
				return nil, err
			}
			return ev.Interface(), nil
		}, nil

	case reflect.Map:
		if kind == SetIndex {
			return func(recv reflect.Value, args []any) (any, error) {
				v, err := deref(recv)
				if err != nil {
					return nil, err
				}
				if v.IsNil() {
					return nil, errors.New("assignment to nil map")
				}
				k, err := coerce(args[0], base.Key())
				if err != nil {
					return nil, fmt.Errorf("key: %w", err)
				}
				nv, err := coerce(args[len(args)-1], base.Elem())
				if err != nil {
					return nil, err
				}
				v.SetMapIndex(k, nv)
				return nil, nil
			}, nil
		}
		return func(recv reflect.Value, args []any) (any, error) {
			v, err := deref(recv)
			if err != nil {
				return nil, err
			}
			k, err := coerce(args[0], base.Key())
			if err != nil {
				return nil, fmt.Errorf("key: %w", err)
			}
			ev := v.MapIndex(k)
			if !ev.IsValid() {
				return nil, noSuchMember(kind, fmt.Sprint(args[0]), t, errors.New("key not present"))
			}
			return ev.Interface(), nil
		}, nil
	}
	return nil, noSuchMember(kind, "", t, errors.New("not indexable"))
}

// position returns the element of the slice, array or string v at key.
func position(v reflect.Value, key any) (reflect.Value, error) {
	iv, err := coerce(key, reflect.TypeFor[int]())
	if err != nil {
		return reflect.Value{}, fmt.Errorf("index: %w", err)
	}
	i := int(iv.Int())
	if i < 0 || i >= v.Len() {
		return reflect.Value{}, fmt.Errorf("index %d out of range [0:%d]", i, v.Len())
	}
	return v.Index(i), nil
}

// ---------------------------------------------------------------------------
// Events and compound assignment
// ---------------------------------------------------------------------------

func bindAssign(sig Signature, m *members) (binding, error) {
	name, kind := sig.name, sig.kind
	plain := sig
	plain.args = Args{}

	get, err := bindGet(plain.withKind(Get), m)
	if err != nil {
		return nil, retag(err, kind)
	}
	set, setErr := bindSet(plain.withKind(Set), m)
	if setErr != nil && !IsNoSuchMember(setErr) {
		return nil, retag(setErr, kind)
	}

	return func(recv reflect.Value, args []any) (any, error) {
		cur, err := get(recv, nil)
		if err != nil {
			return nil, err
		}
		return nil, assign(kind, name, m.typ, cur, args[0], func(v any) error {
			if set == nil {
				return retag(setErr, kind)
			}
			_, err := set(recv, []any{v})
			return err
		})
	}, nil
}

// assign applies += or -= to cur. Events take the handler directly;
// anything else is read, combined with operand and written back.
func assign(kind Kind, name string, t reflect.Type, cur, operand any, set func(any) error) error {
	if es, ok := cur.(EventSource); ok {
		if kind == AddAssign {
			return es.AddHandler(operand)
		}
		return es.RemoveHandler(operand)
	}
	nv, err := applyOp(kind, cur, operand)
	if err != nil {
		return noSuchMember(kind, name, t, err)
	}
	return set(nv)
}

func bindIsEvent(sig Signature, m *members) (binding, error) {
	plain := sig
	plain.args = Args{}
	get, err := bindGet(plain.withKind(Get), m)
	if err != nil {
		if IsNoSuchMember(err) {
			return func(reflect.Value, []any) (any, error) { return false, nil }, nil
		}
		return nil, retag(err, IsEvent)
	}
	return func(recv reflect.Value, _ []any) (any, error) {
		v, err := get(recv, nil)
		if err != nil {
			if IsNoSuchMember(err) {
				return false, nil
			}
			return nil, err
		}
		_, ok := v.(EventSource)
		return ok, nil
	}, nil
}

// retag reports err as a failure of kind.
func retag(err error, kind Kind) error {
	var de *Error
	if errors.As(err, &de) {
		cp := *de
		cp.Kind = kind
		return &cp
	}
	return err
}

// ---------------------------------------------------------------------------
// Conversion
// ---------------------------------------------------------------------------

func bindConvert(sig Signature, t reflect.Type) (binding, error) {
	to, explicit := sig.convType, sig.explicit
	if to == nil {
		return nil, Violation("convert signature without a target type")
	}
	if !implicitlyConvertible(t, to) && !(explicit && explicitlyConvertible(t, to)) && !t.Implements(converterType) {
		return nil, noSuchMember(Convert, "", t, fmt.Errorf("no %s conversion to %s", conversionWord(explicit), to))
	}
	return func(recv reflect.Value, _ []any) (any, error) {
		return convertValue(recv.Interface(), to, explicit)
	}, nil
}

// ---------------------------------------------------------------------------
// Static members
// ---------------------------------------------------------------------------

func (c *Cache) bindStatic(sig Signature, t reflect.Type) (binding, error) {
	name, kind := sig.name, sig.kind
	switch kind {
	case Constructor:
		return c.bindConstructor(sig, t)
	case Get, InvokeMember, InvokeMemberAction, InvokeMemberUnknown:
	default:
		return nil, noSuchMember(kind, name, t, fmt.Errorf("static %s is not supported", kind))
	}

	meth, ok := t.MethodByName(name)
	if !ok || !meth.Func.IsValid() {
		return nil, noSuchMember(kind, name, t, nil)
	}
	if kind == Get {
		fn := meth.Func.Interface()
		return func(reflect.Value, []any) (any, error) { return fn, nil }, nil
	}

	f := formOf(kind)
	// Method expressions take the receiver as their first argument.
	if !funcFits(meth.Type, sig) {
		return nil, noSuchMember(kind, name, t, fmt.Errorf("%s does not accept %s", meth.Type, argShape(sig)))
	}
	if f == valueForm && valueResults(meth.Type) == 0 {
		return nil, noSuchMember(kind, name, t, errors.New("returns no value"))
	}
	return func(_ reflect.Value, args []any) (any, error) {
		out, err := callWith(meth.Func, nil, args)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t, name, err)
		}
		return finish(out, f, meth.Type)
	}, nil
}

func argShape(sig Signature) string {
	switch sig.args.mode {
	case ArgsTyped:
		names := make([]string, len(sig.args.types))
		for i, t := range sig.args.types {
			names[i] = typeName(t)
		}
		return "(" + strings.Join(names, ", ") + ")"
	case ArgsArity:
		return fmt.Sprintf("%d arguments", sig.args.count)
	}
	return "no arguments"
}
