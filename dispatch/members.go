package dispatch

import (
	"fmt"
	"reflect"
)

// members is the structural member table of one concrete Go type. It is
// built once per type the first time the type is seen as a receiver and
// shared by every call site afterwards.
type members struct {
	typ     reflect.Type
	elem    reflect.Type // struct behind typ, nil if typ is not a struct or *struct
	fields  map[string]reflect.StructField
	methods map[string]reflect.Method
	strMap  bool // map with a string-kinded key
}

func newMembers(t reflect.Type) *members {
	m := &members{
		typ:     t,
		fields:  make(map[string]reflect.StructField),
		methods: make(map[string]reflect.Method),
	}

	if t.Kind() != reflect.Interface {
		for i := 0; i < t.NumMethod(); i++ {
			meth := t.Method(i)
			m.methods[meth.Name] = meth
		}
	}

	st := t
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() == reflect.Struct {
		m.elem = st
		// VisibleFields already drops names that cancel out at equal depth.
		for _, f := range reflect.VisibleFields(st) {
			if f.IsExported() {
				m.fields[f.Name] = f
			}
		}
	}

	m.strMap = t.Kind() == reflect.Map && t.Key().Kind() == reflect.String
	return m
}

// members returns the shared member table for t.
func (c *Cache) members(t reflect.Type) *members {
	if m, ok := c.types.Load(t); ok {
		return m.(*members)
	}
	m, _ := c.types.LoadOrStore(t, newMembers(t))
	return m.(*members)
}

// field returns the exported field name, if any.
func (m *members) field(name string) (reflect.StructField, bool) {
	f, ok := m.fields[name]
	return f, ok
}

// method returns the exported method name, if any.
func (m *members) method(name string) (reflect.Method, bool) {
	meth, ok := m.methods[name]
	return meth, ok
}

// getter returns a niladic method called name that returns a value.
func (m *members) getter(name string) (reflect.Method, bool) {
	meth, ok := m.methods[name]
	if !ok || meth.Type.NumIn() != 1 || valueResults(meth.Type) != 1 {
		return reflect.Method{}, false
	}
	return meth, true
}

// setter returns a one-argument method SetName.
func (m *members) setter(name string) (reflect.Method, bool) {
	meth, ok := m.methods["Set"+name]
	if !ok || meth.Type.NumIn() != 2 || meth.Type.IsVariadic() || valueResults(meth.Type) != 0 {
		return reflect.Method{}, false
	}
	return meth, true
}

// settable reports whether fields of this type can be assigned through a
// receiver value.
func (m *members) settable() bool {
	return m.elem != nil && m.typ.Kind() == reflect.Pointer
}

// fieldValue reads field f from recv, following embedded pointers.
func fieldValue(recv reflect.Value, f reflect.StructField) (reflect.Value, error) {
	if recv.Kind() == reflect.Pointer {
		if recv.IsNil() {
			return reflect.Value{}, fmt.Errorf("nil %s receiver", recv.Type())
		}
		recv = recv.Elem()
	}
	return recv.FieldByIndexErr(f.Index)
}

// callMethod invokes meth on recv with dynamic args.
func callMethod(recv reflect.Value, meth reflect.Method, args []any) ([]reflect.Value, error) {
	return callWith(meth.Func, []reflect.Value{recv}, args)
}

// methodFits reports whether meth accepts the argument shape of sig.
func methodFits(meth reflect.Method, sig Signature, skip int) bool {
	switch sig.args.mode {
	case ArgsTyped:
		return typedArgsFit(meth.Type, skip, sig.args.types)
	default:
		return arityMatches(meth.Type, skip, sig.args.count)
	}
}

// funcFits is methodFits for a plain func type.
func funcFits(fn reflect.Type, sig Signature) bool {
	switch sig.args.mode {
	case ArgsTyped:
		return typedArgsFit(fn, 0, sig.args.types)
	default:
		return arityMatches(fn, 0, sig.args.count)
	}
}
