package protoshape

import (
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/chazu/ducktape/dispatch"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Message presents a protobuf message as a dispatch.Object. Fields are
// its members; sub-messages come back as *Message and enums as the name
// of their value.
type Message struct {
	m protoreflect.Message
}

var (
	_ dispatch.Object    = (*Message)(nil)
	_ dispatch.Converter = (*Message)(nil)
)

// Wrap presents m as a dynamic object. Changes go to m itself.
func Wrap(m proto.Message) *Message {
	if m == nil {
		return nil
	}
	return &Message{m: m.ProtoReflect()}
}

// New creates an empty message of descriptor md.
func New(md protoreflect.MessageDescriptor) *Message {
	return &Message{m: dynamicpb.NewMessage(md)}
}

// NewFrom creates a message of descriptor md populated from fields.
func NewFrom(md protoreflect.MessageDescriptor, fields map[string]any) (*Message, error) {
	m := New(md)
	if err := fill(m.m, fields); err != nil {
		return nil, err
	}
	return m, nil
}

// Proto returns the wrapped message.
func (m *Message) Proto() proto.Message { return m.m.Interface() }

// Descriptor returns the message descriptor.
func (m *Message) Descriptor() protoreflect.MessageDescriptor { return m.m.Descriptor() }

func (m *Message) String() string {
	return prototext.MarshalOptions{}.Format(m.Proto())
}

// Map returns the populated fields, keyed by proto field name, with
// sub-messages converted to maps too.
func (m *Message) Map() map[string]any {
	out := make(map[string]any)
	m.m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		out[string(fd.Name())] = plain(fromValue(fd, v))
		return true
	})
	return out
}

func (m *Message) field(name string) (protoreflect.FieldDescriptor, error) {
	if fd := resolve(m.m.Descriptor().Fields(), name); fd != nil {
		return fd, nil
	}
	return nil, dispatch.NoSuchMember(name, reflect.TypeOf(m.m.Interface()))
}

func (m *Message) get(fd protoreflect.FieldDescriptor) any {
	if fd.Message() != nil && fd.Cardinality() != protoreflect.Repeated && !m.m.Has(fd) {
		return nil
	}
	return fromValue(fd, m.m.Get(fd))
}

// GetMember returns the value of the named field.
func (m *Message) GetMember(name string) (any, error) {
	fd, err := m.field(name)
	if err != nil {
		return nil, err
	}
	return m.get(fd), nil
}

// SetMember assigns the named field. Nil clears it.
func (m *Message) SetMember(name string, value any) error {
	fd, err := m.field(name)
	if err != nil {
		return err
	}
	if !m.m.IsValid() {
		return dispatch.Violation("cannot set %s on a read-only %s", name, m.m.Descriptor().FullName())
	}
	if value == nil {
		m.m.Clear(fd)
		return nil
	}
	v, err := toValue(m.m, fd, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", fd.FullName(), err)
	}
	m.m.Set(fd, v)
	return nil
}

// InvokeMember supports Has, Clear, Marshal, Unmarshal, Clone, String and
// GetXxx getters for every field.
func (m *Message) InvokeMember(name string, args []any) (any, error) {
	switch name {
	case "Has", "Clear":
		fd, err := m.fieldArg(name, args)
		if err != nil {
			return nil, err
		}
		if name == "Has" {
			return m.m.Has(fd), nil
		}
		m.m.Clear(fd)
		return nil, nil
	case "Marshal":
		return proto.MarshalOptions{Deterministic: true}.Marshal(m.Proto())
	case "Unmarshal":
		if len(args) != 1 {
			return nil, fmt.Errorf("Unmarshal takes one argument, got %d", len(args))
		}
		b, ok := args[0].([]byte)
		if !ok {
			return nil, fmt.Errorf("Unmarshal takes []byte, got %T", args[0])
		}
		return nil, proto.Unmarshal(b, m.Proto())
	case "Clone":
		return Wrap(proto.Clone(m.Proto())), nil
	case "String":
		return m.String(), nil
	}
	if fd := getterField(m.m.Descriptor().Fields(), name, args); fd != nil {
		return m.get(fd), nil
	}
	return nil, dispatch.NoSuchMember(name, reflect.TypeOf(m.m.Interface()))
}

func (m *Message) fieldArg(method string, args []any) (protoreflect.FieldDescriptor, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%s takes a field name, got %d arguments", method, len(args))
	}
	name, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("%s takes a field name, got %T", method, args[0])
	}
	return m.field(name)
}

// ConvertTo unwraps to the message type or converts to map[string]any.
func (m *Message) ConvertTo(t reflect.Type, _ bool) (any, error) {
	p := m.Proto()
	switch {
	case reflect.TypeOf(p).AssignableTo(t):
		return p, nil
	case t == reflect.TypeFor[map[string]any]():
		return m.Map(), nil
	}
	return nil, fmt.Errorf("cannot convert %s to %s", m.m.Descriptor().FullName(), t)
}

// ---------------------------------------------------------------------------
// Value conversion
// ---------------------------------------------------------------------------

func fromValue(fd protoreflect.FieldDescriptor, v protoreflect.Value) any {
	switch {
	case fd.IsList():
		l := v.List()
		out := make([]any, l.Len())
		for i := range out {
			out[i] = fromScalar(fd, l.Get(i))
		}
		return out
	case fd.IsMap():
		mp := v.Map()
		if fd.MapKey().Kind() == protoreflect.StringKind {
			out := make(map[string]any, mp.Len())
			mp.Range(func(k protoreflect.MapKey, e protoreflect.Value) bool {
				out[k.String()] = fromScalar(fd.MapValue(), e)
				return true
			})
			return out
		}
		out := make(map[any]any, mp.Len())
		mp.Range(func(k protoreflect.MapKey, e protoreflect.Value) bool {
			out[k.Interface()] = fromScalar(fd.MapValue(), e)
			return true
		})
		return out
	}
	return fromScalar(fd, v)
}

func fromScalar(fd protoreflect.FieldDescriptor, v protoreflect.Value) any {
	switch fd.Kind() {
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return &Message{m: v.Message()}
	case protoreflect.EnumKind:
		if ev := fd.Enum().Values().ByNumber(v.Enum()); ev != nil {
			return string(ev.Name())
		}
		return int32(v.Enum())
	}
	return v.Interface()
}

func toValue(parent protoreflect.Message, fd protoreflect.FieldDescriptor, value any) (protoreflect.Value, error) {
	switch {
	case fd.IsList():
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return protoreflect.Value{}, fmt.Errorf("repeated field needs a slice, got %T", value)
		}
		l := parent.NewField(fd).List()
		for i := range rv.Len() {
			e, err := toScalar(fd, rv.Index(i).Interface(), l.NewElement)
			if err != nil {
				return protoreflect.Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			l.Append(e)
		}
		return protoreflect.ValueOfList(l), nil
	case fd.IsMap():
		if fields, ok := fieldsOf(value); ok {
			value = fields
		}
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Map {
			return protoreflect.Value{}, fmt.Errorf("map field needs a map, got %T", value)
		}
		mp := parent.NewField(fd).Map()
		iter := rv.MapRange()
		for iter.Next() {
			k, err := toScalar(fd.MapKey(), iter.Key().Interface(), nil)
			if err != nil {
				return protoreflect.Value{}, fmt.Errorf("key %v: %w", iter.Key(), err)
			}
			e, err := toScalar(fd.MapValue(), iter.Value().Interface(), mp.NewValue)
			if err != nil {
				return protoreflect.Value{}, fmt.Errorf("[%v]: %w", iter.Key(), err)
			}
			mp.Set(k.MapKey(), e)
		}
		return protoreflect.ValueOfMap(mp), nil
	}
	return toScalar(fd, value, func() protoreflect.Value { return parent.NewField(fd) })
}

// toScalar converts a single value for fd. fresh supplies an empty message
// value for message kinds.
func toScalar(fd protoreflect.FieldDescriptor, v any, fresh func() protoreflect.Value) (protoreflect.Value, error) {
	switch fd.Kind() {
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return toMessage(fd.Message(), v, fresh)
	case protoreflect.EnumKind:
		switch x := v.(type) {
		case string:
			ev := fd.Enum().Values().ByName(protoreflect.Name(x))
			if ev == nil {
				return protoreflect.Value{}, fmt.Errorf("%s has no value %q", fd.Enum().FullName(), x)
			}
			return protoreflect.ValueOfEnum(ev.Number()), nil
		case protoreflect.Enum:
			return protoreflect.ValueOfEnum(x.Number()), nil
		}
	case protoreflect.BytesKind:
		if s, ok := v.(string); ok {
			return protoreflect.ValueOfBytes([]byte(s)), nil
		}
	}
	rv, err := dispatch.Coerce(v, scalarType(fd.Kind()))
	if err != nil {
		return protoreflect.Value{}, err
	}
	if fd.Kind() == protoreflect.EnumKind {
		return protoreflect.ValueOfEnum(protoreflect.EnumNumber(rv.Int())), nil
	}
	return protoreflect.ValueOf(rv.Interface()), nil
}

func toMessage(md protoreflect.MessageDescriptor, v any, fresh func() protoreflect.Value) (protoreflect.Value, error) {
	var src []byte
	switch x := v.(type) {
	case *Message:
		v = x.Proto()
	case *DynamicMessage:
		v = x.msg
	}
	switch x := v.(type) {
	case *dynamic.Message:
		if name := x.GetMessageDescriptor().GetFullyQualifiedName(); name != string(md.FullName()) {
			return protoreflect.Value{}, fmt.Errorf("cannot use %s as %s", name, md.FullName())
		}
		b, err := x.Marshal()
		if err != nil {
			return protoreflect.Value{}, err
		}
		src = b
	case proto.Message:
		pm := x.ProtoReflect()
		if pm.Descriptor().FullName() != md.FullName() {
			return protoreflect.Value{}, fmt.Errorf("cannot use %s as %s", pm.Descriptor().FullName(), md.FullName())
		}
		dst := fresh()
		if dst.Message().Type() == pm.Type() {
			return protoreflect.ValueOfMessage(pm), nil
		}
		b, err := proto.Marshal(x)
		if err != nil {
			return protoreflect.Value{}, err
		}
		src = b
	default:
		fields, ok := fieldsOf(v)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("cannot use %T as %s", v, md.FullName())
		}
		dst := fresh()
		if err := fill(dst.Message(), fields); err != nil {
			return protoreflect.Value{}, err
		}
		return dst, nil
	}

	dst := fresh()
	if err := proto.Unmarshal(src, dst.Message().Interface()); err != nil {
		return protoreflect.Value{}, err
	}
	return dst, nil
}

// fill sets every entry of fields on dst, in key order.
func fill(dst protoreflect.Message, fields map[string]any) error {
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		fd := resolve(dst.Descriptor().Fields(), k)
		if fd == nil {
			log.Debugf("%s has no field %q", dst.Descriptor().FullName(), k)
			return dispatch.NoSuchMember(k, reflect.TypeOf(dst.Interface()))
		}
		if fields[k] == nil {
			continue
		}
		v, err := toValue(dst, fd, fields[k])
		if err != nil {
			return fmt.Errorf("%s: %w", fd.FullName(), err)
		}
		dst.Set(fd, v)
	}
	return nil
}
