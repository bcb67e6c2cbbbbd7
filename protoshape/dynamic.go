package protoshape

import (
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/chazu/ducktape/dispatch"
	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// DynamicMessage presents a descriptor-driven message as a dispatch.Object.
// It behaves like Message for messages known only at run time, such as
// those of services discovered through reflection.
type DynamicMessage struct {
	msg *dynamic.Message
}

var _ dispatch.Object = (*DynamicMessage)(nil)

// WrapDynamic presents m as a dynamic object.
func WrapDynamic(m *dynamic.Message) *DynamicMessage {
	if m == nil {
		return nil
	}
	return &DynamicMessage{msg: m}
}

// NewDynamic creates an empty message of descriptor md.
func NewDynamic(md *desc.MessageDescriptor) *DynamicMessage {
	return &DynamicMessage{msg: dynamic.NewMessage(md)}
}

// NewDynamicFrom creates a message of descriptor md populated from fields.
func NewDynamicFrom(md *desc.MessageDescriptor, fields map[string]any) (*DynamicMessage, error) {
	d := NewDynamic(md)
	if err := d.fill(fields); err != nil {
		return nil, err
	}
	return d, nil
}

// Message returns the wrapped message.
func (d *DynamicMessage) Message() *dynamic.Message { return d.msg }

// Descriptor returns the message descriptor.
func (d *DynamicMessage) Descriptor() *desc.MessageDescriptor { return d.msg.GetMessageDescriptor() }

func (d *DynamicMessage) String() string { return d.msg.String() }

// Map returns the populated fields keyed by proto field name.
func (d *DynamicMessage) Map() map[string]any {
	out := make(map[string]any)
	for _, fd := range d.msg.GetKnownFields() {
		if !d.msg.HasField(fd) {
			continue
		}
		out[fd.GetName()] = plain(fromDynamic(fd, d.msg.GetField(fd)))
	}
	return out
}

func (d *DynamicMessage) field(name string) (*desc.FieldDescriptor, error) {
	md := d.msg.GetMessageDescriptor()
	if pfd := resolve(md.UnwrapMessage().Fields(), name); pfd != nil {
		if fd := md.FindFieldByNumber(int32(pfd.Number())); fd != nil {
			return fd, nil
		}
	}
	return nil, dispatch.NoSuchMember(name, reflect.TypeOf(d))
}

func (d *DynamicMessage) get(fd *desc.FieldDescriptor) (any, error) {
	if fd.GetMessageType() != nil && !fd.IsRepeated() && !d.msg.HasField(fd) {
		return nil, nil
	}
	v, err := d.msg.TryGetField(fd)
	if err != nil {
		return nil, err
	}
	return fromDynamic(fd, v), nil
}

// GetMember returns the value of the named field.
func (d *DynamicMessage) GetMember(name string) (any, error) {
	fd, err := d.field(name)
	if err != nil {
		return nil, err
	}
	return d.get(fd)
}

// SetMember assigns the named field. Nil clears it.
func (d *DynamicMessage) SetMember(name string, value any) error {
	fd, err := d.field(name)
	if err != nil {
		return err
	}
	if value == nil {
		d.msg.ClearField(fd)
		return nil
	}
	v, err := toDynamic(fd, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", fd.GetFullyQualifiedName(), err)
	}
	return d.msg.TrySetField(fd, v)
}

// InvokeMember supports the same methods as Message.InvokeMember.
func (d *DynamicMessage) InvokeMember(name string, args []any) (any, error) {
	switch name {
	case "Has", "Clear":
		if len(args) != 1 {
			return nil, fmt.Errorf("%s takes a field name, got %d arguments", name, len(args))
		}
		field, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("%s takes a field name, got %T", name, args[0])
		}
		fd, err := d.field(field)
		if err != nil {
			return nil, err
		}
		if name == "Has" {
			return d.msg.HasField(fd), nil
		}
		d.msg.ClearField(fd)
		return nil, nil
	case "Marshal":
		return d.msg.MarshalDeterministic()
	case "Unmarshal":
		if len(args) != 1 {
			return nil, fmt.Errorf("Unmarshal takes one argument, got %d", len(args))
		}
		b, ok := args[0].([]byte)
		if !ok {
			return nil, fmt.Errorf("Unmarshal takes []byte, got %T", args[0])
		}
		return nil, d.msg.Unmarshal(b)
	case "Clone":
		b, err := d.msg.Marshal()
		if err != nil {
			return nil, err
		}
		c := dynamic.NewMessage(d.msg.GetMessageDescriptor())
		if err := c.Unmarshal(b); err != nil {
			return nil, err
		}
		return WrapDynamic(c), nil
	case "String":
		return d.String(), nil
	}
	if pfd := getterField(d.msg.GetMessageDescriptor().UnwrapMessage().Fields(), name, args); pfd != nil {
		return d.get(d.msg.GetMessageDescriptor().FindFieldByNumber(int32(pfd.Number())))
	}
	return nil, dispatch.NoSuchMember(name, reflect.TypeOf(d))
}

func (d *DynamicMessage) fill(fields map[string]any) error {
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		if fields[k] == nil {
			if _, err := d.field(k); err != nil {
				return err
			}
			continue
		}
		if err := d.SetMember(k, fields[k]); err != nil {
			return err
		}
	}
	return nil
}

func fromDynamic(fd *desc.FieldDescriptor, v any) any {
	switch {
	case fd.IsMap():
		src, _ := v.(map[any]any)
		if fd.GetMapKeyType().UnwrapField().Kind() == protoreflect.StringKind {
			out := make(map[string]any, len(src))
			for k, e := range src {
				out[k.(string)] = dynamicElem(fd.GetMapValueType(), e)
			}
			return out
		}
		out := make(map[any]any, len(src))
		for k, e := range src {
			out[k] = dynamicElem(fd.GetMapValueType(), e)
		}
		return out
	case fd.IsRepeated():
		src, _ := v.([]any)
		out := make([]any, len(src))
		for i, e := range src {
			out[i] = dynamicElem(fd, e)
		}
		return out
	}
	return dynamicElem(fd, v)
}

func dynamicElem(fd *desc.FieldDescriptor, v any) any {
	switch x := v.(type) {
	case *dynamic.Message:
		return WrapDynamic(x)
	case proto.Message:
		return Wrap(x)
	case int32:
		if et := fd.GetEnumType(); et != nil {
			if ev := et.FindValueByNumber(x); ev != nil {
				return ev.GetName()
			}
		}
	}
	return v
}

func toDynamic(fd *desc.FieldDescriptor, value any) (any, error) {
	switch {
	case fd.IsMap():
		if fields, ok := fieldsOf(value); ok {
			value = fields
		}
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Map {
			return nil, fmt.Errorf("map field needs a map, got %T", value)
		}
		out := make(map[any]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k, err := dynamicScalar(fd.GetMapKeyType(), iter.Key().Interface())
			if err != nil {
				return nil, fmt.Errorf("key %v: %w", iter.Key(), err)
			}
			e, err := dynamicScalar(fd.GetMapValueType(), iter.Value().Interface())
			if err != nil {
				return nil, fmt.Errorf("[%v]: %w", iter.Key(), err)
			}
			out[k] = e
		}
		return out, nil
	case fd.IsRepeated():
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, fmt.Errorf("repeated field needs a slice, got %T", value)
		}
		out := make([]any, rv.Len())
		for i := range out {
			e, err := dynamicScalar(fd, rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = e
		}
		return out, nil
	}
	return dynamicScalar(fd, value)
}

func dynamicScalar(fd *desc.FieldDescriptor, v any) (any, error) {
	kind := fd.UnwrapField().Kind()
	switch kind {
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return dynamicMessage(fd.GetMessageType(), v)
	case protoreflect.EnumKind:
		switch x := v.(type) {
		case string:
			ev := fd.GetEnumType().FindValueByName(x)
			if ev == nil {
				return nil, fmt.Errorf("%s has no value %q", fd.GetEnumType().GetFullyQualifiedName(), x)
			}
			return ev.GetNumber(), nil
		case protoreflect.Enum:
			return int32(x.Number()), nil
		}
	case protoreflect.BytesKind:
		if s, ok := v.(string); ok {
			return []byte(s), nil
		}
	}
	rv, err := dispatch.Coerce(v, scalarType(kind))
	if err != nil {
		return nil, err
	}
	return rv.Interface(), nil
}

func dynamicMessage(md *desc.MessageDescriptor, v any) (*dynamic.Message, error) {
	switch x := v.(type) {
	case *DynamicMessage:
		v = x.msg
	case *Message:
		v = x.Proto()
	}
	out := dynamic.NewMessage(md)
	switch x := v.(type) {
	case *dynamic.Message:
		if name := x.GetMessageDescriptor().GetFullyQualifiedName(); name != md.GetFullyQualifiedName() {
			return nil, fmt.Errorf("cannot use %s as %s", name, md.GetFullyQualifiedName())
		}
		return x, nil
	case proto.Message:
		if name := string(x.ProtoReflect().Descriptor().FullName()); name != md.GetFullyQualifiedName() {
			return nil, fmt.Errorf("cannot use %s as %s", name, md.GetFullyQualifiedName())
		}
		b, err := proto.Marshal(x)
		if err != nil {
			return nil, err
		}
		if err := out.Unmarshal(b); err != nil {
			return nil, err
		}
		return out, nil
	}
	fields, ok := fieldsOf(v)
	if !ok {
		return nil, fmt.Errorf("cannot use %T as %s", v, md.GetFullyQualifiedName())
	}
	d := &DynamicMessage{msg: out}
	if err := d.fill(fields); err != nil {
		return nil, err
	}
	return out, nil
}

// ToDynamic converts v to a message of descriptor md. It accepts wrapped
// or raw messages of the same type, maps and mappers; nil yields an empty
// message.
func ToDynamic(md *desc.MessageDescriptor, v any) (*dynamic.Message, error) {
	if v == nil {
		return dynamic.NewMessage(md), nil
	}
	return dynamicMessage(md, v)
}
