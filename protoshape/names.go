package protoshape

import (
	"reflect"

	"github.com/iancoleman/strcase"
	"github.com/tliron/commonlog"
	"google.golang.org/protobuf/reflect/protoreflect"
)

var log = commonlog.GetLogger("ducktape.protoshape")

// resolve finds the field a member name refers to. Names match the proto
// field name, the JSON name, or the snake case form of a Go style name,
// in that order.
func resolve(fields protoreflect.FieldDescriptors, name string) protoreflect.FieldDescriptor {
	if name == "" {
		return nil
	}
	if fd := fields.ByName(protoreflect.Name(name)); fd != nil {
		return fd
	}
	if fd := fields.ByJSONName(name); fd != nil {
		return fd
	}
	if fd := fields.ByName(protoreflect.Name(strcase.ToSnake(name))); fd != nil {
		return fd
	}
	return fields.ByJSONName(strcase.ToLowerCamel(name))
}

// getterField maps a zero-argument "GetXxx" call to field Xxx.
func getterField(fields protoreflect.FieldDescriptors, name string, args []any) protoreflect.FieldDescriptor {
	if len(args) != 0 || len(name) <= 3 || name[:3] != "Get" {
		return nil
	}
	return resolve(fields, name[3:])
}

// scalarType is the Go type a scalar field kind holds.
func scalarType(k protoreflect.Kind) reflect.Type {
	switch k {
	case protoreflect.BoolKind:
		return reflect.TypeFor[bool]()
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind, protoreflect.EnumKind:
		return reflect.TypeFor[int32]()
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return reflect.TypeFor[int64]()
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		return reflect.TypeFor[uint32]()
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return reflect.TypeFor[uint64]()
	case protoreflect.FloatKind:
		return reflect.TypeFor[float32]()
	case protoreflect.DoubleKind:
		return reflect.TypeFor[float64]()
	case protoreflect.StringKind:
		return reflect.TypeFor[string]()
	case protoreflect.BytesKind:
		return reflect.TypeFor[[]byte]()
	}
	return nil
}

// mapper is implemented by containers that can present themselves as a
// string keyed map, such as expandos and wrapped messages.
type mapper interface {
	Map() map[string]any
}

// fieldsOf returns the string keyed entries of a map or mapper value.
func fieldsOf(v any) (map[string]any, bool) {
	switch x := v.(type) {
	case map[string]any:
		return x, true
	case mapper:
		return x.Map(), true
	}
	return nil, false
}

// plain replaces wrapped messages by maps, recursively.
func plain(v any) any {
	switch x := v.(type) {
	case *Message:
		return x.Map()
	case *DynamicMessage:
		return x.Map()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plain(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = plain(e)
		}
		return out
	case map[any]any:
		out := make(map[any]any, len(x))
		for k, e := range x {
			out[k] = plain(e)
		}
		return out
	}
	return v
}
