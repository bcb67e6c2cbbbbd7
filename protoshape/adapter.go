package protoshape

import (
	"reflect"

	"github.com/chazu/ducktape/dispatch"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/protobuf/proto"
)

var (
	protoMessageType   = reflect.TypeFor[proto.Message]()
	dynamicMessageType = reflect.TypeFor[*dynamic.Message]()
)

// Adapter lets a dispatch.Cache treat raw protobuf messages as dynamic
// objects, so their fields are members without wrapping them first.
type Adapter struct{}

var _ dispatch.Adapter = Adapter{}

// Adapts reports whether t is a protobuf message type.
func (Adapter) Adapts(t reflect.Type) bool {
	return t == dynamicMessageType || t.Implements(protoMessageType)
}

// Adapt wraps v, which must be of a type accepted by Adapts.
func (Adapter) Adapt(v any) dispatch.Object {
	if dm, ok := v.(*dynamic.Message); ok {
		return WrapDynamic(dm)
	}
	return Wrap(v.(proto.Message))
}

// Use registers the adapter on c.
func Use(c *dispatch.Cache) {
	c.UseAdapter(Adapter{})
}
