package expando

import (
	"fmt"
	"io"
	"reflect"
	"slices"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/ducktape/dispatch"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("expando: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

var intType = reflect.TypeFor[int]()

// kind tags a serialized value with its exact Go type.
type kind uint8

const (
	kindNil kind = iota
	kindBool
	kindInt
	kindInt8
	kindInt16
	kindInt32
	kindInt64
	kindUint
	kindUint8
	kindUint16
	kindUint32
	kindUint64
	kindFloat32
	kindFloat64
	kindString
	kindBytes
	kindExpando
	kindList
	kindMap
	kindSlice
)

var numberKinds = map[reflect.Type]kind{
	reflect.TypeFor[int]():     kindInt,
	reflect.TypeFor[int8]():    kindInt8,
	reflect.TypeFor[int16]():   kindInt16,
	reflect.TypeFor[int32]():   kindInt32,
	reflect.TypeFor[int64]():   kindInt64,
	reflect.TypeFor[uint]():    kindUint,
	reflect.TypeFor[uint8]():   kindUint8,
	reflect.TypeFor[uint16]():  kindUint16,
	reflect.TypeFor[uint32]():  kindUint32,
	reflect.TypeFor[uint64]():  kindUint64,
	reflect.TypeFor[float32](): kindFloat32,
	reflect.TypeFor[float64](): kindFloat64,
}

// node is the wire form of one value.
type node struct {
	Kind  kind     `cbor:"1,keyasint"`
	Int   int64    `cbor:"2,keyasint,omitempty"`
	Uint  uint64   `cbor:"3,keyasint,omitempty"`
	Float float64  `cbor:"4,keyasint,omitempty"`
	Str   string   `cbor:"5,keyasint,omitempty"`
	Bool  bool     `cbor:"6,keyasint,omitempty"`
	Bytes []byte   `cbor:"7,keyasint,omitempty"`
	Keys  []string `cbor:"8,keyasint,omitempty"`
	Items []node   `cbor:"9,keyasint,omitempty"`
}

func rejected(path string, format string, args ...any) error {
	return &dispatch.Error{Code: dispatch.ErrSerializationRejected, Member: path, Err: fmt.Errorf(format, args...)}
}

// Marshal encodes an *Expando or *List. Every value is checked before
// anything is encoded; funcs, channels, pointers, structs and named types
// are rejected with ErrSerializationRejected.
func Marshal(v any) ([]byte, error) {
	n, err := encodeRoot(v)
	if err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(n)
}

// Encode writes the encoding of v to w. Nothing is written when v holds
// a value that cannot be serialized.
func Encode(w io.Writer, v any) error {
	n, err := encodeRoot(v)
	if err != nil {
		return err
	}
	return cborEncMode.NewEncoder(w).Encode(n)
}

// Unmarshal decodes data produced by Marshal into an *Expando or *List.
func Unmarshal(data []byte) (any, error) {
	var n node
	if err := cbor.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("expando: unmarshal: %w", err)
	}
	if n.Kind != kindExpando && n.Kind != kindList {
		return nil, fmt.Errorf("expando: unmarshal: root is not a container")
	}
	return decode(n)
}

// UnmarshalExpando decodes data holding an *Expando.
func UnmarshalExpando(data []byte) (*Expando, error) {
	v, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}
	e, ok := v.(*Expando)
	if !ok {
		return nil, fmt.Errorf("expando: unmarshal: got %T", v)
	}
	return e, nil
}

// MarshalCBOR lets an expando be embedded in other CBOR documents.
func (e *Expando) MarshalCBOR() ([]byte, error) {
	return Marshal(e)
}

// UnmarshalCBOR replaces the contents of e.
func (e *Expando) UnmarshalCBOR(data []byte) error {
	d, err := UnmarshalExpando(data)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.keys, e.values = d.keys, d.values
	e.mu.Unlock()
	return nil
}

// MarshalCBOR lets a list be embedded in other CBOR documents.
func (l *List) MarshalCBOR() ([]byte, error) {
	return Marshal(l)
}

// UnmarshalCBOR replaces the contents of l.
func (l *List) UnmarshalCBOR(data []byte) error {
	v, err := Unmarshal(data)
	if err != nil {
		return err
	}
	d, ok := v.(*List)
	if !ok {
		return fmt.Errorf("expando: unmarshal: got %T", v)
	}
	l.mu.Lock()
	l.items = d.items
	l.mu.Unlock()
	return nil
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

type encoder struct {
	seen map[any]bool // containers, maps and slices on the current path
}

type (
	mapKey   uintptr
	sliceKey struct {
		ptr uintptr
		len int
	}
)

func encodeRoot(v any) (node, error) {
	switch v.(type) {
	case *Expando, *List:
	default:
		return node{}, rejected("", "%T is not an expando container", v)
	}
	enc := &encoder{seen: make(map[any]bool)}
	return enc.encode("$", v)
}

func (enc *encoder) encode(path string, v any) (node, error) {
	switch x := v.(type) {
	case nil:
		return node{Kind: kindNil}, nil
	case bool:
		return node{Kind: kindBool, Bool: x}, nil
	case string:
		return node{Kind: kindString, Str: x}, nil
	case []byte:
		return node{Kind: kindBytes, Bytes: slices.Clone(x)}, nil
	case *Expando:
		if x == nil {
			return node{Kind: kindNil}, nil
		}
		if err := enc.enter(path, x); err != nil {
			return node{}, err
		}
		defer delete(enc.seen, x)
		n := node{Kind: kindExpando}
		x.mu.RLock()
		keys := slices.Clone(x.keys)
		values := make([]any, len(keys))
		for i, k := range keys {
			values[i] = x.values[k]
		}
		x.mu.RUnlock()
		return enc.entries(path, n, keys, values)
	case *List:
		if x == nil {
			return node{Kind: kindNil}, nil
		}
		if err := enc.enter(path, x); err != nil {
			return node{}, err
		}
		defer delete(enc.seen, x)
		return enc.items(path, node{Kind: kindList}, x.Items())
	case map[string]any:
		key := mapKey(reflect.ValueOf(x).Pointer())
		if err := enc.enter(path, key); err != nil {
			return node{}, err
		}
		defer delete(enc.seen, key)
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		values := make([]any, len(keys))
		for i, k := range keys {
			values[i] = x[k]
		}
		return enc.entries(path, node{Kind: kindMap}, keys, values)
	case []any:
		if len(x) == 0 {
			return enc.items(path, node{Kind: kindSlice}, x)
		}
		key := sliceKey{ptr: reflect.ValueOf(x).Pointer(), len: len(x)}
		if err := enc.enter(path, key); err != nil {
			return node{}, err
		}
		defer delete(enc.seen, key)
		return enc.items(path, node{Kind: kindSlice}, x)
	}

	rv := reflect.ValueOf(v)
	k, ok := numberKinds[rv.Type()]
	if !ok {
		return node{}, rejected(path, "cannot serialize %T", v)
	}
	n := node{Kind: k}
	switch {
	case rv.CanInt():
		n.Int = rv.Int()
	case rv.CanUint():
		n.Uint = rv.Uint()
	default:
		n.Float = rv.Float()
	}
	return n, nil
}

func (enc *encoder) enter(path string, container any) error {
	if enc.seen[container] {
		return rejected(path, "container contains itself")
	}
	enc.seen[container] = true
	return nil
}

func (enc *encoder) entries(path string, n node, keys []string, values []any) (node, error) {
	n.Keys = keys
	n.Items = make([]node, len(values))
	for i, v := range values {
		child, err := enc.encode(path+"."+keys[i], v)
		if err != nil {
			return node{}, err
		}
		n.Items[i] = child
	}
	return n, nil
}

func (enc *encoder) items(path string, n node, values []any) (node, error) {
	n.Items = make([]node, len(values))
	for i, v := range values {
		child, err := enc.encode(fmt.Sprintf("%s[%d]", path, i), v)
		if err != nil {
			return node{}, err
		}
		n.Items[i] = child
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

func decode(n node) (any, error) {
	switch n.Kind {
	case kindNil:
		return nil, nil
	case kindBool:
		return n.Bool, nil
	case kindInt:
		return int(n.Int), nil
	case kindInt8:
		return int8(n.Int), nil
	case kindInt16:
		return int16(n.Int), nil
	case kindInt32:
		return int32(n.Int), nil
	case kindInt64:
		return n.Int, nil
	case kindUint:
		return uint(n.Uint), nil
	case kindUint8:
		return uint8(n.Uint), nil
	case kindUint16:
		return uint16(n.Uint), nil
	case kindUint32:
		return uint32(n.Uint), nil
	case kindUint64:
		return n.Uint, nil
	case kindFloat32:
		return float32(n.Float), nil
	case kindFloat64:
		return n.Float, nil
	case kindString:
		return n.Str, nil
	case kindBytes:
		if n.Bytes == nil {
			return []byte{}, nil
		}
		return n.Bytes, nil
	case kindExpando, kindMap:
		if len(n.Keys) != len(n.Items) {
			return nil, fmt.Errorf("expando: unmarshal: %d keys for %d values", len(n.Keys), len(n.Items))
		}
		values, err := decodeAll(n.Items)
		if err != nil {
			return nil, err
		}
		if n.Kind == kindMap {
			m := make(map[string]any, len(values))
			for i, k := range n.Keys {
				m[k] = values[i]
			}
			return m, nil
		}
		e := New()
		for i, k := range n.Keys {
			e.Set(k, values[i])
		}
		return e, nil
	case kindList:
		values, err := decodeAll(n.Items)
		if err != nil {
			return nil, err
		}
		return &List{items: values}, nil
	case kindSlice:
		values, err := decodeAll(n.Items)
		if err != nil {
			return nil, err
		}
		if values == nil {
			values = []any{}
		}
		return values, nil
	}
	return nil, fmt.Errorf("expando: unmarshal: unknown kind %d", n.Kind)
}

func decodeAll(nodes []node) ([]any, error) {
	if len(nodes) == 0 {
		return nil, nil
	}
	out := make([]any, len(nodes))
	for i, n := range nodes {
		v, err := decode(n)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
