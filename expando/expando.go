package expando

import (
	"bytes"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/chazu/ducktape/dispatch"
)

// Expando is an insertion-ordered dynamic dictionary. Its entries are
// members: properties for plain values, methods for funcs.
type Expando struct {
	mu     sync.RWMutex
	keys   []string
	values map[string]any
}

var (
	_ dispatch.Object  = (*Expando)(nil)
	_ dispatch.Indexer = (*Expando)(nil)
)

// New creates an empty expando.
func New() *Expando {
	return &Expando{values: make(map[string]any)}
}

// FromMap creates an expando holding m, with keys in sorted order.
func FromMap(m map[string]any) *Expando {
	e := New()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		e.Set(k, m[k])
	}
	return e
}

// Get returns the value stored under name.
func (e *Expando) Get(name string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.values[name]
	return v, ok
}

// Set stores value under name. New names go to the end.
func (e *Expando) Set(name string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.values[name]; !ok {
		e.keys = append(e.keys, name)
	}
	e.values[name] = value
}

// Delete removes name and reports whether it was present.
func (e *Expando) Delete(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.values[name]; !ok {
		return false
	}
	delete(e.values, name)
	e.keys = slices.DeleteFunc(e.keys, func(k string) bool { return k == name })
	return true
}

// Has reports whether name is present.
func (e *Expando) Has(name string) bool {
	_, ok := e.Get(name)
	return ok
}

// Keys returns the names in insertion order.
func (e *Expando) Keys() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.keys)
}

// Len returns the number of entries.
func (e *Expando) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.keys)
}

// Map returns a copy of the entries.
func (e *Expando) Map() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m := make(map[string]any, len(e.values))
	for k, v := range e.values {
		m[k] = v
	}
	return m
}

// Equal reports whether e and o hold equal entries. Order is ignored;
// nested containers compare by content.
func (e *Expando) Equal(o *Expando) bool {
	if e == o {
		return true
	}
	if e == nil || o == nil {
		return false
	}
	a, b := e.Map(), o.Map()
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		w, ok := b[k]
		if !ok || !equalValues(v, w) {
			return false
		}
	}
	return true
}

func (e *Expando) String() string {
	return fmt.Sprintf("expando%v", e.Keys())
}

// GetMember implements dispatch.Object.
func (e *Expando) GetMember(name string) (any, error) {
	v, ok := e.Get(name)
	if !ok {
		return nil, dispatch.NoSuchMember(name, reflect.TypeOf(e))
	}
	return v, nil
}

// SetMember implements dispatch.Object.
func (e *Expando) SetMember(name string, value any) error {
	e.Set(name, value)
	return nil
}

// InvokeMember calls a func-valued member.
func (e *Expando) InvokeMember(name string, args []any) (any, error) {
	fn, ok := e.Get(name)
	if !ok || fn == nil {
		return nil, dispatch.NoSuchMember(name, reflect.TypeOf(e))
	}
	return dispatch.CallFunc(name, fn, args...)
}

// GetIndex reads the entry named by a single string key.
func (e *Expando) GetIndex(keys []any) (any, error) {
	name, err := memberKey(keys)
	if err != nil {
		return nil, err
	}
	return e.GetMember(name)
}

// SetIndex writes the entry named by a single string key.
func (e *Expando) SetIndex(keys []any, value any) error {
	name, err := memberKey(keys)
	if err != nil {
		return err
	}
	e.Set(name, value)
	return nil
}

func memberKey(keys []any) (string, error) {
	if len(keys) != 1 {
		return "", fmt.Errorf("expando takes one key, got %d", len(keys))
	}
	name, ok := keys[0].(string)
	if !ok {
		return "", fmt.Errorf("expando key must be a string, got %T", keys[0])
	}
	return name, nil
}

func equalValues(a, b any) bool {
	switch x := a.(type) {
	case *Expando:
		y, ok := b.(*Expando)
		return ok && x.Equal(y)
	case *List:
		y, ok := b.(*List)
		return ok && x.Equal(y)
	case []byte:
		y, ok := b.([]byte)
		return ok && bytes.Equal(x, y)
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !equalValues(x[i], y[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, v := range x {
			w, ok := y[k]
			if !ok || !equalValues(v, w) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}
