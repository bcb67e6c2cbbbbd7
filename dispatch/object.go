package dispatch

import (
	"fmt"
	"reflect"
	"sync"
)

// Object is implemented by values whose members are only known at run
// time: expandos, informal projections, protobuf messages, remote services.
// Missing members must be reported with an error wrapping ErrNoSuchMember.
type Object interface {
	GetMember(name string) (any, error)
	SetMember(name string, value any) error
	InvokeMember(name string, args []any) (any, error)
}

// Indexer is implemented by values that support index access.
type Indexer interface {
	GetIndex(keys []any) (any, error)
	SetIndex(keys []any, value any) error
}

// Converter is implemented by values that know how to convert themselves.
type Converter interface {
	ConvertTo(t reflect.Type, explicit bool) (any, error)
}

// Callable is implemented by values that can be invoked directly.
type Callable interface {
	Call(args []any) (any, error)
}

// EventSource is the add/remove pair behind an event member.
type EventSource interface {
	AddHandler(handler any) error
	RemoveHandler(handler any) error
}

// Adapter presents values of foreign types as Objects. Adapts must decide
// by type alone, because its answer is cached per receiver type.
type Adapter interface {
	Adapts(t reflect.Type) bool
	Adapt(v any) Object
}

var (
	objectType      = reflect.TypeFor[Object]()
	indexerType     = reflect.TypeFor[Indexer]()
	converterType   = reflect.TypeFor[Converter]()
	callableType    = reflect.TypeFor[Callable]()
	eventSourceType = reflect.TypeFor[EventSource]()
	errorType       = reflect.TypeFor[error]()
	typeType        = reflect.TypeFor[reflect.Type]()
)

// Event is a multicast event: a list of handler funcs raised in order.
type Event struct {
	mu       sync.Mutex
	handlers []reflect.Value
}

// AddHandler appends a handler. The handler must be a func.
func (e *Event) AddHandler(handler any) error {
	hv := reflect.ValueOf(handler)
	if hv.Kind() != reflect.Func || hv.IsNil() {
		return fmt.Errorf("event handler must be a non-nil func, got %T", handler)
	}
	e.mu.Lock()
	e.handlers = append(e.handlers, hv)
	e.mu.Unlock()
	return nil
}

// RemoveHandler removes the most recently added handler with the same
// code pointer. Removing an unknown handler is not an error.
func (e *Event) RemoveHandler(handler any) error {
	hv := reflect.ValueOf(handler)
	if hv.Kind() != reflect.Func {
		return fmt.Errorf("event handler must be a func, got %T", handler)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.handlers) - 1; i >= 0; i-- {
		if e.handlers[i].Type() == hv.Type() && e.handlers[i].Pointer() == hv.Pointer() {
			e.handlers = append(e.handlers[:i], e.handlers[i+1:]...)
			return nil
		}
	}
	return nil
}

// Len returns the number of subscribed handlers.
func (e *Event) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers)
}

// Raise calls every handler with args. The first handler error stops the
// chain and is returned.
func (e *Event) Raise(args ...any) error {
	e.mu.Lock()
	handlers := make([]reflect.Value, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.Unlock()

	for _, h := range handlers {
		out, err := callWith(h, nil, args)
		if err != nil {
			return err
		}
		if _, err := collect(out); err != nil {
			return err
		}
	}
	return nil
}
