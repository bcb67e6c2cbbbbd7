package aspect

import (
	"strings"

	"github.com/google/uuid"

	"github.com/chazu/ducktape/dispatch"
)

// Mode is the set of interception points an aspect takes part in.
type Mode uint8

const (
	Before Mode = 1 << iota
	Instead
	After
)

// Has reports whether m includes every point in o.
func (m Mode) Has(o Mode) bool { return m&o == o && o != 0 }

func (m Mode) String() string {
	var parts []string
	for _, p := range []struct {
		mode Mode
		name string
	}{{Before, "Before"}, {Instead, "Instead"}, {After, "After"}} {
		if m.Has(p.mode) {
			parts = append(parts, p.name)
		}
	}
	if len(parts) == 0 {
		return "None"
	}
	return strings.Join(parts, "|")
}

// Invocation is one intercepted member access. Instead aspects produce the
// result by setting Result; After aspects may inspect or replace it.
type Invocation struct {
	Target any
	Kind   dispatch.Kind
	Member string
	Args   []any

	Result any
	Err    error
}

// Aspect is an interception hook. Each Intercept method reports whether
// the access may be considered successful.
type Aspect interface {
	InstanceID() uuid.UUID
	Category() Category
	Mode() Mode
	InterceptBefore(inv *Invocation) bool
	InterceptInstead(inv *Invocation) bool
	InterceptAfter(inv *Invocation) bool
}

// Base supplies identity and pass-through interception. Aspects embed it
// and override the Intercept methods they need.
type Base struct {
	id       uuid.UUID
	category Category
	mode     Mode
}

// NewBase creates a Base with a fresh random identity.
func NewBase(category Category, mode Mode) Base {
	return Base{id: uuid.New(), category: category, mode: mode}
}

func (b Base) InstanceID() uuid.UUID { return b.id }
func (b Base) Category() Category    { return b.category }
func (b Base) Mode() Mode            { return b.mode }

func (Base) InterceptBefore(*Invocation) bool  { return true }
func (Base) InterceptInstead(*Invocation) bool { return true }
func (Base) InterceptAfter(*Invocation) bool   { return true }

// Same reports whether a and b are the same aspect instance.
func Same(a, b Aspect) bool {
	return a.InstanceID() == b.InstanceID()
}

// Func builds an aspect from a single interception function, used for
// every point in mode.
func Func(category Category, mode Mode, fn func(*Invocation) bool) Aspect {
	return &funcAspect{Base: NewBase(category, mode), fn: fn}
}

type funcAspect struct {
	Base
	fn func(*Invocation) bool
}

func (a *funcAspect) InterceptBefore(inv *Invocation) bool  { return a.fn(inv) }
func (a *funcAspect) InterceptInstead(inv *Invocation) bool { return a.fn(inv) }
func (a *funcAspect) InterceptAfter(inv *Invocation) bool   { return a.fn(inv) }

// Provider supplies the aspects to weave.
type Provider interface {
	Aspects() []Aspect
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func() []Aspect

func (f ProviderFunc) Aspects() []Aspect { return f() }

// Provide returns a provider of a fixed list of aspects.
func Provide(aspects ...Aspect) Provider {
	return ProviderFunc(func() []Aspect { return aspects })
}
