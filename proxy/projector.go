package proxy

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/ducktape/dispatch"
)

// Projector builds and caches proxy types and knows which adapter struct
// realizes each of them. Built types live as long as the Projector.
//
// A Projector is safe for concurrent use. Concurrent requests for the same
// descriptor yield one *Type; losers of the build race discard their work.
type Projector struct {
	cache *dispatch.Cache

	mu       sync.RWMutex
	types    map[reflect.Type][]*Type // by context type
	preloads []preload
	generic  map[reflect.Type]reflect.Type // interface -> adapter type

	maxArity int
	log      commonlog.Logger
}

type preload struct {
	adapter reflect.Type
	attr    Attribute
}

// Attribute states what a pre-loaded adapter was generated for. A nil
// Context means any context type.
type Attribute struct {
	Context    reflect.Type
	Interfaces []reflect.Type
}

// Option configures a Projector.
type Option func(*Projector)

// WithMaxArity sets the largest parameter count a forwarded method may have.
func WithMaxArity(n int) Option {
	return func(p *Projector) {
		if n > 0 {
			p.maxArity = n
		}
	}
}

// WithLogger replaces the projector's logger.
func WithLogger(log commonlog.Logger) Option {
	return func(p *Projector) {
		if log != nil {
			p.log = log
		}
	}
}

// NewProjector creates a projector that dispatches through cache.
func NewProjector(cache *dispatch.Cache, opts ...Option) *Projector {
	p := &Projector{
		cache:    cache,
		types:    make(map[reflect.Type][]*Type),
		generic:  make(map[reflect.Type]reflect.Type),
		maxArity: DefaultMaxArity,
		log:      commonlog.GetLogger("ducktape.proxy"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Cache returns the call-site cache the projector dispatches through.
func (p *Projector) Cache() *dispatch.Cache { return p.cache }

// MaxArity returns the configured parameter limit.
func (p *Projector) MaxArity() int { return p.maxArity }

// BuildOrGetType returns the proxy type presenting values of context as
// every interface in ifaces. Order and duplicates in ifaces do not matter.
// A failed build caches nothing.
func (p *Projector) BuildOrGetType(context reflect.Type, ifaces ...reflect.Type) (*Type, error) {
	d := Descriptor{Context: context, Interfaces: canonical(ifaces)}
	if len(d.Interfaces) == 0 {
		return nil, buildFailure(d, "no interfaces")
	}
	return p.buildOrGet(d, p.build)
}

// BuildOrGetInformal returns the proxy type exposing exactly the named
// properties of values of context.
func (p *Projector) BuildOrGetInformal(context reflect.Type, props map[string]reflect.Type) (*Type, error) {
	d := Descriptor{Context: context, Informal: make(map[string]reflect.Type, len(props))}
	for name, t := range props {
		d.Informal[name] = t
	}
	return p.buildOrGet(d, p.buildInformal)
}

func (p *Projector) buildOrGet(d Descriptor, build func(Descriptor) (*Type, error)) (*Type, error) {
	if t := p.lookup(d); t != nil {
		return t, nil
	}

	t, err := build(d)
	if err != nil {
		p.log.Debugf("build %s failed: %s", d, err)
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing := p.lookupLocked(d); existing != nil {
		return existing, nil
	}
	p.types[d.Context] = append(p.types[d.Context], t)
	p.log.Debugf("built %s with %d forwards", t, len(t.forwards))
	return t, nil
}

func (p *Projector) lookup(d Descriptor) *Type {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lookupLocked(d)
}

func (p *Projector) lookupLocked(d Descriptor) *Type {
	for _, t := range p.types[d.Context] {
		if t.desc.matches(d) {
			return t
		}
	}
	return nil
}

// Len returns the number of built proxy types.
func (p *Projector) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, ts := range p.types {
		n += len(ts)
	}
	return n
}

// ---------------------------------------------------------------------------
// Adapter registration
// ---------------------------------------------------------------------------

var proxyInterface = reflect.TypeFor[Proxy]()

// PreLoad registers adapter as the realization of attr. The adapter must
// be a pointer to a struct implementing Proxy and every interface in attr.
// It reports false with no error when the pair is already registered.
func (p *Projector) PreLoad(adapter reflect.Type, attr Attribute) (bool, error) {
	attr.Interfaces = canonical(attr.Interfaces)
	if err := validateAdapter(adapter, attr.Interfaces); err != nil {
		p.log.Warningf("rejected adapter %s: %s", typeName(adapter), err)
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pl := range p.preloads {
		if pl.attr.Context == attr.Context && sameSet(pl.attr.Interfaces, attr.Interfaces) {
			return false, nil
		}
	}
	p.preloads = append(p.preloads, preload{adapter: adapter, attr: attr})
	p.log.Debugf("preloaded %s", adapter)
	return true, nil
}

// Preload pairs an adapter type with its attribute, the form generated
// packages export from their Adapters function.
type Preload struct {
	Adapter   reflect.Type
	Attribute Attribute
}

// PreLoadAll registers every adapter, continuing past failures. It returns
// the number newly registered and the joined errors.
func (p *Projector) PreLoadAll(preloads ...Preload) (int, error) {
	var errs []error
	n := 0
	for _, pl := range preloads {
		ok, err := p.PreLoad(pl.Adapter, pl.Attribute)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			n++
		}
	}
	return n, errors.Join(errs...)
}

// AdapterFor registers the type of sample as the adapter for interface I
// in any context.
func AdapterFor[I any](p *Projector, sample Proxy) error {
	iface := reflect.TypeFor[I]()
	adapter := reflect.TypeOf(sample)
	if err := validateAdapter(adapter, []reflect.Type{iface}); err != nil {
		p.log.Warningf("rejected adapter %s: %s", typeName(adapter), err)
		return err
	}
	p.mu.Lock()
	p.generic[iface] = adapter
	p.mu.Unlock()
	return nil
}

func validateAdapter(adapter reflect.Type, ifaces []reflect.Type) error {
	if adapter == nil || adapter.Kind() != reflect.Pointer || adapter.Elem().Kind() != reflect.Struct {
		return &dispatch.Error{Code: dispatch.ErrBuildFailure, Type: adapter, Err: fmt.Errorf("adapter must be a pointer to a struct")}
	}
	if !adapter.Implements(proxyInterface) {
		return &dispatch.Error{Code: dispatch.ErrBuildFailure, Type: adapter, Err: fmt.Errorf("adapter does not embed proxy.Base")}
	}
	if len(ifaces) == 0 {
		return &dispatch.Error{Code: dispatch.ErrBuildFailure, Type: adapter, Err: fmt.Errorf("no interfaces")}
	}
	for _, iface := range ifaces {
		if iface.Kind() != reflect.Interface {
			return &dispatch.Error{Code: dispatch.ErrBuildFailure, Type: adapter, Err: fmt.Errorf("%s is not an interface", iface)}
		}
		if !adapter.Implements(iface) {
			return &dispatch.Error{Code: dispatch.ErrBuildFailure, Type: adapter, Err: fmt.Errorf("does not implement %s", iface)}
		}
	}
	return nil
}

// adapterFor finds the adapter realizing t. An exact pre-load wins over a
// context-free pre-load, which wins over a single-interface registration.
func (p *Projector) adapterFor(t *Type) (reflect.Type, error) {
	d := t.desc
	p.mu.RLock()
	defer p.mu.RUnlock()

	var anyContext reflect.Type
	for _, pl := range p.preloads {
		if !sameSet(pl.attr.Interfaces, d.Interfaces) {
			continue
		}
		switch pl.attr.Context {
		case d.Context:
			return pl.adapter, nil
		case nil:
			anyContext = pl.adapter
		}
	}
	if anyContext != nil {
		return anyContext, nil
	}
	if len(d.Interfaces) == 1 {
		if adapter, ok := p.generic[d.Interfaces[0]]; ok {
			return adapter, nil
		}
	}
	// A registered adapter covering a superset also realizes the set.
	for _, pl := range p.preloads {
		if (pl.attr.Context == nil || pl.attr.Context == d.Context) && covers(pl.adapter, d.Interfaces) {
			return pl.adapter, nil
		}
	}
	return nil, &dispatch.Error{Code: dispatch.ErrBuildFailure, Type: d.Context,
		Err: fmt.Errorf("no adapter registered for %s; generate one with ducktape gen", d)}
}

func covers(adapter reflect.Type, ifaces []reflect.Type) bool {
	return !slices.ContainsFunc(ifaces, func(iface reflect.Type) bool {
		return !adapter.Implements(iface)
	})
}
