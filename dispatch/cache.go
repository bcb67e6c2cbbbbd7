package dispatch

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/tliron/commonlog"
)

// Cache memoizes one CallSite per Signature, and the structural member
// tables of every receiver type its call sites have seen.
//
// A Cache is safe for concurrent use. Resolution of distinct signatures
// proceeds in parallel; a single mutex guards insertion so that concurrent
// resolution of the same missing signature yields one CallSite.
type Cache struct {
	mu       sync.Mutex
	sites    map[uint64][]*CallSite
	families map[family]ArgMode

	types sync.Map // reflect.Type -> *members

	extMu    sync.RWMutex
	adapters []Adapter
	ctors    map[reflect.Type][]reflect.Value

	limit int
	log   commonlog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithPolymorphicLimit sets how many receiver types a call site caches
// inline before going megamorphic.
func WithPolymorphicLimit(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithLogger replaces the cache's logger.
func WithLogger(log commonlog.Logger) Option {
	return func(c *Cache) {
		if log != nil {
			c.log = log
		}
	}
}

// NewCache creates an empty cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		sites:    make(map[uint64][]*CallSite),
		families: make(map[family]ArgMode),
		ctors:    make(map[reflect.Type][]reflect.Value),
		limit:    DefaultPolymorphicLimit,
		log:      commonlog.GetLogger("ducktape.dispatch"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PolymorphicLimit returns the configured inline cache limit.
func (c *Cache) PolymorphicLimit() int {
	return c.limit
}

// Resolve returns the call site for sig, creating it on first use. Every
// call with an equal signature returns the identical *CallSite.
//
// When the signature's context is a concrete type, structural resolution
// runs now and a failure is returned without caching anything.
func (c *Cache) Resolve(sig Signature) (*CallSite, error) {
	c.mu.Lock()
	if site := c.lookupLocked(sig); site != nil {
		c.mu.Unlock()
		return site, nil
	}
	if err := c.checkFamilyLocked(sig); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	// Build outside the lock; resolution may be slow.
	site := newCallSite(c, sig)
	if t := sig.context; t != nil && (sig.static || t.Kind() != reflect.Interface) {
		fn, err := c.bind(sig, t)
		if err != nil {
			return nil, err
		}
		site.ic.Store(site.ic.Load().update(t, fn, c.limit, &site.mega))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing := c.lookupLocked(sig); existing != nil {
		// Lost the race: discard our work.
		return existing, nil
	}
	if err := c.checkFamilyLocked(sig); err != nil {
		return nil, err
	}
	c.sites[sig.hash] = append(c.sites[sig.hash], site)
	if sig.args.mode != ArgsNone {
		c.families[sig.family()] = sig.args.mode
	}
	c.log.Debugf("new call site %s", sig)
	return site, nil
}

// MustResolve is like Resolve but panics on error.
func (c *Cache) MustResolve(sig Signature) *CallSite {
	site, err := c.Resolve(sig)
	if err != nil {
		panic(err)
	}
	return site
}

func (c *Cache) lookupLocked(sig Signature) *CallSite {
	for _, site := range c.sites[sig.hash] {
		if site.sig.Equal(sig) {
			return site
		}
	}
	return nil
}

// checkFamilyLocked rejects count-only and type-sequence signatures for
// the same member in one cache.
func (c *Cache) checkFamilyLocked(sig Signature) error {
	if sig.args.mode == ArgsNone {
		return nil
	}
	if mode, ok := c.families[sig.family()]; ok && mode != sig.args.mode {
		return Violation("%s mixes count-only and typed argument signatures", sig)
	}
	return nil
}

// Len returns the number of call sites in the cache.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, sites := range c.sites {
		n += len(sites)
	}
	return n
}

// Reset drops every call site and member table. Call sites already handed
// out keep working but are no longer shared.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.sites = make(map[uint64][]*CallSite)
	c.families = make(map[family]ArgMode)
	c.mu.Unlock()
	c.types.Clear()
}

// UseAdapter registers an adapter that presents foreign values as dynamic
// Objects for named member access. Adapters are consulted in registration
// order for receiver types that do not implement Object themselves, and
// only when a call site first sees the type.
func (c *Cache) UseAdapter(a Adapter) {
	c.extMu.Lock()
	c.adapters = append(c.adapters, a)
	c.extMu.Unlock()
}

func (c *Cache) adapterFor(t reflect.Type) Adapter {
	c.extMu.RLock()
	defer c.extMu.RUnlock()
	for _, a := range c.adapters {
		if a.Adapts(t) {
			return a
		}
	}
	return nil
}

// RegisterConstructor registers fn as a constructor of t for the
// Constructor kind. fn must be a func whose first result is assignable to
// t, optionally followed by an error.
func (c *Cache) RegisterConstructor(t reflect.Type, fn any) error {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func || fv.IsNil() {
		return fmt.Errorf("constructor for %s must be a func, got %T", t, fn)
	}
	ft := fv.Type()
	if valueResults(ft) != 1 || !ft.Out(0).AssignableTo(t) {
		return fmt.Errorf("constructor %s does not return %s", ft, t)
	}
	c.extMu.Lock()
	c.ctors[t] = append(c.ctors[t], fv)
	c.extMu.Unlock()
	return nil
}

// ---------------------------------------------------------------------------
// Call sites
// ---------------------------------------------------------------------------

// CallSite is the resolved, reusable dispatcher for one Signature. It binds
// lazily per concrete receiver type and never rebinds a type it has seen.
type CallSite struct {
	sig   Signature
	cache *Cache

	mu   sync.Mutex // serializes updates to ic
	ic   atomic.Pointer[inlineCache]
	mega sync.Map // reflect.Type -> binding, once megamorphic

	hits   atomic.Uint64
	misses atomic.Uint64
}

func newCallSite(c *Cache, sig Signature) *CallSite {
	s := &CallSite{sig: sig, cache: c}
	s.ic.Store(emptyIC)
	return s
}

// Signature returns the signature this call site answers.
func (s *CallSite) Signature() Signature {
	return s.sig
}

// State returns the current inline cache state.
func (s *CallSite) State() CacheState {
	return s.ic.Load().state
}

// Hits returns the number of calls served from the inline cache.
func (s *CallSite) Hits() uint64 { return s.hits.Load() }

// Misses returns the number of calls that had to bind.
func (s *CallSite) Misses() uint64 { return s.misses.Load() }

// HitRate returns the cache hit rate as a percentage (0-100).
func (s *CallSite) HitRate() float64 {
	hits, misses := s.Hits(), s.Misses()
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) * 100 / float64(total)
}

// Call performs the operation on target. For *Unknown kinds it returns the
// value of whichever form succeeded, nil for the action form.
func (s *CallSite) Call(target any, args ...any) (any, error) {
	v, err := s.call(target, args)
	if _, void := v.(noValue); void {
		return nil, err
	}
	return v, err
}

// Try performs the operation and reports the outcome. It is the entry point
// for the *Unknown kinds, but works for any kind.
func (s *CallSite) Try(target any, args ...any) Outcome {
	v, err := s.call(target, args)
	if err != nil {
		return Outcome{Err: err}
	}
	if _, void := v.(noValue); void {
		return Outcome{Void: true}
	}
	if s.sig.kind == InvokeMemberAction || s.sig.kind == InvokeAction {
		return Outcome{Void: true}
	}
	return Outcome{Value: v}
}

func (s *CallSite) call(target any, args []any) (any, error) {
	if err := s.checkArgs(args); err != nil {
		return nil, err
	}
	if s.sig.kind == Convert && target == nil {
		return convertValue(nil, s.sig.convType, s.sig.explicit)
	}

	recv, key, err := s.receiver(target)
	if err != nil {
		return nil, err
	}
	fn, err := s.binding(key)
	if err != nil {
		return nil, err
	}
	return fn(recv, args)
}

// receiver returns the receiver value and its inline cache key.
func (s *CallSite) receiver(target any) (reflect.Value, reflect.Type, error) {
	if s.sig.static {
		t, ok := target.(reflect.Type)
		if !ok || t == nil {
			return reflect.Value{}, nil, Violation("%s needs a reflect.Type receiver, got %T", s.sig, target)
		}
		return reflect.Value{}, t, nil
	}
	if target == nil {
		return reflect.Value{}, nil, noSuchMember(s.sig.kind, s.sig.name, nil, errors.New("nil receiver"))
	}
	rv := reflect.ValueOf(target)
	return rv, rv.Type(), nil
}

// binding returns the cached binding for receiver type t, binding on a miss.
func (s *CallSite) binding(t reflect.Type) (binding, error) {
	if fn := s.ic.Load().lookup(t, &s.mega); fn != nil {
		s.hits.Add(1)
		return fn, nil
	}
	s.misses.Add(1)

	fn, err := s.cache.bind(s.sig, t)
	if err != nil {
		// Failed bindings are not cached.
		return nil, err
	}
	s.cache.log.Debugf("bound %s for %s", s.sig, t)

	s.mu.Lock()
	defer s.mu.Unlock()
	ic := s.ic.Load()
	if prev := ic.lookup(t, &s.mega); prev != nil {
		return prev, nil
	}
	s.ic.Store(ic.update(t, fn, s.cache.limit, &s.mega))
	return fn, nil
}

// checkArgs rejects argument lists that contradict the signature.
func (s *CallSite) checkArgs(args []any) error {
	a := s.sig.args
	if a.mode != ArgsNone && len(args) != a.count {
		return Violation("%s called with %d arguments", s.sig, len(args))
	}
	if n := minArgs(s.sig.kind); len(args) < n {
		return Violation("%s needs at least %d arguments, got %d", s.sig, n, len(args))
	}
	return nil
}

func minArgs(k Kind) int {
	switch k {
	case Set, GetIndex, AddAssign, SubtractAssign:
		return 1
	case SetIndex:
		return 2
	}
	return 0
}

// Outcome is the result of an operation whose failure is an expected
// answer rather than an error condition.
type Outcome struct {
	Value any   // result of the value form
	Void  bool  // the action form ran; Value is nil
	Err   error // why the operation failed
}

// OK reports whether the operation succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// ---------------------------------------------------------------------------
// Statistics
// ---------------------------------------------------------------------------

// Stats holds aggregate call site statistics.
type Stats struct {
	CallSites       int     // Total number of call sites
	Monomorphic     int     // Call sites in monomorphic state
	Polymorphic     int     // Call sites in polymorphic state
	Megamorphic     int     // Call sites in megamorphic state
	Empty           int     // Call sites never used
	Types           int     // Receiver types with a member table
	Hits            uint64  // Total inline cache hits
	Misses          uint64  // Total inline cache misses
	HitRate         float64 // Overall hit rate percentage
	MonomorphicRate float64 // Percentage of used call sites that are monomorphic
}

// Stats gathers statistics from every call site in the cache.
func (c *Cache) Stats() Stats {
	var st Stats

	c.mu.Lock()
	for _, sites := range c.sites {
		for _, site := range sites {
			st.CallSites++
			switch site.State() {
			case CacheMonomorphic:
				st.Monomorphic++
			case CachePolymorphic:
				st.Polymorphic++
			case CacheMegamorphic:
				st.Megamorphic++
			case CacheEmpty:
				st.Empty++
			}
			st.Hits += site.Hits()
			st.Misses += site.Misses()
		}
	}
	c.mu.Unlock()

	c.types.Range(func(_, _ any) bool {
		st.Types++
		return true
	})

	if total := st.Hits + st.Misses; total > 0 {
		st.HitRate = float64(st.Hits) * 100 / float64(total)
	}
	if used := st.CallSites - st.Empty; used > 0 {
		st.MonomorphicRate = float64(st.Monomorphic) * 100 / float64(used)
	}
	return st
}
