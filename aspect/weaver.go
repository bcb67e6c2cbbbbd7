package aspect

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/ducktape/dispatch"
	"github.com/chazu/ducktape/proxy"
)

// ErrAspectRejected is returned when an aspect reported failure for an
// intercepted access.
var ErrAspectRejected = errors.New("aspect rejected the invocation")

var log = commonlog.GetLogger("ducktape.aspect")

// Option configures a Weaver.
type Option func(*settings)

type settings struct {
	ordering Ordering
}

// WithOrdering replaces the default category ordering.
func WithOrdering(o Ordering) Option {
	return func(s *settings) {
		if o != nil {
			s.ordering = o
		}
	}
}

// Weaver maps members of T to the aspects intercepting them and produces
// factories of intercepted instances. It accepts no more aspects once a
// factory has been created.
type Weaver[T any] struct {
	proj      *proxy.Projector
	construct func() (T, error)
	ordering  Ordering

	mu        sync.Mutex
	published bool
	cuts      []*pointcut
	seq       int
}

// pointcut is the aspects woven into one member projection, split by
// interception point. An unnamed member matches every access.
type pointcut struct {
	member  proxy.Member
	before  []entry
	instead []entry
	after   []entry
}

type entry struct {
	aspect Aspect
	seq    int
}

// NewWeaver creates a weaver whose factories construct targets with
// construct and dress them through p.
func NewWeaver[T any](p *proxy.Projector, construct func() (T, error), opts ...Option) *Weaver[T] {
	s := settings{ordering: DefaultOrdering()}
	for _, opt := range opts {
		opt(&s)
	}
	return &Weaver[T]{proj: p, construct: construct, ordering: s.ordering}
}

// Ordering returns the category ordering in effect.
func (w *Weaver[T]) Ordering() Ordering { return w.ordering }

// Published reports whether a factory has been created.
func (w *Weaver[T]) Published() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.published
}

// Weave registers every aspect of provider against each pointcut. Without
// pointcuts the aspects intercept every member.
func (w *Weaver[T]) Weave(provider Provider, pointcuts ...proxy.Member) (*Weaver[T], error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.published {
		return w, dispatch.Violation("weave after a factory was created")
	}
	if len(pointcuts) == 0 {
		pointcuts = []proxy.Member{{}}
	}
	aspects := provider.Aspects()
	for _, m := range pointcuts {
		cut := w.cutFor(m)
		for _, a := range aspects {
			if a == nil {
				continue
			}
			e := entry{aspect: a, seq: w.seq}
			w.seq++
			mode := a.Mode()
			if mode.Has(Before) {
				cut.before = addEntry(cut.before, e)
			}
			if mode.Has(Instead) {
				cut.instead = addEntry(cut.instead, e)
			}
			if mode.Has(After) {
				cut.after = addEntry(cut.after, e)
			}
		}
	}
	log.Debugf("wove %d aspects into %d pointcuts", len(aspects), len(pointcuts))
	return w, nil
}

func (w *Weaver[T]) cutFor(m proxy.Member) *pointcut {
	for _, cut := range w.cuts {
		if cut.member.Name == m.Name && cut.member.Kind == m.Kind && slices.Equal(cut.member.Args, m.Args) {
			return cut
		}
	}
	cut := &pointcut{member: m}
	w.cuts = append(w.cuts, cut)
	return cut
}

// addEntry appends e unless the same aspect instance is already present.
func addEntry(entries []entry, e entry) []entry {
	for _, have := range entries {
		if Same(have.aspect, e.aspect) {
			return entries
		}
	}
	return append(entries, e)
}

// CreateFactory publishes w and returns a function producing fresh
// targets intercepted by the woven aspects and presented as I. A failed
// build leaves w open for weaving.
func CreateFactory[I any, T any](w *Weaver[T]) (func() (I, error), error) {
	iface := reflect.TypeFor[I]()
	w.mu.Lock()
	if _, err := w.proj.BuildOrGetType(interceptedType, iface); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	w.published = true
	wv := &woven{cuts: w.cuts, ordering: w.ordering, cache: w.proj.Cache()}
	w.mu.Unlock()
	return func() (I, error) {
		target, err := w.construct()
		if err != nil {
			var zero I
			return zero, fmt.Errorf("construct %s: %w", reflect.TypeFor[T](), err)
		}
		return proxy.DressAs[I](w.proj, &Intercepted{target: target, woven: wv})
	}, nil
}

// ---------------------------------------------------------------------------
// Published state
// ---------------------------------------------------------------------------

// woven is the immutable aspect table shared by the instances of one
// factory. Plans are computed per access shape on first use.
type woven struct {
	cuts     []*pointcut
	ordering Ordering
	cache    *dispatch.Cache
	plans    sync.Map // planKey -> *plan
}

type plan struct {
	before  []Aspect
	instead []Aspect
	after   []Aspect
}

func (wv *woven) plan(inv *Invocation) *plan {
	key := planKey(inv)
	if p, ok := wv.plans.Load(key); ok {
		return p.(*plan)
	}
	var before, instead, after []entry
	for _, cut := range wv.cuts {
		if !matches(cut.member, inv) {
			continue
		}
		for _, e := range cut.before {
			before = addEntry(before, e)
		}
		for _, e := range cut.instead {
			instead = addEntry(instead, e)
		}
		for _, e := range cut.after {
			after = addEntry(after, e)
		}
	}
	p := &plan{before: wv.sorted(before), instead: wv.sorted(instead), after: wv.sorted(after)}
	actual, _ := wv.plans.LoadOrStore(key, p)
	return actual.(*plan)
}

// sorted orders entries by category priority, category number and
// registration order.
func (wv *woven) sorted(entries []entry) []Aspect {
	slices.SortStableFunc(entries, func(a, b entry) int {
		if c := wv.ordering.compare(a.aspect.Category(), b.aspect.Category()); c != 0 {
			return c
		}
		return a.seq - b.seq
	})
	out := make([]Aspect, len(entries))
	for i, e := range entries {
		out[i] = e.aspect
	}
	return out
}

// run performs inv through the plan. Every aspect runs and the results
// are ANDed; a Before failure skips the target, not the After aspects.
func (wv *woven) run(inv *Invocation, real func() (any, error)) (any, error) {
	p := wv.plan(inv)
	ok := true
	for _, a := range p.before {
		ok = a.InterceptBefore(inv) && ok
	}
	if ok {
		if len(p.instead) > 0 {
			for _, a := range p.instead {
				ok = a.InterceptInstead(inv) && ok
			}
		} else {
			inv.Result, inv.Err = real()
		}
	}
	for _, a := range p.after {
		ok = a.InterceptAfter(inv) && ok
	}

	switch {
	case inv.Err != nil:
		return nil, inv.Err
	case !ok:
		return nil, fmt.Errorf("%w: %s %s", ErrAspectRejected, inv.Kind, inv.Member)
	}
	return inv.Result, nil
}

func planKey(inv *Invocation) string {
	var b strings.Builder
	b.WriteString(inv.Kind.String())
	b.WriteString(" ")
	b.WriteString(inv.Member)
	for _, a := range inv.Args {
		b.WriteString(",")
		if t := reflect.TypeOf(a); t != nil {
			b.WriteString(t.PkgPath())
			b.WriteString(".")
			b.WriteString(t.String())
		}
	}
	return b.String()
}

// matches reports whether an access falls under the pointcut m.
func matches(m proxy.Member, inv *Invocation) bool {
	if m.Name == "" {
		return true
	}
	switch m.Kind {
	case proxy.PropertyMember:
		return m.Name == inv.Member && (inv.Kind == dispatch.Get || inv.Kind == dispatch.Set)
	case proxy.MethodMember:
		if name, ok := methodName(inv); !ok || name != m.Name {
			return false
		}
		if m.Args == nil {
			return true
		}
		if len(m.Args) != len(inv.Args) {
			return false
		}
		for i, pt := range m.Args {
			if !argFits(inv.Args[i], pt) {
				return false
			}
		}
		return true
	}
	return m.Name == inv.Member
}

// methodName returns the interface method an access was forwarded from.
// Proxies forward X() as Get X and SetX(v) as Set X.
func methodName(inv *Invocation) (string, bool) {
	switch inv.Kind {
	case dispatch.InvokeMember, dispatch.Get:
		return inv.Member, true
	case dispatch.Set:
		return "Set" + inv.Member, true
	}
	return "", false
}

func argFits(v any, pt reflect.Type) bool {
	if pt == nil {
		return true
	}
	at := reflect.TypeOf(v)
	switch {
	case at == nil:
		switch pt.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return true
		}
		return false
	case at.AssignableTo(pt):
		return true
	}
	return isNumber(at.Kind()) && isNumber(pt.Kind())
}

func isNumber(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64
}
