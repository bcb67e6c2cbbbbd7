package aspect

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/chazu/ducktape/dispatch"
	"github.com/chazu/ducktape/proxy"
)

type Greeter interface {
	Name() string
	Greet(name string) string
}

type greeterProxy struct{ proxy.Base }

func (p *greeterProxy) Name() string { return proxy.Value[string](p.Forward("Name")) }

func (p *greeterProxy) Greet(name string) string {
	return proxy.Value[string](p.Forward("Greet", name))
}

type host struct {
	name  string
	calls int
}

func (h *host) Name() string { return h.name }

func (h *host) Greet(name string) string {
	h.calls++
	return "hello " + name
}

// recorder appends its category to a shared log at every point it joins.
type recorder struct {
	Base
	log *[]Category
	ok  bool
}

func newRecorder(c Category, mode Mode, log *[]Category) *recorder {
	return &recorder{Base: NewBase(c, mode), log: log, ok: true}
}

func (r *recorder) InterceptBefore(*Invocation) bool {
	*r.log = append(*r.log, r.Category())
	return r.ok
}

func (r *recorder) InterceptAfter(*Invocation) bool {
	*r.log = append(*r.log, r.Category())
	return r.ok
}

func newWeaver(t *testing.T, opts ...Option) (*Weaver[*host], *host) {
	t.Helper()
	p := proxy.NewProjector(dispatch.NewCache())
	if err := proxy.AdapterFor[Greeter](p, (*greeterProxy)(nil)); err != nil {
		t.Fatal(err)
	}
	h := &host{name: "h"}
	return NewWeaver(p, func() (*host, error) { return h, nil }, opts...), h
}

func greeter(t *testing.T, w *Weaver[*host]) Greeter {
	t.Helper()
	factory, err := CreateFactory[Greeter](w)
	if err != nil {
		t.Fatal(err)
	}
	g, err := factory()
	if err != nil {
		t.Fatal(err)
	}
	return g
}

var greetCut = proxy.MethodSig("Greet", reflect.TypeFor[string]())

func TestBeforeOrderFollowsCategory(t *testing.T) {
	w, _ := newWeaver(t)
	var log []Category
	provider := Provide(
		newRecorder(900, Before, &log),
		newRecorder(100, Before, &log),
		newRecorder(500, Before, &log),
	)
	if _, err := w.Weave(provider, greetCut); err != nil {
		t.Fatal(err)
	}
	g := greeter(t, w)
	if got := g.Greet("x"); got != "hello x" {
		t.Errorf("Expected hello x, got %q", got)
	}
	want := []Category{100, 500, 900}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("Expected %v, got %v", want, log)
	}
}

func TestCustomOrdering(t *testing.T) {
	w, _ := newWeaver(t, WithOrdering(OrderingOf(Persistence, Validation)))
	var log []Category
	if _, err := w.Weave(Provide(
		newRecorder(Validation, Before, &log),
		newRecorder(Category(5), Before, &log),
		newRecorder(Persistence, Before, &log),
	)); err != nil {
		t.Fatal(err)
	}
	greeter(t, w).Greet("x")
	// Unknown categories run after every ordered one.
	want := []Category{Persistence, Validation, Category(5)}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("Expected %v, got %v", want, log)
	}
}

func TestInsteadReplacesTarget(t *testing.T) {
	w, h := newWeaver(t)
	instead := Func(Caching, Instead, func(inv *Invocation) bool {
		inv.Result = "cached " + inv.Args[0].(string)
		return true
	})
	if _, err := w.Weave(Provide(instead), greetCut); err != nil {
		t.Fatal(err)
	}
	g := greeter(t, w)
	if got := g.Greet("x"); got != "cached x" {
		t.Errorf("Expected cached x, got %q", got)
	}
	if h.calls != 0 {
		t.Errorf("Expected the target not to be called, got %d calls", h.calls)
	}
	// Name has no Instead aspect and reaches the target.
	if g.Name() != "h" {
		t.Errorf("Expected h, got %q", g.Name())
	}
}

func TestTargetCalledWithoutInstead(t *testing.T) {
	w, h := newWeaver(t)
	var log []Category
	if _, err := w.Weave(Provide(newRecorder(Diagnostics, Before|After, &log)), greetCut); err != nil {
		t.Fatal(err)
	}
	g := greeter(t, w)
	g.Greet("a")
	g.Greet("b")
	if h.calls != 2 {
		t.Errorf("Expected 2 target calls, got %d", h.calls)
	}
	if len(log) != 4 {
		t.Errorf("Expected before and after on each call, got %v", log)
	}
}

func TestFailureRunsEveryAspect(t *testing.T) {
	w, h := newWeaver(t)
	var log []Category
	veto := newRecorder(Validation, Before, &log)
	veto.ok = false
	if _, err := w.Weave(Provide(
		veto,
		newRecorder(Security, Before, &log),
		newRecorder(Diagnostics, After, &log),
	), greetCut); err != nil {
		t.Fatal(err)
	}
	g := greeter(t, w)

	in := proxy.Target(g).(*Intercepted)
	_, err := in.InvokeMember("Greet", []any{"x"})
	if !errors.Is(err, ErrAspectRejected) {
		t.Fatalf("Expected ErrAspectRejected, got %v", err)
	}
	want := []Category{Validation, Security, Diagnostics}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("Expected every aspect to run, got %v", log)
	}
	if h.calls != 0 {
		t.Errorf("Expected the veto to skip the target, got %d calls", h.calls)
	}

	// Through the proxy, a method without an error result panics.
	defer func() {
		if err, _ := recover().(error); !errors.Is(err, ErrAspectRejected) {
			t.Errorf("Expected ErrAspectRejected panic, got %v", err)
		}
	}()
	g.Greet("x")
}

func TestAfterSeesResult(t *testing.T) {
	w, _ := newWeaver(t)
	upper := Func(DataBinding, After, func(inv *Invocation) bool {
		if s, ok := inv.Result.(string); ok {
			inv.Result = strings.ToUpper(s)
		}
		return true
	})
	if _, err := w.Weave(Provide(upper), proxy.PropertyOf[string]("Name")); err != nil {
		t.Fatal(err)
	}
	g := greeter(t, w)
	if g.Name() != "H" {
		t.Errorf("Expected H, got %q", g.Name())
	}
	if g.Greet("x") != "hello x" {
		t.Error("Expected Greet to be untouched by the Name pointcut")
	}
}

func TestWeaveAfterPublish(t *testing.T) {
	w, _ := newWeaver(t)
	var log []Category
	if _, err := w.Weave(Provide(newRecorder(Security, Before, &log)), greetCut); err != nil {
		t.Fatal(err)
	}
	factory, err := CreateFactory[Greeter](w)
	if err != nil {
		t.Fatal(err)
	}
	if !w.Published() {
		t.Error("Expected the weaver to be published")
	}

	late := newRecorder(Caching, Before, &log)
	if _, err := w.Weave(Provide(late), greetCut); !errors.Is(err, dispatch.ErrInvariantViolation) {
		t.Fatalf("Expected ErrInvariantViolation, got %v", err)
	}

	g, err := factory()
	if err != nil {
		t.Fatal(err)
	}
	g.Greet("x")
	if !reflect.DeepEqual(log, []Category{Security}) {
		t.Errorf("Expected the published aspects only, got %v", log)
	}
}

func TestSameAspectWovenOnce(t *testing.T) {
	w, _ := newWeaver(t)
	var log []Category
	r := newRecorder(Security, Before, &log)
	for range 2 {
		if _, err := w.Weave(Provide(r), greetCut); err != nil {
			t.Fatal(err)
		}
	}
	// A wildcard pointcut holding the same instance does not run it twice.
	if _, err := w.Weave(Provide(r)); err != nil {
		t.Fatal(err)
	}
	greeter(t, w).Greet("x")
	if len(log) != 1 {
		t.Errorf("Expected one interception, got %v", log)
	}
}

func TestCreateFactoryRejectsNonInterface(t *testing.T) {
	w, _ := newWeaver(t)
	if _, err := CreateFactory[int](w); !errors.Is(err, dispatch.ErrBuildFailure) {
		t.Errorf("Expected ErrBuildFailure, got %v", err)
	}
	// A failed factory does not publish the weaver.
	if w.Published() {
		t.Error("Expected the weaver to stay open")
	}
	var log []Category
	if _, err := w.Weave(Provide(newRecorder(Security, Before, &log)), greetCut); err != nil {
		t.Fatalf("Expected weaving to still work, got %v", err)
	}
	greeter(t, w).Greet("x")
	if len(log) != 1 {
		t.Errorf("Expected the late aspect to run, got %v", log)
	}
}

type Moody interface {
	Name() string
	SetMood(mood int)
}

type moodyProxy struct{ proxy.Base }

func (p *moodyProxy) Name() string { return proxy.Value[string](p.Forward("Name")) }

func (p *moodyProxy) SetMood(mood int) { proxy.Void(p.Forward("SetMood", mood)) }

type moodyHost struct {
	name string
	mood int
}

func (h *moodyHost) Name() string { return h.name }

func (h *moodyHost) SetMood(mood int) { h.mood = mood }

// Accessor-shaped methods are forwarded as Get and Set but are still
// matched by method pointcuts.
func TestMethodPointcutOnAccessors(t *testing.T) {
	p := proxy.NewProjector(dispatch.NewCache())
	if err := proxy.AdapterFor[Moody](p, (*moodyProxy)(nil)); err != nil {
		t.Fatal(err)
	}
	h := &moodyHost{name: "h"}
	w := NewWeaver(p, func() (*moodyHost, error) { return h, nil })

	var seen []any
	instead := Func(Validation, Instead, func(inv *Invocation) bool {
		seen = append(seen, inv.Args...)
		inv.Result = "woven"
		return true
	})
	if _, err := w.Weave(Provide(instead),
		proxy.MethodSig("Name"),
		proxy.MethodSig("SetMood", reflect.TypeFor[int]()),
	); err != nil {
		t.Fatal(err)
	}
	factory, err := CreateFactory[Moody](w)
	if err != nil {
		t.Fatal(err)
	}
	g, err := factory()
	if err != nil {
		t.Fatal(err)
	}

	if got := g.Name(); got != "woven" {
		t.Errorf("Expected the Instead aspect to answer Name, got %q", got)
	}
	g.SetMood(3)
	if h.mood != 0 {
		t.Errorf("Expected SetMood not to reach the target, got mood %d", h.mood)
	}
	if !reflect.DeepEqual(seen, []any{3}) {
		t.Errorf("Expected the aspect to see the SetMood argument, got %v", seen)
	}
}

func TestOrdering(t *testing.T) {
	o := DefaultOrdering()
	if o.Priority(Validation) >= o.Priority(Security) || o.Priority(Security) >= o.Priority(Persistence) {
		t.Error("Expected Validation < Security < Persistence")
	}
	if o.Priority(Category(12345)) != UnknownPriority {
		t.Error("Expected unknown categories to get UnknownPriority")
	}

	named, err := OrderingFromNames([]string{"Security", "Validation", "7"})
	if err != nil {
		t.Fatal(err)
	}
	want := []Category{Security, Validation, Category(7)}
	if got := named.Sorted(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if _, err := OrderingFromNames([]string{"Nope"}); err == nil {
		t.Error("Expected unknown name to fail")
	}
	if Validation.String() != "Validation" || Category(7).String() != "Category(7)" {
		t.Errorf("Unexpected names %s %s", Validation, Category(7))
	}
}

func TestIdentity(t *testing.T) {
	a := Func(Caching, Before, func(*Invocation) bool { return true })
	b := Func(Caching, Before, func(*Invocation) bool { return true })
	if Same(a, b) {
		t.Error("Expected distinct instances to differ")
	}
	if !Same(a, a) {
		t.Error("Expected an aspect to equal itself")
	}
	if (Before | After).String() != "Before|After" {
		t.Errorf("Unexpected mode %s", Before|After)
	}
}
