package dispatch

import (
	"errors"
	"reflect"
	"sync"
	"testing"
)

type person struct {
	Name string
	Age  int
}

func (p person) Greet() string { return "hello " + p.Name }

func TestResolveReturnsSameCallSite(t *testing.T) {
	c := NewCache()
	sig := NewSignature(InvokeMember, "Greet", nil, Args{})

	a, err := c.Resolve(sig)
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Resolve(NewSignature(InvokeMember, "Greet", nil, Args{}))
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("Expected identical call site for equal signatures")
	}
	if c.Len() != 1 {
		t.Errorf("Expected 1 call site, got %d", c.Len())
	}
}

func TestResolveConcurrent(t *testing.T) {
	c := NewCache()
	const n = 32

	sites := make([]*CallSite, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sites[i] = c.MustResolve(NewSignature(Get, "Name", reflect.TypeFor[person](), Args{}))
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if sites[i] != sites[0] {
			t.Fatalf("Expected one call site, got a different one at %d", i)
		}
	}
	if c.Len() != 1 {
		t.Errorf("Expected 1 call site, got %d", c.Len())
	}
}

func TestResolveEagerFailureIsNotCached(t *testing.T) {
	c := NewCache()
	_, err := c.Resolve(NewSignature(Get, "Missing", reflect.TypeFor[person](), Args{}))
	if !errors.Is(err, ErrNoSuchMember) {
		t.Fatalf("Expected ErrNoSuchMember, got %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("Expected nothing cached, got %d call sites", c.Len())
	}

	var de *Error
	if !errors.As(err, &de) || de.Member != "Missing" || de.Kind != Get {
		t.Errorf("Expected structured error for Missing, got %#v", err)
	}
}

func TestResolveEagerBindsConcreteContext(t *testing.T) {
	c := NewCache()
	site := c.MustResolve(NewSignature(Get, "Name", reflect.TypeFor[person](), Args{}))
	if site.State() != CacheMonomorphic {
		t.Errorf("Expected monomorphic after eager resolve, got %v", site.State())
	}

	v, err := site.Call(person{Name: "ada"})
	if err != nil {
		t.Fatal(err)
	}
	if v != "ada" {
		t.Errorf("Expected ada, got %v", v)
	}
	if site.Misses() != 0 {
		t.Errorf("Expected no misses, got %d", site.Misses())
	}
}

func TestResolveInterfaceContextIsLazy(t *testing.T) {
	c := NewCache()
	type greeter interface{ Greet() string }

	// Resolution cannot fail for an interface context: the receiver's
	// concrete type is unknown until the first call.
	site := c.MustResolve(NewSignature(InvokeMember, "Nope", reflect.TypeFor[greeter](), Args{}))
	if site.State() != CacheEmpty {
		t.Errorf("Expected empty cache, got %v", site.State())
	}
	if _, err := site.Call(person{}); !errors.Is(err, ErrNoSuchMember) {
		t.Errorf("Expected ErrNoSuchMember, got %v", err)
	}
	if site.State() != CacheEmpty {
		t.Error("Expected failed binding not to be cached")
	}
}

func TestResolveRejectsMixedArgumentModes(t *testing.T) {
	c := NewCache()
	c.MustResolve(NewSignature(InvokeMember, "Add", nil, Arity(2)))

	_, err := c.Resolve(NewSignature(InvokeMember, "Add", nil, Typed(reflect.TypeFor[int](), reflect.TypeFor[int]())))
	if !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("Expected ErrInvariantViolation, got %v", err)
	}

	// Different member, kind or context is a different family.
	if _, err := c.Resolve(NewSignature(InvokeMemberAction, "Add", nil, Typed(reflect.TypeFor[int]()))); err != nil {
		t.Errorf("Expected different kind to resolve, got %v", err)
	}
	if _, err := c.Resolve(NewSignature(InvokeMember, "Sub", nil, Typed(reflect.TypeFor[int]()))); err != nil {
		t.Errorf("Expected different name to resolve, got %v", err)
	}
}

func TestCallSiteChecksArgumentCount(t *testing.T) {
	c := NewCache()
	site := c.MustResolve(NewSignature(InvokeMember, "Greet", nil, Arity(1)))
	if _, err := site.Call(person{}); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("Expected ErrInvariantViolation, got %v", err)
	}
}

func TestCacheStatsAndReset(t *testing.T) {
	c := NewCache()
	greet := c.MustResolve(NewSignature(InvokeMember, "Greet", nil, Args{}))
	c.MustResolve(NewSignature(Get, "Age", nil, Args{}))

	for i := 0; i < 4; i++ {
		if _, err := greet.Call(person{Name: "x"}); err != nil {
			t.Fatal(err)
		}
	}

	st := c.Stats()
	if st.CallSites != 2 || st.Empty != 1 || st.Monomorphic != 1 {
		t.Errorf("Unexpected stats %+v", st)
	}
	if st.Hits != 3 || st.Misses != 1 {
		t.Errorf("Expected 3 hits and 1 miss, got %d and %d", st.Hits, st.Misses)
	}
	if st.HitRate != 75 || st.MonomorphicRate != 100 {
		t.Errorf("Expected 75%% hit rate and 100%% monomorphic, got %v and %v", st.HitRate, st.MonomorphicRate)
	}
	if st.Types != 1 {
		t.Errorf("Expected 1 member table, got %d", st.Types)
	}

	c.Reset()
	if c.Len() != 0 {
		t.Errorf("Expected empty cache after reset, got %d", c.Len())
	}
	if again := c.MustResolve(NewSignature(InvokeMember, "Greet", nil, Args{})); again == greet {
		t.Error("Expected a new call site after reset")
	}
	// Sites handed out before the reset keep working.
	if v, err := greet.Call(person{Name: "y"}); err != nil || v != "hello y" {
		t.Errorf("Expected old call site to work, got %v, %v", v, err)
	}
}

type countingAdapter struct{ adapted int }

type box struct{ fields map[string]any }

type boxObject struct{ b *box }

func (o boxObject) GetMember(name string) (any, error) {
	v, ok := o.b.fields[name]
	if !ok {
		return nil, NoSuchMember(name, reflect.TypeOf(o.b))
	}
	return v, nil
}

func (o boxObject) SetMember(name string, value any) error {
	o.b.fields[name] = value
	return nil
}

func (o boxObject) InvokeMember(name string, args []any) (any, error) {
	return nil, NoSuchMember(name, reflect.TypeOf(o.b))
}

func (a *countingAdapter) Adapts(t reflect.Type) bool {
	return t == reflect.TypeFor[*box]()
}

func (a *countingAdapter) Adapt(v any) Object {
	a.adapted++
	return boxObject{v.(*box)}
}

func TestUseAdapter(t *testing.T) {
	c := NewCache()
	a := &countingAdapter{}
	c.UseAdapter(a)

	b := &box{fields: map[string]any{"Color": "red"}}
	v, err := c.Get(b, "Color")
	if err != nil {
		t.Fatal(err)
	}
	if v != "red" {
		t.Errorf("Expected red, got %v", v)
	}
	if err := c.Set(b, "Color", "blue"); err != nil {
		t.Fatal(err)
	}
	if b.fields["Color"] != "blue" {
		t.Errorf("Expected blue, got %v", b.fields["Color"])
	}
	if a.adapted != 2 {
		t.Errorf("Expected 2 adaptations, got %d", a.adapted)
	}
	if _, ok := c.TryGet(b, "Missing"); ok {
		t.Error("Expected missing member to fail")
	}
}
