package dispatch

import (
	"reflect"
	"sync"
	"testing"
)

func bindingReturning(v any) binding {
	return func(reflect.Value, []any) (any, error) { return v, nil }
}

func TestInlineCacheEmpty(t *testing.T) {
	var mega sync.Map
	if fn := emptyIC.lookup(reflect.TypeFor[int](), &mega); fn != nil {
		t.Error("Expected nil from empty cache")
	}
}

func TestInlineCacheMonomorphic(t *testing.T) {
	var mega sync.Map
	intType := reflect.TypeFor[int]()

	ic := emptyIC.update(intType, bindingReturning("int"), DefaultPolymorphicLimit, &mega)
	if ic.state != CacheMonomorphic {
		t.Errorf("Expected monomorphic state, got %v", ic.state)
	}
	if ic.size() != 1 {
		t.Errorf("Expected size 1, got %d", ic.size())
	}
	if emptyIC.state != CacheEmpty {
		t.Error("update must not mutate the previous state")
	}

	fn := ic.lookup(intType, &mega)
	if fn == nil {
		t.Fatal("Expected cache hit")
	}
	if v, _ := fn(reflect.Value{}, nil); v != "int" {
		t.Errorf("Expected cached binding, got %v", v)
	}

	if ic.lookup(reflect.TypeFor[string](), &mega) != nil {
		t.Error("Expected cache miss for different type")
	}
}

func TestInlineCacheUpgradeToPolymorphic(t *testing.T) {
	var mega sync.Map
	t1, t2 := reflect.TypeFor[int](), reflect.TypeFor[string]()

	ic := emptyIC.update(t1, bindingReturning(1), DefaultPolymorphicLimit, &mega)
	ic = ic.update(t2, bindingReturning(2), DefaultPolymorphicLimit, &mega)
	if ic.state != CachePolymorphic {
		t.Errorf("Expected polymorphic, got %v", ic.state)
	}
	if ic.size() != 2 {
		t.Errorf("Expected size 2, got %d", ic.size())
	}

	// Re-adding a known type is a no-op
	if again := ic.update(t1, bindingReturning(3), DefaultPolymorphicLimit, &mega); again != ic {
		t.Error("Expected unchanged cache for a known type")
	}
	if v, _ := ic.lookup(t1, &mega)(reflect.Value{}, nil); v != 1 {
		t.Errorf("Expected first binding to stay, got %v", v)
	}
}

func TestInlineCacheUpgradeToMegamorphic(t *testing.T) {
	var mega sync.Map
	types := []reflect.Type{
		reflect.TypeFor[int](),
		reflect.TypeFor[int8](),
		reflect.TypeFor[int16](),
		reflect.TypeFor[int32](),
	}

	ic := emptyIC
	for i, typ := range types {
		ic = ic.update(typ, bindingReturning(i), 3, &mega)
	}
	if ic.state != CacheMegamorphic {
		t.Fatalf("Expected megamorphic, got %v", ic.state)
	}
	if ic.size() != 0 {
		t.Errorf("Expected no inline entries when megamorphic, got %d", ic.size())
	}

	// Every type, including the one that overflowed, is still served.
	for i, typ := range types {
		fn := ic.lookup(typ, &mega)
		if fn == nil {
			t.Fatalf("Expected megamorphic hit for %s", typ)
		}
		if v, _ := fn(reflect.Value{}, nil); v != i {
			t.Errorf("Expected binding %d for %s, got %v", i, typ, v)
		}
	}
}

func TestInlineCacheIgnoresFailedBinding(t *testing.T) {
	var mega sync.Map
	if ic := emptyIC.update(reflect.TypeFor[int](), nil, DefaultPolymorphicLimit, &mega); ic != emptyIC {
		t.Error("Expected nil binding not to be cached")
	}
}

type shapeA struct{ Name string }
type shapeB struct{ Name string }

func TestCallSiteStates(t *testing.T) {
	c := NewCache(WithPolymorphicLimit(2))
	site := c.MustResolve(NewSignature(Get, "Name", nil, Args{}))

	if site.State() != CacheEmpty {
		t.Errorf("Expected empty, got %v", site.State())
	}
	if _, err := site.Call(shapeA{"a"}); err != nil {
		t.Fatal(err)
	}
	if site.State() != CacheMonomorphic {
		t.Errorf("Expected monomorphic, got %v", site.State())
	}
	if _, err := site.Call(&shapeB{"b"}); err != nil {
		t.Fatal(err)
	}
	if site.State() != CachePolymorphic {
		t.Errorf("Expected polymorphic, got %v", site.State())
	}
	if _, err := site.Call(map[string]any{"Name": "c"}); err != nil {
		t.Fatal(err)
	}
	if site.State() != CacheMegamorphic {
		t.Errorf("Expected megamorphic, got %v", site.State())
	}

	// Same types again are all hits.
	for _, target := range []any{shapeA{"a"}, &shapeB{"b"}, map[string]any{"Name": "c"}} {
		if _, err := site.Call(target); err != nil {
			t.Fatal(err)
		}
	}
	if site.Misses() != 3 || site.Hits() != 3 {
		t.Errorf("Expected 3 hits and 3 misses, got %d and %d", site.Hits(), site.Misses())
	}
	if rate := site.HitRate(); rate != 50 {
		t.Errorf("Expected 50%% hit rate, got %v", rate)
	}
}
