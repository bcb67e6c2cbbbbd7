package builder

import (
	"errors"
	"reflect"
	"testing"

	"github.com/chazu/ducktape/dispatch"
	"github.com/chazu/ducktape/proxy"
)

type Named interface {
	Name() string
	Greet(greeting string) string
}

type namedProxy struct{ proxy.Base }

func (p *namedProxy) Name() string { return proxy.Value[string](p.Forward("Name")) }

func (p *namedProxy) Greet(greeting string) string {
	return proxy.Value[string](p.Forward("Greet", greeting))
}

func TestObjectBuilder(t *testing.T) {
	c := dispatch.NewCache()
	e := Object().
		Set("Name", "built").
		Set("Shout", func(s string) string { return s + "!" }).
		SetAll(map[string]any{"b": 2, "a": 1}).
		Build()

	if got := e.Keys(); !reflect.DeepEqual(got, []string{"Name", "Shout", "a", "b"}) {
		t.Errorf("Unexpected keys %v", got)
	}
	if v, err := c.InvokeMember(e, "Shout", "hey"); err != nil || v != "hey!" {
		t.Errorf("Shout: got %v, %v", v, err)
	}

	l := List(1, 2)
	l.Add(3)
	if l.Count() != 3 {
		t.Errorf("Expected 3 items, got %d", l.Count())
	}
}

func TestPrototypeDressed(t *testing.T) {
	p := proxy.NewProjector(dispatch.NewCache())
	if err := proxy.AdapterFor[Named](p, (*namedProxy)(nil)); err != nil {
		t.Fatal(err)
	}
	n, err := As[Named](p,
		proxy.Field("Name", "proto"),
		proxy.Method("Greet", func(g string) string { return g + ", proto" }),
	)
	if err != nil {
		t.Fatal(err)
	}
	if n.Name() != "proto" || n.Greet("hi") != "hi, proto" {
		t.Errorf("Unexpected %q %q", n.Name(), n.Greet("hi"))
	}

	e, err := Prototype(proxy.PropertyOf[int]("Age"))
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := e.Get("Age"); v != 0 {
		t.Errorf("Expected zero Age, got %#v", v)
	}

	if _, err := Prototype(proxy.MethodSig("Greet")); err == nil {
		t.Error("Expected a method without implementation to fail")
	}
	if _, err := Prototype(
		proxy.Method("Greet", func() string { return "" }),
		proxy.Method("Greet", func(string) string { return "" }),
	); !errors.Is(err, dispatch.ErrAmbiguousMember) {
		t.Errorf("Expected overloads to be ambiguous in an expando, got %v", err)
	}
	if _, err := Prototype(proxy.Field("X", 1), proxy.Field("X", 2)); !errors.Is(err, dispatch.ErrAmbiguousMember) {
		t.Errorf("Expected duplicate property to fail, got %v", err)
	}
}

type point struct{ X, Y int }

func TestActivate(t *testing.T) {
	c := dispatch.NewCache()
	v, err := ActivateNamed(c, reflect.TypeFor[point](), []string{"X", "Y"}, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if p := v.(*point); p.X != 1 || p.Y != 2 {
		t.Errorf("Unexpected point %+v", p)
	}

	zero, err := ActivateAs[*point](c)
	if err != nil || *zero != (point{}) {
		t.Errorf("Expected zero point, got %v, %v", zero, err)
	}

	if err := c.RegisterConstructor(reflect.TypeFor[point](), func(x int) *point { return &point{X: x, Y: x} }); err != nil {
		t.Fatal(err)
	}
	v, err = Activate(c, reflect.TypeFor[point](), 4)
	if err != nil || *v.(*point) != (point{4, 4}) {
		t.Errorf("Expected {4 4}, got %v, %v", v, err)
	}
}

type calculator struct{ base int }

func (c calculator) Sum(a, b, d int) int { return c.base + a + b + d }

func TestCurry(t *testing.T) {
	c := dispatch.NewCache()
	add, err := Curry(c, func(a, b, d int) int { return a + b + d }, 0)
	if err != nil {
		t.Fatal(err)
	}
	if add.Arity() != 3 {
		t.Fatalf("Expected arity 3, got %d", add.Arity())
	}

	step, err := add.Apply(1)
	if err != nil {
		t.Fatal(err)
	}
	one := step.(*Curried)
	if one.Pending() != 2 || add.Pending() != 3 {
		t.Errorf("Expected applying to leave the original alone, got %d and %d", one.Pending(), add.Pending())
	}
	step, _ = one.Apply(2)
	v, err := step.(*Curried).Apply(3)
	if err != nil || v != 6 {
		t.Errorf("Expected 6, got %v, %v", v, err)
	}
	// Reuse a partial application.
	if v, _ := one.Apply(10, 10); v != 21 {
		t.Errorf("Expected 21, got %v", v)
	}
	if _, err := one.Apply(1, 2, 3); err == nil {
		t.Error("Expected too many arguments to fail")
	}

	// Curried values are callable through the cache.
	if v, err := c.Invoke(one, 1, 1); err != nil || v != 3 {
		t.Errorf("Expected 3 through Invoke, got %v, %v", v, err)
	}

	sum, err := CurryMember(c, calculator{base: 100}, "Sum", 3)
	if err != nil {
		t.Fatal(err)
	}
	step, _ = sum.Apply(1, 2)
	if v, _ := step.(*Curried).Apply(3); v != 106 {
		t.Errorf("Expected 106, got %v", v)
	}

	if _, err := Curry(c, func(xs ...int) {}, 0); err == nil {
		t.Error("Expected variadic func without arity to fail")
	}
}

func TestCurryAction(t *testing.T) {
	c := dispatch.NewCache()
	var got []string
	log, err := Curry(c, func(a, b string) { got = append(got, a+b) }, 2)
	if err != nil {
		t.Fatal(err)
	}
	step, _ := log.Apply("x")
	v, err := step.(*Curried).Apply("y")
	if err != nil || v != nil {
		t.Errorf("Expected nil result, got %v, %v", v, err)
	}
	if !reflect.DeepEqual(got, []string{"xy"}) {
		t.Errorf("Expected xy, got %v", got)
	}
}
