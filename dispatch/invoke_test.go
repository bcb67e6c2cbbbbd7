package dispatch

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
)

type widget struct {
	Title   string
	Count   int
	Tags    []string
	OnClick func(int) string
	Changed Event

	did int
}

func (w *widget) DoThing()                { w.did++ }
func (w *widget) Compute() int            { return 42 }
func (w *widget) Scale(f float64) float64 { return float64(w.Count) * f }
func (w *widget) Fail() (int, error)      { return 0, errors.New("boom") }
func (w *widget) Label() string           { return "label:" + w.Title }
func (w *widget) SetLabel(s string)       { w.Title = s }
func (w *widget) Sum(xs ...int) int {
	total := 0
	for _, x := range xs {
		total += x
	}
	return total
}

type conflicted struct{ Size int }

func (conflicted) GetSize() int { return 1 }

func TestGet(t *testing.T) {
	c := NewCache()
	w := &widget{Title: "t"}

	if v, err := c.Get(w, "Title"); err != nil || v != "t" {
		t.Errorf("field: got %v, %v", v, err)
	}
	if v, err := c.Get(w, "Label"); err != nil || v != "label:t" {
		t.Errorf("getter method: got %v, %v", v, err)
	}
	if v, err := c.Get(map[string]int{"Age": 30}, "Age"); err != nil || v != 30 {
		t.Errorf("map key: got %v, %v", v, err)
	}
	if _, err := c.Get(w, "Nope"); !errors.Is(err, ErrNoSuchMember) {
		t.Errorf("Expected ErrNoSuchMember, got %v", err)
	}
	if _, err := c.Get(map[string]int{}, "Age"); !errors.Is(err, ErrNoSuchMember) {
		t.Errorf("Expected ErrNoSuchMember for missing key, got %v", err)
	}
	if _, err := c.Get(conflicted{}, "Size"); !errors.Is(err, ErrAmbiguousMember) {
		t.Errorf("Expected ErrAmbiguousMember, got %v", err)
	}
	if _, err := c.Get(nil, "Title"); !errors.Is(err, ErrNoSuchMember) {
		t.Errorf("Expected ErrNoSuchMember for nil receiver, got %v", err)
	}
}

func TestGetEventFieldReturnsAddress(t *testing.T) {
	c := NewCache()
	w := &widget{}
	v, err := c.Get(w, "Changed")
	if err != nil {
		t.Fatal(err)
	}
	if v != &w.Changed {
		t.Errorf("Expected pointer to the event field, got %T", v)
	}
}

func TestSet(t *testing.T) {
	c := NewCache()
	w := &widget{}

	if err := c.Set(w, "Count", 3); err != nil {
		t.Fatal(err)
	}
	if w.Count != 3 {
		t.Errorf("Expected 3, got %d", w.Count)
	}
	if err := c.Set(w, "Label", "via setter"); err != nil {
		t.Fatal(err)
	}
	if w.Title != "via setter" {
		t.Errorf("Expected setter to run, got %q", w.Title)
	}
	if err := c.Set(w, "Count", "three"); err == nil {
		t.Error("Expected type error")
	}

	// A struct held by value has no settable fields.
	if err := c.Set(person{}, "Name", "x"); !errors.Is(err, ErrNoSuchMember) {
		t.Errorf("Expected ErrNoSuchMember, got %v", err)
	}
	if c.TrySet(person{}, "Name", "x") {
		t.Error("Expected TrySet to fail")
	}

	m := map[string]any{}
	if err := c.Set(m, "Age", 30); err != nil {
		t.Fatal(err)
	}
	if m["Age"] != 30 {
		t.Errorf("Expected map entry, got %v", m["Age"])
	}
}

func TestIndex(t *testing.T) {
	c := NewCache()
	s := []string{"a", "b"}

	if v, err := c.GetIndex(s, 1); err != nil || v != "b" {
		t.Errorf("slice: got %v, %v", v, err)
	}
	if err := c.SetIndex(s, "z", 0); err != nil || s[0] != "z" {
		t.Errorf("slice set: got %v, %v", s, err)
	}
	if _, err := c.GetIndex(s, 5); err == nil {
		t.Error("Expected out of range error")
	}
	if v, err := c.GetIndex("hey", 1); err != nil || v != uint8('e') {
		t.Errorf("string: got %v, %v", v, err)
	}

	m := map[string]int{"x": 1}
	if v, err := c.GetIndex(m, "x"); err != nil || v != 1 {
		t.Errorf("map: got %v, %v", v, err)
	}
	if err := c.SetIndex(m, 2, "y"); err != nil || m["y"] != 2 {
		t.Errorf("map set: got %v, %v", m, err)
	}
	if _, err := c.GetIndex(m, "nope"); !errors.Is(err, ErrNoSuchMember) {
		t.Errorf("Expected ErrNoSuchMember, got %v", err)
	}

	arr := [2]int{1, 2}
	if err := c.SetIndex(arr, 5, 0); !errors.Is(err, ErrNoSuchMember) {
		t.Errorf("Expected array value to be read-only, got %v", err)
	}
	if err := c.SetIndex(&arr, 5, 0); err != nil || arr[0] != 5 {
		t.Errorf("array pointer set: got %v, %v", arr, err)
	}
	if _, err := c.GetIndex(42, 0); !errors.Is(err, ErrNoSuchMember) {
		t.Errorf("Expected ErrNoSuchMember for int, got %v", err)
	}
}

func TestInvokeMember(t *testing.T) {
	c := NewCache()
	w := &widget{Count: 2, OnClick: func(n int) string { return fmt.Sprint("clicked ", n) }}

	if v, err := c.InvokeMember(w, "Scale", 1.5); err != nil || v != 3.0 {
		t.Errorf("method: got %v, %v", v, err)
	}
	if v, err := c.InvokeMember(w, "Scale", 2); err != nil || v != 4.0 {
		t.Errorf("int argument to float parameter: got %v, %v", v, err)
	}
	if v, err := c.InvokeMember(w, "Sum", 1, 2, 3); err != nil || v != 6 {
		t.Errorf("variadic: got %v, %v", v, err)
	}
	if v, err := c.InvokeMember(w, "OnClick", 7); err != nil || v != "clicked 7" {
		t.Errorf("func field: got %v, %v", v, err)
	}
	if _, err := c.InvokeMember(w, "Fail"); err == nil || err.Error() != "boom" {
		t.Errorf("Expected method error, got %v", err)
	}
	if _, err := c.InvokeMember(w, "DoThing"); !errors.Is(err, ErrNoSuchMember) {
		t.Errorf("Expected void method to fail the value form, got %v", err)
	}
	if _, err := c.InvokeMember(w, "Scale"); !errors.Is(err, ErrNoSuchMember) {
		t.Errorf("Expected wrong arity to fail, got %v", err)
	}

	if err := c.InvokeMemberAction(w, "DoThing"); err != nil {
		t.Fatal(err)
	}
	if err := c.InvokeMemberAction(w, "Compute"); err != nil {
		t.Fatal(err)
	}
	if w.did != 1 {
		t.Errorf("Expected DoThing to run once, ran %d", w.did)
	}

	fns := map[string]any{"Double": func(x int) int { return x * 2 }}
	if v, err := c.InvokeMember(fns, "Double", 21); err != nil || v != 42 {
		t.Errorf("map func: got %v, %v", v, err)
	}
}

func TestInvokeMemberUnknownFallback(t *testing.T) {
	c := NewCache()
	w := &widget{}

	o := c.InvokeMemberUnknown(w, "DoThing")
	if !o.OK() || !o.Void || o.Value != nil {
		t.Errorf("Expected void success, got %+v", o)
	}
	if w.did != 1 {
		t.Errorf("Expected DoThing to run once, ran %d", w.did)
	}

	o = c.InvokeMemberUnknown(w, "Compute")
	if !o.OK() || o.Void || o.Value != 42 {
		t.Errorf("Expected value 42, got %+v", o)
	}

	if v, ok := c.TryInvokeMember(w, "Missing"); ok || v != nil {
		t.Errorf("Expected failure, got %v, %v", v, ok)
	}

	fns := map[string]any{
		"Ping": func() {},
		"Pong": func() string { return "pong" },
	}
	if o := c.InvokeMemberUnknown(fns, "Ping"); !o.OK() || !o.Void {
		t.Errorf("Expected void map func, got %+v", o)
	}
	if o := c.InvokeMemberUnknown(fns, "Pong"); !o.OK() || o.Value != "pong" {
		t.Errorf("Expected pong, got %+v", o)
	}
}

func TestInvoke(t *testing.T) {
	c := NewCache()
	add := func(a, b int) int { return a + b }
	ran := false
	act := func() { ran = true }

	if v, err := c.Invoke(add, 1, 2); err != nil || v != 3 {
		t.Errorf("Invoke: got %v, %v", v, err)
	}
	if _, err := c.Invoke(act); !errors.Is(err, ErrNoSuchMember) {
		t.Errorf("Expected action to fail the value form, got %v", err)
	}
	if o := c.InvokeUnknown(act); !o.OK() || !o.Void || !ran {
		t.Errorf("Expected void fallback, got %+v", o)
	}
	if v, ok := c.TryInvoke(add, 2, 2); !ok || v != 4 {
		t.Errorf("TryInvoke: got %v, %v", v, ok)
	}
	if _, ok := c.TryInvoke("not a func"); ok {
		t.Error("Expected non-func to fail")
	}
	if err := c.InvokeAction(add, 1, 1); err != nil {
		t.Error(err)
	}
}

func TestConstruct(t *testing.T) {
	c := NewCache()
	pt := reflect.TypeFor[person]()

	v, err := c.Construct(pt)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := v.(*person); !ok {
		t.Errorf("Expected *person, got %T", v)
	}

	v, err = c.ConstructNamed(pt, []string{"Name", "Age"}, "ada", 36)
	if err != nil {
		t.Fatal(err)
	}
	if p := v.(*person); p.Name != "ada" || p.Age != 36 {
		t.Errorf("Expected named fields to be set, got %+v", p)
	}

	if _, err := c.Construct(pt, "ada"); !errors.Is(err, ErrNoSuchMember) {
		t.Errorf("Expected ErrNoSuchMember without a constructor, got %v", err)
	}
	if err := c.RegisterConstructor(pt, func(name string) person { return person{Name: name} }); err != nil {
		t.Fatal(err)
	}
	v, err = c.Construct(pt, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if v.(person).Name != "bob" {
		t.Errorf("Expected registered constructor, got %v", v)
	}

	if err := c.RegisterConstructor(pt, "nope"); err == nil {
		t.Error("Expected non-func constructor to be rejected")
	}

	m, err := c.ConstructNamed(reflect.TypeFor[map[string]int](), []string{"a"}, 1)
	if err != nil || m.(map[string]int)["a"] != 1 {
		t.Errorf("map constructor: got %v, %v", m, err)
	}
}

func TestConstructAmbiguous(t *testing.T) {
	c := NewCache()
	pt := reflect.TypeFor[person]()
	c.RegisterConstructor(pt, func(name string) person { return person{Name: name} })
	c.RegisterConstructor(pt, func(age int) person { return person{Age: age} })

	if _, err := c.Construct(pt, "x"); !errors.Is(err, ErrAmbiguousMember) {
		t.Errorf("Expected ErrAmbiguousMember for count-only resolution, got %v", err)
	}

	// Count-only and typed signatures do not mix in one cache.
	if _, err := c.Resolve(NewSignature(Constructor, "", nil, Typed(reflect.TypeFor[int]()))); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("Expected ErrInvariantViolation, got %v", err)
	}

	// Typed resolution tells the two apart.
	typed := NewCache()
	typed.RegisterConstructor(pt, func(name string) person { return person{Name: name} })
	typed.RegisterConstructor(pt, func(age int) person { return person{Age: age} })
	site := typed.MustResolve(NewSignature(Constructor, "", nil, Typed(reflect.TypeFor[int]())))
	v, err := site.Call(pt, 7)
	if err != nil {
		t.Fatal(err)
	}
	if v.(person).Age != 7 {
		t.Errorf("Expected age constructor, got %+v", v)
	}
}

func TestInvokeStatic(t *testing.T) {
	c := NewCache()
	v, err := c.InvokeStatic(reflect.TypeFor[person](), "Greet", person{Name: "ann"})
	if err != nil {
		t.Fatal(err)
	}
	if v != "hello ann" {
		t.Errorf("Expected hello ann, got %v", v)
	}
	if _, err := c.InvokeStatic(reflect.TypeFor[person](), "Nope"); !errors.Is(err, ErrNoSuchMember) {
		t.Errorf("Expected ErrNoSuchMember, got %v", err)
	}

	site := c.MustResolve(NewSignature(Get, "Greet", nil, Args{}, Static()))
	if _, err := site.Call(person{}); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("Expected static call without a type to fail, got %v", err)
	}
	fn, err := site.Call(reflect.TypeFor[person]())
	if err != nil {
		t.Fatal(err)
	}
	if got := fn.(func(person) string)(person{Name: "m"}); got != "hello m" {
		t.Errorf("Expected method expression, got %q", got)
	}
}

func TestAddAssign(t *testing.T) {
	c := NewCache()
	w := &widget{Count: 1, Tags: []string{"a"}}

	if err := c.AddAssign(w, "Count", 4); err != nil {
		t.Fatal(err)
	}
	if err := c.SubtractAssign(w, "Count", 2); err != nil {
		t.Fatal(err)
	}
	if w.Count != 3 {
		t.Errorf("Expected 3, got %d", w.Count)
	}
	if err := c.AddAssign(w, "Title", "!"); err != nil || w.Title != "!" {
		t.Errorf("string +=: got %q, %v", w.Title, err)
	}
	if err := c.AddAssign(w, "Tags", "b"); err != nil {
		t.Fatal(err)
	}
	if err := c.SubtractAssign(w, "Tags", "a"); err != nil {
		t.Fatal(err)
	}
	if len(w.Tags) != 1 || w.Tags[0] != "b" {
		t.Errorf("Expected [b], got %v", w.Tags)
	}
	if err := c.SubtractAssign(w, "Title", "x"); !errors.Is(err, ErrNoSuchMember) {
		t.Errorf("Expected -= on a string to fail, got %v", err)
	}

	// Events take the handler rather than being read and written back.
	var got []int
	h := func(n int) { got = append(got, n) }
	if err := c.AddAssign(w, "Changed", h); err != nil {
		t.Fatal(err)
	}
	if w.Changed.Len() != 1 {
		t.Fatalf("Expected 1 handler, got %d", w.Changed.Len())
	}
	if err := w.Changed.Raise(5); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != 5 {
		t.Errorf("Expected handler to see 5, got %v", got)
	}
	if err := c.SubtractAssign(w, "Changed", h); err != nil {
		t.Fatal(err)
	}
	if w.Changed.Len() != 0 {
		t.Errorf("Expected handler removed, got %d", w.Changed.Len())
	}
}

func TestIsEvent(t *testing.T) {
	c := NewCache()
	w := &widget{}
	if !c.IsEvent(w, "Changed") {
		t.Error("Expected Changed to be an event")
	}
	if c.IsEvent(w, "Count") {
		t.Error("Expected Count not to be an event")
	}
	if c.IsEvent(w, "Missing") {
		t.Error("Expected missing member not to be an event")
	}
}

type celsius float64

type temperature struct{ c float64 }

func (t temperature) ConvertTo(to reflect.Type, explicit bool) (any, error) {
	if to == reflect.TypeFor[celsius]() {
		return celsius(t.c), nil
	}
	return nil, fmt.Errorf("cannot convert to %s", to)
}

func TestConvert(t *testing.T) {
	c := NewCache()
	i64 := reflect.TypeFor[int64]()

	if v, err := c.Convert(int32(5), i64, false); err != nil || v != int64(5) {
		t.Errorf("widening: got %v, %v", v, err)
	}
	if _, err := c.Convert(3.5, i64, false); !errors.Is(err, ErrNoSuchMember) {
		t.Errorf("Expected implicit narrowing to fail, got %v", err)
	}
	if v, err := c.Convert(3.5, i64, true); err != nil || v != int64(3) {
		t.Errorf("explicit: got %v, %v", v, err)
	}
	if _, err := c.Convert(65, reflect.TypeFor[string](), true); !errors.Is(err, ErrNoSuchMember) {
		t.Errorf("Expected int to string to fail, got %v", err)
	}
	if v, err := c.Convert(temperature{21}, reflect.TypeFor[celsius](), false); err != nil || v != celsius(21) {
		t.Errorf("Converter: got %v, %v", v, err)
	}
	if v, err := c.Convert(nil, reflect.TypeFor[error](), false); err != nil || v != nil {
		t.Errorf("nil: got %v, %v", v, err)
	}

	if v, err := c.Convert(celsius(1), reflect.TypeFor[any](), false); err != nil || v != celsius(1) {
		t.Errorf("to interface: got %v, %v", v, err)
	}
}

type doubler struct{}

func (doubler) Call(args []any) (any, error) { return args[0].(int) * 2, nil }

func TestCallFunc(t *testing.T) {
	if v, err := CallFunc("add", func(a, b int) int { return a + b }, 1, 2); err != nil || v != 3 {
		t.Errorf("Expected 3, got %v, %v", v, err)
	}
	ran := false
	if v, err := CallFunc("touch", func() { ran = true }); err != nil || v != nil || !ran {
		t.Errorf("Expected an action call yielding nil, got %v, %v", v, err)
	}
	if v, err := CallFunc("double", doubler{}, 4); err != nil || v != 8 {
		t.Errorf("Expected 8 from a Callable, got %v, %v", v, err)
	}
	if _, err := CallFunc("fail", func() error { return errors.New("boom") }); err == nil || err.Error() != "boom" {
		t.Errorf("Expected boom, got %v", err)
	}
	if _, err := CallFunc("name", "not a func"); !errors.Is(err, ErrNoSuchMember) {
		t.Errorf("Expected ErrNoSuchMember, got %v", err)
	}
}
