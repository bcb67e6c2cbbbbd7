package dispatch

import (
	"reflect"
	"strings"
	"testing"
)

func TestSignatureEquality(t *testing.T) {
	ctx := reflect.TypeFor[shapeA]()
	a := NewSignature(InvokeMember, "Greet", ctx, Typed(reflect.TypeFor[string]()))
	b := NewSignature(InvokeMember, "Greet", ctx, Typed(reflect.TypeFor[string]()))

	if !a.Equal(b) || !b.Equal(a) {
		t.Fatal("Expected equal signatures")
	}
	if a.Hash() != b.Hash() {
		t.Errorf("Expected equal hashes, got %x and %x", a.Hash(), b.Hash())
	}

	different := []Signature{
		NewSignature(InvokeMemberAction, "Greet", ctx, Typed(reflect.TypeFor[string]())),
		NewSignature(InvokeMember, "Greet2", ctx, Typed(reflect.TypeFor[string]())),
		NewSignature(InvokeMember, "Greet", reflect.TypeFor[shapeB](), Typed(reflect.TypeFor[string]())),
		NewSignature(InvokeMember, "Greet", ctx, Typed(reflect.TypeFor[int]())),
		NewSignature(InvokeMember, "Greet", ctx, Arity(1)),
		NewSignature(InvokeMember, "Greet", ctx, Typed(reflect.TypeFor[string]()).WithNames("who")),
		NewSignature(InvokeMember, "Greet", ctx, Typed(reflect.TypeFor[string]()), Static()),
		NewSignature(InvokeMember, "Greet", ctx, Typed(reflect.TypeFor[string]()), EventMember()),
	}
	for _, d := range different {
		if a.Equal(d) || d.Equal(a) {
			t.Errorf("Expected %s to differ from %s", d, a)
		}
	}
}

func TestSignatureNamesNilAndEmptyAreEqual(t *testing.T) {
	a := NewSignature(Constructor, "", nil, Arity(2).WithNames())
	b := NewSignature(Constructor, "", nil, Arity(2).WithNames([]string{}...))
	c := NewSignature(Constructor, "", nil, Arity(2))

	if !a.Equal(b) || !a.Equal(c) {
		t.Error("Expected nil and empty name lists to be equal")
	}
	if a.Hash() != c.Hash() {
		t.Error("Expected nil and empty name lists to hash alike")
	}
	if a.Args().Named() {
		t.Error("Expected positional-only signature")
	}
}

func TestSignatureConvertDistinguishesExplicit(t *testing.T) {
	to := reflect.TypeFor[int64]()
	implicit := NewSignature(Convert, "", nil, Args{}, ConvertTo(to, false))
	explicit := NewSignature(Convert, "", nil, Args{}, ConvertTo(to, true))

	if implicit.Equal(explicit) {
		t.Error("Expected explicit and implicit conversions to differ")
	}
	if !strings.Contains(explicit.String(), "explicit") {
		t.Errorf("Expected explicit in %q", explicit.String())
	}
}

func TestSignatureConstructorIsStatic(t *testing.T) {
	s := NewSignature(Constructor, "", nil, Args{})
	if !s.IsStatic() {
		t.Error("Expected constructor signatures to be static")
	}
}

func TestSignatureTypedCopiesInput(t *testing.T) {
	types := []reflect.Type{reflect.TypeFor[int]()}
	s := NewSignature(InvokeMember, "F", nil, Typed(types...))
	types[0] = reflect.TypeFor[string]()
	if s.Args().Types()[0] != reflect.TypeFor[int]() {
		t.Error("Expected signature to be unaffected by later changes to its input")
	}
}

func TestSignatureString(t *testing.T) {
	s := NewSignature(InvokeMember, "Greet", reflect.TypeFor[shapeA](), Typed(reflect.TypeFor[string](), nil))
	want := "InvokeMember Greet(string, nil) in dispatch.shapeA"
	if got := s.String(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}
