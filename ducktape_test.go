package ducktape

import (
	"reflect"
	"strings"
	"testing"

	"github.com/chazu/ducktape/aspect"
	"github.com/chazu/ducktape/config"
	"github.com/chazu/ducktape/proxy"
	"google.golang.org/protobuf/types/known/structpb"
)

type Greeter interface {
	Greet(name string) string
}

type greeterProxy struct{ proxy.Base }

func (p *greeterProxy) Greet(name string) string {
	return proxy.Value[string](p.Forward("Greet", name))
}

type english struct{}

func (english) Greet(name string) string { return "hello " + name }

func TestNewAppliesConfig(t *testing.T) {
	cfg, err := config.Parse([]byte("[cache]\npolymorphic_limit = 3\nmax_arity = 4\n"), config.TOML)
	if err != nil {
		t.Fatal(err)
	}
	r, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if r.Cache.PolymorphicLimit() != 3 {
		t.Errorf("expected polymorphic limit 3, got %d", r.Cache.PolymorphicLimit())
	}
	if r.Projector.MaxArity() != 4 {
		t.Errorf("expected max arity 4, got %d", r.Projector.MaxArity())
	}
}

func TestDressAndInvoke(t *testing.T) {
	r, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	n, err := r.PreLoad(proxy.Preload{
		Adapter: reflect.TypeFor[*greeterProxy](),
		Attribute: proxy.Attribute{
			Context:    reflect.TypeFor[english](),
			Interfaces: []reflect.Type{reflect.TypeFor[Greeter]()},
		},
	})
	if err != nil || n != 1 {
		t.Fatalf("expected one preload, got %d (%v)", n, err)
	}

	g, err := DressAs[Greeter](r, english{})
	if err != nil {
		t.Fatal(err)
	}
	if got := g.Greet("duck"); got != "hello duck" {
		t.Errorf("unexpected greeting %q", got)
	}

	v, err := r.InvokeMember(english{}, "Greet", "goose")
	if err != nil || v != "hello goose" {
		t.Errorf("unexpected InvokeMember result %v (%v)", v, err)
	}
}

func TestProtoMessagesUnderstood(t *testing.T) {
	r, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	s, err := structpb.NewStruct(map[string]any{"name": "duck"})
	if err != nil {
		t.Fatal(err)
	}
	v, err := r.Cache.Get(s, "fields")
	if err != nil {
		t.Fatal(err)
	}
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		t.Fatalf("expected a one entry map, got %T %v", v, v)
	}
}

func TestWeaverUsesConfiguredOrdering(t *testing.T) {
	cfg := config.Default()
	cfg.Aspects.Ordering = []string{"Persistence", "Security"}
	r, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := proxy.AdapterFor[Greeter](r.Projector, (*greeterProxy)(nil)); err != nil {
		t.Fatal(err)
	}

	var order []string
	record := func(c aspect.Category) aspect.Aspect {
		return aspect.Func(c, aspect.Before, func(*aspect.Invocation) bool {
			order = append(order, c.String())
			return true
		})
	}
	w, err := NewWeaver(r, func() (english, error) { return english{}, nil }).
		Weave(aspect.Provide(record(aspect.Security), record(aspect.Persistence)))
	if err != nil {
		t.Fatal(err)
	}
	factory, err := aspect.CreateFactory[Greeter](w)
	if err != nil {
		t.Fatal(err)
	}
	g, err := factory()
	if err != nil {
		t.Fatal(err)
	}
	if got := g.Greet("duck"); got != "hello duck" {
		t.Errorf("unexpected greeting %q", got)
	}
	if strings.Join(order, ",") != "Persistence,Security" {
		t.Errorf("expected configured order, got %v", order)
	}
}

func TestGlobalRuntime(t *testing.T) {
	CloseGlobal()
	defer CloseGlobal()

	cfg := config.Default()
	cfg.Cache.PolymorphicLimit = 2
	if err := InitGlobal(cfg); err != nil {
		t.Fatal(err)
	}
	if Default().Cache.PolymorphicLimit() != 2 {
		t.Error("expected InitGlobal configuration")
	}
	if err := InitGlobal(config.Default()); err != nil {
		t.Fatal(err)
	}
	if Default().Config != cfg {
		t.Error("expected a second InitGlobal to be a no-op")
	}
}
