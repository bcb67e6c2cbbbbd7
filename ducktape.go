// Package ducktape ties the dispatch cache, the proxy projector and the
// aspect ordering together into one runtime.
package ducktape

import (
	"reflect"
	"sync"

	"github.com/chazu/ducktape/aspect"
	"github.com/chazu/ducktape/config"
	"github.com/chazu/ducktape/dispatch"
	"github.com/chazu/ducktape/protoshape"
	"github.com/chazu/ducktape/proxy"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("ducktape")

// Runtime owns every cache used for duck-typed dispatch and projection.
type Runtime struct {
	Cache     *dispatch.Cache
	Projector *proxy.Projector
	Config    *config.Config

	ordering aspect.Ordering
}

// New creates a runtime from cfg. A nil cfg uses config.Default.
// Protobuf messages are understood by the cache from the start.
func New(cfg *config.Config) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	ordering, err := cfg.Ordering()
	if err != nil {
		return nil, err
	}

	r := &Runtime{Config: cfg, ordering: ordering}
	r.Cache = dispatch.NewCache(cfg.CacheOptions()...)
	r.Projector = proxy.NewProjector(r.Cache, cfg.ProjectorOptions()...)
	protoshape.Use(r.Cache)

	log.Debugf("runtime created: polymorphic limit %d, max arity %d",
		r.Cache.PolymorphicLimit(), r.Projector.MaxArity())
	return r, nil
}

// Ordering returns the aspect ordering weavers of this runtime use.
func (r *Runtime) Ordering() aspect.Ordering { return r.ordering }

// PreLoad registers generated adapters, typically the result of a
// `ducktape gen` Adapters function.
func (r *Runtime) PreLoad(preloads ...proxy.Preload) (int, error) {
	return r.Projector.PreLoadAll(preloads...)
}

// Dress projects target onto the given interfaces.
func (r *Runtime) Dress(target any, ifaces ...reflect.Type) (proxy.Proxy, error) {
	return r.Projector.Dress(target, ifaces...)
}

// InvokeMember calls the named member on target.
func (r *Runtime) InvokeMember(target any, name string, args ...any) (any, error) {
	return r.Cache.InvokeMember(target, name, args...)
}

// Reset drops all call sites. Proxy types already built stay valid.
func (r *Runtime) Reset() {
	r.Cache.Reset()
}

// DressAs projects target onto interface T using r.
func DressAs[T any](r *Runtime, target any) (T, error) {
	return proxy.DressAs[T](r.Projector, target)
}

// NewWeaver creates an aspect weaver over r's projector using r's
// configured ordering. Later options win.
func NewWeaver[T any](r *Runtime, construct func() (T, error), opts ...aspect.Option) *aspect.Weaver[T] {
	opts = append([]aspect.Option{aspect.WithOrdering(r.ordering)}, opts...)
	return aspect.NewWeaver(r.Projector, construct, opts...)
}

// Global runtime instance
var (
	globalRuntime *Runtime
	globalMu      sync.Mutex
)

// Default returns the global runtime, creating it with the default
// configuration on first use.
func Default() *Runtime {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalRuntime == nil {
		r, err := New(nil)
		if err != nil {
			// The default configuration always yields a valid ordering.
			panic(err)
		}
		globalRuntime = r
	}
	return globalRuntime
}

// InitGlobal initializes the global runtime from cfg. It is a no-op when
// the global runtime already exists.
func InitGlobal(cfg *config.Config) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalRuntime != nil {
		return nil
	}

	r, err := New(cfg)
	if err != nil {
		return err
	}
	globalRuntime = r
	return nil
}

// CloseGlobal discards the global runtime. The next Default call creates
// a fresh one.
func CloseGlobal() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalRuntime != nil {
		globalRuntime.Reset()
		globalRuntime = nil
	}
}
