package remote

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/chazu/ducktape/dispatch"
	"github.com/chazu/ducktape/protoshape"
	"github.com/iancoleman/strcase"
	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"github.com/jhump/protoreflect/grpcreflect"
	"github.com/tliron/commonlog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	rpb "google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
)

var log = commonlog.GetLogger("ducktape.remote")

// DefaultTimeout bounds each call made through InvokeMember.
const DefaultTimeout = 30 * time.Second

// Service presents a gRPC service as a dispatch.Object. Each unary RPC is
// a method member; requests may be maps, dispatch objects with a Map
// method, or messages, and responses come back as
// *protoshape.DynamicMessage.
type Service struct {
	conn    grpc.ClientConnInterface
	sd      *desc.ServiceDescriptor
	timeout time.Duration
}

var _ dispatch.Object = (*Service)(nil)

// Option configures a Service.
type Option func(*Service)

// WithTimeout sets the per-call timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// New presents the service described by sd, reached through conn.
func New(conn grpc.ClientConnInterface, sd *desc.ServiceDescriptor, opts ...Option) *Service {
	s := &Service{conn: conn, sd: sd, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect opens an insecure client connection to target.
func Connect(target string) (*grpc.ClientConn, error) {
	if target == "" {
		return nil, fmt.Errorf("empty target")
	}
	return grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// Discover resolves service through the server reflection API of conn.
func Discover(ctx context.Context, conn grpc.ClientConnInterface, service string, opts ...Option) (*Service, error) {
	rc := grpcreflect.NewClientV1Alpha(ctx, rpb.NewServerReflectionClient(conn))
	defer rc.Reset()

	sd, err := rc.ResolveService(service)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve service %s: %w", service, err)
	}
	log.Debugf("discovered %s with %d methods", service, len(sd.GetMethods()))
	return New(conn, sd, opts...), nil
}

// ListServices returns the services a server exposes through reflection.
func ListServices(ctx context.Context, conn grpc.ClientConnInterface) ([]string, error) {
	rc := grpcreflect.NewClientV1Alpha(ctx, rpb.NewServerReflectionClient(conn))
	defer rc.Reset()
	return rc.ListServices()
}

// Name returns the fully qualified service name.
func (s *Service) Name() string { return s.sd.GetFullyQualifiedName() }

// Descriptor returns the service descriptor.
func (s *Service) Descriptor() *desc.ServiceDescriptor { return s.sd }

// Methods returns the names of the unary methods, in declaration order.
func (s *Service) Methods() []string {
	var names []string
	for _, md := range s.sd.GetMethods() {
		if unary(md) {
			names = append(names, md.GetName())
		}
	}
	return names
}

func (s *Service) method(name string) (*desc.MethodDescriptor, error) {
	md := s.sd.FindMethodByName(name)
	if md == nil {
		md = s.sd.FindMethodByName(strcase.ToCamel(name))
	}
	if md == nil {
		return nil, dispatch.NoSuchMember(name, reflect.TypeOf(s))
	}
	if !unary(md) {
		return nil, &dispatch.Error{
			Code:   dispatch.ErrNoSuchMember,
			Member: name,
			Type:   reflect.TypeOf(s),
			Err:    fmt.Errorf("%s is a streaming method", md.GetFullyQualifiedName()),
		}
	}
	return md, nil
}

// GetMember returns the named method as a *Method.
func (s *Service) GetMember(name string) (any, error) {
	md, err := s.method(name)
	if err != nil {
		return nil, err
	}
	return &Method{svc: s, md: md}, nil
}

// SetMember always fails: services have no settable members.
func (s *Service) SetMember(name string, _ any) error {
	return dispatch.NoSuchMember(name, reflect.TypeOf(s))
}

// InvokeMember calls the unary RPC name with an optional request.
func (s *Service) InvokeMember(name string, args []any) (any, error) {
	md, err := s.method(name)
	if err != nil {
		return nil, err
	}
	return s.call(context.Background(), md, args)
}

// Call invokes the unary RPC name under ctx.
func (s *Service) Call(ctx context.Context, name string, req any) (*protoshape.DynamicMessage, error) {
	md, err := s.method(name)
	if err != nil {
		return nil, err
	}
	return s.invoke(ctx, md, req)
}

func (s *Service) call(ctx context.Context, md *desc.MethodDescriptor, args []any) (any, error) {
	var req any
	switch len(args) {
	case 0:
	case 1:
		req = args[0]
	default:
		return nil, fmt.Errorf("%s takes at most one request, got %d arguments", md.GetName(), len(args))
	}
	return s.invoke(ctx, md, req)
}

func (s *Service) invoke(ctx context.Context, md *desc.MethodDescriptor, req any) (*protoshape.DynamicMessage, error) {
	in, err := protoshape.ToDynamic(md.GetInputType(), req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", md.GetName(), err)
	}
	out := dynamic.NewMessage(md.GetOutputType())

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	full := "/" + s.sd.GetFullyQualifiedName() + "/" + md.GetName()
	log.Debugf("invoking %s", full)
	if err := s.conn.Invoke(ctx, full, in, out); err != nil {
		return nil, fmt.Errorf("%s: %w", full, err)
	}
	return protoshape.WrapDynamic(out), nil
}

func unary(md *desc.MethodDescriptor) bool {
	return !md.IsClientStreaming() && !md.IsServerStreaming()
}

// Method is a unary RPC bound to its service. It is callable with one
// optional request argument.
type Method struct {
	svc *Service
	md  *desc.MethodDescriptor
}

var _ dispatch.Callable = (*Method)(nil)

// Name returns the method name.
func (m *Method) Name() string { return m.md.GetName() }

// Call implements dispatch.Callable.
func (m *Method) Call(args []any) (any, error) {
	return m.svc.call(context.Background(), m.md, args)
}
