package remote

import (
	"context"
	"errors"
	"net"
	"slices"
	"testing"

	"github.com/chazu/ducktape/builder"
	"github.com/chazu/ducktape/dispatch"
	"github.com/chazu/ducktape/protoshape"
	"github.com/jhump/protoreflect/desc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// startHealth serves the health service, with reflection, over an
// in-memory listener.
func startHealth(t *testing.T) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("ducks", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("geese", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(server, hs)
	reflection.Register(server)
	go server.Serve(lis)
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func healthService(t *testing.T, conn grpc.ClientConnInterface) *Service {
	t.Helper()
	fd, err := desc.LoadFileDescriptor("grpc/health/v1/health.proto")
	if err != nil {
		t.Fatal(err)
	}
	sd := fd.FindService("grpc.health.v1.Health")
	if sd == nil {
		t.Fatal("health service descriptor not found")
	}
	return New(conn, sd)
}

func TestInvokeMember(t *testing.T) {
	s := healthService(t, startHealth(t))

	v, err := s.InvokeMember("Check", []any{map[string]any{"service": "ducks"}})
	if err != nil {
		t.Fatal(err)
	}
	if st, _ := v.(*protoshape.DynamicMessage).GetMember("Status"); st != "SERVING" {
		t.Errorf("Expected SERVING, got %v", st)
	}

	// Method names match in Go or lower camel case, requests may be messages.
	v, err = s.InvokeMember("check", []any{&healthpb.HealthCheckRequest{Service: "geese"}})
	if err != nil {
		t.Fatal(err)
	}
	if st, _ := v.(*protoshape.DynamicMessage).GetMember("status"); st != "NOT_SERVING" {
		t.Errorf("Expected NOT_SERVING, got %v", st)
	}

	_, err = s.InvokeMember("Check", []any{map[string]any{"service": "swans"}})
	if status.Code(errors.Unwrap(err)) != codes.NotFound {
		t.Errorf("Expected NotFound, got %v", err)
	}

	if _, err := s.InvokeMember("Watch", nil); !errors.Is(err, dispatch.ErrNoSuchMember) {
		t.Errorf("Expected streaming method to be missing, got %v", err)
	}
	if _, err := s.InvokeMember("Nope", nil); !errors.Is(err, dispatch.ErrNoSuchMember) {
		t.Errorf("Expected ErrNoSuchMember, got %v", err)
	}
	if _, err := s.InvokeMember("Check", []any{1, 2}); err == nil {
		t.Error("Expected two requests to fail")
	}
	if got := s.Methods(); !slices.Contains(got, "Check") || slices.Contains(got, "Watch") {
		t.Errorf("Expected unary methods only, got %v", got)
	}
}

func TestDispatchThroughCache(t *testing.T) {
	s := healthService(t, startHealth(t))
	c := dispatch.NewCache()

	req := builder.Object().Set("service", "ducks").Build()
	v, err := c.InvokeMember(s, "Check", req)
	if err != nil {
		t.Fatal(err)
	}
	if st, _ := c.Get(v, "Status"); st != "SERVING" {
		t.Errorf("Expected SERVING, got %v", st)
	}

	m, err := c.Get(s, "Check")
	if err != nil {
		t.Fatal(err)
	}
	v, err = c.Invoke(m, map[string]any{"service": "geese"})
	if err != nil {
		t.Fatal(err)
	}
	if st, _ := c.Get(v, "status"); st != "NOT_SERVING" {
		t.Errorf("Expected NOT_SERVING, got %v", st)
	}
}

func TestDiscover(t *testing.T) {
	conn := startHealth(t)
	ctx := context.Background()

	names, err := ListServices(ctx, conn)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Contains(names, "grpc.health.v1.Health") {
		t.Errorf("Expected the health service, got %v", names)
	}

	s, err := Discover(ctx, conn, "grpc.health.v1.Health")
	if err != nil {
		t.Fatal(err)
	}
	resp, err := s.Call(ctx, "Check", nil)
	if err != nil {
		t.Fatal(err)
	}
	// The empty service name reports overall health.
	if st, _ := resp.GetMember("status"); st != "SERVING" {
		t.Errorf("Expected SERVING, got %v", st)
	}

	if _, err := Discover(ctx, conn, "no.such.Service"); err == nil {
		t.Error("Expected discovery of an unknown service to fail")
	}
}
