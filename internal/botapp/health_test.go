package botapp

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func TestHealthServerReportsServing(test *testing.T) {
	test.Parallel()
	listener := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveHealth(ctx, listener, zap.NewNop()) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		test.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	for _, service := range []string{"", HealthServiceName} {
		callCtx, callCancel := context.WithTimeout(context.Background(), 2*time.Second)
		response, err := client.Check(callCtx, &healthpb.HealthCheckRequest{Service: service})
		callCancel()
		if err != nil {
			test.Fatalf("check %q: %v", service, err)
		}
		if response.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			test.Fatalf("expected SERVING for %q, got %v", service, response.GetStatus())
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			test.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		test.Fatalf("health server did not stop")
	}
}
