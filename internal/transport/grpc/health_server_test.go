package grpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"bookingcore/backend/internal/health"
)

type fakeChecker struct {
	name    string
	checkFn func(ctx context.Context) error
}

func (f fakeChecker) Name() string { return f.name }

func (f fakeChecker) Check(ctx context.Context) error {
	if f.checkFn == nil {
		panic("Check not configured")
	}
	return f.checkFn(ctx)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHealthServer_Check(t *testing.T) {
	var redisErr error
	checks := []health.Checker{
		fakeChecker{name: "postgres", checkFn: func(context.Context) error { return nil }},
		fakeChecker{name: "redis", checkFn: func(context.Context) error { return redisErr }},
	}
	srv := NewHealthServer(checks, time.Second, quietLogger())
	ctx := context.Background()

	resp, err := srv.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("overall = %v, %v", resp.GetStatus(), err)
	}

	redisErr = errors.New("dial tcp: refused")
	resp, err = srv.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("overall with redis down = %v, %v", resp.GetStatus(), err)
	}

	resp, err = srv.Check(ctx, &healthpb.HealthCheckRequest{Service: "postgres"})
	if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("postgres = %v, %v", resp.GetStatus(), err)
	}

	_, err = srv.Check(ctx, &healthpb.HealthCheckRequest{Service: "kafka"})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("unknown service err = %v, want NotFound", err)
	}
}

func TestRequestTimeoutInterceptor(t *testing.T) {
	interceptor := RequestTimeoutInterceptor(50 * time.Millisecond)
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	t.Run("adds a deadline", func(t *testing.T) {
		_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
			deadline, ok := ctx.Deadline()
			if !ok {
				return nil, errors.New("no deadline")
			}
			if time.Until(deadline) > 50*time.Millisecond {
				return nil, errors.New("deadline too far")
			}
			return nil, nil
		})
		if err != nil {
			t.Fatalf("interceptor error: %v", err)
		}
	})

	t.Run("keeps caller deadline", func(t *testing.T) {
		want := time.Now().Add(time.Hour)
		ctx, cancel := context.WithDeadline(context.Background(), want)
		defer cancel()
		_, err := interceptor(ctx, nil, info, func(ctx context.Context, req any) (any, error) {
			got, _ := ctx.Deadline()
			if !got.Equal(want) {
				return nil, errors.New("deadline replaced")
			}
			return nil, nil
		})
		if err != nil {
			t.Fatalf("interceptor error: %v", err)
		}
	})
}

func TestHealthServer_OverGRPC(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer(grpc.UnaryInterceptor(RequestTimeoutInterceptor(time.Second)))
	healthpb.RegisterHealthServer(s, NewHealthServer([]health.Checker{
		fakeChecker{name: "postgres", checkFn: func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); !ok {
				return errors.New("missing deadline")
			}
			return nil
		}},
	}, time.Second, quietLogger()))
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status = %v", resp.GetStatus())
	}
}
