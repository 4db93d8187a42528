package grpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"bookingcore/backend/internal/health"
)

// HealthServer answers grpc.health.v1 Check calls by probing the configured
// dependencies. The empty service name covers every dependency. A dependency
// name covers just that one.
type HealthServer struct {
	healthpb.UnimplementedHealthServer

	checks  []health.Checker
	timeout time.Duration
	log     *slog.Logger
}

func NewHealthServer(checks []health.Checker, timeout time.Duration, log *slog.Logger) *HealthServer {
	if log == nil {
		log = slog.Default()
	}
	return &HealthServer{checks: checks, timeout: timeout, log: log}
}

func (s *HealthServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	checks := s.checks
	if name := req.GetService(); name != "" {
		checks = nil
		for _, c := range s.checks {
			if c.Name() == name {
				checks = append(checks, c)
			}
		}
		if len(checks) == 0 {
			return nil, status.Errorf(codes.NotFound, "unknown service %q", name)
		}
	}

	results, healthy := health.Probe(ctx, s.timeout, checks)
	if !healthy {
		for _, r := range results {
			if !r.OK {
				s.log.Warn("health check failed", slog.String("dependency", r.Name), slog.String("err", r.Error))
			}
		}
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}
