package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"bookingcore/backend/internal/app"
	"bookingcore/backend/internal/config"
	"bookingcore/backend/internal/health"
	"bookingcore/backend/internal/service/appointments"
	availsvc "bookingcore/backend/internal/service/availability"
	"bookingcore/backend/internal/service/booking"
	"bookingcore/backend/internal/service/calendar"
	"bookingcore/backend/internal/service/cascade"
	"bookingcore/backend/internal/telemetry"
	grpcTransport "bookingcore/backend/internal/transport/grpc"
	"bookingcore/backend/internal/transport/httpapi"
)

const serviceName = "booking-engine"

func main() {
	log := app.NewLogger(serviceName, "info")

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	log = app.NewLogger(serviceName, cfg.LogLevel)

	log.Info("starting",
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("grpc_addr", cfg.GRPCAddr()),
		slog.String("store_driver", cfg.StoreDriver),
		slog.String("log_level", cfg.LogLevel),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Setup(ctx, telemetry.Options{
		ServiceName: serviceName,
		Endpoint:    cfg.OTelEndpoint,
		Insecure:    cfg.OTelInsecure,
	}, log)

	stores, err := app.OpenStores(ctx, cfg, log)
	if err != nil {
		args := append([]any{slog.Any("err", err)}, app.DatabaseLogArgs(cfg.DatabaseURL)...)
		log.Error("store open failed", args...)
		os.Exit(1)
	}
	defer func() {
		if err := stores.Close(); err != nil {
			log.Warn("store close failed", slog.Any("err", err))
		}
	}()

	sink := app.OpenSink(ctx, cfg, log)
	checks := append(append([]health.Checker{}, stores.Checks...), sink.Checks...)

	loader := calendar.NewLoader(stores.Calendar)
	handler := httpapi.NewHandler(httpapi.Services{
		Availability: availsvc.NewService(loader, stores.Appointments, availsvc.Options{
			DefaultInterval: cfg.DefaultSlotInterval,
			MaxRangeDays:    cfg.MaxRangeDays,
		}),
		Booking:      booking.NewManager(stores.Appointments, loader, sink, booking.Options{}),
		Appointments: appointments.NewService(stores.Appointments, sink, nil),
		Cascade: cascade.NewProcessor(stores.Calendar, stores.Appointments, stores.Cascades, sink,
			log.With(slog.String("component", "cascade")), cascade.Options{
				MaxAttempts:    cfg.CascadeMaxAttempts,
				InitialBackoff: cfg.CascadeInitialBackoff,
				MaxBackoff:     cfg.CascadeMaxBackoff,
			}),
		Checks: checks,
	}, log.With(slog.String("component", "http")))

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(httpapi.LoggingMiddleware(log.With(slog.String("component", "http")), handler.Routes()), "booking-engine-http"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(grpcTransport.RequestTimeoutInterceptor(cfg.GRPCRequestTimeout)),
	)
	healthpb.RegisterHealthServer(grpcServer, grpcTransport.NewHealthServer(checks, 2*time.Second, log.With(slog.String("component", "grpc"))))
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr()))
		os.Exit(1)
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	log.Info("servers started", slog.String("http_addr", cfg.HTTPAddr), slog.String("grpc_addr", cfg.GRPCAddr()))

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped with error", slog.Any("err", err))
			exitCode = 1
		}
	}

	shutdown(log, httpServer, grpcServer, cfg.ShutdownTimeout)

	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := sink.Close(flushCtx); err != nil {
		log.Warn("event sink close failed", slog.Any("err", err))
	}
	if err := shutdownTracing(flushCtx); err != nil {
		log.Warn("tracing shutdown failed", slog.Any("err", err))
	}

	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func shutdown(log *slog.Logger, httpServer *http.Server, s *grpc.Server, timeout time.Duration) {
	log.Info("shutting down servers", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn("http graceful shutdown failed; closing", slog.Any("err", err))
		_ = httpServer.Close()
	}

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-ctx.Done():
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}
}
