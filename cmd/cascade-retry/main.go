// Command cascade-retry re-runs absence cascades left pending or failed and
// exits. It is meant to be invoked by an external scheduler.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"bookingcore/backend/internal/app"
	"bookingcore/backend/internal/config"
	"bookingcore/backend/internal/service/cascade"
	"bookingcore/backend/internal/telemetry"
)

const serviceName = "cascade-retry"

func main() {
	limit := flag.Int("limit", 100, "maximum number of cascades to retry")
	flag.Parse()

	log := app.NewLogger(serviceName, "info")

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	log = app.NewLogger(serviceName, cfg.LogLevel)

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
	sink := app.OpenSink(ctx, cfg, log)

	processor := cascade.NewProcessor(stores.Calendar, stores.Appointments, stores.Cascades, sink,
		log.With(slog.String("component", "cascade")), cascade.Options{
			MaxAttempts:    cfg.CascadeMaxAttempts,
			InitialBackoff: cfg.CascadeInitialBackoff,
			MaxBackoff:     cfg.CascadeMaxBackoff,
		})

	sum, runErr := processor.RetryPending(ctx, *limit)
	log.Info("cascade retry finished",
		slog.Int("attempted", sum.Attempted),
		slog.Int("completed", sum.Completed),
		slog.Int("failed", sum.Failed),
		slog.Int("cancelled", sum.Cancelled),
	)

	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := sink.Close(flushCtx); err != nil {
		log.Warn("event sink close failed", slog.Any("err", err))
	}
	if err := shutdownTracing(flushCtx); err != nil {
		log.Warn("tracing shutdown failed", slog.Any("err", err))
	}
	if err := stores.Close(); err != nil {
		log.Warn("store close failed", slog.Any("err", err))
	}

	if runErr != nil {
		log.Error("cascade retry failed", slog.Any("err", runErr))
		os.Exit(1)
	}
	if sum.Failed > 0 {
		os.Exit(2)
	}
}
