// Package app wires configuration into stores, event sinks and loggers for the
// binaries under cmd/.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"

	"bookingcore/backend/internal/config"
	"bookingcore/backend/internal/events"
	"bookingcore/backend/internal/health"
	"bookingcore/backend/internal/store"
	"bookingcore/backend/internal/store/memory"
	"bookingcore/backend/internal/store/postgres"
)

func NewLogger(service, level string) *slog.Logger {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: ParseLogLevel(level)})).With(
		slog.String("service", service),
	)
	slog.SetDefault(log)
	return log
}

func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DatabaseLogArgs describes databaseURL without credentials.
func DatabaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}

type Stores struct {
	Appointments store.AppointmentRepository
	Calendar     store.CalendarRules
	Cascades     store.CascadeJournal
	Checks       []health.Checker
	Close        func() error
}

// OpenStores builds the stores selected by cfg.StoreDriver.
func OpenStores(ctx context.Context, cfg config.Config, log *slog.Logger) (Stores, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		s := memory.New(cfg.LockTimeout)
		if cfg.SeedFile != "" {
			if err := memory.LoadFile(s, cfg.SeedFile); err != nil {
				return Stores{}, err
			}
			log.Info("memory store seeded", slog.String("seed_file", cfg.SeedFile))
		}
		log.Warn("using in-memory store, state is lost on exit")
		return Stores{
			Appointments: s,
			Calendar:     s,
			Cascades:     s,
			Close:        func() error { return nil },
		}, nil

	case config.DriverPostgres:
		log.Info("connecting to database", DatabaseLogArgs(cfg.DatabaseURL)...)
		db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		})
		if err != nil {
			return Stores{}, err
		}
		return Stores{
			Appointments: postgres.NewAppointmentRepo(db, cfg.LockTimeout),
			Calendar:     postgres.NewCalendarRepo(db),
			Cascades:     postgres.NewCascadeRepo(db),
			Checks:       []health.Checker{postgres.Checker{DB: db}},
			Close:        func() error { return postgres.Close(db) },
		}, nil

	default:
		return Stores{}, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

type Sink struct {
	events.Sink
	Checks []health.Checker
	Close  func(ctx context.Context) error
}

// OpenSink publishes to Redis when an address is configured and to the log
// otherwise.
func OpenSink(ctx context.Context, cfg config.Config, log *slog.Logger) Sink {
	if cfg.RedisAddr == "" {
		return Sink{
			Sink:  events.NewLogSink(log.With(slog.String("component", "events"))),
			Close: func(context.Context) error { return nil },
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis not reachable, events will be dropped until it is", slog.String("redis_addr", cfg.RedisAddr), slog.Any("err", err))
	}
	sink := events.NewRedisSink(client, cfg.EventsChannelPrefix, cfg.EventsBuffer, log.With(slog.String("component", "events")))
	return Sink{
		Sink:   sink,
		Checks: []health.Checker{events.RedisChecker{Client: client}},
		Close: func(ctx context.Context) error {
			err := sink.Close(ctx)
			if cerr := client.Close(); err == nil {
				err = cerr
			}
			return err
		},
	}
}
