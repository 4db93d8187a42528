package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BOOKING_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.GRPCAddr() != "0.0.0.0:50051" {
		t.Fatalf("addrs = %q %q", cfg.HTTPAddr, cfg.GRPCAddr())
	}
	if cfg.StoreDriver != DriverPostgres {
		t.Fatalf("driver = %q", cfg.StoreDriver)
	}
	if cfg.LockTimeout != 3*time.Second || cfg.DefaultSlotInterval != 30*time.Minute {
		t.Fatalf("lock timeout/interval = %v/%v", cfg.LockTimeout, cfg.DefaultSlotInterval)
	}
	if cfg.CascadeMaxAttempts != 5 || cfg.EventsBuffer != 1024 || cfg.EventsChannelPrefix != "booking" {
		t.Fatalf("cascade/events = %+v", cfg)
	}
}

func TestLoad_EnvOverridesAndAliases(t *testing.T) {
	t.Setenv("BOOKING_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("BOOKING_STORE_DRIVER", "Memory")
	t.Setenv("BOOKING_GRPC_ADDR", "127.0.0.1:6000")
	t.Setenv("BOOKING_LOCK_TIMEOUT", "750ms")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("BOOKING_CASCADE_MAX_ATTEMPTS", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.StoreDriver != DriverMemory {
		t.Fatalf("driver = %q", cfg.StoreDriver)
	}
	if cfg.GRPCAddr() != "127.0.0.1:6000" {
		t.Fatalf("grpc addr = %q", cfg.GRPCAddr())
	}
	if cfg.LockTimeout != 750*time.Millisecond {
		t.Fatalf("lock timeout = %v", cfg.LockTimeout)
	}
	if cfg.RedisAddr != "redis:6379" || cfg.CascadeMaxAttempts != 2 {
		t.Fatalf("redis/attempts = %q/%d", cfg.RedisAddr, cfg.CascadeMaxAttempts)
	}
}

func TestLoad_EnvFileDoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "BOOKING_HTTP_ADDR=:9999\nBOOKING_LOG_LEVEL=debug\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	t.Setenv("BOOKING_ENV_FILE", path)
	t.Setenv("BOOKING_LOG_LEVEL", "warn")
	// Cleared after the test so the file's value does not leak.
	t.Setenv("BOOKING_HTTP_ADDR", "")
	os.Unsetenv("BOOKING_HTTP_ADDR")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Fatalf("http addr = %q, want value from file", cfg.HTTPAddr)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("log level = %q, want environment to win", cfg.LogLevel)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"BOOKING_STORE_DRIVER":         "sqlite",
		"BOOKING_LOCK_TIMEOUT":         "soon",
		"BOOKING_CASCADE_MAX_ATTEMPTS": "0",
		"BOOKING_SLOTS_MAX_RANGE_DAYS": "0",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv("BOOKING_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}
