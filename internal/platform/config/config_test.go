package config

import (
	"testing"
	"time"
)

func TestLoad_RequiresServiceName(t *testing.T) {
	t.Setenv("SERVICE_NAME", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without SERVICE_NAME")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SERVICE_NAME", "community")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("GRPC_ADDR", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("APP_ENV", "")
	t.Setenv("IDEMPOTENCY_TTL", "")
	t.Setenv("LIKE_RATE_PER_SEC", "")
	t.Setenv("LIKE_RATE_BURST", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.GRPC.Addr != ":9090" {
		t.Fatalf("unexpected addrs: http=%q grpc=%q", cfg.HTTP.Addr, cfg.GRPC.Addr)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected log level info, got %q", cfg.LogLevel)
	}
	if cfg.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("expected 24h ttl, got %s", cfg.IdempotencyTTL)
	}
	if cfg.LikeRate.PerSecond != 5 || cfg.LikeRate.Burst != 10 {
		t.Fatalf("unexpected like rate: %+v", cfg.LikeRate)
	}
	if cfg.IsProd() {
		t.Fatal("expected non-production by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVICE_NAME", "community")
	t.Setenv("IDEMPOTENCY_TTL", "90m")
	t.Setenv("LIKE_RATE_PER_SEC", "0.5")
	t.Setenv("LIKE_RATE_BURST", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.IdempotencyTTL != 90*time.Minute {
		t.Fatalf("expected 90m, got %s", cfg.IdempotencyTTL)
	}
	if cfg.LikeRate.PerSecond != 0.5 {
		t.Fatalf("expected 0.5, got %v", cfg.LikeRate.PerSecond)
	}
	if cfg.LikeRate.Burst != 10 {
		t.Fatalf("expected fallback burst 10, got %d", cfg.LikeRate.Burst)
	}
}

func TestLoad_ProductionNeedsDatabase(t *testing.T) {
	t.Setenv("SERVICE_NAME", "community")
	t.Setenv("APP_ENV", "Production")
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error in production without DATABASE_URL")
	}
}
