package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type HTTPConfig struct {
	Addr string
	// CORSOrigins is the raw comma separated CORS_ALLOWED_ORIGINS value.
	CORSOrigins string
}

type GRPCConfig struct {
	Addr string
}

type LikeRateConfig struct {
	PerSecond float64
	Burst     int
}

type AppConfig struct {
	ServiceName string
	LogLevel    string
	Env         string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	JWTSecret   string

	IdempotencyTTL time.Duration
	LikeRate       LikeRateConfig

	HTTP HTTPConfig
	GRPC GRPCConfig
}

// IsProd reports whether APP_ENV=production.
func (c AppConfig) IsProd() bool {
	return strings.EqualFold(c.Env, "production")
}

func Load() (AppConfig, error) {
	cfg := AppConfig{
		ServiceName: env("SERVICE_NAME"),
		LogLevel:    env("LOG_LEVEL"),
		Env:         env("APP_ENV"),
		DatabaseURL: env("DATABASE_URL"),
		RedisURL:    env("REDIS_URL"),
		NATSURL:     env("NATS_URL"),
		JWTSecret:   env("JWT_SECRET"),
		HTTP: HTTPConfig{
			Addr:        env("HTTP_ADDR"),
			CORSOrigins: env("CORS_ALLOWED_ORIGINS"),
		},
		GRPC: GRPCConfig{
			Addr: env("GRPC_ADDR"),
		},
		IdempotencyTTL: envDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		LikeRate: LikeRateConfig{
			PerSecond: envFloat("LIKE_RATE_PER_SEC", 5),
			Burst:     envInt("LIKE_RATE_BURST", 10),
		},
	}
	if cfg.ServiceName == "" {
		return AppConfig{}, errors.New("SERVICE_NAME is required")
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.GRPC.Addr == "" {
		cfg.GRPC.Addr = ":9090"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.IsProd() && cfg.DatabaseURL == "" {
		return AppConfig{}, errors.New("DATABASE_URL is required in production")
	}
	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envInt(key string, fallback int) int {
	n, err := strconv.Atoi(env(key))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(env(key), 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(env(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
