package lib

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains runtime configuration loaded from environment variables.
type Config struct {
	DatabaseURL          string
	JWTSecret            string
	HTTPAddr             string
	LogLevel             string
	MaxMembers           int
	RateLimitBurst       int
	RateLimitPerMinute   int
	RedisURL             string
	NatsURL              string
	LogoAllowedHosts     []string
	JoinRequestRetention time.Duration
	HousekeepingSchedule string
}

func LoadConfig() (Config, error) {
	cfg := Config{
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		JWTSecret:            strings.TrimSpace(os.Getenv("JWT_SECRET")),
		HTTPAddr:             getOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:             getOrDefault("LOG_LEVEL", "INFO"),
		MaxMembers:           getIntOrDefault("MAX_MEMBERS", 25),
		RateLimitBurst:       getIntOrDefault("RATE_LIMIT_BURST", 30),
		RateLimitPerMinute:   getIntOrDefault("RATE_LIMIT_PER_MIN", 120),
		RedisURL:             strings.TrimSpace(os.Getenv("REDIS_URL")),
		NatsURL:              strings.TrimSpace(os.Getenv("NATS_URL")),
		LogoAllowedHosts:     getListOrDefault("LOGO_ALLOWED_HOSTS", nil),
		JoinRequestRetention: time.Duration(getIntOrDefault("JOIN_REQUEST_RETENTION_DAYS", 30)) * 24 * time.Hour,
		HousekeepingSchedule: getOrDefault("HOUSEKEEPING_SCHEDULE", "@hourly"),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.MaxMembers < 2 {
		return Config{}, fmt.Errorf("MAX_MEMBERS must be >= 2")
	}
	if cfg.RateLimitBurst <= 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_BURST must be > 0")
	}
	if cfg.RateLimitPerMinute <= 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_PER_MIN must be > 0")
	}
	if cfg.JoinRequestRetention <= 0 {
		return Config{}, fmt.Errorf("JOIN_REQUEST_RETENTION_DAYS must be > 0")
	}

	return cfg, nil
}

func getOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getIntOrDefault(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getListOrDefault(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
