package config

import (
	"fmt"
	"os"
)

// Store selects the game repository backend.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	Port        string
	Store       string
	DatabaseURL string
	RedisURL    string
	JWTSecret   string
}

// Load reads configuration from environment variables with sensible defaults
// and validates that the selected store has its connection URL.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        envOrDefault("PORT", "8080"),
		Store:       envOrDefault("STORE", StoreMemory),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		JWTSecret:   envOrDefault("JWT_SECRET", "dev-secret-change-me"),
	}

	switch cfg.Store {
	case StoreMemory:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORE=%s", StorePostgres)
		}
	case StoreRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required when STORE=%s", StoreRedis)
		}
	default:
		return nil, fmt.Errorf("unknown STORE %q (want %s, %s, or %s)", cfg.Store, StoreMemory, StorePostgres, StoreRedis)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
