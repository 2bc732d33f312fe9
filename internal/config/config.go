// Package config reads the process configuration from the environment.
package config

import (
	"fmt"
	"os"
)

// Config carries everything the server binary needs.
type Config struct {
	// RedisURL is the go-redis connection URL.
	RedisURL string
	// SigningSecret keys the websocket auth tokens.
	SigningSecret string
	// ListenAddr is the HTTP bind address.
	ListenAddr string
}

// FromEnv builds a Config from REDIS_URL, SIGNING_SECRET and LISTEN_ADDR.
// SIGNING_SECRET is mandatory; the rest have local-development defaults.
func FromEnv() (Config, error) {
	cfg := Config{
		RedisURL:      envOr("REDIS_URL", "redis://localhost:6379/0"),
		SigningSecret: os.Getenv("SIGNING_SECRET"),
		ListenAddr:    envOr("LISTEN_ADDR", ":8080"),
	}
	if cfg.SigningSecret == "" {
		return Config{}, fmt.Errorf("SIGNING_SECRET is required")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
