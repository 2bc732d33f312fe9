package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("SIGNING_SECRET", "s3cret")
	t.Setenv("REDIS_URL", "")
	t.Setenv("LISTEN_ADDR", "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	require.Equal(t, ":8080", cfg.ListenAddr)
	require.Equal(t, "s3cret", cfg.SigningSecret)
}

func TestFromEnvRequiresSecret(t *testing.T) {
	t.Setenv("SIGNING_SECRET", "")
	_, err := FromEnv()
	require.Error(t, err)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("SIGNING_SECRET", "s3cret")
	t.Setenv("REDIS_URL", "redis://cache:6380/1")
	t.Setenv("LISTEN_ADDR", ":9000")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, "redis://cache:6380/1", cfg.RedisURL)
	require.Equal(t, ":9000", cfg.ListenAddr)
}
