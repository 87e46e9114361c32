package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, ":8080", cfg.ServerPort)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.AllowedOrigins)
	assert.True(t, cfg.WALEnabled)
	assert.Equal(t, 10*time.Second, cfg.TypingTTL)
	assert.Equal(t, 5000, cfg.MaxMessageLength)
	assert.Equal(t, 15*time.Minute, cfg.WSSessionLifetime)
	assert.Equal(t, 100, cfg.RateLimitMaxRequests)
	assert.Equal(t, 30, cfg.WSSendLimit)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "SQLite")
	t.Setenv("DATABASE_URL", "file:test.db")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("ALLOWED_ORIGINS", " https://pharmsoc.example , ,https://admin.pharmsoc.example")
	t.Setenv("TYPING_TTL", "3s")
	t.Setenv("WAL_ENABLED", "false")
	t.Setenv("MAX_MESSAGE_LENGTH", "280")

	cfg := Load()

	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, "file:test.db", cfg.DatabaseURL)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []string{"https://pharmsoc.example", "https://admin.pharmsoc.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 3*time.Second, cfg.TypingTTL)
	assert.False(t, cfg.WALEnabled)
	assert.Equal(t, 280, cfg.MaxMessageLength)
}

func TestGetDuration_FallsBackOnMalformedValue(t *testing.T) {
	v := viper.New()
	v.Set("typing_ttl", "soon")

	assert.Equal(t, 10*time.Second, getDuration(v, "typing_ttl", "10s"))
}

func TestFromViper_ConfigValues(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("jwt_secret", "s3cret")
	v.Set("rate_limit_window", "30s")

	cfg := fromViper(v)
	require.NotNil(t, cfg)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, 30*time.Second, cfg.RateLimitWindow)
	assert.Equal(t, time.Minute, cfg.WSSendWindow)
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a", "b"}, splitList("a,,b ,"))
}
