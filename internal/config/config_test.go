package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 8*time.Second, cfg.NLUTimeout)
	assert.Equal(t, 10*time.Second, cfg.WritebackInterval)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("NLU_TIMEOUT", "1500ms")
	t.Setenv("WRITEBACK_INTERVAL", "30s")
	t.Setenv("REDIS_TLS", "true")

	cfg := Load()

	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 1500*time.Millisecond, cfg.NLUTimeout)
	assert.Equal(t, 30*time.Second, cfg.WritebackInterval)
	assert.True(t, cfg.RedisTLS)
}

func TestInvalidDurationFallsBack(t *testing.T) {
	t.Setenv("SESSION_TTL", "not-a-duration")

	cfg := Load()
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
}
