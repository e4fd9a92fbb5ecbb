package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "UTC", cfg.Defaults.Timezone)
	assert.Equal(t, "08:00", cfg.Defaults.WorkingHoursStart)
	assert.Equal(t, "18:00", cfg.Defaults.WorkingHoursEnd)
	assert.Equal(t, 30, cfg.Defaults.BookingInterval)
	assert.Equal(t, 30, cfg.Defaults.AdvanceBookingDays)
	assert.Equal(t, 24, cfg.Defaults.CancellationHours)
	assert.Equal(t, "booking-events", cfg.Events.BookingStream)
	assert.Equal(t, "deletion-events", cfg.Events.DeletionStream)
	assert.Equal(t, 5*time.Second, cfg.Events.BlockTimeout)
	assert.Equal(t, int64(10), cfg.Events.BatchSize)
	assert.Equal(t, 300*time.Second, cfg.Cache.AvailabilityTTL)
	assert.Equal(t, 10*time.Second, cfg.Webhooks.Timeout)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("DEFAULT_TIMEZONE", "America/Sao_Paulo")
	t.Setenv("DEFAULT_BOOKING_INTERVAL", "15")
	t.Setenv("EVENTS_BLOCK_TIMEOUT", "250ms")
	t.Setenv("DB_HOST", "db.internal")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "America/Sao_Paulo", cfg.Defaults.Timezone)
	assert.Equal(t, 15, cfg.Defaults.BookingInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.Events.BlockTimeout)
	assert.Contains(t, cfg.Database.DSN(), "host=db.internal")
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.yaml")
	body := []byte("defaults:\n  cancellation_hours: 48\nredis:\n  port: 6380\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("REDIS_PORT", "6381")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 48, cfg.Defaults.CancellationHours)
	assert.Equal(t, "localhost:6381", cfg.Redis.Addr(), "environment wins over the file")
}
