package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PORT", "DB_PATH", "LOG_LEVEL", "APP_ENV", "POLICY_FILE", "OWNER_PHONE",
	"MANAGER_PHONE", "DEFAULT_REGION", "REDIS_ADDRESS", "LOCK_TTL",
	"SCHEDULER_ENABLED", "SCHEDULER_INTERVAL", "RUN_HOUR",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "rent.db", cfg.DBPath)
	assert.Equal(t, "US", cfg.DefaultRegion)
	assert.Equal(t, 9, cfg.RunHour)
	assert.Equal(t, time.Hour, cfg.SchedulerInterval)
	assert.True(t, cfg.SchedulerEnabled)
	assert.Empty(t, cfg.RedisAddress)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("APP_ENV", "production")
	t.Setenv("OWNER_PHONE", " +18572257226 ")
	t.Setenv("MANAGER_PHONE", "placeholder")
	t.Setenv("REDIS_ADDRESS", "localhost:6379")
	t.Setenv("LOCK_TTL", "90s")
	t.Setenv("SCHEDULER_ENABLED", "false")
	t.Setenv("RUN_HOUR", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, "+18572257226", cfg.OwnerPhone)
	assert.Empty(t, cfg.ManagerPhone, "placeholder means unset")
	assert.Equal(t, "localhost:6379", cfg.RedisAddress)
	assert.Equal(t, 90*time.Second, cfg.LockTTL)
	assert.False(t, cfg.SchedulerEnabled)
	assert.Equal(t, 7, cfg.RunHour)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"PORT", "eighty"},
		{"PORT", "70000"},
		{"RUN_HOUR", "24"},
		{"SCHEDULER_ENABLED", "maybe"},
		{"SCHEDULER_INTERVAL", "hourly"},
		{"SCHEDULER_INTERVAL", "-1m"},
		{"LOCK_TTL", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestNewLogger_JSONInProduction(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "warn", "production")

	log.Info().Msg("hidden")
	log.Warn().Str("tenant_id", "t-1").Msg("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"message":"visible"`)
	assert.Contains(t, out, `"service":"rent-engine"`)
	assert.Contains(t, out, `"tenant_id":"t-1"`)
}

func TestNewLogger_UnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "verbose", "production")

	log.Debug().Msg("debug")
	log.Info().Msg("info")

	assert.NotContains(t, buf.String(), `"message":"debug"`)
	assert.Contains(t, buf.String(), `"message":"info"`)
}
