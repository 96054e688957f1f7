package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"APP_ENV", "PORT", "STORE_DRIVER", "DATABASE_URL", "RUN_MIGRATIONS", "SENTRY_DSN",
	"GCS_BUCKET_NAME", "EMBEDDING_SERVICE_URL", "REDIS_URL", "MAPPINGS_DIR",
	"INGEST_WORKERS", "ROW_TIMEOUT", "CORS_ALLOW_ORIGINS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://catalog@localhost:5432/catalog")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 4, cfg.IngestWorkers)
	assert.Equal(t, 30*time.Second, cfg.RowTimeout)
	assert.True(t, cfg.RunMigrations)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORSAllowOrigins)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoadConfigOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("APP_ENV", "production")
	t.Setenv("INGEST_WORKERS", "12")
	t.Setenv("ROW_TIMEOUT", "5s")
	t.Setenv("RUN_MIGRATIONS", "false")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://quotes.example.com, https://ops.example.com,")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Empty(t, cfg.DatabaseURL, "memory driver needs no database")
	assert.Equal(t, 12, cfg.IngestWorkers)
	assert.Equal(t, 5*time.Second, cfg.RowTimeout)
	assert.False(t, cfg.RunMigrations)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, []string{"https://quotes.example.com", "https://ops.example.com"}, cfg.CORSAllowOrigins)
}

func TestLoadConfigErrors(t *testing.T) {
	testCases := []struct {
		name          string
		env           map[string]string
		errorContains string
	}{
		{name: "missing database url", env: map[string]string{}, errorContains: "DATABASE_URL"},
		{name: "unknown driver", env: map[string]string{"STORE_DRIVER": "sqlite"}, errorContains: "unknown STORE_DRIVER"},
		{name: "bad workers", env: map[string]string{"STORE_DRIVER": "memory", "INGEST_WORKERS": "four"}, errorContains: "INGEST_WORKERS"},
		{name: "zero workers", env: map[string]string{"STORE_DRIVER": "memory", "INGEST_WORKERS": "0"}, errorContains: "at least 1"},
		{name: "bad timeout", env: map[string]string{"STORE_DRIVER": "memory", "ROW_TIMEOUT": "30"}, errorContains: "ROW_TIMEOUT"},
		{name: "negative timeout", env: map[string]string{"STORE_DRIVER": "memory", "ROW_TIMEOUT": "-1s"}, errorContains: "positive"},
		{name: "bad migrations flag", env: map[string]string{"STORE_DRIVER": "memory", "RUN_MIGRATIONS": "sometimes"}, errorContains: "RUN_MIGRATIONS"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errorContains)
		})
	}
}
