package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds all application-wide configuration loaded from environment variables.
type Config struct {
	AppEnv              string
	Port                string
	StoreDriver         string
	DatabaseURL         string
	RunMigrations       bool
	SentryDSN           string
	GCSBucketName       string
	EmbeddingServiceURL string
	RedisURL            string
	MappingsDir         string
	IngestWorkers       int
	RowTimeout          time.Duration
	CORSAllowOrigins    []string
}

// LoadConfig reads configuration from environment variables or a .env file.
// It is the single source of truth for application configuration.
func LoadConfig() (*Config, error) {
	// A missing .env file is fine; production sets the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:              getEnv("APP_ENV", "development"),
		Port:                getEnv("PORT", "8080"),
		StoreDriver:         strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		SentryDSN:           os.Getenv("SENTRY_DSN"),
		GCSBucketName:       os.Getenv("GCS_BUCKET_NAME"),
		EmbeddingServiceURL: os.Getenv("EMBEDDING_SERVICE_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		MappingsDir:         os.Getenv("MAPPINGS_DIR"),
		CORSAllowOrigins:    splitList(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("FATAL: DATABASE_URL environment variable not set")
		}
	case StoreDriverMemory:
	default:
		return nil, fmt.Errorf("FATAL: unknown STORE_DRIVER %q (want %q or %q)", cfg.StoreDriver, StoreDriverPostgres, StoreDriverMemory)
	}

	var err error
	if cfg.IngestWorkers, err = getInt("INGEST_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.IngestWorkers < 1 {
		return nil, fmt.Errorf("FATAL: INGEST_WORKERS must be at least 1, got %d", cfg.IngestWorkers)
	}
	if cfg.RowTimeout, err = getDuration("ROW_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.RunMigrations, err = getBool("RUN_MIGRATIONS", true); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("FATAL: %s must be an integer: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("FATAL: %s must be a duration such as 30s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("FATAL: %s must be positive, got %s", key, d)
	}
	return d, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("FATAL: %s must be a boolean: %w", key, err)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
