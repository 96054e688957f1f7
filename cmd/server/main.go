package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/jjckrbbt/labcatalog/internal/api"
	"github.com/jjckrbbt/labcatalog/internal/archive"
	"github.com/jjckrbbt/labcatalog/internal/config"
	"github.com/jjckrbbt/labcatalog/internal/connections"
	"github.com/jjckrbbt/labcatalog/internal/embedding"
	"github.com/jjckrbbt/labcatalog/internal/ingestion"
	"github.com/jjckrbbt/labcatalog/internal/lock"
	"github.com/jjckrbbt/labcatalog/internal/logger"
	"github.com/jjckrbbt/labcatalog/internal/processing"
	"github.com/jjckrbbt/labcatalog/internal/repository"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	if err := run(); err != nil {
		// Falls back to a development logger when run failed before InitLogger.
		logger.L().Error("Application exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	// 1. Configuration first; everything else depends on it.
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	// 2. Logger and Sentry.
	appLogger := logger.InitLogger(cfg.AppEnv)
	appLogger.Info("Application starting up...", "environment", cfg.AppEnv, "store_driver", cfg.StoreDriver)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.AppEnv,
			TracesSampleRate: 0.2,
		}); err != nil {
			appLogger.Warn("Sentry initialization failed", "error", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Mapping configurations.
	configLoader, err := processing.NewConfigLoader(cfg.MappingsDir)
	if err != nil {
		return fmt.Errorf("failed to load mappings: %w", err)
	}
	appLogger.Info("Mapping configs loaded", "services", configLoader.ServiceNames())

	// 4. Storage.
	var (
		store  repository.Querier
		pinger api.Pinger
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		appLogger.Warn("Using the in-memory store; the catalog is lost on restart")
		mem := repository.NewMemoryStore()
		store, pinger = mem, mem
	default:
		dbClient, err := connections.ConnectDB(ctx, cfg.DatabaseURL, appLogger.With("component", "database_connector"))
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer dbClient.Close()

		if cfg.RunMigrations {
			if err := connections.RunMigrations(ctx, dbClient, appLogger.With("component", "migrations")); err != nil {
				return err
			}
			// Reconnect so pgvector types register against the migrated schema.
			dbClient.Reset()
		}
		store, pinger = repository.New(dbClient.Pool), dbClient
	}

	// 5. Optional collaborators.
	opts := []ingestion.Option{
		ingestion.WithWorkers(cfg.IngestWorkers),
		ingestion.WithRowTimeout(cfg.RowTimeout),
	}

	if cfg.RedisURL != "" {
		redisClient, err := connections.ConnectRedis(ctx, cfg.RedisURL, appLogger.With("component", "redis_connector"))
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()
		opts = append(opts, ingestion.WithLocker(lock.NewRedisLocker(redisClient, "labcatalog:fingerprint", lock.DefaultTTL)))
		appLogger.Info("Using redis fingerprint locks")
	}

	if cfg.EmbeddingServiceURL != "" {
		opts = append(opts, ingestion.WithEmbedder(embedding.NewClient(cfg.EmbeddingServiceURL, appLogger).Func()))
		appLogger.Info("Printable-text embeddings enabled")
	}

	if cfg.GCSBucketName != "" {
		gcsClient, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("failed to create GCS client: %w", err)
		}
		defer gcsClient.Close()
		opts = append(opts, ingestion.WithArchiver(archive.NewGCSArchiver(gcsClient, cfg.GCSBucketName, appLogger)))
		appLogger.Info("Raw rate-list archive enabled", "bucket", cfg.GCSBucketName)
	}

	ingestionService := ingestion.NewService(store, configLoader, appLogger, opts...)

	// 6. HTTP server.
	apiLogger := appLogger.With("service", "api_handlers")
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetOutput(io.Discard)
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(api.SlogPanicRecover(appLogger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSAllowOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentLength, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderXRequestID},
	}))
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", api.MaxUploadBytes>>20+1)))
	e.Use(sentryecho.New(sentryecho.Options{Repanic: true}))
	e.Use(api.RequestLogger(appLogger))

	e.GET("/health", api.HealthHandler(pinger, apiLogger))

	apiGroup := e.Group("/api")
	api.NewIngestHandler(ingestionService, apiLogger).RegisterRoutes(apiGroup)
	api.NewCatalogHandler(store, configLoader, apiLogger).RegisterRoutes(apiGroup)

	address := fmt.Sprintf("0.0.0.0:%s", cfg.Port)
	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("HTTP Server starting", "address", address)
		if err := e.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			appLogger.Error("HTTP Server failed", slog.Any("error", err))
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	appLogger.Info("HTTP Server stopped gracefully.")
	return nil
}
