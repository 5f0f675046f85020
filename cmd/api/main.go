// Package main is the entrypoint for the DoorOpener API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/dooropener/dooropener/internal/auth"
	"github.com/dooropener/dooropener/internal/blob"
	"github.com/dooropener/dooropener/internal/cache"
	"github.com/dooropener/dooropener/internal/config"
	"github.com/dooropener/dooropener/internal/handler"
	"github.com/dooropener/dooropener/internal/metrics"
	"github.com/dooropener/dooropener/internal/repository"
	"github.com/dooropener/dooropener/internal/server"
	"github.com/dooropener/dooropener/internal/service"
)

func main() {
	// Initialize context
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg)

	// Initialize database
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to database")

	if cfg.MigrateOnStart {
		if err := repo.Migrate(ctx); err != nil {
			logger.Error("failed to run migrations", slog.String("error", sanitizeError(err, cfg.DatabaseURL)))
			repo.Close()
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	// Initialize cache
	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		repo.Close()
		os.Exit(1)
	}
	logger.Info("connected to Redis")

	// Initialize blob store
	blobs, localStore, err := newBlobStore(cfg)
	if err != nil {
		logger.Error("failed to initialize blob store",
			slog.String("backend", cfg.BlobBackend),
			slog.String("error", err.Error()),
		)
		_ = cacheClient.Close()
		repo.Close()
		os.Exit(1)
	}
	logger.Info("blob store ready", slog.String("backend", cfg.BlobBackend))

	signer, err := auth.NewSessionSigner(cfg.SessionSecret)
	if err != nil {
		logger.Error("failed to initialize session signer", slog.String("error", err.Error()))
		_ = cacheClient.Close()
		repo.Close()
		os.Exit(1)
	}

	// Initialize services
	recorder := metrics.NewInMemory()
	keyEnv := auth.EnvTest
	if cfg.IsProduction() {
		keyEnv = auth.EnvLive
	}

	identity := service.NewIdentityService(repo, cacheClient, signer, cfg.SessionTTL, recorder, logger)
	profiles := service.NewProfileService(repo, repo, blobs, cfg.MaxUploadSize, recorder, logger)
	feed := service.NewFeedService(repo, blobs, cacheClient, cfg.FeedCacheTTL, recorder, logger)
	deviceKeys := service.NewDeviceKeyService(repo, cacheClient, keyEnv, logger)

	// Initialize handlers
	deps := routerDeps{
		cfg:        cfg,
		logger:     logger,
		handler:    handler.New(cfg.DeviceAuthMode),
		health:     handler.NewHealthHandler(repo, cacheClient, blobs),
		metrics:    handler.NewMetricsHandler(recorder),
		accounts:   handler.NewAccountHandler(identity, handler.CookieConfig{Name: cfg.SessionCookieName, Secure: cfg.SecureCookies()}, logger),
		profiles:   handler.NewProfileHandler(profiles, cfg.MaxUploadSize, logger),
		feed:       handler.NewFeedHandler(feed, logger),
		deviceKeys: handler.NewDeviceKeyHandler(deviceKeys, logger),
		sessions:   identity,
		keyLookup:  repo,
		authCache:  cacheClient,
		limiter:    cacheClient,
		localStore: localStore,
	}

	// Setup router
	r := setupRouter(deps)

	// Create and run server
	srv := server.New(r, server.Config{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	// Registered first, closed last
	srv.OnShutdown("postgres", func(context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("redis", func(context.Context) error {
		return cacheClient.Close()
	})

	logger.Info("starting server",
		"port", cfg.AppPort,
		"base_url", cfg.BaseURL,
		"env", cfg.AppEnv,
		"device_auth_mode", cfg.DeviceAuthMode,
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// newBlobStore builds the configured blob backend. The local store is also
// returned so its directory can be served; it is nil for other backends.
func newBlobStore(cfg *config.Config) (blob.Store, *blob.LocalStore, error) {
	switch cfg.BlobBackend {
	case config.BlobBackendS3:
		store, err := blob.NewS3Store(blob.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretKey,
			UsePathStyle:    cfg.S3UsePathStyle,
			PublicBaseURL:   cfg.S3PublicBaseURL,
			PresignExpiry:   cfg.S3PresignExpiry,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case config.BlobBackendLocal:
		store, err := blob.NewLocalStore(cfg.BlobLocalDir, cfg.BaseURL, cfg.MediaURLPrefix)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h).With(slog.String("service", "dooropener"))
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
