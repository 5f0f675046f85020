// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Blob backends.
const (
	BlobBackendLocal = "local"
	BlobBackendS3    = "s3"
)

// Device feed authentication modes.
const (
	// DeviceAuthNone serves the feed without credentials.
	DeviceAuthNone = "none"
	// DeviceAuthKey requires a device key with the feed:read scope.
	DeviceAuthKey = "key"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL    string `env:"DATABASE_URL,required,notEmpty"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" envDefault:"false"`

	// Cache (Redis)
	RedisURL string `env:"REDIS_URL,required,notEmpty"`

	// Public base URL used to build absolute image URLs
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Sessions
	SessionSecret     string        `env:"SESSION_SECRET,required,notEmpty"`
	SessionTTL        time.Duration `env:"SESSION_TTL" envDefault:"336h"`
	SessionCookieName string        `env:"SESSION_COOKIE_NAME" envDefault:"sessionid"`

	// Blob store
	BlobBackend     string        `env:"BLOB_BACKEND" envDefault:"local"`
	BlobLocalDir    string        `env:"BLOB_LOCAL_DIR" envDefault:"./media"`
	MediaURLPrefix  string        `env:"MEDIA_URL_PREFIX" envDefault:"/media/"`
	S3Bucket        string        `env:"S3_BUCKET"`
	S3Region        string        `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint      string        `env:"S3_ENDPOINT"`
	S3AccessKeyID   string        `env:"S3_ACCESS_KEY_ID"`
	S3SecretKey     string        `env:"S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle  bool          `env:"S3_USE_PATH_STYLE" envDefault:"true"`
	S3PublicBaseURL string        `env:"S3_PUBLIC_BASE_URL"`
	S3PresignExpiry time.Duration `env:"S3_PRESIGN_EXPIRY" envDefault:"15m"`

	// Uploads
	MaxUploadSize int64 `env:"MAX_UPLOAD_SIZE" envDefault:"10485760"`

	// Device feed
	DeviceAuthMode string        `env:"DEVICE_AUTH_MODE" envDefault:"none"`
	FeedCacheTTL   time.Duration `env:"FEED_CACHE_TTL" envDefault:"30s"`

	// Rate limiting
	RateLimitLoginEnabled     bool `env:"RATE_LIMIT_LOGIN_ENABLED" envDefault:"true"`
	RateLimitLoginRPS         int  `env:"RATE_LIMIT_LOGIN_RPS" envDefault:"1"`
	RateLimitLoginBurst       int  `env:"RATE_LIMIT_LOGIN_BURST" envDefault:"5"`
	RateLimitFeedEnabled      bool `env:"RATE_LIMIT_FEED_ENABLED" envDefault:"true"`
	RateLimitFeedRPS          int  `env:"RATE_LIMIT_FEED_RPS" envDefault:"10"`
	RateLimitFeedBurst        int  `env:"RATE_LIMIT_FEED_BURST" envDefault:"20"`
	RateLimitDeviceKeyEnabled bool `env:"RATE_LIMIT_DEVICE_KEY_ENABLED" envDefault:"true"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes for non-upload routes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// SecureCookies reports whether session cookies carry the Secure flag.
func (c *Config) SecureCookies() bool {
	return !c.IsDevelopment()
}

// DeviceKeysRequired reports whether the device feed requires a device key.
func (c *Config) DeviceKeysRequired() bool {
	return c.DeviceAuthMode == DeviceAuthKey
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Validate checks cross-field constraints that env tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	if len(c.SessionSecret) < 32 {
		errs = append(errs, errors.New("SESSION_SECRET must be at least 32 bytes"))
	}

	switch c.BlobBackend {
	case BlobBackendLocal:
		if c.BlobLocalDir == "" {
			errs = append(errs, errors.New("BLOB_LOCAL_DIR is required for the local blob backend"))
		}
	case BlobBackendS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for the s3 blob backend"))
		}
		if c.S3PublicBaseURL == "" && c.FeedCacheTTL >= c.S3PresignExpiry {
			errs = append(errs, errors.New("FEED_CACHE_TTL must be shorter than S3_PRESIGN_EXPIRY"))
		}
	default:
		errs = append(errs, fmt.Errorf("BLOB_BACKEND must be %q or %q, got %q", BlobBackendLocal, BlobBackendS3, c.BlobBackend))
	}

	if c.DeviceAuthMode != DeviceAuthNone && c.DeviceAuthMode != DeviceAuthKey {
		errs = append(errs, fmt.Errorf("DEVICE_AUTH_MODE must be %q or %q, got %q", DeviceAuthNone, DeviceAuthKey, c.DeviceAuthMode))
	}

	if c.MaxUploadSize <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_SIZE must be positive"))
	}

	return errors.Join(errs...)
}

// Load parses environment variables and returns a validated Config.
// Returns an error if required variables are missing or inconsistent.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
