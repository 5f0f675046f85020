package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dooropener/dooropener/internal/auth"
	"github.com/dooropener/dooropener/internal/model"
)

const (
	// minAuthDuration is the minimum time to spend on auth to prevent timing attacks.
	minAuthDuration = 200 * time.Millisecond
)

// DeviceKeyLookup finds candidate device keys.
type DeviceKeyLookup interface {
	GetDeviceKeysByPrefix(ctx context.Context, prefix string) ([]*model.DeviceKey, error)
	UpdateDeviceKeyLastUsed(ctx context.Context, id string) error
}

// DeviceAuthCache caches successful device authentications.
type DeviceAuthCache interface {
	GetDeviceAuth(ctx context.Context, cacheKey string) (*model.DeviceAuthContext, error)
	SetDeviceAuth(ctx context.Context, cacheKey string, auth *model.DeviceAuthContext) error
}

// DeviceAuthConfig holds configuration for the device auth middleware.
type DeviceAuthConfig struct {
	Logger *slog.Logger
	Keys   DeviceKeyLookup
	Cache  DeviceAuthCache
	// MinDuration overrides minAuthDuration; zero uses the default.
	MinDuration time.Duration
}

// DeviceAuth returns a middleware that authenticates devices by key.
// It extracts the key from the Authorization or X-Device-Key header,
// verifies it, and injects the device context into the request.
func DeviceAuth(cfg DeviceAuthConfig) func(http.Handler) http.Handler {
	minDuration := cfg.MinDuration
	if minDuration == 0 {
		minDuration = minAuthDuration
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()
			ctx := r.Context()

			fail := func(reason string) {
				cfg.Logger.Warn("device authentication failed",
					slog.String("reason", reason),
					slog.String("ip", getClientIP(r)),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(ctx)),
				)
				// Ensure consistent timing for every rejection
				if elapsed := time.Since(startTime); elapsed < minDuration {
					time.Sleep(minDuration - elapsed)
				}
				writeDeviceAuthError(w)
			}

			key := extractDeviceKey(r)
			if key == "" {
				fail("missing_key")
				return
			}

			parsed, err := auth.ParseDeviceKey(key)
			if err != nil {
				fail("invalid_format")
				return
			}

			// Check cache first
			cacheKey := auth.QuickHash(key)
			if cfg.Cache != nil {
				if device, _ := cfg.Cache.GetDeviceAuth(ctx, cacheKey); device != nil {
					cfg.Logger.Debug("device authenticated",
						slog.String("key_id", device.KeyID),
						slog.Bool("cache_hit", true),
						slog.String("request_id", GetRequestID(ctx)),
					)
					AddLogAttrs(ctx, slog.String("key_id", device.KeyID))
					next.ServeHTTP(w, r.WithContext(auth.ContextWithDevice(ctx, device)))
					return
				}
			}

			// Cache miss - lookup by prefix
			keys, err := cfg.Keys.GetDeviceKeysByPrefix(ctx, parsed.Prefix)
			if err != nil {
				cfg.Logger.Error("database error during device auth",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(ctx)),
				)
				fail("lookup_error")
				return
			}

			// Verify against each candidate key (handles prefix collisions)
			var matched *model.DeviceKey
			for _, k := range keys {
				if k.IsRevoked() {
					continue
				}
				if ok, err := auth.VerifyPassword(key, k.KeyHash); err == nil && ok {
					matched = k
					break
				}
			}
			if matched == nil {
				fail("invalid_key")
				return
			}

			device := &model.DeviceAuthContext{
				KeyID:         matched.ID,
				KeyPrefix:     matched.KeyPrefix,
				PrincipalID:   matched.PrincipalID,
				Scopes:        matched.Scopes,
				RateLimitTier: matched.RateLimitTier,
			}

			if cfg.Cache != nil {
				if err := cfg.Cache.SetDeviceAuth(ctx, cacheKey, device); err != nil {
					cfg.Logger.Warn("failed to cache device auth", slog.String("error", err.Error()))
				}
			}

			// Update last_used_at asynchronously
			go func(id string) {
				bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				_ = cfg.Keys.UpdateDeviceKeyLastUsed(bg, id)
			}(matched.ID)

			cfg.Logger.Info("device authenticated",
				slog.String("key_id", device.KeyID),
				slog.String("key_prefix", device.KeyPrefix),
				slog.Int64("principal_id", device.PrincipalID),
				slog.Bool("cache_hit", false),
				slog.String("request_id", GetRequestID(ctx)),
			)

			AddLogAttrs(ctx, slog.String("key_id", device.KeyID))
			next.ServeHTTP(w, r.WithContext(auth.ContextWithDevice(ctx, device)))
		})
	}
}

// extractDeviceKey extracts the device key from the request.
// Supports both "Authorization: Bearer <key>" and "X-Device-Key: <key>" headers.
func extractDeviceKey(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return strings.TrimSpace(r.Header.Get("X-Device-Key"))
}

// writeDeviceAuthError writes a 401 Unauthorized response.
// Uses the same message for all auth failures to prevent enumeration.
func writeDeviceAuthError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="device"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"Invalid or missing device key"}}`))
}
