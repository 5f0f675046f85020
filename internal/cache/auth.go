package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dooropener/dooropener/internal/model"
)

const (
	// deviceAuthPrefix is the Redis key prefix for device auth context cache.
	deviceAuthPrefix = "auth:device:"
	// deviceAuthIndexPrefix maps a key ID to its auth cache key.
	deviceAuthIndexPrefix = "auth:device-id:"
	// deviceAuthTTL is the time-to-live for cached device auth contexts.
	deviceAuthTTL = 5 * time.Minute
)

// CachedDeviceAuth represents a device auth context stored in Redis.
type CachedDeviceAuth struct {
	KeyID         string   `json:"key_id"`
	KeyPrefix     string   `json:"key_prefix"`
	PrincipalID   int64    `json:"principal_id"`
	Scopes        []string `json:"scopes"`
	RateLimitTier string   `json:"rate_limit_tier"`
}

// GetDeviceAuth retrieves a cached device auth context by cache key.
// Returns nil if not found (cache miss).
func (c *Cache) GetDeviceAuth(ctx context.Context, cacheKey string) (*model.DeviceAuthContext, error) {
	data, err := c.client.Get(ctx, deviceAuthPrefix+cacheKey).Bytes()
	if err != nil {
		// Cache miss is not an error
		return nil, nil //nolint:nilerr
	}

	var cached CachedDeviceAuth
	if err := json.Unmarshal(data, &cached); err != nil {
		// Corrupted cache entry - treat as miss
		return nil, nil //nolint:nilerr
	}

	return &model.DeviceAuthContext{
		KeyID:         cached.KeyID,
		KeyPrefix:     cached.KeyPrefix,
		PrincipalID:   cached.PrincipalID,
		Scopes:        cached.Scopes,
		RateLimitTier: cached.RateLimitTier,
	}, nil
}

// SetDeviceAuth caches a device auth context.
func (c *Cache) SetDeviceAuth(ctx context.Context, cacheKey string, auth *model.DeviceAuthContext) error {
	cached := CachedDeviceAuth{
		KeyID:         auth.KeyID,
		KeyPrefix:     auth.KeyPrefix,
		PrincipalID:   auth.PrincipalID,
		Scopes:        auth.Scopes,
		RateLimitTier: auth.RateLimitTier,
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("marshal device auth: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, deviceAuthPrefix+cacheKey, data, deviceAuthTTL)
	pipe.Set(ctx, deviceAuthIndexPrefix+auth.KeyID, cacheKey, deviceAuthTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache device auth: %w", err)
	}
	return nil
}

// DeleteDeviceAuth removes a cached device auth context.
func (c *Cache) DeleteDeviceAuth(ctx context.Context, cacheKey string) error {
	return c.client.Del(ctx, deviceAuthPrefix+cacheKey).Err()
}

// DeleteDeviceAuthByKeyID removes the cached auth context of a key.
// Used when a key is revoked or rotated, where the plaintext is unknown.
func (c *Cache) DeleteDeviceAuthByKeyID(ctx context.Context, keyID string) error {
	indexKey := deviceAuthIndexPrefix + keyID

	cacheKey, err := c.client.GetDel(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("lookup device auth index: %w", err)
	}

	return c.client.Del(ctx, deviceAuthPrefix+cacheKey).Err()
}
