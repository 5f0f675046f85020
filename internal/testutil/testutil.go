package testutil

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/dooropener/dooropener/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ============================================================================
// Test Data Factories
// ============================================================================

var seq atomic.Int64

// NewTestPrincipal creates an unsaved principal with a unique username.
func NewTestPrincipal(t testing.TB, prefix string) *model.Principal {
	t.Helper()
	name := UniqueID(prefix)
	return &model.Principal{
		Username:     name,
		Email:        name + "@example.com",
		PasswordHash: "$argon2id$v=19$m=65536,t=1,p=4$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaGhhc2hoYXNoaGFzaGhhc2g",
	}
}

// NewTestDeviceKey creates a test device key with sensible defaults.
func NewTestDeviceKey(t testing.TB, principalID int64) *model.DeviceKey {
	t.Helper()
	now := time.Now().UTC()
	return &model.DeviceKey{
		ID:            UniqueID("key"),
		PrincipalID:   principalID,
		KeyHash:       UniqueID("hash"),
		KeyPrefix:     "a1b2c3",
		Scopes:        []string{model.ScopeFeedRead},
		RateLimitTier: model.TierFree,
		Name:          "Test Device",
		CreatedAt:     now,
	}
}

// NewTestDeviceKeyWithTier creates a test device key with a specific tier.
func NewTestDeviceKeyWithTier(t testing.TB, principalID int64, tier string) *model.DeviceKey {
	t.Helper()
	key := NewTestDeviceKey(t, principalID)
	key.RateLimitTier = tier
	return key
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), seq.Add(1))
}
