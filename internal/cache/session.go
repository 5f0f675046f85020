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

const sessionKeyPrefix = "session:"

// Common cache errors.
var (
	ErrCacheMiss = errors.New("cache miss")
)

// SetSession stores a session until its expiry.
func (c *Cache) SetSession(ctx context.Context, session *model.Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := c.client.Set(ctx, sessionKeyPrefix+session.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	return nil
}

// GetSession loads a live session. Returns ErrCacheMiss when the session
// was never created, has expired, or was ended.
func (c *Cache) GetSession(ctx context.Context, id string) (*model.Session, error) {
	data, err := c.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, ErrCacheMiss
	}

	return &session, nil
}

// DeleteSession ends a session. Deleting an unknown session is not an error.
func (c *Cache) DeleteSession(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, sessionKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
