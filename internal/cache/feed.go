package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dooropener/dooropener/internal/model"
)

const feedKeyPrefix = "feed:snapshot:"

// feedKey names the snapshot built while the store held version records.
func feedKey(version int64) string {
	return feedKeyPrefix + strconv.FormatInt(version, 10)
}

// GetFeed returns the snapshot stored for version.
// Returns ErrCacheMiss if none is stored.
func (c *Cache) GetFeed(ctx context.Context, version int64) ([]model.FeedItem, error) {
	key := feedKey(version)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get feed failed: %w", err)
	}

	var items []model.FeedItem
	if err := json.Unmarshal(data, &items); err != nil {
		// Corrupted entry - drop it and treat as miss
		c.client.Del(ctx, key)
		return nil, ErrCacheMiss
	}

	return items, nil
}

// SetFeed stores a snapshot under version for ttl. The first writer for a
// version wins; later writes are dropped.
func (c *Cache) SetFeed(ctx context.Context, version int64, items []model.FeedItem, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal feed: %w", err)
	}

	if err := c.client.SetNX(ctx, feedKey(version), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache feed: %w", err)
	}

	return nil
}
