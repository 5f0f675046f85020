package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dooropener/dooropener/internal/blob"
	"github.com/dooropener/dooropener/internal/cache"
	"github.com/dooropener/dooropener/internal/metrics"
	"github.com/dooropener/dooropener/internal/model"
)

// FeedService builds the read-only feed polled by devices.
type FeedService struct {
	media    MediaStore
	blobs    blob.Store
	cache    FeedCache
	cacheTTL time.Duration
	metrics  metrics.Recorder
	logger   *slog.Logger
}

// NewFeedService creates a new FeedService. A nil cache or a zero ttl
// disables snapshot caching.
func NewFeedService(media MediaStore, blobs blob.Store, feedCache FeedCache, ttl time.Duration, recorder metrics.Recorder, logger *slog.Logger) *FeedService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedService{
		media:    media,
		blobs:    blobs,
		cache:    feedCache,
		cacheTTL: ttl,
		metrics:  recorder,
		logger:   logger,
	}
}

// FetchAll returns every media record across all owners, oldest first,
// with image locators resolved to absolute URLs. caller is nil when device
// authentication is disabled; a keyed caller must hold feed:read.
func (s *FeedService) FetchAll(ctx context.Context, caller *model.DeviceAuthContext) ([]model.FeedItem, error) {
	if caller != nil && !caller.HasScope(model.ScopeFeedRead) {
		return nil, ErrAccessDenied
	}

	start := time.Now()
	s.metrics.IncFeedRequest()
	defer func() {
		s.metrics.ObserveFeedDuration(time.Since(start))
	}()

	// Records are never deleted, so the record count read before listing
	// versions the snapshot. A snapshot is only served while the count is
	// unchanged and always holds at least that many records.
	version, cached := int64(0), false
	if s.cacheEnabled() {
		n, err := s.media.CountMedia(ctx)
		if err != nil {
			s.logger.Warn("feed version read failed", slog.String("error", err.Error()))
		} else {
			version, cached = n, true
		}
	}

	if cached {
		items, err := s.cache.GetFeed(ctx, version)
		if err == nil {
			s.metrics.IncFeedCacheHit()
			return items, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("feed cache read failed", slog.String("error", err.Error()))
		}
		s.metrics.IncFeedCacheMiss()
	}

	records, err := s.media.ListAllMedia(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	items := make([]model.FeedItem, 0, len(records))
	for _, r := range records {
		url, err := s.blobs.Resolve(ctx, blob.Locator(r.BlobLocator))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBlob, err)
		}
		items = append(items, model.FeedItem{
			ID:      r.ID,
			OwnerID: r.OwnerID,
			Email:   r.Email,
			Image:   url,
		})
	}

	if cached {
		if err := s.cache.SetFeed(ctx, version, items, s.cacheTTL); err != nil {
			s.logger.Warn("feed cache write failed", slog.String("error", err.Error()))
		}
	}

	if caller != nil {
		s.logger.Debug("feed served",
			slog.String("key_id", caller.KeyID),
			slog.Int("items", len(items)),
		)
	}

	return items, nil
}

func (s *FeedService) cacheEnabled() bool {
	return s.cache != nil && s.cacheTTL > 0
}
