package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	MediaCreated          uint64
	UploadsRejected       uint64
	OrphanBlobsCleaned    uint64
	LoginsSucceeded       uint64
	LoginsFailed          uint64
	CrossAccountRedirects uint64
	FeedRequests          uint64
	FeedCacheHits         uint64
	FeedCacheMisses       uint64
	FeedDurationCount     uint64
	FeedDurationTotalNs   int64
}

// InMemoryRecorder stores metrics in memory.
type InMemoryRecorder struct {
	mediaCreated          atomic.Uint64
	uploadsRejected       atomic.Uint64
	orphanBlobsCleaned    atomic.Uint64
	loginsSucceeded       atomic.Uint64
	loginsFailed          atomic.Uint64
	crossAccountRedirects atomic.Uint64
	feedRequests          atomic.Uint64
	feedCacheHits         atomic.Uint64
	feedCacheMisses       atomic.Uint64
	feedDurationCount     atomic.Uint64
	feedDurationTotalNs   atomic.Int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		MediaCreated:          m.mediaCreated.Load(),
		UploadsRejected:       m.uploadsRejected.Load(),
		OrphanBlobsCleaned:    m.orphanBlobsCleaned.Load(),
		LoginsSucceeded:       m.loginsSucceeded.Load(),
		LoginsFailed:          m.loginsFailed.Load(),
		CrossAccountRedirects: m.crossAccountRedirects.Load(),
		FeedRequests:          m.feedRequests.Load(),
		FeedCacheHits:         m.feedCacheHits.Load(),
		FeedCacheMisses:       m.feedCacheMisses.Load(),
		FeedDurationCount:     m.feedDurationCount.Load(),
		FeedDurationTotalNs:   m.feedDurationTotalNs.Load(),
	}
}

// IncMediaCreated increments the media created counter.
func (m *InMemoryRecorder) IncMediaCreated() {
	m.mediaCreated.Add(1)
}

// IncUploadRejected increments the rejected upload counter.
func (m *InMemoryRecorder) IncUploadRejected() {
	m.uploadsRejected.Add(1)
}

// IncOrphanBlobCleaned increments the compensating blob delete counter.
func (m *InMemoryRecorder) IncOrphanBlobCleaned() {
	m.orphanBlobsCleaned.Add(1)
}

// IncLoginSucceeded increments the successful login counter.
func (m *InMemoryRecorder) IncLoginSucceeded() {
	m.loginsSucceeded.Add(1)
}

// IncLoginFailed increments the failed login counter.
func (m *InMemoryRecorder) IncLoginFailed() {
	m.loginsFailed.Add(1)
}

// IncCrossAccountRedirect increments the cross-account redirect counter.
func (m *InMemoryRecorder) IncCrossAccountRedirect() {
	m.crossAccountRedirects.Add(1)
}

// IncFeedRequest increments the feed request counter.
func (m *InMemoryRecorder) IncFeedRequest() {
	m.feedRequests.Add(1)
}

// IncFeedCacheHit increments the feed cache hit counter.
func (m *InMemoryRecorder) IncFeedCacheHit() {
	m.feedCacheHits.Add(1)
}

// IncFeedCacheMiss increments the feed cache miss counter.
func (m *InMemoryRecorder) IncFeedCacheMiss() {
	m.feedCacheMisses.Add(1)
}

// ObserveFeedDuration records feed build duration.
func (m *InMemoryRecorder) ObserveFeedDuration(duration time.Duration) {
	m.feedDurationCount.Add(1)
	m.feedDurationTotalNs.Add(duration.Nanoseconds())
}
