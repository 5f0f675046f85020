package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncMediaCreated is a no-op.
func (n *NoopRecorder) IncMediaCreated() {}

// IncUploadRejected is a no-op.
func (n *NoopRecorder) IncUploadRejected() {}

// IncOrphanBlobCleaned is a no-op.
func (n *NoopRecorder) IncOrphanBlobCleaned() {}

// IncLoginSucceeded is a no-op.
func (n *NoopRecorder) IncLoginSucceeded() {}

// IncLoginFailed is a no-op.
func (n *NoopRecorder) IncLoginFailed() {}

// IncCrossAccountRedirect is a no-op.
func (n *NoopRecorder) IncCrossAccountRedirect() {}

// IncFeedRequest is a no-op.
func (n *NoopRecorder) IncFeedRequest() {}

// IncFeedCacheHit is a no-op.
func (n *NoopRecorder) IncFeedCacheHit() {}

// IncFeedCacheMiss is a no-op.
func (n *NoopRecorder) IncFeedCacheMiss() {}

// ObserveFeedDuration is a no-op.
func (n *NoopRecorder) ObserveFeedDuration(duration time.Duration) {}
