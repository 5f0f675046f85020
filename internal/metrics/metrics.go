// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Upload metrics
	IncMediaCreated()
	IncUploadRejected()
	IncOrphanBlobCleaned()

	// Identity and access metrics
	IncLoginSucceeded()
	IncLoginFailed()
	IncCrossAccountRedirect()

	// Device feed metrics
	IncFeedRequest()
	IncFeedCacheHit()
	IncFeedCacheMiss()
	ObserveFeedDuration(duration time.Duration)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
