package handler

import (
	"fmt"
	"net/http"

	"github.com/dooropener/dooropener/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "dooropener_media_created_total %d\n", snap.MediaCreated)
	writeMetric(w, "dooropener_uploads_rejected_total %d\n", snap.UploadsRejected)
	writeMetric(w, "dooropener_orphan_blobs_cleaned_total %d\n", snap.OrphanBlobsCleaned)

	writeMetric(w, "dooropener_logins_total{status=\"success\"} %d\n", snap.LoginsSucceeded)
	writeMetric(w, "dooropener_logins_total{status=\"failed\"} %d\n", snap.LoginsFailed)
	writeMetric(w, "dooropener_cross_account_redirects_total %d\n", snap.CrossAccountRedirects)

	writeMetric(w, "dooropener_feed_requests_total %d\n", snap.FeedRequests)
	writeMetric(w, "dooropener_feed_cache_hits_total %d\n", snap.FeedCacheHits)
	writeMetric(w, "dooropener_feed_cache_misses_total %d\n", snap.FeedCacheMisses)
	writeMetric(w, "dooropener_feed_duration_seconds_count %d\n", snap.FeedDurationCount)
	writeMetric(w, "dooropener_feed_duration_seconds_sum %.6f\n", float64(snap.FeedDurationTotalNs)/1e9)
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
