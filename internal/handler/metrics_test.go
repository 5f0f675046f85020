package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dooropener/dooropener/internal/metrics"
)

func TestMetricsHandler(t *testing.T) {
	rec := metrics.NewInMemory()
	rec.IncMediaCreated()
	rec.IncLoginFailed()
	rec.IncFeedCacheHit()
	rec.ObserveFeedDuration(250 * time.Millisecond)

	w := httptest.NewRecorder()
	NewMetricsHandler(rec).Metrics(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	for _, line := range []string{
		"dooropener_media_created_total 1",
		`dooropener_logins_total{status="failed"} 1`,
		"dooropener_feed_cache_hits_total 1",
		"dooropener_feed_duration_seconds_count 1",
		"dooropener_feed_duration_seconds_sum 0.250000",
	} {
		if !strings.Contains(body, line) {
			t.Errorf("expected %q in output:\n%s", line, body)
		}
	}
}

func TestMetricsHandler_NoSnapshotter(t *testing.T) {
	w := httptest.NewRecorder()
	NewMetricsHandler(nil).Metrics(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
}
