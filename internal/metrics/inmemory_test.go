package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestInMemoryRecorder_Snapshot(t *testing.T) {
	m := NewInMemory()

	m.IncMediaCreated()
	m.IncMediaCreated()
	m.IncUploadRejected()
	m.IncOrphanBlobCleaned()
	m.IncLoginSucceeded()
	m.IncLoginFailed()
	m.IncLoginFailed()
	m.IncCrossAccountRedirect()
	m.IncFeedRequest()
	m.IncFeedCacheHit()
	m.IncFeedCacheMiss()
	m.ObserveFeedDuration(1500 * time.Microsecond)

	snap := m.Snapshot()
	want := Snapshot{
		MediaCreated:          2,
		UploadsRejected:       1,
		OrphanBlobsCleaned:    1,
		LoginsSucceeded:       1,
		LoginsFailed:          2,
		CrossAccountRedirects: 1,
		FeedRequests:          1,
		FeedCacheHits:         1,
		FeedCacheMisses:       1,
		FeedDurationCount:     1,
		FeedDurationTotalNs:   1_500_000,
	}
	if snap != want {
		t.Errorf("Snapshot() = %+v, want %+v", snap, want)
	}
}

func TestInMemoryRecorder_Concurrent(t *testing.T) {
	m := NewInMemory()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncMediaCreated()
			m.IncFeedRequest()
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	if snap.MediaCreated != 50 || snap.FeedRequests != 50 {
		t.Errorf("counters = %d/%d, want 50/50", snap.MediaCreated, snap.FeedRequests)
	}
}

func TestNoopRecorder_ImplementsRecorder(t *testing.T) {
	var r Recorder = NewNoop()
	r.IncMediaCreated()
	r.ObserveFeedDuration(time.Second)
}
