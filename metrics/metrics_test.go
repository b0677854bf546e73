package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordCommit(2*time.Millisecond, true, 5, 7, 3)
	m.RecordCommit(time.Millisecond, false, 5, 7, 3)
	m.RecordScanBatch(3, 1)
	m.RecordLostTrack()
	m.RecordStore("save", errors.New("unavailable"))

	if got := testutil.ToFloat64(m.commitsTotal.WithLabelValues("changed")); got != 1 {
		t.Errorf("changed commits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.commitsTotal.WithLabelValues("noop")); got != 1 {
		t.Errorf("noop commits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.snapshotFiles); got != 7 {
		t.Errorf("snapshot files = %v, want 7", got)
	}
	if got := testutil.ToFloat64(m.scanDirectoriesTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("failed directories = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.storeOperations.WithLabelValues("save", "error")); got != 1 {
		t.Errorf("failed saves = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "vfsindex_lost_track_total 1") {
		t.Errorf("metrics output missing lost track counter:\n%s", rec.Body.String())
	}
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics

	m.RecordCommit(time.Second, true, 1, 1, 1)
	m.RecordScanBatch(1, 0)
	m.SetScannerActive(true)
	m.RecordWatcherAction("remove")
	m.RecordLostTrack()
	m.RecordArchive("read")
	m.SetMonitors(1)
	m.RecordMonitorUpdates(1)
	m.SetMounts(1)
	m.RecordStore("load", nil)
}
