// Package metrics provides Prometheus metrics for the enumerator.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors of one enumerator. A nil *Metrics records
// nothing, so callers never need to check whether metrics are enabled.
type Metrics struct {
	commitsTotal        *prometheus.CounterVec
	commitDuration      prometheus.Histogram
	snapshotDirectories prometheus.Gauge
	snapshotFiles       prometheus.Gauge
	snapshotGeneration  prometheus.Gauge

	scanBatchesTotal     prometheus.Counter
	scanDirectoriesTotal *prometheus.CounterVec
	scannerActive        prometheus.Gauge

	watcherActionsTotal *prometheus.CounterVec
	lostTrackTotal      prometheus.Counter

	archivesTotal   *prometheus.CounterVec
	monitorsActive  prometheus.Gauge
	monitorUpdates  prometheus.Counter
	mountsActive    prometheus.Gauge
	storeOperations *prometheus.CounterVec
}

// New registers every collector with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		commitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vfsindex_commits_total",
				Help: "Total number of commit ticks by result",
			},
			[]string{"result"},
		),
		commitDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vfsindex_commit_duration_seconds",
				Help:    "Time to materialize a snapshot from pending changes",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
		),
		snapshotDirectories: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "vfsindex_snapshot_directories",
				Help: "Number of directories in the current snapshot",
			},
		),
		snapshotFiles: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "vfsindex_snapshot_files",
				Help: "Number of files in the current snapshot",
			},
		),
		snapshotGeneration: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "vfsindex_snapshot_generation",
				Help: "Generation of the current snapshot",
			},
		),
		scanBatchesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vfsindex_scan_batches_total",
				Help: "Total number of scan result batches applied",
			},
		),
		scanDirectoriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vfsindex_scan_directories_total",
				Help: "Total number of scanned directories by status",
			},
			[]string{"status"},
		),
		scannerActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "vfsindex_scanner_active",
				Help: "Whether the scanner has queued work",
			},
		),
		watcherActionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vfsindex_watcher_actions_total",
				Help: "Total number of file system notifications by action",
			},
			[]string{"action"},
		),
		lostTrackTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vfsindex_lost_track_total",
				Help: "Total number of notification overflows",
			},
		),
		archivesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vfsindex_archives_total",
				Help: "Total number of archives processed by result",
			},
			[]string{"result"},
		),
		monitorsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "vfsindex_monitors_active",
				Help: "Number of registered monitors",
			},
		),
		monitorUpdates: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vfsindex_monitor_updates_total",
				Help: "Total number of updates delivered to monitors",
			},
		),
		mountsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "vfsindex_mounts_active",
				Help: "Number of mount points",
			},
		),
		storeOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vfsindex_store_operations_total",
				Help: "Total number of snapshot store operations",
			},
			[]string{"operation", "status"},
		),
	}
}

// Handler returns an HTTP handler for the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordCommit records one commit tick. changed is false for no-op commits.
func (m *Metrics) RecordCommit(duration time.Duration, changed bool, directories, files int, generation uint64) {
	if m == nil {
		return
	}
	result := "noop"
	if changed {
		result = "changed"
	}
	m.commitsTotal.WithLabelValues(result).Inc()
	m.commitDuration.Observe(duration.Seconds())
	m.snapshotDirectories.Set(float64(directories))
	m.snapshotFiles.Set(float64(files))
	m.snapshotGeneration.Set(float64(generation))
}

// RecordScanBatch records one applied batch of directory listings.
func (m *Metrics) RecordScanBatch(succeeded, failed int) {
	if m == nil {
		return
	}
	m.scanBatchesTotal.Inc()
	m.scanDirectoriesTotal.WithLabelValues("ok").Add(float64(succeeded))
	m.scanDirectoriesTotal.WithLabelValues("error").Add(float64(failed))
}

func (m *Metrics) SetScannerActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.scannerActive.Set(1)
	} else {
		m.scannerActive.Set(0)
	}
}

func (m *Metrics) RecordWatcherAction(action string) {
	if m == nil {
		return
	}
	m.watcherActionsTotal.WithLabelValues(action).Inc()
}

func (m *Metrics) RecordLostTrack() {
	if m == nil {
		return
	}
	m.lostTrackTotal.Inc()
}

// RecordArchive records an archive read. result is "read", "skipped" or "error".
func (m *Metrics) RecordArchive(result string) {
	if m == nil {
		return
	}
	m.archivesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SetMonitors(n int) {
	if m == nil {
		return
	}
	m.monitorsActive.Set(float64(n))
}

func (m *Metrics) RecordMonitorUpdates(n int) {
	if m == nil {
		return
	}
	m.monitorUpdates.Add(float64(n))
}

func (m *Metrics) SetMounts(n int) {
	if m == nil {
		return
	}
	m.mountsActive.Set(float64(n))
}

func (m *Metrics) RecordStore(operation string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.storeOperations.WithLabelValues(operation, status).Inc()
}
