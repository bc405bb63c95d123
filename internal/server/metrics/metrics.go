// Package metrics owns the process Prometheus registry and the small ops
// HTTP router that exposes it.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chatkeeper"

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	Registry *prometheus.Registry

	backupsTotal     *prometheus.CounterVec
	backupDuration   prometheus.Histogram
	backupInProgress prometheus.Gauge
	snapshotsPruned  prometheus.Counter
	requestsTotal    prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		backupsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_total",
			Help:      "Backup trigger outcomes by status.",
		}, []string{"status"}),
		backupDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backup_duration_seconds",
			Help:      "Wall time of backup exports that were started.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		backupInProgress: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backup_in_progress",
			Help:      "1 while a backup export is running.",
		}),
		snapshotsPruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_pruned_total",
			Help:      "Archived snapshots deleted by retention.",
		}),
		requestsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Client requests recorded as activity.",
		}),
	}
}

func (m *Metrics) BackupFinished(status string, took time.Duration) {
	if m == nil {
		return
	}
	m.backupsTotal.WithLabelValues(status).Inc()
	if took > 0 {
		m.backupDuration.Observe(took.Seconds())
	}
}

func (m *Metrics) SetBackupInProgress(running bool) {
	if m == nil {
		return
	}
	if running {
		m.backupInProgress.Set(1)
	} else {
		m.backupInProgress.Set(0)
	}
}

func (m *Metrics) SnapshotsPruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.snapshotsPruned.Add(float64(n))
}

func (m *Metrics) RequestRecorded() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}
