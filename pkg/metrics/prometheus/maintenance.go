package prometheus

import (
	"time"

	"github.com/marmos91/dittorepo/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// maintenanceMetrics is the Prometheus implementation of metrics.MaintenanceMetrics.
type maintenanceMetrics struct {
	gcRuns     prometheus.Counter
	gcDuration prometheus.Histogram
	gcOrphaned prometheus.Gauge
	gcDeleted  prometheus.Counter
	gcFailed   prometheus.Counter
}

// NewMaintenanceMetrics creates a new Prometheus-backed MaintenanceMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewMaintenanceMetrics() metrics.MaintenanceMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopMaintenanceMetrics()
	}
	return NewMaintenanceMetricsWith(metrics.GetRegistry())
}

// NewMaintenanceMetricsWith registers the maintenance metrics on reg.
func NewMaintenanceMetricsWith(reg prometheus.Registerer) metrics.MaintenanceMetrics {
	return &maintenanceMetrics{
		gcRuns: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittorepo_gc_runs_total",
				Help: "Total number of binary garbage collection runs",
			},
		),
		gcDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dittorepo_gc_duration_seconds",
				Help:    "Duration of binary garbage collection runs in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 10, 6),
			},
		),
		gcOrphaned: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittorepo_gc_orphaned_binaries",
				Help: "Unreferenced binaries found by the last collection",
			},
		),
		gcDeleted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittorepo_gc_deleted_binaries_total",
				Help: "Total number of orphaned binaries deleted",
			},
		),
		gcFailed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittorepo_gc_failed_deletes_total",
				Help: "Total number of orphaned binaries that could not be deleted",
			},
		),
	}
}

func (m *maintenanceMetrics) RecordGCRun(duration time.Duration, orphaned, deleted, failed int) {
	m.gcRuns.Inc()
	m.gcDuration.Observe(duration.Seconds())
	m.gcOrphaned.Set(float64(orphaned))
	m.gcDeleted.Add(float64(deleted))
	m.gcFailed.Add(float64(failed))
}
