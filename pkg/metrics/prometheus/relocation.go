// Package prometheus provides the Prometheus-backed implementations of the
// metrics interfaces.
package prometheus

import (
	"strconv"
	"time"

	"github.com/marmos91/dittorepo/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// relocationMetrics is the Prometheus implementation of metrics.RelocationMetrics.
type relocationMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	itemsRelocated  *prometheus.CounterVec
	requestErrors   *prometheus.CounterVec
	itemsTotal      *prometheus.CounterVec
	placements      *prometheus.CounterVec
	placedBytes     *prometheus.CounterVec
}

// NewRelocationMetrics creates a new Prometheus-backed RelocationMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewRelocationMetrics() metrics.RelocationMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopRelocationMetrics()
	}
	return NewRelocationMetricsWith(metrics.GetRegistry())
}

// NewRelocationMetricsWith registers the relocation metrics on reg.
func NewRelocationMetricsWith(reg prometheus.Registerer) metrics.RelocationMetrics {
	return &relocationMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittorepo_relocation_requests_total",
				Help: "Total number of relocation requests by kind, strategy and mode",
			},
			[]string{"kind", "strategy", "dry_run"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittorepo_relocation_duration_milliseconds",
				Help: "Duration of relocation requests in milliseconds",
				Buckets: []float64{
					1,      // 1ms
					10,     // 10ms
					100,    // 100ms
					1000,   // 1s
					10000,  // 10s
					100000, // 100s
				},
			},
			[]string{"kind", "strategy"},
		),
		itemsRelocated: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittorepo_relocation_moved_items_total",
				Help: "Total number of items reported as relocated",
			},
			[]string{"kind", "dry_run"},
		),
		requestErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittorepo_relocation_errors_total",
				Help: "Total number of error entries recorded on relocation outcomes",
			},
			[]string{"kind"},
		),
		itemsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittorepo_relocation_items_total",
				Help: "Items visited by the relocation engine by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		placements: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittorepo_relocation_placements_total",
				Help: "File placements by method (link reuses an existing binary)",
			},
			[]string{"method"},
		),
		placedBytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittorepo_relocation_placed_bytes_total",
				Help: "Bytes placed in target repositories by method",
			},
			[]string{"method"},
		),
	}
}

func (m *relocationMetrics) RecordRelocation(kind, strategy string, dryRun bool, duration time.Duration, moved, errors int) {
	dry := strconv.FormatBool(dryRun)
	m.requestsTotal.WithLabelValues(kind, strategy, dry).Inc()
	m.requestDuration.WithLabelValues(kind, strategy).Observe(duration.Seconds() * 1000) // Convert to milliseconds
	m.itemsRelocated.WithLabelValues(kind, dry).Add(float64(moved))
	m.requestErrors.WithLabelValues(kind).Add(float64(errors))
}

func (m *relocationMetrics) RecordItem(itemType, outcome string) {
	m.itemsTotal.WithLabelValues(itemType, outcome).Inc()
}

func (m *relocationMetrics) RecordPlacement(linked bool, bytes int64) {
	method := "copy"
	if linked {
		method = "link"
	}
	m.placements.WithLabelValues(method).Inc()
	m.placedBytes.WithLabelValues(method).Add(float64(bytes))
}
