package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				out[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[mf.GetName()] += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				out[mf.GetName()] += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func TestRelocationMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRelocationMetricsWith(reg)

	m.RecordRelocation("move", "single_transaction", false, 20*time.Millisecond, 3, 1)
	m.RecordRelocation("copy", "per_item", true, time.Millisecond, 2, 0)
	m.RecordItem("file", "relocated")
	m.RecordItem("file", "rejected")
	m.RecordPlacement(true, 100)
	m.RecordPlacement(false, 50)

	values := gather(t, reg)
	assert.Equal(t, 2.0, values["dittorepo_relocation_requests_total"])
	assert.Equal(t, 2.0, values["dittorepo_relocation_duration_milliseconds"])
	assert.Equal(t, 5.0, values["dittorepo_relocation_moved_items_total"])
	assert.Equal(t, 1.0, values["dittorepo_relocation_errors_total"])
	assert.Equal(t, 2.0, values["dittorepo_relocation_items_total"])
	assert.Equal(t, 2.0, values["dittorepo_relocation_placements_total"])
	assert.Equal(t, 150.0, values["dittorepo_relocation_placed_bytes_total"])
}

func TestMaintenanceMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMaintenanceMetricsWith(reg)

	m.RecordGCRun(time.Second, 4, 3, 1)
	m.RecordGCRun(time.Second, 1, 1, 0)

	values := gather(t, reg)
	assert.Equal(t, 2.0, values["dittorepo_gc_runs_total"])
	assert.Equal(t, 1.0, values["dittorepo_gc_orphaned_binaries"])
	assert.Equal(t, 4.0, values["dittorepo_gc_deleted_binaries_total"])
	assert.Equal(t, 1.0, values["dittorepo_gc_failed_deletes_total"])
}

func TestConstructorsWithoutRegistry(t *testing.T) {
	// The global registry is never initialised in this package's tests.
	assert.NotPanics(t, func() {
		NewRelocationMetrics().RecordItem("file", "relocated")
		NewMaintenanceMetrics().RecordGCRun(time.Second, 0, 0, 0)
	})
}
