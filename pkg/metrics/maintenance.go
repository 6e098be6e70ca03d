package metrics

import "time"

// MaintenanceMetrics provides observability for the background services
// (binary garbage collection, folder pruning, metadata recalculation).
type MaintenanceMetrics interface {
	// RecordGCRun records one garbage collection pass.
	RecordGCRun(duration time.Duration, orphaned, deleted, failed int)
}

// NewNoopMaintenanceMetrics returns a MaintenanceMetrics that discards everything.
func NewNoopMaintenanceMetrics() MaintenanceMetrics {
	return noopMaintenanceMetrics{}
}

type noopMaintenanceMetrics struct{}

func (noopMaintenanceMetrics) RecordGCRun(time.Duration, int, int, int) {}
