package config

import (
	"github.com/marmos91/dittorepo/pkg/metrics"
	promMetrics "github.com/marmos91/dittorepo/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// Relocation is the collector for the relocation engine (never nil, noop if disabled)
	Relocation metrics.RelocationMetrics

	// Maintenance is the collector for the garbage collector (never nil, noop if disabled)
	Maintenance metrics.MaintenanceMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns no-op metrics implementations (zero overhead)
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			Relocation:  metrics.NewNoopRelocationMetrics(),
			Maintenance: metrics.NewNoopMaintenanceMetrics(),
		}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Server: metrics.NewServer(metrics.ServerConfig{
			Port: cfg.Metrics.Port,
			Path: cfg.Metrics.Path,
		}),
		Relocation:  promMetrics.NewRelocationMetrics(),
		Maintenance: promMetrics.NewMaintenanceMetrics(),
	}
}
