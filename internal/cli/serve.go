package cli

import (
	"context"

	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/pkg/config"
	"github.com/spf13/cobra"
)

var metricsPort int

var serveMetricsCmd = &cobra.Command{
	Use:     "serve-metrics",
	Short:   "Run the background workers and expose Prometheus metrics",
	GroupID: "maintenance",
	Long: `Run deferred indexing, deferred pruning and periodic garbage collection
(when enabled) and serve Prometheus metrics until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mutate := func(cfg *config.Config) {
			cfg.Metrics.Enabled = true
			if metricsPort != 0 {
				cfg.Metrics.Port = metricsPort
			}
		}

		return withRuntime(mutate, func(ctx context.Context, rt *config.Runtime) error {
			logger.Info("Serving %d repositories", rt.Repositories.Count())
			return rt.Metrics.Server.Start(ctx)
		})
	},
}

func init() {
	serveMetricsCmd.Flags().IntVarP(&metricsPort, "port", "p", 0, "override the configured metrics port")
}
