// Package cli implements the dittorepo command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/pkg/config"
	"github.com/marmos91/dittorepo/pkg/security"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	userName   string
	logLevel   string

	groupTitleColor = color.New(color.FgCyan, color.Bold)
)

// rootCmd is the root command for dittorepo.
var rootCmd = &cobra.Command{
	Use:     "dittorepo",
	Version: "dev",
	Short:   "Binary artifact repository manager",
	Long: `dittorepo manages binary artifact repositories backed by a transactional
item store and content-addressable binary stores.

It moves and copies artifact trees between repositories, keeps version
indexes up to date and collects orphaned binaries.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $XDG_CONFIG_HOME/dittorepo/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&userName, "user", "u", "", "user the request is performed as (default: anonymous)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddGroup(
		&cobra.Group{ID: "artifacts", Title: groupTitleColor.Sprint("Artifact Commands:")},
		&cobra.Group{ID: "maintenance", Title: groupTitleColor.Sprint("Maintenance Commands:")},
	)

	rootCmd.AddCommand(
		newRelocateCmd(false),
		newRelocateCmd(true),
		deployCmd,
		lsCmd,
		gcCmd,
		reindexCmd,
		serveMetricsCmd,
		initCmd,
	)
}

// SetVersion sets the version printed by --version.
func SetVersion(v string) {
	if v == "" {
		return
	}
	rootCmd.Version = v
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads the configuration and applies the logging section.
// The returned closer releases the log file, if any.
func loadConfig() (*config.Config, func() error, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	closeLog, err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		return nil, nil, err
	}
	return cfg, closeLog, nil
}

// withRuntime loads the configuration, builds the runtime and runs fn with
// a context cancelled on SIGINT/SIGTERM. The runtime is closed afterwards,
// draining deferred work.
func withRuntime(mutate func(*config.Config), fn func(ctx context.Context, rt *config.Runtime) error) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	if mutate != nil {
		mutate(cfg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if userName != "" {
		ctx = security.WithUser(ctx, userName)
	}

	rt, err := config.Initialize(ctx, cfg)
	if err != nil {
		return err
	}
	rt.Start()

	runErr := fn(ctx, rt)

	closeCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := rt.Close(closeCtx); err != nil {
		logger.Warn("Shutdown incomplete: %v", err)
		if runErr == nil {
			runErr = fmt.Errorf("shutdown: %w", err)
		}
	}
	return runErr
}
