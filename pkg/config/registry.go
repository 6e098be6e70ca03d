package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/pkg/content"
	"github.com/marmos91/dittorepo/pkg/gc"
	"github.com/marmos91/dittorepo/pkg/indexer"
	"github.com/marmos91/dittorepo/pkg/prune"
	"github.com/marmos91/dittorepo/pkg/relocate"
	"github.com/marmos91/dittorepo/pkg/repository"
	"github.com/marmos91/dittorepo/pkg/security"
	"github.com/marmos91/dittorepo/pkg/storage"
)

// Runtime holds every service built from a configuration.
type Runtime struct {
	Config       *Config
	Items        storage.Store
	Binaries     map[string]content.Store
	Repositories *repository.Registry
	Authorizer   security.Authorizer
	Indexer      *indexer.Indexer
	Pruner       *prune.Pruner
	Collector    *gc.Collector
	Engine       *relocate.Engine
	Metrics      *MetricsResult
}

// Initialize creates a fully wired Runtime from the provided configuration.
//
// This function orchestrates the complete initialization process:
//  1. Creates the item store
//  2. Creates every named binary store
//  3. Registers the repositories over them
//  4. Builds the authorizer, the indexer, the pruner and the collector
//  5. Builds the relocation engine on top of all of them
//
// Background workers are not started; call Start for long-running commands.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - cfg: Complete configuration loaded from config file
//
// Returns:
//   - *Runtime: Wired services; Close releases them
//   - error: If a store cannot be created or the configuration is inconsistent
func Initialize(ctx context.Context, cfg *Config) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}
	logger.Debug("Initializing runtime from configuration")

	rt := &Runtime{Config: cfg, Metrics: InitializeMetrics(cfg)}

	items, err := CreateItemStore(ctx, &cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create item store: %w", err)
	}
	rt.Items = items

	// From here on, failures must release the item store
	fail := func(err error) (*Runtime, error) {
		_ = items.Close()
		return nil, err
	}

	if rt.Binaries, err = CreateBinaryStores(ctx, cfg.Binaries); err != nil {
		return fail(fmt.Errorf("failed to create binary stores: %w", err))
	}
	logger.Debug("Created %d binary store(s)", len(rt.Binaries))

	if rt.Repositories, err = CreateRepositories(cfg.Repositories, items, rt.Binaries); err != nil {
		return fail(fmt.Errorf("failed to register repositories: %w", err))
	}
	logger.Debug("Registered %d repositories", rt.Repositories.Count())

	if rt.Authorizer, err = CreateAuthorizer(&cfg.Security); err != nil {
		return fail(fmt.Errorf("failed to create authorizer: %w", err))
	}

	rt.Indexer = indexer.New(items, indexer.Config{
		OpsPerSecond: cfg.Indexer.OpsPerSecond,
		Timeout:      cfg.Indexer.Timeout,
	})
	rt.Pruner = prune.New(items, prune.Config{
		DeletesPerSecond: cfg.Pruning.DeletesPerSecond,
		Timeout:          cfg.Pruning.Timeout,
	})

	rt.Collector, err = gc.NewCollector(items, rt.Binaries, gc.Config{
		Enabled:          cfg.GC.Enabled,
		Interval:         cfg.GC.Interval,
		GracePeriod:      cfg.GC.GracePeriod,
		DeletesPerSecond: cfg.GC.DeletesPerSecond,
		DryRun:           cfg.GC.DryRun,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to create garbage collector: %w", err))
	}
	rt.Collector.SetMetrics(rt.Metrics.Maintenance)

	rt.Engine, err = relocate.New(relocate.Deps{
		Store:      items,
		Repos:      rt.Repositories,
		Authorizer: rt.Authorizer,
		Metadata:   rt.Indexer,
		Pruner:     rt.Pruner,
		Metrics:    rt.Metrics.Relocation,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to create relocation engine: %w", err))
	}

	return rt, nil
}

// Start launches the background workers: deferred indexing, deferred
// pruning and, when enabled, periodic garbage collection.
func (rt *Runtime) Start() {
	rt.Indexer.Start()
	rt.Pruner.Start()
	if rt.Config.GC.Enabled {
		rt.Collector.Start()
	}
}

// Close drains pending deferred work, stops the workers and closes the item store.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error

	if err := rt.Indexer.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush indexer: %w", err))
	}
	if err := rt.Pruner.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush pruner: %w", err))
	}
	if err := rt.Indexer.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop indexer: %w", err))
	}
	if err := rt.Pruner.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop pruner: %w", err))
	}
	if err := rt.Collector.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop collector: %w", err))
	}
	if err := rt.Items.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close item store: %w", err))
	}

	return errors.Join(errs...)
}
