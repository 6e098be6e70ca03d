// Package gc removes binaries that no file item references any more.
//
// Binaries become orphaned when a relocation overwrites a target file, when a
// move deletes the last item pointing at a binary, or when a stream copy is
// abandoned after its checksum verification failed.
package gc

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/internal/ratelimiter"
	"github.com/marmos91/dittorepo/pkg/content"
	"github.com/marmos91/dittorepo/pkg/metrics"
	"github.com/marmos91/dittorepo/pkg/storage"
)

// Collector performs periodic garbage collection on binary stores.
//
// A binary is deleted only after it has been seen orphaned for at least
// GracePeriod, so a binary written by an in-flight deploy (binary first,
// item second) is never collected between the two steps.
//
// Thread Safety: Safe for concurrent use. Runs are serialized.
type Collector struct {
	items    storage.Store
	binaries map[string]content.Store
	config   Config
	limiter  *ratelimiter.RateLimiter
	metrics  metrics.MaintenanceMetrics

	runMu   sync.Mutex
	pending map[string]time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
}

// Config contains configuration for the garbage collector.
type Config struct {
	// Enabled controls whether periodic collection is active
	Enabled bool

	// Interval is how often to run garbage collection (default: 24h)
	Interval time.Duration

	// GracePeriod is how long a binary must stay orphaned before deletion.
	// Zero deletes on first sight.
	GracePeriod time.Duration

	// DeletesPerSecond throttles deletions (0 = unlimited)
	DeletesPerSecond uint

	// DryRun logs what would be deleted without deleting
	DryRun bool
}

// NewCollector creates a collector over the item store and the named binary stores.
// The collector is not started.
func NewCollector(items storage.Store, binaries map[string]content.Store, config Config) (*Collector, error) {
	if items == nil {
		return nil, fmt.Errorf("item store is required")
	}
	if len(binaries) == 0 {
		return nil, fmt.Errorf("at least one binary store is required")
	}
	if config.Interval == 0 {
		config.Interval = 24 * time.Hour
	}

	return &Collector{
		items:    items,
		binaries: binaries,
		config:   config,
		limiter:  ratelimiter.New(config.DeletesPerSecond, 0),
		metrics:  metrics.NewNoopMaintenanceMetrics(),
		pending:  make(map[string]time.Time),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// SetMetrics installs a metrics sink. Must be called before Start.
func (c *Collector) SetMetrics(m metrics.MaintenanceMetrics) {
	if m != nil {
		c.metrics = m
	}
}

// Start begins background garbage collection. No-op when disabled.
func (c *Collector) Start() {
	if !c.config.Enabled {
		logger.Info("Binary garbage collection disabled")
		return
	}

	logger.Info("Starting binary garbage collector: interval=%s grace=%s dry_run=%v",
		c.config.Interval, c.config.GracePeriod, c.config.DryRun)

	c.started = true
	go c.worker()
}

// Stop signals the worker and waits for it to finish.
func (c *Collector) Stop(ctx context.Context) error {
	if !c.started {
		return nil
	}

	c.stopOnce.Do(func() { close(c.stopCh) })

	select {
	case <-c.doneCh:
		logger.Info("Binary garbage collector stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Binary garbage collector shutdown timeout")
		return ctx.Err()
	}
}

// RunNow runs one collection and blocks until it completes.
func (c *Collector) RunNow(ctx context.Context) (*Stats, error) {
	logger.Info("Running binary garbage collection (manual trigger)...")
	return c.collect(ctx)
}

func (c *Collector) worker() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			stats, err := c.collect(ctx)
			cancel()

			if err != nil {
				logger.Error("Binary garbage collection failed: %v", err)
			} else {
				logger.Info("Binary garbage collection completed: %s", stats.Summary())
			}

		case <-c.stopCh:
			return
		}
	}
}

// collect performs a single run:
//  1. Collect SHA-1s referenced by file items
//  2. List every binary store
//  3. Orphaned = existing - referenced
//  4. Delete orphans past their grace period
func (c *Collector) collect(ctx context.Context) (*Stats, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	stats := &Stats{StartTime: time.Now()}
	defer func() { stats.EndTime = time.Now() }()

	referenced, err := c.items.ReferencedBinaries(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to get referenced binaries: %w", err)
	}
	stats.ReferencedCount = uint64(len(referenced))

	now := time.Now()
	seen := make(map[string]struct{})

	for _, name := range slices.Sorted(maps.Keys(c.binaries)) {
		store := c.binaries[name]

		existing, err := store.List(ctx)
		if err != nil {
			return stats, fmt.Errorf("failed to list binary store %s: %w", name, err)
		}
		stats.ExistingCount += uint64(len(existing))

		for _, sha1 := range existing {
			if _, ok := referenced[sha1]; ok {
				continue
			}
			key := name + "/" + sha1
			seen[key] = struct{}{}
			stats.OrphanedCount++

			firstSeen, ok := c.pending[key]
			if !ok {
				firstSeen = now
				c.pending[key] = now
			}
			if now.Sub(firstSeen) < c.config.GracePeriod {
				stats.DeferredCount++
				continue
			}

			if c.config.DryRun {
				logger.Info("GC: DRY RUN - would delete binary %s from %s", sha1, name)
				continue
			}

			if err := c.limiter.Wait(ctx); err != nil {
				return stats, err
			}
			if err := store.Delete(ctx, sha1); err != nil {
				logger.Warn("GC: failed to delete binary %s from %s: %v", sha1, name, err)
				stats.FailedCount++
				continue
			}
			delete(c.pending, key)
			stats.DeletedCount++
		}
	}

	// Binaries referenced again (or deleted elsewhere) leave the pending set.
	for key := range c.pending {
		if _, ok := seen[key]; !ok {
			delete(c.pending, key)
		}
	}

	c.metrics.RecordGCRun(time.Since(stats.StartTime), int(stats.OrphanedCount), int(stats.DeletedCount), int(stats.FailedCount))
	logger.Debug("GC: %s", stats.Summary())
	return stats, nil
}

// Stats contains statistics from a garbage collection run.
type Stats struct {
	StartTime       time.Time
	EndTime         time.Time
	ReferencedCount uint64 // binaries referenced by file items
	ExistingCount   uint64 // binaries present across all stores
	OrphanedCount   uint64 // unreferenced binaries found
	DeferredCount   uint64 // orphans still within their grace period
	DeletedCount    uint64
	FailedCount     uint64
}

// Duration returns the total collection duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the collection.
func (s *Stats) Summary() string {
	return fmt.Sprintf("referenced=%d existing=%d orphaned=%d deferred=%d deleted=%d failed=%d duration=%s",
		s.ReferencedCount, s.ExistingCount, s.OrphanedCount, s.DeferredCount,
		s.DeletedCount, s.FailedCount, s.Duration())
}
