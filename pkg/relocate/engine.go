// Package relocate moves and copies file and folder subtrees between
// repository locations.
//
// A relocation walks the source subtree depth-first. Every item goes through
// the admission Gate before it is touched; admitted files are placed by the
// Deduplicator, admitted folders are created at the target. Rejections are
// recorded on the returned Status and the walk continues with the next item
// unless fail-fast is requested. A dry run takes the same decisions without
// mutating storage.
//
// Two strategies are available. SingleTransaction runs the walk inside one
// storage transaction: the relocation is atomic and a storage failure leaves
// storage untouched. PerItem commits each item separately: locks are held
// only briefly, and a storage failure is recorded for the item while the
// walk goes on.
//
// Usage:
//
//	engine, err := relocate.New(relocate.Deps{
//	    Store:      items,
//	    Repos:      registry,
//	    Authorizer: acl,
//	    Metadata:   indexer,
//	    Pruner:     pruner,
//	})
//	status, err := engine.Move(ctx, src, dst, relocate.UnixStyle())
package relocate

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/pkg/metrics"
	"github.com/marmos91/dittorepo/pkg/repository"
	"github.com/marmos91/dittorepo/pkg/security"
	"github.com/marmos91/dittorepo/pkg/storage"
)

// MetadataService recalculates derived folder metadata.
type MetadataService interface {
	// Recalculate runs synchronously. A missing folder is reported as a
	// storage.StoreError with ErrNotFound.
	Recalculate(ctx context.Context, folder storage.RepoPath, recursive bool) error

	// Schedule queues a deferred recalculation.
	Schedule(folder storage.RepoPath, recursive bool)
}

// PruningService deletes emptied folders in the background.
type PruningService interface {
	Prune(folder storage.RepoPath)
}

// Deps are the engine's collaborators.
type Deps struct {
	// Store is the item store shared by every repository (required)
	Store storage.Store

	// Repos resolves repository keys (required)
	Repos *repository.Registry

	// Authorizer answers permission checks (required)
	Authorizer security.Authorizer

	// Metadata recalculates ancestors. When nil, candidates are only recorded.
	Metadata MetadataService

	// Pruner receives deferred pruning requests. When nil, pruning is inline.
	Pruner PruningService

	// Interceptors are invoked for every admitted item, in order
	Interceptors []Interceptor

	// Metrics records relocation metrics. When nil, a no-op is used.
	Metrics metrics.RelocationMetrics
}

// Engine executes relocation requests.
//
// Thread Safety: Safe for concurrent use. Each request owns its Status;
// concurrent requests touching the same paths serialize on storage locks.
type Engine struct {
	store        storage.Store
	repos        *repository.Registry
	gate         *Gate
	dedup        *Deduplicator
	metadata     MetadataService
	pruner       PruningService
	interceptors interceptors
	metrics      metrics.RelocationMetrics
}

// New creates an engine from its collaborators.
func New(deps Deps) (*Engine, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("item store is required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repository registry is required")
	}
	if deps.Authorizer == nil {
		return nil, fmt.Errorf("authorizer is required")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoopRelocationMetrics()
	}

	return &Engine{
		store:        deps.Store,
		repos:        deps.Repos,
		gate:         NewGate(deps.Authorizer),
		dedup:        NewDeduplicator(deps.Metrics),
		metadata:     deps.Metadata,
		pruner:       deps.Pruner,
		interceptors: deps.Interceptors,
		metrics:      deps.Metrics,
	}, nil
}

// Move relocates src to dst and deletes the source items.
func (e *Engine) Move(ctx context.Context, src, dst storage.RepoPath, opts ...Option) (*Status, error) {
	cfg := NewMoveConfig(opts...)
	cfg.copy = false
	return e.Relocate(ctx, src, dst, cfg)
}

// Copy relocates src to dst and keeps the source items.
func (e *Engine) Copy(ctx context.Context, src, dst storage.RepoPath, opts ...Option) (*Status, error) {
	return e.Relocate(ctx, src, dst, NewMoveConfig(opts...).with(AsCopy()))
}

// Preview runs cfg as a dry run.
func (e *Engine) Preview(ctx context.Context, src, dst storage.RepoPath, cfg MoveConfig) (*Status, error) {
	return e.Relocate(ctx, src, dst, cfg.with(DryRun()))
}

// Relocate moves or copies the subtree at src to dst as described by cfg.
//
// Recoverable failures (policy, permission, conflicts, validation, missing
// items) are recorded on the returned Status. The returned error is non-nil
// only when a repository is unknown, or when the single-transaction
// strategy hit a storage failure; in the latter case the transaction was
// rolled back, the status counts are reset and the status is still returned.
func (e *Engine) Relocate(ctx context.Context, src, dst storage.RepoPath, cfg MoveConfig) (*Status, error) {
	start := time.Now()
	status := newStatus()

	srcRepo, err := e.repos.Get(src.RepoKey)
	if err != nil {
		return nil, err
	}
	dstRepo, err := e.repos.Get(dst.RepoKey)
	if err != nil {
		return nil, err
	}
	for _, repo := range []*repository.Repo{srcRepo, dstRepo} {
		if repo.Items() != e.store {
			return nil, fmt.Errorf("repository %q is not backed by the engine's item store", repo.Key())
		}
	}

	if e.pruner == nil {
		cfg = cfg.with(func(c *MoveConfig) { c.pruneEmptyFolders = false })
	}

	logger.Debug("relocate[%s]: %s %s -> %s (strategy=%s dry_run=%v fail_fast=%v)",
		status.id, cfg.Kind(), src, dst, cfg.strategy, cfg.dryRun, cfg.failFast)

	w := &walk{
		gate:         e.gate,
		dedup:        e.dedup,
		interceptors: e.interceptors,
		metrics:      e.metrics,
		srcRepo:      srcRepo,
		cfg:          cfg,
		status:       status,
		user:         security.UserFrom(ctx),
	}

	target := Target{Repo: dstRepo, Path: dst}
	var root *storage.Item
	if overlaps(src, dst) {
		status.errorf(CodeConflict, src, nil, "cannot relocate '%s' onto itself or into its own subtree '%s'", src, dst)
	} else if cfg.strategy == PerItem {
		root, target, err = e.runPerItem(ctx, w, src, target)
	} else {
		root, target, err = e.runSingle(ctx, w, src, target)
	}

	if err != nil {
		status.rollback()
		status.errorf(CodeStorageFailure, src, err, "relocation of '%s' to '%s' aborted", src, dst)
		e.report(status, src, dst, cfg, start)
		return status, fmt.Errorf("relocate %s to %s: %w", src, dst, err)
	}

	if root != nil && !cfg.dryRun {
		e.finalize(ctx, status, root, srcRepo, target.Path, cfg)
	}

	e.report(status, src, dst, cfg, start)
	return status, nil
}

// FlushCandidates schedules a deferred recalculation for every metadata
// candidate recorded on status and returns how many were scheduled.
func (e *Engine) FlushCandidates(status *Status) int {
	if e.metadata == nil {
		return 0
	}
	candidates := status.MetadataCandidates()
	for _, p := range candidates {
		e.metadata.Schedule(p, status.candidates[p])
	}
	clear(status.candidates)
	return len(candidates)
}

func (e *Engine) pruneInline(cfg MoveConfig) bool {
	return !cfg.copy && !cfg.dryRun && !cfg.pruneEmptyFolders
}

func (e *Engine) report(status *Status, src, dst storage.RepoPath, cfg MoveConfig, start time.Time) {
	duration := time.Since(start)
	e.metrics.RecordRelocation(cfg.Kind(), cfg.strategy.String(), cfg.dryRun, duration, status.Moved(), len(status.Errors()))

	mode := ""
	if cfg.dryRun {
		mode = " (dry run)"
	}
	logger.Info("relocate[%s]: %s %s -> %s%s: %s duration=%s",
		status.id, cfg.Kind(), src, dst, mode, status.Summary(), duration)
}
