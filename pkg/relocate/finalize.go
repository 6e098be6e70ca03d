package relocate

import (
	"context"

	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/pkg/layout"
	"github.com/marmos91/dittorepo/pkg/repository"
	"github.com/marmos91/dittorepo/pkg/storage"
)

// finalize runs once a real (non dry run) walk has completed: it hands the
// source to the pruning service when pruning is deferred, and recalculates
// or records the metadata of the source's and target's parents.
//
// The source side is skipped for copies and for cache repositories.
func (e *Engine) finalize(ctx context.Context, status *Status, root *storage.Item, srcRepo *repository.Repo,
	target storage.RepoPath, cfg MoveConfig) {
	if !cfg.copy && cfg.pruneEmptyFolders {
		e.pruner.Prune(root.Path)
	}

	descriptor := !root.IsFolder() && layout.IsDescriptor(root.Path.Path)

	if !cfg.copy && !srcRepo.IsCache() {
		e.recalculateParent(ctx, status, root.Path, false, descriptor, cfg)
	}
	// A relocated folder may carry version folders of its own.
	e.recalculateParent(ctx, status, target, root.IsFolder(), descriptor, cfg)
}

func (e *Engine) recalculateParent(ctx context.Context, status *Status, p storage.RepoPath,
	recursive, descriptor bool, cfg MoveConfig) {
	parent, ok := e.nearestFolder(ctx, status, p)
	if !ok {
		return
	}

	if !cfg.recalcMetadataSync || e.metadata == nil {
		status.addCandidate(parent, recursive)
		return
	}

	err := e.metadata.Recalculate(ctx, parent, recursive)
	switch {
	case storage.IsNotFound(err):
		status.warnf(CodeNotFound, parent, err, "skipped metadata recalculation of '%s': folder no longer exists", parent)
	case err != nil:
		status.errorf(CodeStorageFailure, parent, err, "metadata recalculation of '%s' failed", parent)
		logger.Warn("relocate[%s]: metadata recalculation of %s failed: %v", status.id, parent, err)
	}

	// Moving a descriptor can change the latest version one level up.
	if descriptor {
		if grandparent, ok := parent.Parent(); ok && !grandparent.IsRoot() {
			e.metadata.Schedule(grandparent, false)
		}
	}
}

// nearestFolder returns the closest non-root ancestor of p that still
// exists. Ancestors emptied and pruned by the relocation are skipped; ok is
// false when only the repository root is left.
func (e *Engine) nearestFolder(ctx context.Context, status *Status, p storage.RepoPath) (storage.RepoPath, bool) {
	var (
		found storage.RepoPath
		ok    bool
	)
	err := e.store.View(ctx, func(tx storage.Tx) error {
		for current, more := p.Parent(); more && !current.IsRoot(); current, more = current.Parent() {
			item, err := tx.Resolve(current)
			if storage.IsNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}
			if item.IsFolder() {
				found, ok = current, true
			}
			return nil
		}
		return nil
	})
	if err != nil {
		// Fall back to the direct parent and let recalculation report the failure.
		logger.Warn("relocate[%s]: resolving the ancestors of %s failed: %v", status.id, p, err)
		parent, more := p.Parent()
		return parent, more && !parent.IsRoot()
	}
	return found, ok
}
