// Package prune removes folders left empty by relocations.
package prune

import (
	"context"
	"time"

	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/internal/workqueue"
	"github.com/marmos91/dittorepo/pkg/storage"
)

// Config contains configuration for the pruning service.
type Config struct {
	// DeletesPerSecond throttles deferred pruning (0 = unlimited)
	DeletesPerSecond uint

	// Timeout bounds one deferred pruning pass (default: 1m)
	Timeout time.Duration
}

// Pruner deletes the empty folders below the requested folder, then walks
// upward until it reaches a folder that still has children or a repository
// root.
//
// Thread Safety: Safe for concurrent use.
type Pruner struct {
	store  storage.Store
	worker *workqueue.Worker[struct{}]
}

// New creates a pruner over store. The deferred worker is not started.
func New(store storage.Store, config Config) *Pruner {
	p := &Pruner{store: store}
	p.worker = workqueue.New(workqueue.Config{
		Name:         "pruner",
		OpsPerSecond: config.DeletesPerSecond,
		ItemTimeout:  config.Timeout,
	}, p.process, nil)
	return p
}

// Prune queues folder for deferred pruning and returns immediately.
func (p *Pruner) Prune(folder storage.RepoPath) {
	p.worker.Add(folder, struct{}{})
}

// PruneNow prunes folder synchronously in its own transaction and returns
// the number of folders deleted.
func (p *Pruner) PruneNow(ctx context.Context, folder storage.RepoPath) (int, error) {
	var pruned int
	err := p.store.Update(ctx, func(tx storage.Tx) error {
		var err error
		pruned, err = PruneTx(tx, folder)
		return err
	})
	if err != nil {
		return 0, err
	}
	return pruned, nil
}

// PruneTx prunes folder inside an existing transaction.
//
// Empty folders below folder are deleted first, deepest first, so a moved
// subtree leaves no folder skeleton behind. Then folder and its ancestors are
// pruned upward. A folder that no longer exists is skipped and pruning
// continues with its parent, so the source of a completed move can be passed
// directly. Upward pruning stops at the first file, non-empty folder or
// repository root.
func PruneTx(tx storage.Tx, folder storage.RepoPath) (int, error) {
	pruned, err := pruneBelow(tx, folder)
	if err != nil {
		return pruned, err
	}

	for current := folder; !current.IsRoot(); {
		item, err := tx.Resolve(current)
		switch {
		case storage.IsNotFound(err):
		case err != nil:
			return pruned, err
		case !item.IsFolder():
			return pruned, nil
		default:
			children, err := tx.Children(current)
			if err != nil {
				return pruned, err
			}
			if len(children) > 0 {
				return pruned, nil
			}
			if _, err := tx.Delete(current); err != nil {
				return pruned, err
			}
			logger.Debug("pruned empty folder %s", current)
			pruned++
		}

		current, _ = current.Parent()
	}
	return pruned, nil
}

// pruneBelow deletes the empty descendant folders of folder, bottom-up.
func pruneBelow(tx storage.Tx, folder storage.RepoPath) (int, error) {
	item, err := tx.Resolve(folder)
	if storage.IsNotFound(err) {
		return 0, nil
	}
	if err != nil || !item.IsFolder() {
		return 0, err
	}

	children, err := tx.Children(folder)
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, child := range children {
		if !child.IsFolder() {
			continue
		}
		n, err := pruneBelow(tx, child.Path)
		pruned += n
		if err != nil {
			return pruned, err
		}

		remaining, err := tx.Children(child.Path)
		if err != nil {
			return pruned, err
		}
		if len(remaining) > 0 {
			continue
		}
		if _, err := tx.Delete(child.Path); err != nil {
			return pruned, err
		}
		logger.Debug("pruned empty folder %s", child.Path)
		pruned++
	}
	return pruned, nil
}

// Pending returns the number of queued folders.
func (p *Pruner) Pending() int {
	return p.worker.Len()
}

// Start launches the deferred worker.
func (p *Pruner) Start() {
	logger.Info("Starting folder pruner")
	p.worker.Start()
}

// Stop waits for the deferred worker to finish its current folder.
func (p *Pruner) Stop(ctx context.Context) error {
	return p.worker.Stop(ctx)
}

// Flush prunes every queued folder synchronously.
func (p *Pruner) Flush(ctx context.Context) error {
	return p.worker.Flush(ctx)
}

func (p *Pruner) process(ctx context.Context, folder storage.RepoPath, _ struct{}) error {
	pruned, err := p.PruneNow(ctx, folder)
	if err != nil {
		return err
	}
	if pruned > 0 {
		logger.Info("Pruned %d empty folders from %s", pruned, folder)
	}
	return nil
}
