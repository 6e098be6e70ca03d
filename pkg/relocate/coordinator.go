package relocate

import (
	"context"

	"github.com/marmos91/dittorepo/pkg/prune"
	"github.com/marmos91/dittorepo/pkg/storage"
)

// perItem commits every step in its own transaction. A dry run opens
// read-only transactions instead.
type perItem struct {
	store  storage.Store
	dryRun bool
}

func (p perItem) step(ctx context.Context, fn func(tx storage.Tx) error) error {
	if p.dryRun {
		return p.store.View(ctx, fn)
	}
	return p.store.Update(ctx, fn)
}

func (p perItem) read(ctx context.Context, fn func(tx storage.Tx) error) error {
	return p.store.View(ctx, fn)
}

func (p perItem) atomic() bool { return false }

// runPerItem relocates the subtree one item per transaction.
//
// Items committed before a failure stay committed, also when fail-fast
// stops the walk. The materialized folder map lives for this call only.
func (e *Engine) runPerItem(ctx context.Context, w *walk, src storage.RepoPath, target Target) (*storage.Item, Target, error) {
	var (
		root *storage.Item
		ok   bool
	)
	err := e.store.View(ctx, func(tx storage.Tx) error {
		var err error
		root, target, ok, err = e.entry(tx, w, src, target)
		return err
	})
	if err != nil || !ok {
		return nil, target, err
	}

	w.exec = perItem{store: e.store, dryRun: w.cfg.dryRun}
	w.materialized = make(map[storage.RepoPath]storage.RepoPath)

	if _, err := w.visit(ctx, src, target); err != nil {
		return nil, target, err
	}

	if e.pruneInline(w.cfg) {
		err := e.store.Update(ctx, func(tx storage.Tx) error {
			_, err := prune.PruneTx(tx, src)
			return err
		})
		if err != nil {
			w.status.errorf(CodeStorageFailure, src, err, "failed to prune '%s'", src)
		}
	}
	return root, target, nil
}

// runSingle relocates the subtree inside one transaction.
func (e *Engine) runSingle(ctx context.Context, w *walk, src storage.RepoPath, target Target) (*storage.Item, Target, error) {
	run := e.store.Update
	if w.cfg.dryRun {
		run = e.store.View
	}

	var root *storage.Item
	err := run(ctx, func(tx storage.Tx) error {
		item, adjusted, ok, err := e.entry(tx, w, src, target)
		if err != nil || !ok {
			return err
		}
		target = adjusted

		w.exec = ambient{tx: tx}
		if _, err := w.visit(ctx, src, target); err != nil {
			return err
		}

		if e.pruneInline(w.cfg) {
			if _, err := prune.PruneTx(tx, src); err != nil {
				return err
			}
		}
		root = item
		return nil
	})
	if err != nil {
		return nil, target, err
	}
	return root, target, nil
}

// entry resolves the source and applies unix-style nesting to the target.
// ok is false when the relocation must not start; the reason is recorded.
func (e *Engine) entry(tx storage.Tx, w *walk, src storage.RepoPath, target Target) (*storage.Item, Target, bool, error) {
	item, err := tx.Resolve(src)
	if storage.IsNotFound(err) {
		w.status.errorf(CodeNotFound, src, err, "source '%s' does not exist", src)
		return nil, target, false, nil
	}
	if err != nil {
		return nil, target, false, err
	}

	if w.cfg.unixStyle && !src.IsRoot() {
		existing, err := tx.Resolve(target.Path)
		if err != nil && !storage.IsNotFound(err) {
			return nil, target, false, err
		}
		if existing != nil && existing.IsFolder() {
			target = target.Child(item.Name())
		}
	}

	if overlaps(src, target.Path) {
		w.status.errorf(CodeConflict, src, nil, "cannot relocate '%s' onto itself or into its own subtree '%s'", src, target.Path)
		return nil, target, false, nil
	}

	w.top = target.Path
	w.createdAbove, err = missingAncestors(tx, target.Path)
	if err != nil {
		return nil, target, false, err
	}
	return item, target, true, nil
}

func overlaps(src, dst storage.RepoPath) bool {
	return dst.HasPrefix(src)
}
