package relocate

import (
	"context"
	"errors"

	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/pkg/content"
	"github.com/marmos91/dittorepo/pkg/metrics"
	"github.com/marmos91/dittorepo/pkg/repository"
	"github.com/marmos91/dittorepo/pkg/storage"
)

// executor decides where the walk's storage work runs.
type executor interface {
	// step runs one unit of work: the admission and placement of a single item,
	// or the cleanup of a folder.
	step(ctx context.Context, fn func(tx storage.Tx) error) error

	// read runs read-only work.
	read(ctx context.Context, fn func(tx storage.Tx) error) error

	// atomic reports whether a failed step aborts the whole walk.
	atomic() bool
}

// ambient runs every step in the transaction that wraps the whole walk.
type ambient struct {
	tx storage.Tx
}

func (a ambient) step(_ context.Context, fn func(tx storage.Tx) error) error { return fn(a.tx) }
func (a ambient) read(_ context.Context, fn func(tx storage.Tx) error) error { return fn(a.tx) }
func (a ambient) atomic() bool                                              { return true }

// result is what a visit reports to its parent.
type result struct {
	// halt is set when fail-fast stopped the walk
	halt bool

	// placed is set when the item was relocated (or would be, in a dry run)
	placed bool
}

// folderState carries what enterFolder decided into the child loop.
type folderState struct {
	descend  bool
	admitted bool

	// created is set when the target folder did not exist before this walk
	created bool
}

// walk is the recursive relocation of one subtree. A walk belongs to a
// single relocation request.
type walk struct {
	exec         executor
	gate         *Gate
	dedup        *Deduplicator
	interceptors interceptors
	metrics      metrics.RelocationMetrics

	srcRepo *repository.Repo
	cfg     MoveConfig
	status  *Status
	user    string

	// top is the target of the walk's root item; createdAbove lists its
	// ancestors missing before the walk, deepest first.
	top          storage.RepoPath
	createdAbove []storage.RepoPath

	// materialized maps target folders created by this request to the
	// source folder they were created for. Only the per-item strategy sets it.
	materialized map[storage.RepoPath]storage.RepoPath
}

// visit relocates src to target, recursing into folders. Errors returned are
// fatal for the walk; everything recoverable is recorded on the status.
func (w *walk) visit(ctx context.Context, src storage.RepoPath, target Target) (result, error) {
	if w.status.shouldAbort(w.cfg) {
		w.status.cancel()
		return result{halt: true}, nil
	}

	var (
		item   *storage.Item
		folder folderState
		placed bool
	)
	err := w.exec.step(ctx, func(tx storage.Tx) error {
		var err error
		item, err = tx.Resolve(src)
		if storage.IsNotFound(err) {
			item = nil
			return nil
		}
		if err != nil {
			return err
		}
		if item.IsFolder() {
			folder, err = w.enterFolder(ctx, tx, item, target)
		} else {
			placed, err = w.relocateFile(ctx, tx, item, target)
		}
		return err
	})
	if err != nil {
		return w.failed(src, "item", err)
	}

	if item == nil {
		w.status.errorf(CodeNotFound, src, nil, "source '%s' vanished during the relocation", src)
		return result{}, nil
	}

	if !item.IsFolder() {
		if placed {
			w.interceptors.after(ctx, w.event(item, target))
			w.status.fileMoved()
			w.metrics.RecordItem("file", "relocated")
			logger.Debug("relocate[%s]: %s -> %s", w.status.id, src, target)
		}
		return result{placed: placed}, nil
	}

	if !folder.descend {
		return result{}, nil
	}
	return w.walkFolder(ctx, item, target, folder)
}

// enterFolder admits the folder and materializes its target.
func (w *walk) enterFolder(ctx context.Context, tx storage.Tx, item *storage.Item, target Target) (folderState, error) {
	v, err := w.gate.check(ctx, tx, item, w.srcRepo, target, w.cfg, w.status)
	if err != nil {
		return folderState{}, err
	}

	if !v.admitted {
		w.metrics.RecordItem("folder", "rejected")
		// Children can still land in a folder that already exists.
		existing, err := tx.Resolve(target.Path)
		if storage.IsNotFound(err) {
			return folderState{}, nil
		}
		if err != nil {
			return folderState{}, err
		}
		return folderState{descend: existing.IsFolder()}, nil
	}

	if err := w.interceptors.before(ctx, w.event(item, target)); err != nil {
		w.status.errorf(CodeCancelled, item.Path, err, "relocation of '%s' cancelled", item.Path)
		w.metrics.RecordItem("folder", "cancelled")
		return folderState{}, nil
	}

	state := folderState{descend: true, admitted: true, created: v.existing == nil}
	if _, done := w.materialized[target.Path]; done {
		state.created = false
		return state, nil
	}

	if !w.cfg.dryRun {
		if err := w.placeFolder(tx, item, target); err != nil {
			if conflict(err) {
				w.status.errorf(CodeConflict, item.Path, err, "cannot create folder '%s'", target.Path)
				return folderState{}, nil
			}
			return folderState{}, err
		}
	}
	if w.materialized != nil {
		w.materialized[target.Path] = item.Path
	}
	return state, nil
}

// placeFolder creates the target folder and copies the source folder's own
// properties onto it.
func (w *walk) placeFolder(tx storage.Tx, item *storage.Item, target Target) error {
	folder, err := tx.CreateFolder(target.Path)
	if err != nil {
		return err
	}
	if target.Path.IsRoot() {
		return nil
	}

	if folder.Properties == nil {
		folder.Properties = storage.Properties{}
	}
	folder.Properties.Merge(item.Properties)
	folder.Properties.Merge(w.cfg.properties)
	folder.ModifiedBy = w.user
	return tx.UpdateItem(folder)
}

// walkFolder visits the folder's children, then cleans up.
func (w *walk) walkFolder(ctx context.Context, item *storage.Item, target Target, state folderState) (result, error) {
	var children []storage.RepoPath
	err := w.exec.read(ctx, func(tx storage.Tx) error {
		items, err := tx.Children(item.Path)
		if err != nil {
			return err
		}
		children = make([]storage.RepoPath, len(items))
		for i, child := range items {
			children[i] = child.Path
		}
		return nil
	})
	if err != nil {
		return w.failed(item.Path, "folder", err)
	}

	placedChildren := 0
	halted := false
	for _, child := range children {
		r, err := w.visit(ctx, child, target.Child(child.Name()))
		if err != nil {
			return result{}, err
		}
		if r.halt {
			halted = true
			break
		}
		if r.placed {
			placedChildren++
		}
	}

	if state.admitted && !halted {
		w.interceptors.after(ctx, w.event(item, target))
	}

	// A target folder created for children that were all rejected is removed
	// again, also when fail-fast stopped the walk inside it. The decision uses
	// the walk's own bookkeeping, so a dry run reaches it too.
	cleanup := state.admitted && state.created && len(children) > 0 && placedChildren == 0 && !target.Path.IsRoot()

	pruneSource := !w.cfg.copy && !w.cfg.pruneEmptyFolders
	if !w.cfg.dryRun && (cleanup || pruneSource) {
		if err := w.exec.step(ctx, func(tx storage.Tx) error {
			if cleanup {
				if err := deleteIfEmpty(tx, target.Path); err != nil {
					return err
				}
				if target.Path == w.top {
					for _, p := range w.createdAbove {
						if err := deleteIfEmpty(tx, p); err != nil {
							return err
						}
					}
				}
			}
			if pruneSource {
				return deleteIfEmpty(tx, item.Path)
			}
			return nil
		}); err != nil {
			return w.failed(item.Path, "folder", err)
		}
	}

	if cleanup {
		delete(w.materialized, target.Path)
		logger.Debug("relocate[%s]: no children placed under %s", w.status.id, target)
		return result{halt: halted}, nil
	}
	if !state.admitted || halted {
		return result{halt: halted}, nil
	}

	w.status.folderMoved()
	w.metrics.RecordItem("folder", "relocated")
	return result{placed: true}, nil
}

// relocateFile admits, places and (for moves) deletes one file. It reports
// whether the file was placed; the caller records the count once the step
// has committed.
func (w *walk) relocateFile(ctx context.Context, tx storage.Tx, item *storage.Item, target Target) (bool, error) {
	v, err := w.gate.check(ctx, tx, item, w.srcRepo, target, w.cfg, w.status)
	if err != nil {
		return false, err
	}
	if !v.admitted {
		w.metrics.RecordItem("file", "rejected")
		return false, nil
	}

	if err := w.interceptors.before(ctx, w.event(item, target)); err != nil {
		w.status.errorf(CodeCancelled, item.Path, err, "relocation of '%s' cancelled", item.Path)
		w.metrics.RecordItem("file", "cancelled")
		return false, nil
	}

	if w.cfg.dryRun {
		return true, nil
	}

	if _, err := w.dedup.Place(ctx, tx, item, w.srcRepo, target, w.cfg, w.user); err != nil {
		switch {
		case errors.Is(err, ErrChecksumMismatch):
			w.status.errorf(CodeConflict, item.Path, err, "checksum mismatch placing '%s'", target.Path)
		case errors.Is(err, content.ErrBinaryNotFound):
			w.status.errorf(CodeNotFound, item.Path, err, "binary of '%s' is missing", item.Path)
		case conflict(err):
			w.status.errorf(CodeConflict, item.Path, err, "cannot place '%s'", target.Path)
		default:
			return false, err
		}
		w.metrics.RecordItem("file", "failed")
		return false, nil
	}

	if !w.cfg.copy {
		if _, err := tx.Delete(item.Path); err != nil {
			return false, err
		}
	}
	return true, nil
}

// failed handles a storage error raised by a step. The ambient strategy
// aborts the walk; the per-item strategy records it and moves on.
func (w *walk) failed(p storage.RepoPath, itemType string, err error) (result, error) {
	if w.exec.atomic() {
		return result{}, err
	}
	w.status.errorf(CodeStorageFailure, p, err, "failed to relocate '%s'", p)
	w.metrics.RecordItem(itemType, "failed")
	logger.Warn("relocate[%s]: %s: %v", w.status.id, p, err)
	return result{}, nil
}

func (w *walk) event(item *storage.Item, target Target) Event {
	return Event{Source: item, Target: target.Path, Copy: w.cfg.copy, DryRun: w.cfg.dryRun}
}

// deleteIfEmpty deletes the non-root folder p when it has no children.
func deleteIfEmpty(tx storage.Tx, p storage.RepoPath) error {
	if p.IsRoot() {
		return nil
	}
	children, err := tx.Children(p)
	if storage.IsNotFound(err) || storage.IsCode(err, storage.ErrNotFolder) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return nil
	}
	_, err = tx.Delete(p)
	return err
}

// missingAncestors returns the ancestors of p that do not exist, deepest first.
func missingAncestors(tx storage.Tx, p storage.RepoPath) ([]storage.RepoPath, error) {
	var missing []storage.RepoPath
	for current, ok := p.Parent(); ok && !current.IsRoot(); current, ok = current.Parent() {
		exists, err := tx.Exists(current)
		if err != nil {
			return nil, err
		}
		if exists {
			break
		}
		missing = append(missing, current)
	}
	return missing, nil
}

// conflict reports whether err is a file/folder clash raised by the item store.
func conflict(err error) bool {
	return storage.IsCode(err, storage.ErrNotFolder) || storage.IsCode(err, storage.ErrIsFolder)
}
