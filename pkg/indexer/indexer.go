// Package indexer maintains the derived version index stored on folders.
//
// A folder whose child folders are versions (1.0, 1.1-SNAPSHOT, 2.0.3, ...)
// carries the index properties below. Relocations invalidate them for the
// parents of the moved paths, so the relocation engine recalculates them
// either synchronously or through Schedule.
package indexer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/internal/workqueue"
	"github.com/marmos91/dittorepo/pkg/storage"
)

// Folder properties written by the indexer.
const (
	PropVersions = "index.versions"
	PropLatest   = "index.latest"
	PropRelease  = "index.release"
	PropUpdated  = "index.updated"
)

// Config contains configuration for the indexer's deferred worker.
type Config struct {
	// OpsPerSecond throttles deferred recalculations (0 = unlimited)
	OpsPerSecond uint

	// Timeout bounds one deferred recalculation (default: 1m)
	Timeout time.Duration
}

// Indexer recalculates folder version indexes.
//
// Thread Safety: Safe for concurrent use. Concurrent recalculations of the
// same folder serialize on the store's path locks.
type Indexer struct {
	store  storage.Store
	worker *workqueue.Worker[bool]
	now    func() time.Time
}

// New creates an indexer over store. The deferred worker is not started.
func New(store storage.Store, config Config) *Indexer {
	ix := &Indexer{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
	// A recursive request subsumes a shallow one for the same folder.
	ix.worker = workqueue.New(workqueue.Config{
		Name:         "indexer",
		OpsPerSecond: config.OpsPerSecond,
		ItemTimeout:  config.Timeout,
	}, ix.process, func(queued, added bool) bool { return queued || added })
	return ix
}

// Recalculate rewrites the index properties of folder, and of every folder
// below it when recursive is set.
//
// Returns a StoreError with ErrNotFound when folder does not exist and
// ErrNotFolder when it is a file.
func (ix *Indexer) Recalculate(ctx context.Context, folder storage.RepoPath, recursive bool) error {
	return ix.store.Update(ctx, func(tx storage.Tx) error {
		return ix.recalculate(tx, folder, recursive)
	})
}

func (ix *Indexer) recalculate(tx storage.Tx, folder storage.RepoPath, recursive bool) error {
	item, err := tx.Resolve(folder)
	if err != nil {
		return err
	}
	if !item.IsFolder() {
		return &storage.StoreError{Code: storage.ErrNotFolder, Message: "cannot index a file", Path: folder.String()}
	}

	children, err := tx.Children(folder)
	if err != nil {
		return err
	}

	var versions semver.Collection
	for _, child := range children {
		if !child.IsFolder() {
			continue
		}
		if v, err := semver.NewVersion(child.Name()); err == nil {
			versions = append(versions, v)
		}
		if recursive {
			if err := ix.recalculate(tx, child.Path, true); err != nil {
				return err
			}
		}
	}

	// Repository roots carry no metadata.
	if folder.IsRoot() {
		return nil
	}

	props := item.Properties.Clone()
	if props == nil {
		props = storage.Properties{}
	}
	if !applyIndex(props, versions) {
		return nil
	}
	if len(versions) > 0 {
		props.Set(PropUpdated, ix.now().Format(time.RFC3339))
	}

	item.Properties = props
	logger.Debug("indexer: %s has %d versions", folder, len(versions))
	return tx.UpdateItem(item)
}

// applyIndex writes the index for versions into props and reports whether
// the folder needs rewriting.
func applyIndex(props storage.Properties, versions semver.Collection) bool {
	if len(versions) == 0 {
		_, had := props[PropVersions]
		for _, key := range []string{PropVersions, PropLatest, PropRelease, PropUpdated} {
			delete(props, key)
		}
		return had
	}

	sort.Sort(versions)

	names := make([]string, len(versions))
	for i, v := range versions {
		names[i] = v.Original()
	}
	props.Set(PropVersions, names...)
	props.Set(PropLatest, versions[len(versions)-1].Original())

	delete(props, PropRelease)
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].Prerelease() == "" {
			props.Set(PropRelease, versions[i].Original())
			break
		}
	}
	return true
}

// Schedule queues a deferred recalculation. Duplicate requests for a queued
// folder are merged.
func (ix *Indexer) Schedule(folder storage.RepoPath, recursive bool) {
	ix.worker.Add(folder, recursive)
}

// Pending returns the number of queued folders.
func (ix *Indexer) Pending() int {
	return ix.worker.Len()
}

// Start launches the deferred worker.
func (ix *Indexer) Start() {
	logger.Info("Starting metadata indexer")
	ix.worker.Start()
}

// Stop waits for the deferred worker to finish its current folder.
func (ix *Indexer) Stop(ctx context.Context) error {
	return ix.worker.Stop(ctx)
}

// Flush recalculates every queued folder synchronously.
func (ix *Indexer) Flush(ctx context.Context) error {
	return ix.worker.Flush(ctx)
}

func (ix *Indexer) process(ctx context.Context, folder storage.RepoPath, recursive bool) error {
	err := ix.Recalculate(ctx, folder, recursive)
	if storage.IsNotFound(err) {
		logger.Debug("indexer: %s vanished before recalculation", folder)
		return nil
	}
	if err != nil {
		return fmt.Errorf("recalculate %s: %w", folder, err)
	}
	return nil
}
