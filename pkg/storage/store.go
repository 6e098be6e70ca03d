package storage

import (
	"context"
	"errors"
)

// SkipFolder is returned by a WalkFunc to skip the children of the folder
// just visited.
var SkipFolder = errors.New("skip folder")

// WalkFunc is called for every item visited by Tx.Walk, parents before children.
type WalkFunc func(item *Item) error

// Tx is a single storage transaction.
//
// Inside Store.Update every path touched through the Tx is locked exclusively
// until the transaction ends (commit or rollback). A path read first and
// written later by the same transaction keeps the lock it already holds, so
// read-to-write upgrades never block on the transaction itself.
//
// Repository roots always exist and are never deleted.
type Tx interface {
	// Resolve returns the item at p, or a StoreError with ErrNotFound.
	Resolve(p RepoPath) (*Item, error)

	// Exists reports whether an item is stored at p.
	Exists(p RepoPath) (bool, error)

	// Children returns the direct children of folder p ordered by name.
	Children(p RepoPath) ([]*Item, error)

	// CreateFolder returns the folder at p, creating it and any missing
	// ancestors. Fails with ErrNotFolder when a file occupies p or an ancestor.
	CreateFolder(p RepoPath) (*Item, error)

	// PutFile creates or overwrites the file item.Path, creating missing
	// ancestors. Fails with ErrIsFolder when a folder occupies the path.
	PutFile(item *Item) error

	// UpdateItem rewrites the metadata of an existing item of the same type.
	UpdateItem(item *Item) error

	// Delete removes the item at p and its whole subtree. It returns false
	// when nothing was stored at p.
	Delete(p RepoPath) (bool, error)

	// Lock acquires the lock on p without reading it.
	Lock(p RepoPath) error

	// Walk visits root and its subtree depth-first in name order.
	Walk(root RepoPath, fn WalkFunc) error
}

// Store persists repository items.
type Store interface {
	// Update runs fn in a read-write transaction. The transaction commits when
	// fn returns nil and is discarded otherwise.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// View runs fn in a read-only transaction. Writes fail with ErrReadOnly.
	View(ctx context.Context, fn func(tx Tx) error) error

	// ReferencedBinaries returns every SHA-1 referenced by a file item, with
	// the file size. Used by the binary garbage collector.
	ReferencedBinaries(ctx context.Context) (map[string]int64, error)

	// Close releases backend resources.
	Close() error
}
