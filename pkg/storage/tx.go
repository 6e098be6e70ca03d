package storage

import (
	"errors"
	"time"
)

// Primitives is the raw item surface a backend exposes to NewTx.
//
// Implementations only store and fetch items; hierarchy rules (parents,
// type clashes, recursion, locking) are enforced by the Tx built on top.
// Repository roots are never passed to Put or Remove.
type Primitives interface {
	// Get returns the stored item at p, or (nil, nil) when absent.
	Get(p RepoPath) (*Item, error)

	// Put stores item, registering it as a child of its parent.
	Put(item *Item) error

	// Remove deletes the single item at p and its child registration.
	Remove(p RepoPath) error

	// ChildNames returns the names of p's direct children in sorted order.
	ChildNames(p RepoPath) ([]string, error)
}

// Locker acquires path locks on behalf of one transaction.
type Locker interface {
	Lock(p RepoPath) error
}

type nopLocker struct{}

func (nopLocker) Lock(RepoPath) error { return nil }

// NewTx builds a Tx over backend primitives. A nil locker disables locking,
// which is what read-only transactions use.
func NewTx(prims Primitives, locker Locker, writable bool) Tx {
	if locker == nil {
		locker = nopLocker{}
	}
	return &tx{prims: prims, locker: locker, writable: writable}
}

type tx struct {
	prims    Primitives
	locker   Locker
	writable bool
}

func (t *tx) checkWritable(p RepoPath) error {
	if !t.writable {
		return &StoreError{Code: ErrReadOnly, Message: "write in read-only transaction", Path: p.String()}
	}
	return nil
}

func (t *tx) get(p RepoPath) (*Item, error) {
	if p.IsRoot() {
		return &Item{Path: p, Type: ItemFolder}, nil
	}
	item, err := t.prims.Get(p)
	if err != nil {
		return nil, wrapIO(err, p)
	}
	return item, nil
}

func (t *tx) Resolve(p RepoPath) (*Item, error) {
	if err := t.locker.Lock(p); err != nil {
		return nil, err
	}
	item, err := t.get(p)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, NotFound(p)
	}
	return item.Clone(), nil
}

func (t *tx) Exists(p RepoPath) (bool, error) {
	if err := t.locker.Lock(p); err != nil {
		return false, err
	}
	item, err := t.get(p)
	if err != nil {
		return false, err
	}
	return item != nil, nil
}

func (t *tx) Children(p RepoPath) ([]*Item, error) {
	folder, err := t.Resolve(p)
	if err != nil {
		return nil, err
	}
	if !folder.IsFolder() {
		return nil, &StoreError{Code: ErrNotFolder, Message: "cannot list children of a file", Path: p.String()}
	}

	names, err := t.prims.ChildNames(p)
	if err != nil {
		return nil, wrapIO(err, p)
	}

	children := make([]*Item, 0, len(names))
	for _, name := range names {
		child, err := t.get(p.Child(name))
		if err != nil {
			return nil, err
		}
		if child != nil {
			children = append(children, child.Clone())
		}
	}
	return children, nil
}

func (t *tx) CreateFolder(p RepoPath) (*Item, error) {
	if err := t.checkWritable(p); err != nil {
		return nil, err
	}
	if err := t.locker.Lock(p); err != nil {
		return nil, err
	}

	existing, err := t.get(p)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if !existing.IsFolder() {
			return nil, &StoreError{Code: ErrNotFolder, Message: "a file occupies the folder path", Path: p.String()}
		}
		return existing.Clone(), nil
	}

	if parent, ok := p.Parent(); ok {
		if _, err := t.CreateFolder(parent); err != nil {
			return nil, err
		}
	}

	folder := NewFolder(p, "")
	if err := t.prims.Put(folder); err != nil {
		return nil, wrapIO(err, p)
	}
	return folder.Clone(), nil
}

func (t *tx) PutFile(item *Item) error {
	p := item.Path
	if err := t.checkWritable(p); err != nil {
		return err
	}
	if p.IsRoot() || item.IsFolder() {
		return &StoreError{Code: ErrInvalidArgument, Message: "not a file item", Path: p.String()}
	}
	if err := t.locker.Lock(p); err != nil {
		return err
	}

	existing, err := t.get(p)
	if err != nil {
		return err
	}
	if existing != nil && existing.IsFolder() {
		return &StoreError{Code: ErrIsFolder, Message: "a folder occupies the file path", Path: p.String()}
	}

	if parent, ok := p.Parent(); ok {
		if _, err := t.CreateFolder(parent); err != nil {
			return err
		}
	}

	stored := item.Clone()
	now := time.Now().UTC()
	if stored.Created.IsZero() {
		stored.Created = now
	}
	if stored.LastModified.IsZero() {
		stored.LastModified = now
	}
	return wrapIO(t.prims.Put(stored), p)
}

func (t *tx) UpdateItem(item *Item) error {
	p := item.Path
	if err := t.checkWritable(p); err != nil {
		return err
	}
	if p.IsRoot() {
		return &StoreError{Code: ErrInvalidArgument, Message: "repository roots carry no metadata", Path: p.String()}
	}
	existing, err := t.Resolve(p)
	if err != nil {
		return err
	}
	if existing.Type != item.Type {
		return &StoreError{Code: ErrInvalidArgument, Message: "item type cannot change", Path: p.String()}
	}
	return wrapIO(t.prims.Put(item.Clone()), p)
}

func (t *tx) Delete(p RepoPath) (bool, error) {
	if err := t.checkWritable(p); err != nil {
		return false, err
	}
	if p.IsRoot() {
		return false, &StoreError{Code: ErrInvalidArgument, Message: "repository roots cannot be deleted", Path: p.String()}
	}
	if err := t.locker.Lock(p); err != nil {
		return false, err
	}

	existing, err := t.get(p)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}

	if existing.IsFolder() {
		names, err := t.prims.ChildNames(p)
		if err != nil {
			return false, wrapIO(err, p)
		}
		for _, name := range names {
			if _, err := t.Delete(p.Child(name)); err != nil {
				return false, err
			}
		}
	}

	if err := t.prims.Remove(p); err != nil {
		return false, wrapIO(err, p)
	}
	return true, nil
}

func (t *tx) Lock(p RepoPath) error {
	return t.locker.Lock(p)
}

func (t *tx) Walk(root RepoPath, fn WalkFunc) error {
	item, err := t.Resolve(root)
	if err != nil {
		return err
	}
	err = t.walk(item, fn)
	if errors.Is(err, SkipFolder) {
		return nil
	}
	return err
}

func (t *tx) walk(item *Item, fn WalkFunc) error {
	if err := fn(item); err != nil {
		return err
	}
	if !item.IsFolder() {
		return nil
	}

	children, err := t.Children(item.Path)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := t.walk(child, fn); err != nil {
			if errors.Is(err, SkipFolder) {
				continue
			}
			return err
		}
	}
	return nil
}

// wrapIO classifies a raw backend error as ErrIOError unless it already is a StoreError.
func wrapIO(err error, p RepoPath) error {
	if err == nil {
		return nil
	}
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return err
	}
	return &StoreError{Code: ErrIOError, Message: "storage backend failure", Path: p.String(), Err: err}
}
