// Package memory implements storage.Store in process memory.
//
// Transactions stage their writes in an overlay and apply them atomically on
// commit, so a failed Update leaves the committed tree untouched.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/marmos91/dittorepo/pkg/storage"
	"github.com/marmos91/dittorepo/pkg/storage/lock"
)

// MemoryStore is an in-memory storage.Store.
//
// Thread Safety:
// The committed tree is guarded by mu. Concurrent Update calls are isolated
// by the per-path lock table: two transactions touching the same path
// serialize on its lock, disjoint transactions run in parallel.
type MemoryStore struct {
	mu       sync.RWMutex
	items    map[storage.RepoPath]*storage.Item
	children map[storage.RepoPath]map[string]struct{}
	locks    *lock.Table
	closed   bool
}

// Config configures a MemoryStore.
type Config struct {
	// LockTimeout bounds how long a transaction waits for a path lock
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(cfg Config) *MemoryStore {
	return &MemoryStore{
		items:    make(map[storage.RepoPath]*storage.Item),
		children: make(map[storage.RepoPath]map[string]struct{}),
		locks:    lock.NewTable(cfg.LockTimeout),
	}
}

// Locks exposes the lock table for diagnostics.
func (s *MemoryStore) Locks() *lock.Table {
	return s.locks
}

func (s *MemoryStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return &storage.StoreError{Code: storage.ErrIOError, Message: "store is closed"}
	}
	return nil
}

// Update implements storage.Store.
func (s *MemoryStore) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.checkOpen(); err != nil {
		return err
	}

	session := s.locks.Begin(ctx)
	defer session.End()

	ov := newOverlay(s)
	if err := fn(storage.NewTx(ov, session, true)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.commit(ov)
	return nil
}

// View implements storage.Store.
func (s *MemoryStore) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	return fn(storage.NewTx(newOverlay(s), nil, false))
}

// ReferencedBinaries implements storage.Store.
func (s *MemoryStore) ReferencedBinaries(ctx context.Context) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	refs := make(map[string]int64)
	for _, item := range s.items {
		if !item.IsFolder() && item.Checksums.SHA1 != "" {
			refs[item.Checksums.SHA1] = item.Size
		}
	}
	return refs, nil
}

// Close implements storage.Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Len returns the number of committed items.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *MemoryStore) commit(ov *overlay) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for p := range ov.deleted {
		delete(s.items, p)
		delete(s.children, p)
		if parent, ok := p.Parent(); ok {
			delete(s.children[parent], p.Name())
		}
	}
	for p, item := range ov.writes {
		s.items[p] = item
		if parent, ok := p.Parent(); ok {
			names := s.children[parent]
			if names == nil {
				names = make(map[string]struct{})
				s.children[parent] = names
			}
			names[p.Name()] = struct{}{}
		}
	}
}

// overlay stages one transaction's writes on top of the committed tree.
type overlay struct {
	store    *MemoryStore
	writes   map[storage.RepoPath]*storage.Item
	deleted  map[storage.RepoPath]struct{}
	children map[storage.RepoPath]map[string]struct{}
}

func newOverlay(s *MemoryStore) *overlay {
	return &overlay{
		store:    s,
		writes:   make(map[storage.RepoPath]*storage.Item),
		deleted:  make(map[storage.RepoPath]struct{}),
		children: make(map[storage.RepoPath]map[string]struct{}),
	}
}

func (o *overlay) Get(p storage.RepoPath) (*storage.Item, error) {
	if item, ok := o.writes[p]; ok {
		return item, nil
	}
	if _, ok := o.deleted[p]; ok {
		return nil, nil
	}

	o.store.mu.RLock()
	defer o.store.mu.RUnlock()
	return o.store.items[p], nil
}

func (o *overlay) Put(item *storage.Item) error {
	p := item.Path
	o.writes[p] = item.Clone()
	if parent, ok := p.Parent(); ok {
		names := o.children[parent]
		if names == nil {
			names = make(map[string]struct{})
			o.children[parent] = names
		}
		names[p.Name()] = struct{}{}
	}
	return nil
}

func (o *overlay) Remove(p storage.RepoPath) error {
	delete(o.writes, p)
	o.deleted[p] = struct{}{}
	if parent, ok := p.Parent(); ok {
		delete(o.children[parent], p.Name())
	}
	return nil
}

func (o *overlay) ChildNames(p storage.RepoPath) ([]string, error) {
	names := make(map[string]struct{})

	o.store.mu.RLock()
	for name := range o.store.children[p] {
		names[name] = struct{}{}
	}
	o.store.mu.RUnlock()

	for name := range names {
		child := p.Child(name)
		if _, gone := o.deleted[child]; gone {
			if _, rewritten := o.writes[child]; !rewritten {
				delete(names, name)
			}
		}
	}
	for name := range o.children[p] {
		names[name] = struct{}{}
	}

	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, name)
	}
	slices.Sort(out)
	return out, nil
}
