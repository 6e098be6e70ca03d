// Package lock implements the per-path lock table shared by storage backends.
//
// Locks are exclusive and owned by a transaction. A transaction that already
// holds a path can re-acquire it for free, which gives read-to-write upgrades
// without a separate shared mode. All locks of a transaction are released
// together when it ends.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittorepo/pkg/storage"
)

// DefaultTimeout bounds how long a transaction waits for a single path.
const DefaultTimeout = 30 * time.Second

type holder struct {
	owner    string
	released chan struct{}
}

// Table tracks which transaction holds which path.
//
// Thread Safety:
// All methods are safe for concurrent use.
type Table struct {
	mu      sync.Mutex
	timeout time.Duration
	holders map[storage.RepoPath]*holder
	owned   map[string][]storage.RepoPath
}

// NewTable creates a lock table. A zero timeout uses DefaultTimeout.
func NewTable(timeout time.Duration) *Table {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Table{
		timeout: timeout,
		holders: make(map[storage.RepoPath]*holder),
		owned:   make(map[string][]storage.RepoPath),
	}
}

// Acquire takes the lock on p for owner, waiting until it is released by its
// current holder, the table timeout elapses or ctx is done.
func (t *Table) Acquire(ctx context.Context, owner string, p storage.RepoPath) error {
	var timeout <-chan time.Time

	for {
		t.mu.Lock()
		h, held := t.holders[p]
		if !held {
			t.holders[p] = &holder{owner: owner, released: make(chan struct{})}
			t.owned[owner] = append(t.owned[owner], p)
			t.mu.Unlock()
			return nil
		}
		if h.owner == owner {
			t.mu.Unlock()
			return nil
		}
		released := h.released
		t.mu.Unlock()

		if timeout == nil {
			timer := time.NewTimer(t.timeout)
			defer timer.Stop()
			timeout = timer.C
		}

		select {
		case <-released:
		case <-timeout:
			return &storage.StoreError{Code: storage.ErrLockTimeout, Message: "timed out waiting for lock", Path: p.String()}
		case <-ctx.Done():
			return &storage.StoreError{Code: storage.ErrLockTimeout, Message: "cancelled waiting for lock", Path: p.String(), Err: ctx.Err()}
		}
	}
}

// ReleaseAll releases every lock held by owner and wakes their waiters.
func (t *Table) ReleaseAll(owner string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, p := range t.owned[owner] {
		if h, ok := t.holders[p]; ok && h.owner == owner {
			delete(t.holders, p)
			close(h.released)
		}
	}
	delete(t.owned, owner)
}

// Holder returns the owner currently holding p.
func (t *Table) Holder(p storage.RepoPath) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.holders[p]
	if !ok {
		return "", false
	}
	return h.owner, true
}

// Held returns the number of locked paths.
func (t *Table) Held() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.holders)
}

// Session is the storage.Locker handed to one transaction.
type Session struct {
	table *Table
	ctx   context.Context
	owner string
}

// Begin opens a lock session with a fresh owner id.
func (t *Table) Begin(ctx context.Context) *Session {
	return &Session{table: t, ctx: ctx, owner: uuid.NewString()}
}

// Lock implements storage.Locker.
func (s *Session) Lock(p storage.RepoPath) error {
	return s.table.Acquire(s.ctx, s.owner, p)
}

// Owner returns the session's owner id.
func (s *Session) Owner() string {
	return s.owner
}

// End releases all locks taken by the session.
func (s *Session) End() {
	s.table.ReleaseAll(s.owner)
}
