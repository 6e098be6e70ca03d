// Package badger implements storage.Store on BadgerDB.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/pkg/storage"
	"github.com/marmos91/dittorepo/pkg/storage/lock"
)

// BadgerStore implements storage.Store using BadgerDB for persistence.
//
// Each storage transaction maps to one badger.Txn, so an Update commits
// atomically or not at all. Path locks come from the shared lock table; they
// are held until the badger transaction has committed or been discarded.
//
// Thread Safety:
// Safe for concurrent use. BadgerDB provides snapshot isolation; concurrent
// writers that slip past the lock table (different processes are not
// supported) surface as ErrConflict.
type BadgerStore struct {
	db    *badgerdb.DB
	locks *lock.Table
}

// Config contains configuration for creating a BadgerStore.
type Config struct {
	// DBPath is the directory where BadgerDB stores its files
	DBPath string `mapstructure:"db_path" validate:"required"`

	// LockTimeout bounds how long a transaction waits for a path lock
	LockTimeout time.Duration `mapstructure:"lock_timeout"`

	// BlockCacheSizeMB is BadgerDB's block cache size in MB (default: 64)
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb"`

	// IndexCacheSizeMB is BadgerDB's index cache size in MB (default: 32)
	IndexCacheSizeMB int64 `mapstructure:"index_cache_size_mb"`

	// InMemory runs BadgerDB without touching disk (tests)
	InMemory bool `mapstructure:"in_memory"`
}

// NewBadgerStore opens (or creates) a BadgerDB database at cfg.DBPath.
//
// Parameters:
//   - ctx: Context for cancellation during open
//   - cfg: Database location, lock timeout and cache sizes
//
// Returns:
//   - *BadgerStore: A store ready for use
//   - error: Error if BadgerDB cannot be opened
func NewBadgerStore(ctx context.Context, cfg Config) (*BadgerStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := badgerdb.DefaultOptions(cfg.DBPath)
	if cfg.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLoggingLevel(badgerdb.WARNING)
	opts = opts.WithCompression(options.None)

	blockCacheMB := cfg.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 64
	}
	indexCacheMB := cfg.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 32
	}
	opts = opts.WithBlockCacheSize(blockCacheMB << 20)
	opts = opts.WithIndexCacheSize(indexCacheMB << 20)

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.DBPath, err)
	}

	logger.Debug("Opened item store at %s (in_memory=%v)", cfg.DBPath, cfg.InMemory)

	return &BadgerStore{
		db:    db,
		locks: lock.NewTable(cfg.LockTimeout),
	}, nil
}

// Update implements storage.Store.
func (s *BadgerStore) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	session := s.locks.Begin(ctx)
	defer session.End()

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		if err := fn(storage.NewTx(&primitives{txn: txn}, session, true)); err != nil {
			return err
		}
		return ctx.Err()
	})
	return translateError(err)
}

// View implements storage.Store.
func (s *BadgerStore) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.View(func(txn *badgerdb.Txn) error {
		return fn(storage.NewTx(&primitives{txn: txn}, nil, false))
	})
	return translateError(err)
}

// ReferencedBinaries implements storage.Store by scanning every item key.
func (s *BadgerStore) ReferencedBinaries(ctx context.Context) (map[string]int64, error) {
	refs := make(map[string]int64)

	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefixItem)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var item storage.Item
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &item)
			}); err != nil {
				return err
			}
			if !item.IsFolder() && item.Checksums.SHA1 != "" {
				refs[item.Checksums.SHA1] = item.Size
			}
		}
		return nil
	})
	if err != nil {
		return nil, translateError(err)
	}
	return refs, nil
}

// Close implements storage.Store.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// RunValueLogGC reclaims value log space. Safe to call periodically.
func (s *BadgerStore) RunValueLogGC(discardRatio float64) error {
	err := s.db.RunValueLogGC(discardRatio)
	if errors.Is(err, badgerdb.ErrNoRewrite) {
		return nil
	}
	return err
}

func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badgerdb.ErrTxnTooBig):
		return &storage.StoreError{Code: storage.ErrTxnTooBig, Message: "transaction too big", Err: err}
	case errors.Is(err, badgerdb.ErrConflict):
		return &storage.StoreError{Code: storage.ErrConflict, Message: "transaction conflict", Err: err}
	default:
		return err
	}
}

// primitives implements storage.Primitives on one badger transaction.
type primitives struct {
	txn *badgerdb.Txn
}

func (p *primitives) Get(path storage.RepoPath) (*storage.Item, error) {
	entry, err := p.txn.Get(itemKey(path))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var item storage.Item
	if err := entry.Value(func(val []byte) error {
		return json.Unmarshal(val, &item)
	}); err != nil {
		return nil, fmt.Errorf("failed to decode item %s: %w", path, err)
	}
	return &item, nil
}

func (p *primitives) Put(item *storage.Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode item %s: %w", item.Path, err)
	}
	if err := p.txn.Set(itemKey(item.Path), data); err != nil {
		return translateError(err)
	}
	if parent, ok := item.Path.Parent(); ok {
		if err := p.txn.Set(childKey(parent, item.Path.Name()), nil); err != nil {
			return translateError(err)
		}
	}
	return nil
}

func (p *primitives) Remove(path storage.RepoPath) error {
	if err := p.txn.Delete(itemKey(path)); err != nil {
		return translateError(err)
	}
	if parent, ok := path.Parent(); ok {
		if err := p.txn.Delete(childKey(parent, path.Name())); err != nil {
			return translateError(err)
		}
	}
	return nil
}

func (p *primitives) ChildNames(parent storage.RepoPath) ([]string, error) {
	prefix := childPrefix(parent)

	opts := badgerdb.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := p.txn.NewIterator(opts)
	defer it.Close()

	var names []string
	for it.Rewind(); it.Valid(); it.Next() {
		names = append(names, childNameFromKey(prefix, it.Item().KeyCopy(nil)))
	}
	return names, nil
}
