// Package testing provides a conformance suite for storage.Store implementations.
package testing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/dittorepo/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite tests the storage.Store contract, not implementation details,
// so it can be reused across backends.
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test. Stores are expected
	// to use a short lock timeout (well under a second).
	NewStore func(t *testing.T) storage.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("PutFileCreatesParents", suite.TestPutFileCreatesParents)
	t.Run("ResolveNotFound", suite.TestResolveNotFound)
	t.Run("RootAlwaysExists", suite.TestRootAlwaysExists)
	t.Run("ChildrenInNameOrder", suite.TestChildrenInNameOrder)
	t.Run("CreateFolderIsIdempotent", suite.TestCreateFolderIsIdempotent)
	t.Run("TypeClashes", suite.TestTypeClashes)
	t.Run("DeleteIsRecursive", suite.TestDeleteIsRecursive)
	t.Run("DeleteRoot", suite.TestDeleteRoot)
	t.Run("RollbackOnError", suite.TestRollbackOnError)
	t.Run("DeleteThenRecreate", suite.TestDeleteThenRecreate)
	t.Run("ViewIsReadOnly", suite.TestViewIsReadOnly)
	t.Run("UpdateItem", suite.TestUpdateItem)
	t.Run("Walk", suite.TestWalk)
	t.Run("ReferencedBinaries", suite.TestReferencedBinaries)
	t.Run("ConflictingTransactionsTimeOut", suite.TestConflictingTransactionsTimeOut)
	t.Run("DisjointTransactionsRunConcurrently", suite.TestDisjointTransactionsRunConcurrently)
}

// File builds a file item for tests.
func File(p storage.RepoPath, sha1 string, size int64) *storage.Item {
	return &storage.Item{
		Path:      p,
		Type:      storage.ItemFile,
		Size:      size,
		Checksums: storage.Checksums{SHA1: sha1, MD5: "md5-" + sha1},
	}
}

func path(p string) storage.RepoPath {
	return storage.MustRepoPath("libs", p)
}

func (suite *StoreTestSuite) seed(t *testing.T, store storage.Store, files ...string) {
	t.Helper()
	require.NoError(t, store.Update(context.Background(), func(tx storage.Tx) error {
		for _, f := range files {
			if err := tx.PutFile(File(path(f), "sha-"+f, 1)); err != nil {
				return err
			}
		}
		return nil
	}))
}

func (suite *StoreTestSuite) TestPutFileCreatesParents(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	suite.seed(t, store, "org/lib/1.0/a.jar")

	require.NoError(t, store.View(ctx, func(tx storage.Tx) error {
		for _, folder := range []string{"org", "org/lib", "org/lib/1.0"} {
			item, err := tx.Resolve(path(folder))
			require.NoError(t, err, folder)
			assert.True(t, item.IsFolder(), folder)
		}
		item, err := tx.Resolve(path("org/lib/1.0/a.jar"))
		require.NoError(t, err)
		assert.False(t, item.IsFolder())
		assert.Equal(t, "sha-org/lib/1.0/a.jar", item.Checksums.SHA1)
		assert.False(t, item.Created.IsZero())
		return nil
	}))
}

func (suite *StoreTestSuite) TestResolveNotFound(t *testing.T) {
	store := suite.NewStore(t)

	require.NoError(t, store.View(context.Background(), func(tx storage.Tx) error {
		_, err := tx.Resolve(path("missing"))
		assert.True(t, storage.IsNotFound(err))

		exists, err := tx.Exists(path("missing"))
		require.NoError(t, err)
		assert.False(t, exists)
		return nil
	}))
}

func (suite *StoreTestSuite) TestRootAlwaysExists(t *testing.T) {
	store := suite.NewStore(t)

	require.NoError(t, store.View(context.Background(), func(tx storage.Tx) error {
		root, err := tx.Resolve(storage.Root("libs"))
		require.NoError(t, err)
		assert.True(t, root.IsFolder())

		children, err := tx.Children(storage.Root("libs"))
		require.NoError(t, err)
		assert.Empty(t, children)
		return nil
	}))
}

func (suite *StoreTestSuite) TestChildrenInNameOrder(t *testing.T) {
	store := suite.NewStore(t)
	suite.seed(t, store, "dir/c.txt", "dir/a.txt", "dir/b/x.txt")

	require.NoError(t, store.View(context.Background(), func(tx storage.Tx) error {
		children, err := tx.Children(path("dir"))
		require.NoError(t, err)

		var names []string
		for _, c := range children {
			names = append(names, c.Name())
		}
		assert.Equal(t, []string{"a.txt", "b", "c.txt"}, names)

		_, err = tx.Children(path("dir/a.txt"))
		assert.True(t, storage.IsCode(err, storage.ErrNotFolder))
		return nil
	}))
}

func (suite *StoreTestSuite) TestCreateFolderIsIdempotent(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	var created time.Time
	require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
		folder, err := tx.CreateFolder(path("a/b"))
		require.NoError(t, err)
		created = folder.Created
		return nil
	}))
	require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
		folder, err := tx.CreateFolder(path("a/b"))
		require.NoError(t, err)
		assert.True(t, created.Equal(folder.Created))
		return nil
	}))
}

func (suite *StoreTestSuite) TestTypeClashes(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	suite.seed(t, store, "dir/file.txt")

	err := store.Update(ctx, func(tx storage.Tx) error {
		_, err := tx.CreateFolder(path("dir/file.txt/sub"))
		return err
	})
	assert.True(t, storage.IsCode(err, storage.ErrNotFolder))

	err = store.Update(ctx, func(tx storage.Tx) error {
		return tx.PutFile(File(path("dir"), "x", 1))
	})
	assert.True(t, storage.IsCode(err, storage.ErrIsFolder))
}

func (suite *StoreTestSuite) TestDeleteIsRecursive(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	suite.seed(t, store, "dir/a.txt", "dir/sub/b.txt", "keep.txt")

	require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
		deleted, err := tx.Delete(path("dir"))
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = tx.Delete(path("dir"))
		require.NoError(t, err)
		assert.False(t, deleted)
		return nil
	}))

	require.NoError(t, store.View(ctx, func(tx storage.Tx) error {
		for _, p := range []string{"dir", "dir/a.txt", "dir/sub", "dir/sub/b.txt"} {
			exists, err := tx.Exists(path(p))
			require.NoError(t, err)
			assert.False(t, exists, p)
		}
		children, err := tx.Children(storage.Root("libs"))
		require.NoError(t, err)
		require.Len(t, children, 1)
		assert.Equal(t, "keep.txt", children[0].Name())
		return nil
	}))
}

func (suite *StoreTestSuite) TestDeleteRoot(t *testing.T) {
	store := suite.NewStore(t)

	err := store.Update(context.Background(), func(tx storage.Tx) error {
		_, err := tx.Delete(storage.Root("libs"))
		return err
	})
	assert.True(t, storage.IsCode(err, storage.ErrInvalidArgument))
}

func (suite *StoreTestSuite) TestRollbackOnError(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	suite.seed(t, store, "existing.txt")

	boom := errors.New("boom")
	err := store.Update(ctx, func(tx storage.Tx) error {
		if err := tx.PutFile(File(path("new/file.txt"), "n", 1)); err != nil {
			return err
		}
		if _, err := tx.Delete(path("existing.txt")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, store.View(ctx, func(tx storage.Tx) error {
		exists, _ := tx.Exists(path("existing.txt"))
		assert.True(t, exists)
		exists, _ = tx.Exists(path("new"))
		assert.False(t, exists)
		return nil
	}))
}

func (suite *StoreTestSuite) TestDeleteThenRecreate(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	suite.seed(t, store, "dir/old.txt")

	require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
		if _, err := tx.Delete(path("dir")); err != nil {
			return err
		}
		if err := tx.PutFile(File(path("dir/new.txt"), "n", 1)); err != nil {
			return err
		}
		children, err := tx.Children(path("dir"))
		require.NoError(t, err)
		require.Len(t, children, 1)
		assert.Equal(t, "new.txt", children[0].Name())
		return nil
	}))

	require.NoError(t, store.View(ctx, func(tx storage.Tx) error {
		children, err := tx.Children(path("dir"))
		require.NoError(t, err)
		require.Len(t, children, 1)
		assert.Equal(t, "new.txt", children[0].Name())
		return nil
	}))
}

func (suite *StoreTestSuite) TestViewIsReadOnly(t *testing.T) {
	store := suite.NewStore(t)

	err := store.View(context.Background(), func(tx storage.Tx) error {
		return tx.PutFile(File(path("x.txt"), "x", 1))
	})
	assert.True(t, storage.IsCode(err, storage.ErrReadOnly))
}

func (suite *StoreTestSuite) TestUpdateItem(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	suite.seed(t, store, "dir/a.txt")

	require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
		folder, err := tx.Resolve(path("dir"))
		require.NoError(t, err)
		folder.Properties = storage.Properties{"index.latest": {"1.0"}}
		return tx.UpdateItem(folder)
	}))

	require.NoError(t, store.View(ctx, func(tx storage.Tx) error {
		folder, err := tx.Resolve(path("dir"))
		require.NoError(t, err)
		v, _ := folder.Properties.Get("index.latest")
		assert.Equal(t, "1.0", v)
		return nil
	}))

	err := store.Update(ctx, func(tx storage.Tx) error {
		return tx.UpdateItem(&storage.Item{Path: path("dir"), Type: storage.ItemFile})
	})
	assert.True(t, storage.IsCode(err, storage.ErrInvalidArgument))

	err = store.Update(ctx, func(tx storage.Tx) error {
		return tx.UpdateItem(&storage.Item{Path: path("missing"), Type: storage.ItemFile})
	})
	assert.True(t, storage.IsNotFound(err))
}

func (suite *StoreTestSuite) TestWalk(t *testing.T) {
	store := suite.NewStore(t)
	suite.seed(t, store, "r/a/1.txt", "r/b/skip.txt", "r/c.txt")

	var visited []string
	require.NoError(t, store.View(context.Background(), func(tx storage.Tx) error {
		return tx.Walk(path("r"), func(item *storage.Item) error {
			visited = append(visited, item.Path.Path)
			if item.Path.Path == "r/b" {
				return storage.SkipFolder
			}
			return nil
		})
	}))
	assert.Equal(t, []string{"r", "r/a", "r/a/1.txt", "r/b", "r/c.txt"}, visited)
}

func (suite *StoreTestSuite) TestReferencedBinaries(t *testing.T) {
	store := suite.NewStore(t)
	suite.seed(t, store, "a.txt", "dir/b.txt")

	refs, err := store.ReferencedBinaries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"sha-a.txt": 1, "sha-dir/b.txt": 1}, refs)
}

func (suite *StoreTestSuite) TestConflictingTransactionsTimeOut(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	suite.seed(t, store, "shared.txt")

	holding := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- store.Update(ctx, func(tx storage.Tx) error {
			if _, err := tx.Resolve(path("shared.txt")); err != nil {
				return err
			}
			close(holding)
			<-release
			return nil
		})
	}()

	<-holding
	err := store.Update(ctx, func(tx storage.Tx) error {
		_, err := tx.Delete(path("shared.txt"))
		return err
	})
	assert.True(t, storage.IsCode(err, storage.ErrLockTimeout))

	close(release)
	require.NoError(t, <-done)
}

func (suite *StoreTestSuite) TestDisjointTransactionsRunConcurrently(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	suite.seed(t, store, "one/a.txt", "two/b.txt")

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, p := range []string{"one/a.txt", "two/b.txt"} {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			errs <- store.Update(ctx, func(tx storage.Tx) error {
				item, err := tx.Resolve(path(p))
				if err != nil {
					return err
				}
				item.Properties = storage.Properties{"touched": {"true"}}
				return tx.UpdateItem(item)
			})
		}(p)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}
