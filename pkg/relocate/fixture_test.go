package relocate

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/dittorepo/pkg/content"
	contentmemory "github.com/marmos91/dittorepo/pkg/content/memory"
	"github.com/marmos91/dittorepo/pkg/indexer"
	"github.com/marmos91/dittorepo/pkg/prune"
	"github.com/marmos91/dittorepo/pkg/repository"
	"github.com/marmos91/dittorepo/pkg/security"
	"github.com/marmos91/dittorepo/pkg/storage"
	storememory "github.com/marmos91/dittorepo/pkg/storage/memory"
	"github.com/stretchr/testify/require"
)

const (
	releaseRepo = "libs-release"
	targetRepo  = "libs-target"
	otherRepo   = "libs-other"
	cacheRepo   = "remote-cache"
)

type fixture struct {
	items     *failingStore
	primary   *contentmemory.MemoryContentStore
	secondary *contentmemory.MemoryContentStore
	repos     *repository.Registry
	indexer   *indexer.Indexer
	pruner    *prune.Pruner
	engine    *Engine
}

type fixtureOption func(*Deps)

// newFixture wires four repositories over one item store:
//   - libs-release: accepts everything (primary binaries)
//   - libs-target: releases only, excludes *.asc (primary binaries)
//   - libs-other: accepts everything (secondary binaries)
//   - remote-cache: a cache (primary binaries)
func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{
		items:     &failingStore{Store: storememory.NewMemoryStore(storememory.Config{LockTimeout: time.Second})},
		primary:   contentmemory.NewMemoryContentStore(),
		secondary: contentmemory.NewMemoryContentStore(),
		repos:     repository.NewRegistry(),
	}

	register := func(desc repository.Descriptor, binaries content.Store) {
		repo, err := repository.New(desc, f.items, binaries)
		require.NoError(t, err)
		require.NoError(t, f.repos.Register(repo))
	}
	register(repository.Descriptor{Key: releaseRepo, Type: repository.TypeLocal, HandleReleases: true, HandleSnapshots: true}, f.primary)
	register(repository.Descriptor{Key: targetRepo, Type: repository.TypeLocal, HandleReleases: true, Excludes: []string{"**/*.asc"}}, f.primary)
	register(repository.Descriptor{Key: otherRepo, Type: repository.TypeLocal, HandleReleases: true, HandleSnapshots: true}, f.secondary)
	register(repository.Descriptor{Key: cacheRepo, Type: repository.TypeRemote, HandleReleases: true, HandleSnapshots: true}, f.primary)

	f.indexer = indexer.New(f.items, indexer.Config{})
	f.pruner = prune.New(f.items, prune.Config{})

	deps := Deps{
		Store:      f.items,
		Repos:      f.repos,
		Authorizer: security.AllowAll{},
		Metadata:   f.indexer,
		Pruner:     f.pruner,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	engine, err := New(deps)
	require.NoError(t, err)
	f.engine = engine
	return f
}

func rp(s string) storage.RepoPath {
	p, err := storage.ParseRepoPath(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (f *fixture) deploy(t *testing.T, path, body string) *storage.Item {
	t.Helper()
	p := rp(path)
	item, err := f.repos.MustGet(p.RepoKey).Deploy(context.Background(), p.Path, strings.NewReader(body), nil, "deployer")
	require.NoError(t, err)
	return item
}

func (f *fixture) mkdir(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, f.items.Update(context.Background(), func(tx storage.Tx) error {
		_, err := tx.CreateFolder(rp(path))
		return err
	}))
}

func (f *fixture) resolve(t *testing.T, path string) *storage.Item {
	t.Helper()
	var item *storage.Item
	err := f.items.View(context.Background(), func(tx storage.Tx) error {
		var err error
		item, err = tx.Resolve(rp(path))
		return err
	})
	if storage.IsNotFound(err) {
		return nil
	}
	require.NoError(t, err)
	return item
}

func (f *fixture) exists(t *testing.T, path string) bool {
	t.Helper()
	return f.resolve(t, path) != nil
}

func (f *fixture) children(t *testing.T, path string) []string {
	t.Helper()
	var names []string
	require.NoError(t, f.items.View(context.Background(), func(tx storage.Tx) error {
		items, err := tx.Children(rp(path))
		for _, item := range items {
			names = append(names, item.Name())
		}
		return err
	}))
	return names
}

func (f *fixture) read(t *testing.T, path string) string {
	t.Helper()
	p := rp(path)
	_, rc, err := f.repos.MustGet(p.RepoKey).Open(context.Background(), p.Path)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

// dump returns every item of every repository keyed by path.
func (f *fixture) dump(t *testing.T) map[string]storage.Item {
	t.Helper()
	out := make(map[string]storage.Item)
	require.NoError(t, f.items.View(context.Background(), func(tx storage.Tx) error {
		for _, key := range f.repos.Keys() {
			err := tx.Walk(storage.Root(key), func(item *storage.Item) error {
				out[item.Path.String()] = *item.Clone()
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}))
	return out
}

type entryKey struct {
	Level Level
	Code  Code
	Path  string
}

func keys(entries []Entry) []entryKey {
	out := make([]entryKey, len(entries))
	for i, e := range entries {
		out[i] = entryKey{Level: e.Level, Code: e.Code, Path: e.Path.String()}
	}
	return out
}

// failingStore injects I/O failures into PutFile once armed.
type failingStore struct {
	storage.Store
	failOn string
}

func (s *failingStore) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.Store.Update(ctx, func(tx storage.Tx) error {
		return fn(&failingTx{Tx: tx, failOn: s.failOn})
	})
}

type failingTx struct {
	storage.Tx
	failOn string
}

func (t *failingTx) PutFile(item *storage.Item) error {
	if t.failOn != "" && strings.HasSuffix(item.Path.Path, t.failOn) {
		return &storage.StoreError{Code: storage.ErrIOError, Message: "injected failure", Path: item.Path.String()}
	}
	return t.Tx.PutFile(item)
}

const validPOM = `<?xml version="1.0"?>
<project xmlns="http://maven.apache.org/POM/4.0.0">
  <groupId>tree</groupId>
  <artifactId>lib</artifactId>
  <version>1.0</version>
</project>`

const wrongPOM = `<project><groupId>wrong</groupId><artifactId>bad</artifactId><version>2.0</version></project>`

// seedTree deploys a subtree exercising every admission check when
// relocated from libs-release:tree to libs-target:tree.
func seedTree(t *testing.T, f *fixture) {
	t.Helper()
	f.deploy(t, "libs-release:tree/bad/2.0/bad-2.0.pom", wrongPOM)
	f.deploy(t, "libs-release:tree/clash/inner.txt", "inner")
	f.deploy(t, "libs-release:tree/lib/1.0/lib-1.0.jar", "jar bytes")
	f.deploy(t, "libs-release:tree/lib/1.0/lib-1.0.jar.asc", "signature")
	f.deploy(t, "libs-release:tree/lib/1.0/lib-1.0.pom", validPOM)
	f.deploy(t, "libs-release:tree/lib/1.1-SNAPSHOT/lib-1.1-SNAPSHOT.jar", "snapshot")
	f.deploy(t, "libs-release:tree/over/file.txt", "new content")
	f.deploy(t, "libs-release:tree/sig/x.asc", "signature")

	f.deploy(t, "libs-target:tree/clash", "a file in the way")
	f.deploy(t, "libs-target:tree/over/file.txt", "old content")
}
