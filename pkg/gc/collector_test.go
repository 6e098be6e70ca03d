package gc

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/dittorepo/pkg/content"
	"github.com/marmos91/dittorepo/pkg/content/memory"
	"github.com/marmos91/dittorepo/pkg/storage"
	storememory "github.com/marmos91/dittorepo/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	items      *storememory.MemoryStore
	binaries   *memory.MemoryContentStore
	referenced string
	orphaned   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		items:    storememory.NewMemoryStore(storememory.Config{}),
		binaries: memory.NewMemoryContentStore(),
	}

	kept, err := f.binaries.Write(ctx, strings.NewReader("kept"))
	require.NoError(t, err)
	orphan, err := f.binaries.Write(ctx, strings.NewReader("orphan"))
	require.NoError(t, err)
	f.referenced = kept.Checksums.SHA1
	f.orphaned = orphan.Checksums.SHA1

	require.NoError(t, f.items.Update(ctx, func(tx storage.Tx) error {
		return tx.PutFile(&storage.Item{
			Path:      storage.MustRepoPath("libs", "a.txt"),
			Type:      storage.ItemFile,
			Size:      kept.Size,
			Checksums: kept.Checksums,
		})
	}))
	return f
}

func (f *fixture) collector(t *testing.T, cfg Config) *Collector {
	t.Helper()
	c, err := NewCollector(f.items, map[string]content.Store{"default": f.binaries}, cfg)
	require.NoError(t, err)
	return c
}

func TestRunNowDeletesOrphans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stats, err := f.collector(t, Config{}).RunNow(ctx)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), stats.ReferencedCount)
	assert.Equal(t, uint64(2), stats.ExistingCount)
	assert.Equal(t, uint64(1), stats.OrphanedCount)
	assert.Equal(t, uint64(1), stats.DeletedCount)

	keys, err := f.binaries.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{f.referenced}, keys)
}

func TestDryRunKeepsOrphans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stats, err := f.collector(t, Config{DryRun: true}).RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.OrphanedCount)
	assert.Equal(t, uint64(0), stats.DeletedCount)

	keys, err := f.binaries.List(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestGracePeriodDefersDeletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.collector(t, Config{GracePeriod: 50 * time.Millisecond})

	stats, err := c.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.DeferredCount)
	assert.Equal(t, uint64(0), stats.DeletedCount)

	time.Sleep(60 * time.Millisecond)

	stats, err = c.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.DeletedCount)
}

func TestReferencedAgainLeavesPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.collector(t, Config{GracePeriod: time.Hour})

	_, err := c.RunNow(ctx)
	require.NoError(t, err)
	assert.Len(t, c.pending, 1)

	require.NoError(t, f.items.Update(ctx, func(tx storage.Tx) error {
		return tx.PutFile(&storage.Item{
			Path:      storage.MustRepoPath("libs", "b.txt"),
			Type:      storage.ItemFile,
			Checksums: storage.Checksums{SHA1: f.orphaned},
		})
	}))

	_, err = c.RunNow(ctx)
	require.NoError(t, err)
	assert.Empty(t, c.pending)
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)
	c := f.collector(t, Config{Enabled: true, Interval: 10 * time.Millisecond})

	c.Start()
	time.Sleep(30 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Stop(ctx))
}

func TestNewCollectorValidation(t *testing.T) {
	_, err := NewCollector(nil, map[string]content.Store{"x": memory.NewMemoryContentStore()}, Config{})
	assert.Error(t, err)

	_, err = NewCollector(storememory.NewMemoryStore(storememory.Config{}), nil, Config{})
	assert.Error(t, err)
}
