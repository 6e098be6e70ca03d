package workqueue

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

type recorder struct {
	mu   sync.Mutex
	seen map[storage.RepoPath]bool
	log  []storage.RepoPath
}

func (r *recorder) process(_ context.Context, p storage.RepoPath, recursive bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen == nil {
		r.seen = make(map[storage.RepoPath]bool)
	}
	r.seen[p] = recursive
	r.log = append(r.log, p)
	return nil
}

func or(a, b bool) bool { return a || b }

func TestAddMergesDuplicates(t *testing.T) {
	rec := &recorder{}
	w := New(Config{Name: "test"}, rec.process, or)

	a := storage.MustRepoPath("libs", "a")
	b := storage.MustRepoPath("libs", "b")
	w.Add(a, false)
	w.Add(b, false)
	w.Add(a, true)
	assert.Equal(t, 2, w.Len())

	require.NoError(t, w.Flush(context.Background()))
	assert.Equal(t, 0, w.Len())
	assert.Equal(t, []storage.RepoPath{a, b}, rec.log)
	assert.True(t, rec.seen[a])
	assert.False(t, rec.seen[b])
}

func TestFlushContinuesAfterErrors(t *testing.T) {
	var processed []string
	w := New(Config{Name: "test"}, func(_ context.Context, p storage.RepoPath, _ struct{}) error {
		processed = append(processed, p.Path)
		return errors.New("boom")
	}, nil)

	w.Add(storage.MustRepoPath("libs", "a"), struct{}{})
	w.Add(storage.MustRepoPath("libs", "b"), struct{}{})

	require.NoError(t, w.Flush(context.Background()))
	assert.Equal(t, []string{"a", "b"}, processed)
}

func TestBackgroundWorkerDrains(t *testing.T) {
	rec := &recorder{}
	w := New(Config{Name: "test"}, rec.process, or)
	w.Start()

	w.Add(storage.MustRepoPath("libs", "x"), true)

	assert.Eventually(t, func() bool { return w.Len() == 0 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.True(t, rec.seen[storage.MustRepoPath("libs", "x")])
}

func TestFlushHonoursCancellation(t *testing.T) {
	rec := &recorder{}
	w := New(Config{Name: "test"}, rec.process, or)
	w.Add(storage.MustRepoPath("libs", "a"), false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.Flush(ctx), context.Canceled)
	assert.Equal(t, 1, w.Len())
}
