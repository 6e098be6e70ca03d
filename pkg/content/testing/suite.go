// Package testing provides a conformance suite for content.Store implementations.
package testing

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/marmos91/dittorepo/pkg/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite tests the content.Store contract.
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test.
	NewStore func(t *testing.T) content.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("WriteComputesChecksums", suite.TestWriteComputesChecksums)
	t.Run("ReadRoundTrip", suite.TestReadRoundTrip)
	t.Run("StatNotFound", suite.TestStatNotFound)
	t.Run("WriteIsIdempotent", suite.TestWriteIsIdempotent)
	t.Run("Delete", suite.TestDelete)
	t.Run("ListAndStats", suite.TestListAndStats)
	t.Run("ConcurrentIdenticalWrites", suite.TestConcurrentIdenticalWrites)
	t.Run("Has", suite.TestHas)
}

// Known checksums of "hello world".
const (
	HelloSHA1   = "2aae6c35c94fcfb415dbe95f408b9ce91ee846ed"
	HelloMD5    = "5eb63bbbe01eeed093cb22bb8f5acdc3"
	HelloSHA256 = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
)

func (suite *StoreTestSuite) TestWriteComputesChecksums(t *testing.T) {
	store := suite.NewStore(t)

	info, err := store.Write(context.Background(), strings.NewReader("hello world"))
	require.NoError(t, err)

	assert.Equal(t, HelloSHA1, info.Checksums.SHA1)
	assert.Equal(t, HelloMD5, info.Checksums.MD5)
	assert.Equal(t, HelloSHA256, info.Checksums.SHA256)
	assert.Equal(t, int64(11), info.Size)
}

func (suite *StoreTestSuite) TestReadRoundTrip(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	payload := bytes.Repeat([]byte("artifact-bytes "), 4096)

	info, err := store.Write(ctx, bytes.NewReader(payload))
	require.NoError(t, err)

	rc, err := store.Read(ctx, info.Checksums.SHA1)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	stat, err := store.Stat(ctx, info.Checksums.SHA1)
	require.NoError(t, err)
	assert.Equal(t, info.Checksums, stat.Checksums)
	assert.Equal(t, int64(len(payload)), stat.Size)
}

func (suite *StoreTestSuite) TestStatNotFound(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	_, err := store.Stat(ctx, HelloSHA1)
	assert.True(t, content.IsNotFound(err))

	_, err = store.Read(ctx, HelloSHA1)
	assert.True(t, content.IsNotFound(err))
}

func (suite *StoreTestSuite) TestWriteIsIdempotent(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	first, err := store.Write(ctx, strings.NewReader("hello world"))
	require.NoError(t, err)
	second, err := store.Write(ctx, strings.NewReader("hello world"))
	require.NoError(t, err)

	assert.Equal(t, first.Checksums, second.Checksums)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Binaries)
	assert.Equal(t, int64(11), stats.TotalSize)
}

func (suite *StoreTestSuite) TestDelete(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	info, err := store.Write(ctx, strings.NewReader("hello world"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, info.Checksums.SHA1))
	require.NoError(t, store.Delete(ctx, info.Checksums.SHA1))

	_, err = store.Stat(ctx, info.Checksums.SHA1)
	assert.True(t, content.IsNotFound(err))
}

func (suite *StoreTestSuite) TestListAndStats(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	a, err := store.Write(ctx, strings.NewReader("a"))
	require.NoError(t, err)
	b, err := store.Write(ctx, strings.NewReader("bb"))
	require.NoError(t, err)

	keys, err := store.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.Checksums.SHA1, b.Checksums.SHA1}, keys)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, content.Stats{Binaries: 2, TotalSize: 3}, stats)
}

func (suite *StoreTestSuite) TestConcurrentIdenticalWrites(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Write(ctx, strings.NewReader("hello world"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	keys, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{HelloSHA1}, keys)
}

func (suite *StoreTestSuite) TestHas(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	info, err := store.Write(ctx, strings.NewReader("hello world"))
	require.NoError(t, err)

	ok, err := content.Has(ctx, store, info.Checksums, info.Size)
	require.NoError(t, err)
	assert.True(t, ok)

	mismatched := info.Checksums
	mismatched.MD5 = "00000000000000000000000000000000"
	ok, err = content.Has(ctx, store, mismatched, info.Size)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = content.Has(ctx, store, info.Checksums, info.Size+1)
	require.NoError(t, err)
	assert.False(t, ok)
}
