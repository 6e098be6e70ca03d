package config

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marmos91/dittorepo/pkg/relocate"
	"github.com/marmos91/dittorepo/pkg/security"
	"github.com/marmos91/dittorepo/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateItemStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		store, err := CreateItemStore(ctx, &StorageConfig{
			Type:   "memory",
			Memory: map[string]any{"lock_timeout": "2s"},
		})
		require.NoError(t, err)
		assert.NoError(t, store.Close())
	})

	t.Run("badger in memory", func(t *testing.T) {
		store, err := CreateItemStore(ctx, &StorageConfig{
			Type:   "badger",
			Badger: map[string]any{"in_memory": true},
		})
		require.NoError(t, err)
		assert.NoError(t, store.Close())
	})

	t.Run("badger on disk", func(t *testing.T) {
		store, err := CreateItemStore(ctx, &StorageConfig{
			Type:   "badger",
			Badger: map[string]any{"db_path": filepath.Join(t.TempDir(), "items"), "lock_timeout": "1s"},
		})
		require.NoError(t, err)
		assert.NoError(t, store.Close())
	})

	t.Run("badger without path", func(t *testing.T) {
		_, err := CreateItemStore(ctx, &StorageConfig{Type: "badger", Badger: map[string]any{}})
		assert.ErrorContains(t, err, "db_path is required")
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := CreateItemStore(ctx, &StorageConfig{Type: "postgres"})
		assert.Error(t, err)
	})
}

func TestCreateBinaryStore(t *testing.T) {
	ctx := context.Background()

	stores, err := CreateBinaryStores(ctx, []BinaryStoreConfig{
		{Name: "mem", Type: "memory"},
		{Name: "disk", Type: "filesystem", Filesystem: map[string]any{"path": t.TempDir()}},
	})
	require.NoError(t, err)
	require.Len(t, stores, 2)

	info, err := stores["disk"].Write(ctx, strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)

	_, err = CreateBinaryStore(ctx, &BinaryStoreConfig{Name: "s3", Type: "s3", S3: map[string]any{"region": "us-east-1"}})
	assert.ErrorContains(t, err, "bucket is required")

	_, err = CreateBinaryStore(ctx, &BinaryStoreConfig{Name: "s3", Type: "s3", S3: map[string]any{"bucket": "b"}})
	assert.ErrorContains(t, err, "region is required")
}

func TestCreateAuthorizer(t *testing.T) {
	authz, err := CreateAuthorizer(&SecurityConfig{})
	require.NoError(t, err)
	assert.IsType(t, security.AllowAll{}, authz)

	authz, err = CreateAuthorizer(&SecurityConfig{
		Enabled: true,
		Admins:  []string{"root"},
		Permissions: []PermissionTargetConfig{{
			Name:         "devs",
			Repositories: []string{"libs"},
			Principals:   map[string][]string{"dev": {"read", "deploy"}},
		}},
	})
	require.NoError(t, err)

	p := storage.MustRepoPath("libs", "a/b.jar")
	dev := security.WithUser(context.Background(), "dev")
	root := security.WithUser(context.Background(), "root")

	assert.True(t, authz.CanDeploy(dev, p))
	assert.False(t, authz.CanDelete(dev, p))
	assert.True(t, authz.CanDelete(root, p))
}

func TestRelocationOptions(t *testing.T) {
	cfg := relocate.NewMoveConfig(RelocationConfig{Strategy: "single_transaction"}.Options()...)
	assert.Equal(t, relocate.SingleTransaction, cfg.Strategy())
	assert.False(t, cfg.IsFailFast())

	cfg = relocate.NewMoveConfig(RelocationConfig{
		Strategy:      "per_item",
		FailFast:      true,
		PruneDeferred: true,
		SyncMetadata:  true,
	}.Options()...)
	assert.Equal(t, relocate.PerItem, cfg.Strategy())
	assert.True(t, cfg.IsFailFast())
	assert.True(t, cfg.PruneEmptyFolders())
	assert.True(t, cfg.RecalcMetadataSync())
}
