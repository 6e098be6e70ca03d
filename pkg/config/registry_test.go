package config

import (
	"context"
	"strings"
	"testing"

	"github.com/marmos91/dittorepo/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *Config {
	cfg := &Config{
		Storage:  StorageConfig{Type: "memory"},
		Binaries: []BinaryStoreConfig{{Name: "mem", Type: "memory"}},
		Repositories: []RepositoryConfig{
			{Key: "staging"},
			{Key: "release", HandleSnapshots: boolPtr(false)},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

func TestInitialize_WiresEngine(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig()
	require.NoError(t, Validate(cfg))

	rt, err := Initialize(ctx, cfg)
	require.NoError(t, err)
	rt.Start()
	defer func() { assert.NoError(t, rt.Close(ctx)) }()

	assert.Equal(t, []string{"release", "staging"}, rt.Repositories.Keys())
	assert.Nil(t, rt.Metrics.Server)

	staging := rt.Repositories.MustGet("staging")
	_, err = staging.Deploy(ctx, "org/lib/1.0/lib-1.0.jar", strings.NewReader("jar"), nil, "ci")
	require.NoError(t, err)

	status, err := rt.Engine.Move(ctx,
		storage.MustRepoPath("staging", "org/lib/1.0"),
		storage.MustRepoPath("release", "org/lib/1.0"),
		cfg.Relocation.Options()...)
	require.NoError(t, err)
	assert.Equal(t, 1, status.MovedFiles())
	assert.False(t, status.HasErrors())

	exists, err := rt.Repositories.MustGet("release").Exists(ctx, "org/lib/1.0/lib-1.0.jar")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestInitialize_UnknownBinaryStoreType(t *testing.T) {
	cfg := memoryConfig()
	cfg.Binaries[0].Type = "tape"

	_, err := Initialize(context.Background(), cfg)
	assert.Error(t, err)
}
