package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func setupWorkspace(t *testing.T) (configFile string, artifact string) {
	t.Helper()
	dir := t.TempDir()

	configFile = filepath.Join(dir, "config.yaml")
	cfg := `
logging:
  level: "ERROR"
storage:
  type: "badger"
  badger:
    db_path: "` + filepath.Join(dir, "items") + `"
binaries:
  - name: "main"
    type: "filesystem"
    filesystem:
      path: "` + filepath.Join(dir, "binaries") + `"
repositories:
  - key: "staging"
    binary_store: "main"
  - key: "release"
    binary_store: "main"
    handle_snapshots: false
    excludes:
      - "**/*.asc"
`
	require.NoError(t, os.WriteFile(configFile, []byte(cfg), 0644))

	artifact = filepath.Join(dir, "lib.jar")
	require.NoError(t, os.WriteFile(artifact, []byte("jar bytes"), 0644))
	return configFile, artifact
}

func TestArtifactLifecycle(t *testing.T) {
	cfg, artifact := setupWorkspace(t)

	out, err := run(t, "deploy", "-c", cfg, "staging:org/lib/1.0/lib-1.0.jar", artifact)
	require.NoError(t, err)
	assert.Contains(t, out, "deployed staging:org/lib/1.0/lib-1.0.jar")

	_, err = run(t, "deploy", "-c", cfg, "staging:org/lib/1.0/lib-1.0.jar.asc", artifact)
	require.NoError(t, err)

	out, err = run(t, "move", "-c", cfg, "--dry-run", "staging:org/lib/1.0", "release:org/lib/1.0")
	require.NoError(t, err)
	assert.Contains(t, out, "Move (dry run)")
	assert.Contains(t, out, "1 file and 1 folder would be moved, 1 warning")

	// Flag values persist between executions of the same command tree.
	out, err = run(t, "move", "-c", cfg, "--dry-run=false", "staging:org/lib/1.0", "release:org/lib/1.0")
	require.NoError(t, err)
	assert.Contains(t, out, "1 file and 1 folder moved, 1 warning")

	out, err = run(t, "ls", "-c", cfg, "release:org/lib/1.0")
	require.NoError(t, err)
	assert.Contains(t, out, "release:org/lib/1.0/lib-1.0.jar")
	assert.NotContains(t, out, ".asc")

	out, err = run(t, "ls", "-c", cfg, "staging:org/lib/1.0")
	require.NoError(t, err)
	assert.Contains(t, out, "lib-1.0.jar.asc")

	out, err = run(t, "reindex", "-c", cfg, "release:org/lib")
	require.NoError(t, err)
	assert.Contains(t, out, "latest=1.0 release=1.0")

	out, err = run(t, "gc", "-c", cfg, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Garbage collection (dry run)")
}

func TestMoveReportsErrors(t *testing.T) {
	cfg, _ := setupWorkspace(t)

	out, err := run(t, "move", "-c", cfg, "staging:missing", "release:missing")
	assert.ErrorIs(t, err, errRelocationFailed)
	assert.Contains(t, out, "not_found")
}

func TestMoveRejectsMalformedPaths(t *testing.T) {
	cfg, _ := setupWorkspace(t)

	_, err := run(t, "copy", "-c", cfg, "no-separator", "release:x")
	assert.Error(t, err)
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dittorepo.yaml")

	out, err := run(t, "init", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, "configuration written to "+path)
	assert.FileExists(t, path)

	_, err = run(t, "init", "--path", path)
	assert.ErrorContains(t, err, "already exists")
}

func TestParseProperties(t *testing.T) {
	props, err := parseProperties([]string{"build=42", "tag=a", "tag=b", "empty="})
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, props["build"])
	assert.Equal(t, []string{"a", "b"}, props["tag"])
	assert.Equal(t, []string{""}, props["empty"])

	_, err = parseProperties([]string{"novalue"})
	assert.Error(t, err)
}
