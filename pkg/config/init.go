package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// section is one top-level block of the generated config file.
type section struct {
	key     string
	comment string
	value   any
}

// InitConfig writes a sample configuration to the default location.
//
// Parameters:
//   - force: Overwrite an existing file
//
// Returns:
//   - string: Path of the written file
//   - error: If the file exists (without force) or cannot be written
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration to path, creating parent
// directories as needed.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// generateYAMLWithComments renders cfg section by section, each preceded by
// a comment block.
func generateYAMLWithComments(cfg *Config) (string, error) {
	sections := []section{
		{"logging", "Logging: level (DEBUG, INFO, WARN, ERROR), format (text, json), output (stdout, stderr, path)", cfg.Logging},
		{"storage", "Item store shared by every repository: memory or badger", cfg.Storage},
		{"binaries", "Named binary stores: memory, filesystem or s3", cfg.Binaries},
		{"repositories", "Repositories: key, type (local, remote), binary_store, include/exclude patterns, release/snapshot handling", cfg.Repositories},
		{"security", "Authorization. Disabled means every user may do everything", cfg.Security},
		{"relocation", "Defaults for move and copy (strategy: single_transaction or per_item)", cfg.Relocation},
		{"indexer", "Deferred metadata recalculation", cfg.Indexer},
		{"pruning", "Deferred removal of empty folders", cfg.Pruning},
		{"gc", "Orphaned binary garbage collection", cfg.GC},
		{"metrics", "Prometheus metrics endpoint", cfg.Metrics},
	}

	var b strings.Builder
	b.WriteString("# dittorepo Configuration File\n")
	b.WriteString("#\n")
	b.WriteString("# Every value can be overridden with a DITTOREPO_ environment variable,\n")
	b.WriteString("# e.g. DITTOREPO_LOGGING_LEVEL=DEBUG.\n")

	for _, s := range sections {
		out, err := yaml.Marshal(map[string]any{s.key: s.value})
		if err != nil {
			return "", fmt.Errorf("failed to render %s section: %w", s.key, err)
		}
		b.WriteString("\n# ")
		b.WriteString(s.comment)
		b.WriteString("\n")
		b.Write(out)
	}

	return b.String(), nil
}
