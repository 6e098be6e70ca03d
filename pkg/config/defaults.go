package config

import (
	"strings"
	"time"
)

// DefaultBinaryStore is the name of the binary store created when none is configured.
const DefaultBinaryStore = "default"

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Store-specific defaults are handled by store implementations
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyStorageDefaults(&cfg.Storage)

	if len(cfg.Binaries) == 0 {
		cfg.Binaries = []BinaryStoreConfig{{Name: DefaultBinaryStore}}
	}
	for i := range cfg.Binaries {
		applyBinaryStoreDefaults(&cfg.Binaries[i])
	}

	if len(cfg.Repositories) == 0 {
		cfg.Repositories = []RepositoryConfig{
			{
				Key:             "libs-release-local",
				Description:     "Local releases",
				HandleReleases:  boolPtr(true),
				HandleSnapshots: boolPtr(false),
			},
			{
				Key:             "libs-snapshot-local",
				Description:     "Local snapshots",
				HandleReleases:  boolPtr(false),
				HandleSnapshots: boolPtr(true),
			},
		}
	}
	for i := range cfg.Repositories {
		applyRepositoryDefaults(&cfg.Repositories[i], cfg.Binaries[0].Name)
	}

	applyRelocationDefaults(&cfg.Relocation)
	applyIndexerDefaults(&cfg.Indexer)
	applyPruningDefaults(&cfg.Pruning)
	applyGCDefaults(&cfg.GC)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyStorageDefaults sets item store defaults.
func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Type == "" {
		cfg.Type = "badger"
	}

	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}

	// Applied for every type so generated config files are complete
	if _, ok := cfg.Badger["db_path"]; !ok {
		cfg.Badger["db_path"] = "/tmp/dittorepo/items"
	}
	if _, ok := cfg.Badger["lock_timeout"]; !ok {
		cfg.Badger["lock_timeout"] = "10s"
	}
	if _, ok := cfg.Memory["lock_timeout"]; !ok {
		cfg.Memory["lock_timeout"] = "10s"
	}
}

// applyBinaryStoreDefaults sets binary store defaults.
func applyBinaryStoreDefaults(cfg *BinaryStoreConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}

	if cfg.Type == "filesystem" {
		if cfg.Filesystem == nil {
			cfg.Filesystem = make(map[string]any)
		}
		if _, ok := cfg.Filesystem["path"]; !ok {
			cfg.Filesystem["path"] = "/tmp/dittorepo/binaries/" + cfg.Name
		}
	}
}

// applyRepositoryDefaults sets repository defaults.
func applyRepositoryDefaults(cfg *RepositoryConfig, binaryStore string) {
	if cfg.Type == "" {
		cfg.Type = "local"
	}
	if cfg.BinaryStore == "" {
		cfg.BinaryStore = binaryStore
	}
	if cfg.HandleReleases == nil {
		cfg.HandleReleases = boolPtr(true)
	}
	if cfg.HandleSnapshots == nil {
		cfg.HandleSnapshots = boolPtr(true)
	}
}

// applyRelocationDefaults sets relocation defaults.
func applyRelocationDefaults(cfg *RelocationConfig) {
	if cfg.Strategy == "" {
		cfg.Strategy = "single_transaction"
	}
	// FailFast, PruneDeferred and SyncMetadata default to false
}

func applyIndexerDefaults(cfg *IndexerConfig) {
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Minute
	}
}

func applyPruningDefaults(cfg *PruningConfig) {
	if cfg.DeletesPerSecond == 0 {
		cfg.DeletesPerSecond = 100
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Minute
	}
}

// applyGCDefaults sets garbage collector defaults.
func applyGCDefaults(cfg *GCConfig) {
	if cfg.Interval == 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = time.Hour
	}
	if cfg.DeletesPerSecond == 0 {
		cfg.DeletesPerSecond = 50
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}
}

func boolPtr(b bool) *bool {
	return &b
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
