package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete dittorepo configuration.
//
// This structure captures every configurable aspect of the repository manager:
//   - Logging configuration
//   - The item store backing every repository's tree
//   - Named binary stores (content-addressable providers)
//   - Repository definitions and their acceptance policy
//   - Security (permission targets)
//   - Relocation defaults, metadata indexing, pruning, garbage collection
//   - Metrics
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DITTOREPO_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Store Configuration Pattern:
// Each store implementation defines its own configuration type. The Config
// struct carries type-specific sections (e.g. storage.badger, binaries[].s3)
// and only the section matching the selected type is decoded.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Storage selects the item store shared by all repositories
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Binaries defines the named binary stores repositories refer to
	Binaries []BinaryStoreConfig `mapstructure:"binaries" yaml:"binaries" validate:"required,min=1,dive"`

	// Repositories defines the repositories served
	Repositories []RepositoryConfig `mapstructure:"repositories" yaml:"repositories" validate:"required,min=1,dive"`

	// Security configures authorization
	Security SecurityConfig `mapstructure:"security" yaml:"security"`

	// Relocation holds the defaults applied to move and copy requests
	Relocation RelocationConfig `mapstructure:"relocation" yaml:"relocation"`

	// Indexer configures deferred metadata recalculation
	Indexer IndexerConfig `mapstructure:"indexer" yaml:"indexer"`

	// Pruning configures deferred removal of empty folders
	Pruning PruningConfig `mapstructure:"pruning" yaml:"pruning"`

	// GC configures the orphaned binary collector
	GC GCConfig `mapstructure:"gc" yaml:"gc"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// StorageConfig specifies the item store.
//
// The Type field determines which store implementation is used.
type StorageConfig struct {
	// Type specifies which item store implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory badger"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory" yaml:"memory,omitempty"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger,omitempty"`
}

// BinaryStoreConfig defines one named binary store.
type BinaryStoreConfig struct {
	// Name is referenced by repositories' binary_store
	Name string `mapstructure:"name" yaml:"name" validate:"required"`

	// Type specifies which binary store implementation to use
	// Valid values: memory, filesystem, s3
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory filesystem s3"`

	// Filesystem contains filesystem-specific configuration
	// Only used when Type = "filesystem"
	Filesystem map[string]any `mapstructure:"filesystem" yaml:"filesystem,omitempty"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3,omitempty"`
}

// RepositoryConfig defines a single repository.
type RepositoryConfig struct {
	// Key identifies the repository in paths ("<key>:<path>")
	Key string `mapstructure:"key" yaml:"key" validate:"required,excludesall=:/"`

	// Type is local (authoritative) or remote (a retrieval cache)
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=local remote"`

	Description string `mapstructure:"description" yaml:"description,omitempty"`

	// BinaryStore names the binary store holding this repository's binaries
	BinaryStore string `mapstructure:"binary_store" yaml:"binary_store" validate:"required"`

	// Includes and Excludes are doublestar patterns over repository paths
	Includes []string `mapstructure:"includes" yaml:"includes,omitempty"`
	Excludes []string `mapstructure:"excludes" yaml:"excludes,omitempty"`

	// HandleReleases and HandleSnapshots default to true
	HandleReleases  *bool `mapstructure:"handle_releases" yaml:"handle_releases"`
	HandleSnapshots *bool `mapstructure:"handle_snapshots" yaml:"handle_snapshots"`

	// SuppressDescriptorConsistency disables the POM coordinate check
	SuppressDescriptorConsistency bool `mapstructure:"suppress_descriptor_consistency" yaml:"suppress_descriptor_consistency"`
}

// SecurityConfig controls authorization.
//
// When Enabled is false every user may do everything.
type SecurityConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// AnonymousAccess lets unauthenticated requests be evaluated against the targets
	AnonymousAccess bool `mapstructure:"anonymous_access" yaml:"anonymous_access"`

	// Admins are granted every action everywhere
	Admins []string `mapstructure:"admins" yaml:"admins,omitempty"`

	// Permissions lists the permission targets
	Permissions []PermissionTargetConfig `mapstructure:"permissions" yaml:"permissions,omitempty" validate:"dive"`
}

// PermissionTargetConfig grants actions to principals over a set of paths.
type PermissionTargetConfig struct {
	Name string `mapstructure:"name" yaml:"name" validate:"required"`

	// Repositories lists repository keys, or ANY
	Repositories []string `mapstructure:"repositories" yaml:"repositories" validate:"required,min=1"`

	Includes []string `mapstructure:"includes" yaml:"includes,omitempty"`
	Excludes []string `mapstructure:"excludes" yaml:"excludes,omitempty"`

	// Principals maps a user name to its actions (read, deploy, delete, annotate)
	Principals map[string][]string `mapstructure:"principals" yaml:"principals" validate:"dive,dive,oneof=read deploy delete annotate"`
}

// RelocationConfig holds defaults for move and copy requests. CLI flags
// override them per request.
type RelocationConfig struct {
	// Strategy selects the walker
	// Valid values: single_transaction, per_item
	Strategy string `mapstructure:"strategy" yaml:"strategy" validate:"required,oneof=single_transaction per_item"`

	// FailFast stops a relocation at the first warning or error
	FailFast bool `mapstructure:"fail_fast" yaml:"fail_fast"`

	// PruneDeferred hands emptied source folders to the pruning service
	// instead of deleting them inline
	PruneDeferred bool `mapstructure:"prune_deferred" yaml:"prune_deferred"`

	// SyncMetadata recalculates metadata before a request returns
	SyncMetadata bool `mapstructure:"sync_metadata" yaml:"sync_metadata"`
}

// IndexerConfig configures deferred metadata recalculation.
type IndexerConfig struct {
	// OpsPerSecond throttles deferred recalculations (0 = unlimited)
	OpsPerSecond uint `mapstructure:"ops_per_second" yaml:"ops_per_second"`

	// Timeout bounds one recalculation
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
}

// PruningConfig configures deferred folder pruning.
type PruningConfig struct {
	// DeletesPerSecond throttles deletions (0 = unlimited)
	DeletesPerSecond uint `mapstructure:"deletes_per_second" yaml:"deletes_per_second"`

	// Timeout bounds one pruning pass
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
}

// GCConfig configures the orphaned binary collector.
type GCConfig struct {
	// Enabled starts periodic collection with the long-running commands
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Interval between collections
	Interval time.Duration `mapstructure:"interval" yaml:"interval" validate:"gt=0"`

	// GracePeriod a binary must stay orphaned before it is deleted
	GracePeriod time.Duration `mapstructure:"grace_period" yaml:"grace_period" validate:"gte=0"`

	// DeletesPerSecond throttles deletions (0 = unlimited)
	DeletesPerSecond uint `mapstructure:"deletes_per_second" yaml:"deletes_per_second"`

	// DryRun logs orphans without deleting them
	DryRun bool `mapstructure:"dry_run" yaml:"dry_run"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port the metrics server listens on
	Port int `mapstructure:"port" yaml:"port" validate:"gte=0,lte=65535"`

	// Path metrics are served on
	Path string `mapstructure:"path" yaml:"path" validate:"required,startswith=/"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTOREPO_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the DITTOREPO_ prefix and underscores
	// Example: DITTOREPO_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DITTOREPO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only overrides keys viper already knows about
	for _, key := range []string{
		"logging.level", "logging.format", "logging.output",
		"storage.type",
		"relocation.strategy", "relocation.fail_fast", "relocation.prune_deferred", "relocation.sync_metadata",
		"gc.enabled", "gc.dry_run",
		"metrics.enabled", "metrics.port",
	} {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/dittorepo/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			// Use defaults
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittorepo")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittorepo")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
