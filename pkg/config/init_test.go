package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestInitConfig_Success(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	contentStr := string(content)
	expectedSections := []string{
		"# dittorepo Configuration File",
		"logging:",
		"storage:",
		"binaries:",
		"repositories:",
		"security:",
		"relocation:",
		"gc:",
		"metrics:",
	}
	for _, section := range expectedSections {
		if !strings.Contains(contentStr, section) {
			t.Errorf("Config file missing section: %s", section)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		t.Fatalf("Generated config is not valid YAML: %v", err)
	}
	if len(cfg.Repositories) != 2 {
		t.Errorf("Expected 2 repositories in generated config, got %d", len(cfg.Repositories))
	}

	if _, err := InitConfig(false); err == nil {
		t.Fatal("Expected error when config already exists")
	}
	if _, err := InitConfig(true); err != nil {
		t.Fatalf("Force InitConfig failed: %v", err)
	}
}

func TestInitConfigToPath_AlreadyExists(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("existing"), 0644); err != nil {
		t.Fatalf("Failed to create existing file: %v", err)
	}

	err := InitConfigToPath(configPath, false)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("Expected 'already exists' error, got: %v", err)
	}

	if err := InitConfigToPath(configPath, true); err != nil {
		t.Fatalf("Force InitConfigToPath failed: %v", err)
	}
	content, _ := os.ReadFile(configPath)
	if string(content) == "existing" {
		t.Error("File was not overwritten")
	}
}

func TestGeneratedConfigIsLoadable(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "dittorepo.yaml")
	if err := InitConfigToPath(configPath, false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Generated config does not load: %v", err)
	}

	want := GetDefaultConfig()
	if cfg.Indexer.Timeout != want.Indexer.Timeout {
		t.Errorf("Expected indexer timeout %v, got %v", want.Indexer.Timeout, cfg.Indexer.Timeout)
	}
	if cfg.Repositories[1].Key != "libs-snapshot-local" {
		t.Errorf("Unexpected second repository %q", cfg.Repositories[1].Key)
	}
	if cfg.Repositories[1].Descriptor().HandleReleases {
		t.Error("Snapshot repository should not handle releases")
	}
}
