package config

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:   "defaults",
			mutate: func(cfg *Config) {},
		},
		{
			name:    "invalid log level",
			mutate:  func(cfg *Config) { cfg.Logging.Level = "LOUD" },
			wantErr: "oneof",
		},
		{
			name:    "unknown storage type",
			mutate:  func(cfg *Config) { cfg.Storage.Type = "postgres" },
			wantErr: "oneof",
		},
		{
			name: "duplicate binary store",
			mutate: func(cfg *Config) {
				cfg.Binaries = append(cfg.Binaries, BinaryStoreConfig{Name: DefaultBinaryStore, Type: "memory"})
			},
			wantErr: "duplicate binary store",
		},
		{
			name: "duplicate repository key",
			mutate: func(cfg *Config) {
				cfg.Repositories = append(cfg.Repositories, cfg.Repositories[0])
			},
			wantErr: "duplicate repository key",
		},
		{
			name:    "repository key with separator",
			mutate:  func(cfg *Config) { cfg.Repositories[0].Key = "bad:key" },
			wantErr: "excludesall",
		},
		{
			name:    "undefined binary store",
			mutate:  func(cfg *Config) { cfg.Repositories[0].BinaryStore = "nope" },
			wantErr: "is not defined",
		},
		{
			name:    "invalid pattern",
			mutate:  func(cfg *Config) { cfg.Repositories[0].Excludes = []string{"[unclosed"} },
			wantErr: "invalid pattern",
		},
		{
			name: "permission target with unknown repository",
			mutate: func(cfg *Config) {
				cfg.Security.Permissions = []PermissionTargetConfig{{
					Name:         "devs",
					Repositories: []string{"elsewhere"},
				}}
			},
			wantErr: "unknown repository",
		},
		{
			name: "permission target with unknown action",
			mutate: func(cfg *Config) {
				cfg.Security.Permissions = []PermissionTargetConfig{{
					Name:         "devs",
					Repositories: []string{"ANY"},
					Principals:   map[string][]string{"dev": {"fly"}},
				}}
			},
			wantErr: "oneof",
		},
		{
			name:    "security enabled without grants",
			mutate:  func(cfg *Config) { cfg.Security.Enabled = true },
			wantErr: "without admins",
		},
		{
			name:    "invalid strategy",
			mutate:  func(cfg *Config) { cfg.Relocation.Strategy = "yolo" },
			wantErr: "oneof",
		},
		{
			name:    "metrics path without slash",
			mutate:  func(cfg *Config) { cfg.Metrics.Path = "metrics" },
			wantErr: "startswith",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
