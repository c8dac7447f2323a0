// Adaptopt - Adaptive Model Selection for Geospatial Predictions
// Copyright 2026 Meridian Weather
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianwx/adaptopt

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Store.Backend != "badger" {
		t.Errorf("Store.Backend = %q, want badger", cfg.Store.Backend)
	}
	if cfg.Optimizer.DefaultModelID != "ensemble" {
		t.Errorf("Optimizer.DefaultModelID = %q, want ensemble", cfg.Optimizer.DefaultModelID)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("OPTIMIZER_RADIUS_KM", "50.5")
	t.Setenv("OPTIMIZER_DEFAULT_MODEL_ID", "persistence")
	t.Setenv("OPTIMIZER_CACHE_TTL", "90s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Store.Backend != "memory" {
		t.Errorf("Store.Backend = %q, want memory", cfg.Store.Backend)
	}
	if cfg.Optimizer.RadiusKm != 50.5 {
		t.Errorf("Optimizer.RadiusKm = %v, want 50.5", cfg.Optimizer.RadiusKm)
	}
	if cfg.Optimizer.DefaultModelID != "persistence" {
		t.Errorf("Optimizer.DefaultModelID = %q, want persistence", cfg.Optimizer.DefaultModelID)
	}
	if cfg.Optimizer.CacheTTL != 90*time.Second {
		t.Errorf("Optimizer.CacheTTL = %v, want 90s", cfg.Optimizer.CacheTTL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
store:
  backend: memory
optimizer:
  radius_km: 25
  min_samples: 3
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("Store.Backend = %q, want memory", cfg.Store.Backend)
	}
	if cfg.Optimizer.RadiusKm != 25 {
		t.Errorf("Optimizer.RadiusKm = %v, want 25", cfg.Optimizer.RadiusKm)
	}
	if cfg.Optimizer.MinSamples != 3 {
		t.Errorf("Optimizer.MinSamples = %v, want 3", cfg.Optimizer.MinSamples)
	}
	// Untouched sections keep their defaults.
	if cfg.Server.MetricsAddr != ":9090" {
		t.Errorf("Server.MetricsAddr = %q, want :9090", cfg.Server.MetricsAddr)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("optimizer:\n  radius_km: 25\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("OPTIMIZER_RADIUS_KM", "75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Optimizer.RadiusKm != 75 {
		t.Errorf("Optimizer.RadiusKm = %v, want env value 75", cfg.Optimizer.RadiusKm)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "sqlite" }},
		{"badger without path", func(c *Config) { c.Store.Backend = "badger"; c.Store.Path = "" }},
		{"empty default model", func(c *Config) { c.Optimizer.DefaultModelID = "" }},
		{"zero radius", func(c *Config) { c.Optimizer.RadiusKm = 0 }},
		{"zero min samples", func(c *Config) { c.Optimizer.MinSamples = 0 }},
		{"zero prediction ttl", func(c *Config) { c.Prediction.CacheTTL = 0 }},
		{"zero accuracy scale", func(c *Config) { c.Learning.AccuracyScale = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestEnvTransformIgnoresUnknownVars(t *testing.T) {
	if got := envTransformFunc("PATH"); got != "" {
		t.Errorf("envTransformFunc(PATH) = %q, want empty", got)
	}
	if got := envTransformFunc("STORE_BACKEND"); got != "store.backend" {
		t.Errorf("envTransformFunc(STORE_BACKEND) = %q", got)
	}
}
