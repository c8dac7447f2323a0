// Adaptopt - Adaptive Model Selection for Geospatial Predictions
// Copyright 2026 Meridian Weather
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianwx/adaptopt

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in priority
// order. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/adaptopt/config.yaml",
	"/etc/adaptopt/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load builds configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// STORE_BACKEND -> store.backend, OPTIMIZER_RADIUS_KM -> optimizer.radius_km
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps environment variable names (lowercased) to koanf paths.
// Unmapped variables are ignored so random environment does not pollute the
// config.
var envMappings = map[string]string{
	// Store
	"store_backend":      "store.backend",
	"store_path":         "store.path",
	"store_max_results":  "store.max_results",
	"store_grid_cell_km": "store.grid_cell_km",

	// Optimizer
	"optimizer_default_model_id":  "optimizer.default_model_id",
	"optimizer_radius_km":         "optimizer.radius_km",
	"optimizer_min_samples":       "optimizer.min_samples",
	"optimizer_cache_enabled":     "optimizer.cache_enabled",
	"optimizer_cache_ttl":         "optimizer.cache_ttl",
	"optimizer_cache_max_entries": "optimizer.cache_max_entries",
	"optimizer_cache_epsilon_km":  "optimizer.cache_epsilon_km",

	// Prediction cache
	"prediction_cache_ttl":         "prediction.cache_ttl",
	"prediction_cache_max_entries": "prediction.cache_max_entries",
	"prediction_cleanup_interval":  "prediction.cleanup_interval",

	// Learning
	"learning_accuracy_scale": "learning.accuracy_scale",

	// Server
	"metrics_addr":     "server.metrics_addr",
	"stats_interval":   "server.stats_interval",
	"shutdown_timeout": "server.shutdown_timeout",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
