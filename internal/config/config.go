// Adaptopt - Adaptive Model Selection for Geospatial Predictions
// Copyright 2026 Meridian Weather
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianwx/adaptopt

// Package config loads Adaptopt configuration from layered sources with the
// precedence ENV > YAML file > built-in defaults.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the adaptoptd process.
type Config struct {
	Store      StoreConfig      `koanf:"store"`
	Optimizer  OptimizerConfig  `koanf:"optimizer"`
	Prediction PredictionConfig `koanf:"prediction"`
	Learning   LearningConfig   `koanf:"learning"`
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// LearningConfig configures outcome scoring.
type LearningConfig struct {
	// AccuracyScale is the per-field error that maps to zero accuracy in
	// the default accuracy function.
	AccuracyScale float64 `koanf:"accuracy_scale"`
}

// StoreConfig configures the pattern store backend.
type StoreConfig struct {
	// Backend selects the store implementation: memory or badger.
	Backend string `koanf:"backend"`

	// Path is the BadgerDB directory. Required for the badger backend.
	Path string `koanf:"path"`

	// MaxResults caps radius query result size. Zero means the default.
	MaxResults int `koanf:"max_results"`

	// GridCellKm is the spatial index cell size. Zero means the default.
	GridCellKm float64 `koanf:"grid_cell_km"`
}

// OptimizerConfig configures recommendation behavior.
type OptimizerConfig struct {
	DefaultModelID  string        `koanf:"default_model_id"`
	RadiusKm        float64       `koanf:"radius_km"`
	MinSamples      uint64        `koanf:"min_samples"`
	CacheEnabled    bool          `koanf:"cache_enabled"`
	CacheTTL        time.Duration `koanf:"cache_ttl"`
	CacheMaxEntries int           `koanf:"cache_max_entries"`
	CacheEpsilonKm  float64       `koanf:"cache_epsilon_km"`
}

// PredictionConfig configures the prediction result cache.
type PredictionConfig struct {
	// CacheTTL is how long cached prediction results stay valid.
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// CacheMaxEntries caps the prediction cache size.
	CacheMaxEntries int `koanf:"cache_max_entries"`

	// CleanupInterval is how often expired entries are swept.
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

// ServerConfig configures the process-level surfaces.
type ServerConfig struct {
	// MetricsAddr is the listen address for the Prometheus endpoint.
	// Empty disables the endpoint.
	MetricsAddr string `koanf:"metrics_addr"`

	// StatsInterval is how often aggregate stats are logged. Zero disables.
	StatsInterval time.Duration `koanf:"stats_interval"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:    "badger",
			Path:       "/data/adaptopt/patterns",
			MaxResults: 10000,
			GridCellKm: 100.0,
		},
		Optimizer: OptimizerConfig{
			DefaultModelID:  "ensemble",
			RadiusKm:        111.0,
			MinSamples:      1,
			CacheEnabled:    true,
			CacheTTL:        5 * time.Minute,
			CacheMaxEntries: 10000,
			CacheEpsilonKm:  0.5,
		},
		Prediction: PredictionConfig{
			CacheTTL:        10 * time.Minute,
			CacheMaxEntries: 100000,
			CleanupInterval: time.Minute,
		},
		Learning: LearningConfig{
			AccuracyScale: 10.0,
		},
		Server: ServerConfig{
			MetricsAddr:     ":9090",
			StatsInterval:   time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateOptimizer(); err != nil {
		return err
	}
	if err := c.validatePrediction(); err != nil {
		return err
	}
	if err := c.validateLearning(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case "memory":
	case "badger":
		if c.Store.Path == "" {
			return fmt.Errorf("STORE_PATH is required when STORE_BACKEND=badger")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be memory or badger, got %q", c.Store.Backend)
	}
	if c.Store.MaxResults < 0 {
		return fmt.Errorf("STORE_MAX_RESULTS must not be negative, got %d", c.Store.MaxResults)
	}
	if c.Store.GridCellKm < 0 {
		return fmt.Errorf("STORE_GRID_CELL_KM must not be negative, got %v", c.Store.GridCellKm)
	}
	return nil
}

func (c *Config) validateOptimizer() error {
	if c.Optimizer.DefaultModelID == "" {
		return fmt.Errorf("OPTIMIZER_DEFAULT_MODEL_ID must not be empty")
	}
	if c.Optimizer.RadiusKm <= 0 {
		return fmt.Errorf("OPTIMIZER_RADIUS_KM must be positive, got %v", c.Optimizer.RadiusKm)
	}
	if c.Optimizer.MinSamples == 0 {
		return fmt.Errorf("OPTIMIZER_MIN_SAMPLES must be at least 1")
	}
	if c.Optimizer.CacheEnabled {
		if c.Optimizer.CacheTTL <= 0 {
			return fmt.Errorf("OPTIMIZER_CACHE_TTL must be positive when the cache is enabled")
		}
		if c.Optimizer.CacheMaxEntries <= 0 {
			return fmt.Errorf("OPTIMIZER_CACHE_MAX_ENTRIES must be positive when the cache is enabled")
		}
	}
	return nil
}

func (c *Config) validatePrediction() error {
	if c.Prediction.CacheTTL <= 0 {
		return fmt.Errorf("PREDICTION_CACHE_TTL must be positive, got %v", c.Prediction.CacheTTL)
	}
	if c.Prediction.CacheMaxEntries <= 0 {
		return fmt.Errorf("PREDICTION_CACHE_MAX_ENTRIES must be positive, got %d", c.Prediction.CacheMaxEntries)
	}
	if c.Prediction.CleanupInterval <= 0 {
		return fmt.Errorf("PREDICTION_CLEANUP_INTERVAL must be positive, got %v", c.Prediction.CleanupInterval)
	}
	return nil
}

func (c *Config) validateLearning() error {
	if c.Learning.AccuracyScale <= 0 {
		return fmt.Errorf("LEARNING_ACCURACY_SCALE must be positive, got %v", c.Learning.AccuracyScale)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
