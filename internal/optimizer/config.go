// Adaptopt - Adaptive Model Selection for Geospatial Predictions
// Copyright 2026 Meridian Weather
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianwx/adaptopt

package optimizer

import (
	"fmt"
	"time"
)

// Config controls recommendation behavior.
type Config struct {
	// DefaultModelID is returned when no qualifying patterns exist near a
	// query location.
	DefaultModelID string `koanf:"default_model_id" json:"default_model_id"`

	// RadiusKm is the search radius for pattern matching.
	RadiusKm float64 `koanf:"radius_km" json:"radius_km"`

	// MinSamples is the minimum aggregate sample count a model's patterns
	// must reach before the model is considered.
	MinSamples uint64 `koanf:"min_samples" json:"min_samples"`

	// MaxPatterns caps how many matched patterns feed a single
	// recommendation. Zero means no cap beyond the store's result limit.
	MaxPatterns int `koanf:"max_patterns" json:"max_patterns"`

	// CacheEnabled toggles the optimization cache.
	CacheEnabled bool `koanf:"cache_enabled" json:"cache_enabled"`

	// CacheTTL bounds how long a cached recommendation may be served.
	CacheTTL time.Duration `koanf:"cache_ttl" json:"cache_ttl"`

	// CacheMaxEntries caps the optimization cache size.
	CacheMaxEntries int `koanf:"cache_max_entries" json:"cache_max_entries"`

	// CacheEpsilonKm is how far a query center may drift from a cached
	// entry's center and still reuse it.
	CacheEpsilonKm float64 `koanf:"cache_epsilon_km" json:"cache_epsilon_km"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		DefaultModelID:  "ensemble",
		RadiusKm:        111.0,
		MinSamples:      1,
		CacheEnabled:    true,
		CacheTTL:        5 * time.Minute,
		CacheMaxEntries: 10000,
		CacheEpsilonKm:  0.5,
	}
}

// Clone returns a copy of the config.
func (c Config) Clone() Config {
	return c
}

// Validate checks config invariants.
func (c Config) Validate() error {
	if c.DefaultModelID == "" {
		return fmt.Errorf("default_model_id must not be empty")
	}
	if c.RadiusKm <= 0 {
		return fmt.Errorf("radius_km must be positive, got %v", c.RadiusKm)
	}
	if c.MinSamples == 0 {
		return fmt.Errorf("min_samples must be at least 1")
	}
	if c.MaxPatterns < 0 {
		return fmt.Errorf("max_patterns must not be negative, got %d", c.MaxPatterns)
	}
	if c.CacheEnabled {
		if c.CacheTTL <= 0 {
			return fmt.Errorf("cache_ttl must be positive when cache is enabled, got %v", c.CacheTTL)
		}
		if c.CacheMaxEntries <= 0 {
			return fmt.Errorf("cache_max_entries must be positive when cache is enabled, got %d", c.CacheMaxEntries)
		}
		if c.CacheEpsilonKm < 0 {
			return fmt.Errorf("cache_epsilon_km must not be negative, got %v", c.CacheEpsilonKm)
		}
	}
	return nil
}
