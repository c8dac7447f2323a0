// Adaptopt - Adaptive Model Selection for Geospatial Predictions
// Copyright 2026 Meridian Weather
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianwx/adaptopt

package pattern

import (
	"errors"
	"fmt"
	"time"

	"github.com/meridianwx/adaptopt/internal/geo"
)

var (
	// ErrUnavailable indicates the backing store cannot be reached or has
	// been closed. Calls that hit it fail outright.
	ErrUnavailable = errors.New("pattern store unavailable")

	// ErrCorruptRecord indicates a stored row that fails schema validation
	// on read. Radius queries skip such rows; exact lookups surface it.
	ErrCorruptRecord = errors.New("corrupt pattern record")

	// ErrNotFound indicates no pattern exists for the requested key.
	ErrNotFound = errors.New("pattern not found")
)

// Pattern is a learned association between a geographic location and a
// model's observed prediction performance.
type Pattern struct {
	// Location is the exact coordinate the pattern was learned at.
	Location geo.Coordinate `json:"location"`

	// ModelID identifies the candidate prediction strategy. Opaque.
	ModelID string `json:"model_id"`

	// Confidence is the blended accuracy estimate in [0, 1].
	Confidence float64 `json:"confidence"`

	// SampleCount is the number of outcomes blended into Confidence.
	// Monotonically non-decreasing for a given pattern, always >= 1.
	SampleCount uint64 `json:"sample_count"`

	// LastUsedAt is updated on every read or write of the pattern.
	LastUsedAt time.Time `json:"last_used_at"`
}

// Aggregate summarizes the stored pattern population.
type Aggregate struct {
	// TotalPatterns is the number of valid stored patterns.
	TotalPatterns int `json:"total_patterns"`

	// PerModel counts patterns by model ID.
	PerModel map[string]int `json:"per_model"`

	// AverageConfidence is the mean confidence over all patterns, or 0
	// when the store is empty.
	AverageConfidence float64 `json:"average_confidence"`
}

// Key returns the storage key identifying this pattern. Identity is the
// exact stored coordinate plus the model ID; coordinates are formatted to
// six decimal places, matching the precision patterns are recorded at.
func (p *Pattern) Key() string {
	return Key(p.Location, p.ModelID)
}

// Key builds the storage key for a (location, model_id) pair.
func Key(loc geo.Coordinate, modelID string) string {
	return fmt.Sprintf("%s:%s", loc.String(), modelID)
}

// Validate checks the pattern against the storage schema. Rows failing
// validation on read are treated as corrupt.
func (p *Pattern) Validate() error {
	if err := p.Location.Validate(); err != nil {
		return err
	}
	if p.ModelID == "" {
		return errors.New("empty model_id")
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range [0, 1]", p.Confidence)
	}
	if p.SampleCount < 1 {
		return fmt.Errorf("sample_count %d below 1", p.SampleCount)
	}
	return nil
}
