// Adaptopt - Adaptive Model Selection for Geospatial Predictions
// Copyright 2026 Meridian Weather
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianwx/adaptopt

package optimizer

import (
	"time"
)

// Source reports how a recommendation was produced.
type Source int

const (
	// SourceDefault indicates no qualifying patterns existed and the
	// configured fallback model was returned with zero confidence.
	SourceDefault Source = iota

	// SourceLearned indicates the recommendation came from learned
	// patterns (directly or via the optimization cache).
	SourceLearned
)

// String returns a human-readable source name.
func (s Source) String() string {
	switch s {
	case SourceDefault:
		return "default"
	case SourceLearned:
		return "learned"
	default:
		return "unknown"
	}
}

// Recommendation is the optimizer's answer for a query location: the model
// expected to perform best there, and how much to trust that choice.
type Recommendation struct {
	// ModelID is the recommended prediction strategy.
	ModelID string `json:"model_id"`

	// Confidence is the recommendation score in [0, 1]: a blend of the
	// matched patterns' average confidence and sample-size trust.
	Confidence float64 `json:"confidence"`

	// Source reports whether the answer was learned or a fallback.
	Source Source `json:"source"`

	// ComputedAt is when the recommendation was computed (not when it was
	// served; a cache hit keeps the original timestamp).
	ComputedAt time.Time `json:"computed_at"`
}

// Stats is a read-only aggregate view over the optimizer for observability.
type Stats struct {
	// TotalPatterns is the number of patterns in the store.
	TotalPatterns int `json:"total_patterns"`

	// PatternsPerModel counts stored patterns by model ID.
	PatternsPerModel map[string]int `json:"patterns_per_model"`

	// AverageConfidence is the mean confidence over all stored patterns.
	AverageConfidence float64 `json:"average_confidence"`

	// CacheEntries is the current optimization cache size.
	CacheEntries int `json:"cache_entries"`

	// CacheHits counts optimization cache hits since startup.
	CacheHits int64 `json:"cache_hits"`

	// CacheMisses counts optimization cache misses since startup.
	CacheMisses int64 `json:"cache_misses"`
}
