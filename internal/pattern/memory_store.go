// Adaptopt - Adaptive Model Selection for Geospatial Predictions
// Copyright 2026 Meridian Weather
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianwx/adaptopt

package pattern

import (
	"context"
	"sync"
	"time"

	"github.com/meridianwx/adaptopt/internal/geo"
)

// MemoryStore is an in-memory Store backed by the spatial hash grid.
// It is the default backend for tests and embedded deployments where
// durability is not required.
type MemoryStore struct {
	mu       sync.RWMutex
	patterns map[string]Pattern
	grid     *grid
	opts     Options
	closed   bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts Options) *MemoryStore {
	applyDefaults(&opts)

	return &MemoryStore{
		patterns: make(map[string]Pattern),
		grid:     newGrid(opts.GridCellKm),
		opts:     opts,
	}
}

// Upsert writes the full replacement pattern for its key.
func (s *MemoryStore) Upsert(ctx context.Context, p Pattern) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrUnavailable
	}

	key := p.Key()
	s.patterns[key] = p
	s.grid.insert(key, p.Location)
	return nil
}

// QueryRadius returns all patterns within radiusKm of center, capped at the
// configured maximum result size.
func (s *MemoryStore) QueryRadius(ctx context.Context, center geo.Coordinate, radiusKm float64) ([]Pattern, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrUnavailable
	}

	keys := s.grid.queryRadius(center, radiusKm, s.opts.MaxResults)
	results := make([]Pattern, 0, len(keys))
	for _, key := range keys {
		if p, ok := s.patterns[key]; ok {
			results = append(results, p)
		}
	}
	return results, nil
}

// Get performs an exact (location, model_id) lookup.
func (s *MemoryStore) Get(ctx context.Context, loc geo.Coordinate, modelID string) (*Pattern, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrUnavailable
	}

	p, ok := s.patterns[Key(loc, modelID)]
	if !ok {
		return nil, ErrNotFound
	}

	// Reads refresh recency, matching the durable backend.
	p.LastUsedAt = time.Now()
	s.patterns[p.Key()] = p

	result := p
	return &result, nil
}

// Count returns the number of stored patterns.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrUnavailable
	}
	return len(s.patterns), nil
}

// Aggregate summarizes the stored pattern population.
func (s *MemoryStore) Aggregate(ctx context.Context) (*Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrUnavailable
	}

	agg := &Aggregate{PerModel: make(map[string]int)}
	confidenceSum := 0.0
	for _, p := range s.patterns {
		agg.TotalPatterns++
		agg.PerModel[p.ModelID]++
		confidenceSum += p.Confidence
	}
	if agg.TotalPatterns > 0 {
		agg.AverageConfidence = confidenceSum / float64(agg.TotalPatterns)
	}
	return agg, nil
}

// Close marks the store unavailable.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.patterns = nil
	return nil
}
