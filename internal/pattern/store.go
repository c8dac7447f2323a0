// Adaptopt - Adaptive Model Selection for Geospatial Predictions
// Copyright 2026 Meridian Weather
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianwx/adaptopt

package pattern

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/meridianwx/adaptopt/internal/geo"
)

// Store is the Pattern Store contract. Implementations must serialize
// writes per key and tolerate corrupt rows on radius reads.
type Store interface {
	// Upsert writes the full replacement pattern for its key. The caller
	// computes confidence and sample count before calling; Upsert is atomic
	// per key so concurrent upserts to the same key cannot lose updates.
	Upsert(ctx context.Context, p Pattern) error

	// QueryRadius returns all patterns whose stored location lies within
	// radiusKm of center. Corrupt rows are skipped with a logged warning.
	// Result size is capped by the store's configured maximum.
	QueryRadius(ctx context.Context, center geo.Coordinate, radiusKm float64) ([]Pattern, error)

	// Get performs an exact (location, model_id) lookup. Returns
	// ErrNotFound when no pattern exists, ErrCorruptRecord when the stored
	// row fails validation.
	Get(ctx context.Context, loc geo.Coordinate, modelID string) (*Pattern, error)

	// Count returns the number of stored patterns.
	Count(ctx context.Context) (int, error)

	// Aggregate scans all patterns and returns summary counts for
	// observability. Corrupt rows are skipped.
	Aggregate(ctx context.Context) (*Aggregate, error)

	// Close releases backing resources. The store is unusable afterwards.
	Close() error
}

// BackendType selects a Store implementation.
type BackendType string

const (
	// BackendMemory keeps patterns in memory only (tests, embedded use).
	BackendMemory BackendType = "memory"

	// BackendBadger persists patterns to BadgerDB.
	BackendBadger BackendType = "badger"
)

// Options configures store construction.
type Options struct {
	// Backend selects memory or badger storage. Defaults to memory.
	Backend BackendType

	// Path is the BadgerDB directory. Required for BackendBadger.
	Path string

	// MaxResults caps QueryRadius result size. Zero means DefaultMaxResults.
	MaxResults int

	// GridCellKm is the spatial index cell size. Zero means DefaultGridCellKm.
	GridCellKm float64
}

const (
	// DefaultMaxResults bounds a radius query over a pathologically large
	// pattern set.
	DefaultMaxResults = 10000

	// DefaultGridCellKm is the default spatial index cell size.
	DefaultGridCellKm = 100.0
)

// NewStore creates a Store from options. For BackendBadger it opens the
// database at opts.Path and rebuilds the spatial index from disk.
func NewStore(opts Options, logger zerolog.Logger) (Store, error) {
	applyDefaults(&opts)

	switch opts.Backend {
	case BackendMemory:
		return NewMemoryStore(opts), nil
	case BackendBadger:
		bopts := badger.DefaultOptions(opts.Path)
		bopts.Logger = nil // silence Badger's default stderr logger

		db, err := badger.Open(bopts)
		if err != nil {
			return nil, fmt.Errorf("open badger db at %s: %w", opts.Path, err)
		}
		return NewBadgerStore(db, opts, logger)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}

func applyDefaults(opts *Options) {
	if opts.Backend == "" {
		opts.Backend = BackendMemory
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.GridCellKm <= 0 {
		opts.GridCellKm = DefaultGridCellKm
	}
}
