// Adaptopt - Adaptive Model Selection for Geospatial Predictions
// Copyright 2026 Meridian Weather
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianwx/adaptopt

package pattern

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/meridianwx/adaptopt/internal/geo"
)

// patternKeyPrefix namespaces pattern rows in BadgerDB.
const patternKeyPrefix = "pattern:"

// lockStripes is the number of striped upsert locks. Upserts to the same key
// always hash to the same stripe, serializing them; writes to different keys
// rarely contend.
const lockStripes = 64

// BadgerStore is a durable Store on BadgerDB. Rows are JSON-encoded under
// the "pattern:" prefix; an in-memory spatial hash grid index, rebuilt from
// disk on open, answers radius queries without scanning the whole keyspace.
type BadgerStore struct {
	db     *badger.DB
	grid   *grid
	opts   Options
	logger zerolog.Logger
	locks  [lockStripes]sync.Mutex
	closed atomic.Bool
}

// NewBadgerStore wraps an open BadgerDB and rebuilds the spatial index from
// the rows already on disk. Corrupt rows are left in place but excluded from
// the index, with a logged warning each.
func NewBadgerStore(db *badger.DB, opts Options, logger zerolog.Logger) (*BadgerStore, error) {
	applyDefaults(&opts)

	s := &BadgerStore{
		db:     db,
		grid:   newGrid(opts.GridCellKm),
		opts:   opts,
		logger: logger.With().Str("component", "pattern_store").Logger(),
	}

	if err := s.rebuildIndex(); err != nil {
		return nil, fmt.Errorf("rebuild spatial index: %w", err)
	}

	s.logger.Info().
		Int("patterns", s.grid.size()).
		Msg("pattern store opened")

	return s, nil
}

// rebuildIndex scans all pattern rows and populates the spatial grid.
func (s *BadgerStore) rebuildIndex() error {
	return s.db.View(func(txn *badger.Txn) error {
		itOpts := badger.DefaultIteratorOptions
		itOpts.PrefetchValues = true
		it := txn.NewIterator(itOpts)
		defer it.Close()

		prefix := []byte(patternKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()

			var p Pattern
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			})
			if err != nil || p.Validate() != nil {
				s.logger.Warn().
					Str("key", string(item.Key())).
					Msg("skipping corrupt pattern row during index rebuild")
				continue
			}

			s.grid.insert(p.Key(), p.Location)
		}
		return nil
	})
}

// stripeFor maps a pattern key to its lock stripe.
func (s *BadgerStore) stripeFor(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key)) //nolint:errcheck // fnv never fails
	return &s.locks[h.Sum32()%lockStripes]
}

// Upsert writes the full replacement pattern for its key. Serialized per
// key via striped locks so concurrent upserts cannot interleave.
func (s *BadgerStore) Upsert(ctx context.Context, p Pattern) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrUnavailable
	}

	key := p.Key()
	mu := s.stripeFor(key)
	mu.Lock()
	defer mu.Unlock()

	data, err := json.Marshal(&p)
	if err != nil {
		return fmt.Errorf("marshal pattern: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(patternKeyPrefix+key), data)
	})
	if err != nil {
		return s.wrapBackendErr("set pattern", err)
	}

	s.grid.insert(key, p.Location)
	return nil
}

// QueryRadius returns all patterns within radiusKm of center. Candidate keys
// come from the spatial index; each row is loaded and validated, and corrupt
// rows are skipped with a logged warning so one bad record cannot fail the
// whole query.
func (s *BadgerStore) QueryRadius(ctx context.Context, center geo.Coordinate, radiusKm float64) ([]Pattern, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrUnavailable
	}

	keys := s.grid.queryRadius(center, radiusKm, s.opts.MaxResults)
	results := make([]Pattern, 0, len(keys))

	err := s.db.View(func(txn *badger.Txn) error {
		for _, key := range keys {
			item, err := txn.Get([]byte(patternKeyPrefix + key))
			if errors.Is(err, badger.ErrKeyNotFound) {
				// Index can briefly lead the store; treat as absent.
				continue
			}
			if err != nil {
				return fmt.Errorf("get pattern %s: %w", key, err)
			}

			var p Pattern
			err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			})
			if err != nil || p.Validate() != nil {
				s.logger.Warn().
					Str("key", key).
					Msg("skipping corrupt pattern row in radius query")
				continue
			}

			results = append(results, p)
		}
		return nil
	})
	if err != nil {
		return nil, s.wrapBackendErr("radius query", err)
	}

	return results, nil
}

// Get performs an exact (location, model_id) lookup and refreshes the row's
// LastUsedAt timestamp.
func (s *BadgerStore) Get(ctx context.Context, loc geo.Coordinate, modelID string) (*Pattern, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrUnavailable
	}

	key := Key(loc, modelID)
	mu := s.stripeFor(key)
	mu.Lock()
	defer mu.Unlock()

	var p Pattern
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(patternKeyPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get pattern: %w", err)
		}

		err = item.Value(func(val []byte) error {
			return json.Unmarshal(val, &p)
		})
		if err != nil {
			return fmt.Errorf("%w: %s", ErrCorruptRecord, key)
		}
		if verr := p.Validate(); verr != nil {
			return fmt.Errorf("%w: %s: %s", ErrCorruptRecord, key, verr)
		}

		p.LastUsedAt = time.Now()
		data, err := json.Marshal(&p)
		if err != nil {
			return fmt.Errorf("marshal pattern: %w", err)
		}
		return txn.Set([]byte(patternKeyPrefix+key), data)
	})

	switch {
	case err == nil:
		return &p, nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrCorruptRecord):
		return nil, err
	default:
		return nil, s.wrapBackendErr("get pattern", err)
	}
}

// Count returns the number of rows under the pattern prefix.
func (s *BadgerStore) Count(ctx context.Context) (int, error) {
	if s.closed.Load() {
		return 0, ErrUnavailable
	}

	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		itOpts := badger.DefaultIteratorOptions
		itOpts.PrefetchValues = false
		it := txn.NewIterator(itOpts)
		defer it.Close()

		prefix := []byte(patternKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, s.wrapBackendErr("count patterns", err)
	}

	return count, nil
}

// Aggregate scans all pattern rows and returns summary counts. Corrupt
// rows are skipped without logging (the radius-query path already warns).
func (s *BadgerStore) Aggregate(ctx context.Context) (*Aggregate, error) {
	if s.closed.Load() {
		return nil, ErrUnavailable
	}

	agg := &Aggregate{PerModel: make(map[string]int)}
	confidenceSum := 0.0

	err := s.db.View(func(txn *badger.Txn) error {
		itOpts := badger.DefaultIteratorOptions
		itOpts.PrefetchValues = true
		it := txn.NewIterator(itOpts)
		defer it.Close()

		prefix := []byte(patternKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var p Pattern
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			})
			if err != nil || p.Validate() != nil {
				continue
			}

			agg.TotalPatterns++
			agg.PerModel[p.ModelID]++
			confidenceSum += p.Confidence
		}
		return nil
	})
	if err != nil {
		return nil, s.wrapBackendErr("aggregate patterns", err)
	}

	if agg.TotalPatterns > 0 {
		agg.AverageConfidence = confidenceSum / float64(agg.TotalPatterns)
	}
	return agg, nil
}

// Close closes the underlying BadgerDB. Subsequent calls fail with
// ErrUnavailable.
func (s *BadgerStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// wrapBackendErr maps backend failures onto ErrUnavailable so callers can
// distinguish an unreachable store from domain errors.
func (s *BadgerStore) wrapBackendErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %s", ErrUnavailable, op, err)
}
