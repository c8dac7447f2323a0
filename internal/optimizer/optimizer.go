// Adaptopt - Adaptive Model Selection for Geospatial Predictions
// Copyright 2026 Meridian Weather
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianwx/adaptopt

// Package optimizer is the façade over pattern storage, learning, and the
// optimization cache. Callers ask it which prediction model to use at a
// location and feed observed outcomes back in; everything else is wiring.
package optimizer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meridianwx/adaptopt/internal/geo"
	"github.com/meridianwx/adaptopt/internal/learning"
	"github.com/meridianwx/adaptopt/internal/metrics"
	"github.com/meridianwx/adaptopt/internal/pattern"
)

// Score weighting: matched patterns' mean confidence dominates, sample
// volume contributes the rest. Volume saturates at sampleSaturation.
const (
	confidenceWeight = 0.7
	volumeWeight     = 0.3
	sampleSaturation = 10
)

// Optimizer recommends prediction models per location and learns from
// recorded outcomes. Safe for concurrent use.
type Optimizer struct {
	cfg    Config
	store  pattern.Store
	engine *learning.Engine
	cache  *optimizationCache
	logger zerolog.Logger
	now    func() time.Time

	cacheHits   atomic.Int64
	cacheMisses atomic.Int64

	mu         sync.RWMutex
	accuracyFn learning.AccuracyFunc
}

// New creates an Optimizer over the given pattern store.
func New(cfg Config, store pattern.Store, logger zerolog.Logger) (*Optimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid optimizer config: %w", err)
	}

	o := &Optimizer{
		cfg:    cfg,
		store:  store,
		engine: learning.NewEngine(store, logger),
		logger: logger.With().Str("component", "optimizer").Logger(),
		now:    time.Now,
	}
	if cfg.CacheEnabled {
		o.cache = newOptimizationCache(cfg.CacheTTL, cfg.CacheMaxEntries, cfg.CacheEpsilonKm)
	}
	return o, nil
}

// SetAccuracyFunc installs the accuracy function used to score outcomes.
// A nil function restores the built-in default.
func (o *Optimizer) SetAccuracyFunc(fn learning.AccuracyFunc) {
	o.mu.Lock()
	o.accuracyFn = fn
	o.mu.Unlock()
}

// Recommend returns the best model for the given location.
//
// A non-positive radiusKm or zero minSamples falls back to the configured
// default. Patterns within the radius are grouped by model and scored; the
// top score wins, with ties broken by lexicographic model ID so the answer
// is deterministic. When no model qualifies the configured default is
// returned with zero confidence and SourceDefault, and is never cached.
// Store unavailability propagates as pattern.ErrUnavailable.
func (o *Optimizer) Recommend(ctx context.Context, loc geo.Coordinate, radiusKm float64, minSamples uint64) (*Recommendation, error) {
	if err := loc.Validate(); err != nil {
		metrics.RecommendationErrors.Inc()
		return nil, err
	}
	if radiusKm <= 0 {
		radiusKm = o.cfg.RadiusKm
	}
	if minSamples == 0 {
		minSamples = o.cfg.MinSamples
	}

	requestID := uuid.NewString()
	now := o.now()

	if o.cache != nil {
		if rec, ok := o.cache.lookup(loc, radiusKm, minSamples, now); ok {
			o.cacheHits.Add(1)
			metrics.RecordCacheLookup(true)
			metrics.RecordRecommendation(rec.Source.String())
			o.logger.Debug().
				Str("request_id", requestID).
				Str("location", loc.String()).
				Str("model_id", rec.ModelID).
				Msg("recommendation served from cache")
			return &rec, nil
		}
		o.cacheMisses.Add(1)
		metrics.RecordCacheLookup(false)
	}

	matches, err := o.store.QueryRadius(ctx, loc, radiusKm)
	if err != nil {
		metrics.RecommendationErrors.Inc()
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	if o.cfg.MaxPatterns > 0 && len(matches) > o.cfg.MaxPatterns {
		// Grid iteration order is not stable; sort by key so truncation
		// keeps the same patterns on every call.
		sort.Slice(matches, func(i, j int) bool {
			return matches[i].Key() < matches[j].Key()
		})
		matches = matches[:o.cfg.MaxPatterns]
	}

	rec := o.pickModel(matches, minSamples, now)
	metrics.RecordRecommendation(rec.Source.String())

	if rec.Source == SourceLearned && o.cache != nil {
		o.cache.put(loc, radiusKm, minSamples, rec, now)
	}

	o.logger.Debug().
		Str("request_id", requestID).
		Str("location", loc.String()).
		Str("model_id", rec.ModelID).
		Float64("confidence", rec.Confidence).
		Str("source", rec.Source.String()).
		Int("matched_patterns", len(matches)).
		Msg("recommendation computed")

	return &rec, nil
}

// modelGroup accumulates per-model scoring inputs.
type modelGroup struct {
	confidenceSum float64
	patternCount  int
	sampleCount   uint64
}

// pickModel filters thin patterns, groups the rest by model, and returns
// the top scorer, or the default recommendation when nothing qualifies.
func (o *Optimizer) pickModel(matches []pattern.Pattern, minSamples uint64, now time.Time) Recommendation {
	groups := make(map[string]*modelGroup)
	for _, p := range matches {
		if p.SampleCount < minSamples {
			continue
		}
		g := groups[p.ModelID]
		if g == nil {
			g = &modelGroup{}
			groups[p.ModelID] = g
		}
		g.confidenceSum += p.Confidence
		g.patternCount++
		g.sampleCount += p.SampleCount
	}

	// Sorted iteration keeps tie-breaking deterministic.
	modelIDs := make([]string, 0, len(groups))
	for id := range groups {
		modelIDs = append(modelIDs, id)
	}
	sort.Strings(modelIDs)

	var bestID string
	var bestScore float64
	for _, id := range modelIDs {
		score := scoreGroup(groups[id])
		if bestID == "" || score > bestScore {
			bestID = id
			bestScore = score
		}
	}

	if bestID == "" {
		return Recommendation{
			ModelID:    o.cfg.DefaultModelID,
			Confidence: 0,
			Source:     SourceDefault,
			ComputedAt: now,
		}
	}
	return Recommendation{
		ModelID:    bestID,
		Confidence: bestScore,
		Source:     SourceLearned,
		ComputedAt: now,
	}
}

// scoreGroup blends mean confidence with saturating sample volume.
func scoreGroup(g *modelGroup) float64 {
	avgConfidence := g.confidenceSum / float64(g.patternCount)
	volume := float64(g.sampleCount)
	if volume > sampleSaturation {
		volume = sampleSaturation
	}
	return confidenceWeight*avgConfidence + volumeWeight*(volume/sampleSaturation)
}

// RecordOutcome feeds an observed outcome into the learning engine and
// invalidates cached recommendations covering the prediction's location.
func (o *Optimizer) RecordOutcome(ctx context.Context, pred learning.Prediction, actual map[string]float64) (*learning.Insight, error) {
	o.mu.RLock()
	fn := o.accuracyFn
	o.mu.RUnlock()

	insight, err := o.engine.RecordOutcome(ctx, pred, actual, fn)
	if err != nil {
		return nil, err
	}

	if o.cache != nil {
		if removed := o.cache.invalidate(pred.Location); removed > 0 {
			metrics.OptimizationCacheInvalidations.Add(float64(removed))
			o.logger.Debug().
				Str("location", pred.Location.String()).
				Int("invalidated", removed).
				Msg("optimization cache invalidated after outcome")
		}
	}
	return insight, nil
}

// Stats returns an aggregate view of the optimizer's state.
func (o *Optimizer) Stats(ctx context.Context) (*Stats, error) {
	agg, err := o.store.Aggregate(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregate patterns: %w", err)
	}

	s := &Stats{
		TotalPatterns:     agg.TotalPatterns,
		PatternsPerModel:  agg.PerModel,
		AverageConfidence: agg.AverageConfidence,
		CacheHits:         o.cacheHits.Load(),
		CacheMisses:       o.cacheMisses.Load(),
	}
	if o.cache != nil {
		s.CacheEntries = o.cache.len()
	}
	return s, nil
}
