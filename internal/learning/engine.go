// Adaptopt - Adaptive Model Selection for Geospatial Predictions
// Copyright 2026 Meridian Weather
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianwx/adaptopt

// Package learning turns (prediction, outcome) pairs into pattern updates.
//
// The engine consumes each outcome exactly once: it scores the prediction
// with an accuracy function, blends the result into the matching pattern's
// confidence, and upserts the pattern. Updates to the same pattern are
// serialized per key, so a single engine serves any number of callers.
package learning

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianwx/adaptopt/internal/geo"
	"github.com/meridianwx/adaptopt/internal/metrics"
	"github.com/meridianwx/adaptopt/internal/pattern"
)

// lockStripes is the number of striped outcome locks. Outcomes for the same
// (location, model_id) key always hash to the same stripe, so their
// get-blend-upsert cycles cannot interleave and lose an update.
const lockStripes = 64

// ErrInvalidOutcome indicates an accuracy function returned a value outside
// [0, 1]. The engine clamps and logs instead of failing the call; the error
// is surfaced through Insight.Clamped for callers that care.
var ErrInvalidOutcome = errors.New("accuracy outside [0, 1]")

// Prediction is the record an external predictor produced. The payload is
// opaque to the engine; only the accuracy function interprets it.
type Prediction struct {
	// Location is where the prediction applies.
	Location geo.Coordinate `json:"location"`

	// ModelID identifies the strategy that produced the prediction.
	ModelID string `json:"model_id"`

	// IssuedAt is when the prediction was computed.
	IssuedAt time.Time `json:"issued_at"`

	// Payload carries the predicted values, keyed by field name.
	Payload map[string]float64 `json:"payload"`
}

// Insight summarizes the effect of one recorded outcome.
type Insight struct {
	// Accuracy is the (possibly clamped) score for this outcome.
	Accuracy float64 `json:"accuracy"`

	// NewConfidence is the pattern's confidence after blending.
	NewConfidence float64 `json:"new_confidence"`

	// SampleCount is the pattern's observation count after the update.
	SampleCount uint64 `json:"sample_count"`

	// Created reports whether this outcome created a new pattern.
	Created bool `json:"created"`

	// Clamped reports that the accuracy function misbehaved and its result
	// was clamped into [0, 1].
	Clamped bool `json:"clamped"`
}

// Engine updates pattern confidence from observed outcomes.
type Engine struct {
	store  pattern.Store
	logger zerolog.Logger
	now    func() time.Time
	locks  [lockStripes]sync.Mutex
}

// stripeFor maps a pattern key to its lock stripe.
func (e *Engine) stripeFor(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key)) //nolint:errcheck // fnv never fails
	return &e.locks[h.Sum32()%lockStripes]
}

// NewEngine creates a learning engine over the given pattern store.
func NewEngine(store pattern.Store, logger zerolog.Logger) *Engine {
	return &Engine{
		store:  store,
		logger: logger.With().Str("component", "learning").Logger(),
		now:    time.Now,
	}
}

// RecordOutcome scores the prediction against the actual payload and folds
// the result into the matching pattern.
//
// A new (location, model_id) pair creates a pattern with confidence equal to
// the accuracy and a sample count of 1. An existing pattern is blended as
// (existing + accuracy) / 2 with its sample count incremented. Store errors
// propagate; a misbehaving accuracy function is clamped, logged, and
// reported via Insight.Clamped rather than failing the call.
func (e *Engine) RecordOutcome(ctx context.Context, pred Prediction, actual map[string]float64, fn AccuracyFunc) (*Insight, error) {
	if err := pred.Location.Validate(); err != nil {
		return nil, err
	}
	if pred.ModelID == "" {
		return nil, fmt.Errorf("prediction has empty model_id")
	}
	if fn == nil {
		fn = DefaultAccuracy(DefaultAccuracyScale)
	}

	accuracy, clamped := clamp(fn(pred.Payload, actual))
	if clamped {
		e.logger.Warn().
			Str("model_id", pred.ModelID).
			Str("location", pred.Location.String()).
			Float64("clamped_accuracy", accuracy).
			Msg("accuracy function returned out-of-range value")
	}

	insight, err := e.applyOutcome(ctx, pred, accuracy)
	if err != nil {
		metrics.RecordOutcome("error", accuracy)
		return nil, err
	}
	insight.Clamped = clamped

	switch {
	case clamped:
		metrics.RecordOutcome("clamped", accuracy)
	case insight.Created:
		metrics.RecordOutcome("created", accuracy)
	default:
		metrics.RecordOutcome("updated", accuracy)
	}

	e.logger.Debug().
		Str("model_id", pred.ModelID).
		Str("location", pred.Location.String()).
		Float64("accuracy", accuracy).
		Float64("confidence", insight.NewConfidence).
		Uint64("samples", insight.SampleCount).
		Bool("created", insight.Created).
		Msg("outcome recorded")

	return insight, nil
}

// applyOutcome performs the get-blend-upsert cycle for one outcome.
// Serialized per key via striped locks; the store's own per-key locking
// only covers the upsert, not the read that feeds the blend.
func (e *Engine) applyOutcome(ctx context.Context, pred Prediction, accuracy float64) (*Insight, error) {
	mu := e.stripeFor(pattern.Key(pred.Location, pred.ModelID))
	mu.Lock()
	defer mu.Unlock()

	existing, err := e.store.Get(ctx, pred.Location, pred.ModelID)
	switch {
	case errors.Is(err, pattern.ErrNotFound):
		existing = nil
	case errors.Is(err, pattern.ErrCorruptRecord):
		// A corrupt row is unrecoverable; start the pattern over.
		e.logger.Warn().
			Str("model_id", pred.ModelID).
			Str("location", pred.Location.String()).
			Msg("replacing corrupt pattern with fresh outcome")
		existing = nil
	case err != nil:
		return nil, fmt.Errorf("look up pattern: %w", err)
	}

	now := e.now()
	updated := pattern.Pattern{
		Location:   pred.Location,
		ModelID:    pred.ModelID,
		LastUsedAt: now,
	}

	if existing == nil {
		updated.Confidence = accuracy
		updated.SampleCount = 1
	} else {
		// Equal-weight blend of old confidence and new accuracy.
		updated.Confidence = (existing.Confidence + accuracy) / 2
		updated.SampleCount = existing.SampleCount + 1
	}

	if err := e.store.Upsert(ctx, updated); err != nil {
		return nil, fmt.Errorf("upsert pattern: %w", err)
	}
	metrics.PatternUpserts.Inc()

	return &Insight{
		Accuracy:      accuracy,
		NewConfidence: updated.Confidence,
		SampleCount:   updated.SampleCount,
		Created:       existing == nil,
	}, nil
}

// clamp forces v into [0, 1]. NaN maps to 0. The second return reports
// whether clamping changed the value.
func clamp(v float64) (float64, bool) {
	switch {
	case math.IsNaN(v):
		return 0, true
	case v < 0:
		return 0, true
	case v > 1:
		return 1, true
	default:
		return v, false
	}
}
