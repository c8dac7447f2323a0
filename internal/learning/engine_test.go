// Adaptopt - Adaptive Model Selection for Geospatial Predictions
// Copyright 2026 Meridian Weather
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianwx/adaptopt

package learning

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianwx/adaptopt/internal/geo"
	"github.com/meridianwx/adaptopt/internal/pattern"
)

func newTestEngine(t *testing.T) (*Engine, pattern.Store) {
	t.Helper()
	store := pattern.NewMemoryStore(pattern.Options{})
	t.Cleanup(func() { store.Close() })
	return NewEngine(store, zerolog.Nop()), store
}

func testPrediction(modelID string, payload map[string]float64) Prediction {
	return Prediction{
		Location: geo.Coordinate{Lat: 40.71, Lon: -74.00},
		ModelID:  modelID,
		IssuedAt: time.Now(),
		Payload:  payload,
	}
}

func TestRecordOutcomeCreatesPattern(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	pred := testPrediction("gfs", map[string]float64{"temp": 20})
	actual := map[string]float64{"temp": 20} // perfect prediction

	insight, err := engine.RecordOutcome(ctx, pred, actual, DefaultAccuracy(10))
	if err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}

	if !insight.Created {
		t.Error("expected Created = true for first outcome")
	}
	if insight.Accuracy != 1.0 {
		t.Errorf("Accuracy = %v, expected 1.0", insight.Accuracy)
	}
	if insight.NewConfidence != 1.0 || insight.SampleCount != 1 {
		t.Errorf("insight = %+v, expected confidence 1.0 and 1 sample", insight)
	}

	p, err := store.Get(ctx, pred.Location, "gfs")
	if err != nil {
		t.Fatalf("Get after outcome: %v", err)
	}
	if p.Confidence != 1.0 || p.SampleCount != 1 {
		t.Errorf("stored pattern = %+v, expected confidence 1.0 and 1 sample", p)
	}
}

func TestRecordOutcomeBlendsConfidence(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	pred := testPrediction("gfs", map[string]float64{"temp": 20})

	// First outcome: perfect (accuracy 1.0).
	if _, err := engine.RecordOutcome(ctx, pred, map[string]float64{"temp": 20}, DefaultAccuracy(10)); err != nil {
		t.Fatalf("first RecordOutcome: %v", err)
	}

	// Second outcome: 5 degrees off with scale 10 => accuracy 0.5.
	insight, err := engine.RecordOutcome(ctx, pred, map[string]float64{"temp": 25}, DefaultAccuracy(10))
	if err != nil {
		t.Fatalf("second RecordOutcome: %v", err)
	}

	if insight.Created {
		t.Error("expected Created = false for second outcome")
	}
	if math.Abs(insight.NewConfidence-0.75) > 1e-9 {
		t.Errorf("NewConfidence = %v, expected (1.0+0.5)/2 = 0.75", insight.NewConfidence)
	}
	if insight.SampleCount != 2 {
		t.Errorf("SampleCount = %d, expected 2", insight.SampleCount)
	}
}

func TestRecordOutcomeClampsAdversarialAccuracy(t *testing.T) {
	tests := []struct {
		name     string
		fn       AccuracyFunc
		expected float64
	}{
		{"above one", func(_, _ map[string]float64) float64 { return 7.3 }, 1.0},
		{"negative", func(_, _ map[string]float64) float64 { return -2 }, 0.0},
		{"nan", func(_, _ map[string]float64) float64 { return math.NaN() }, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _ := newTestEngine(t)
			pred := testPrediction("gfs", nil)

			insight, err := engine.RecordOutcome(context.Background(), pred, nil, tt.fn)
			if err != nil {
				t.Fatalf("RecordOutcome with bad accuracy fn: %v", err)
			}
			if !insight.Clamped {
				t.Error("expected Clamped = true")
			}
			if insight.Accuracy != tt.expected {
				t.Errorf("Accuracy = %v, expected clamp to %v", insight.Accuracy, tt.expected)
			}
			if insight.NewConfidence < 0 || insight.NewConfidence > 1 {
				t.Errorf("NewConfidence = %v escaped [0, 1]", insight.NewConfidence)
			}
		})
	}
}

func TestRecordOutcomeConfidenceStaysInRange(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()
	pred := testPrediction("gfs", nil)

	// Alternate wildly misbehaving accuracy functions; confidence must
	// remain inside [0, 1] after every step.
	fns := []AccuracyFunc{
		func(_, _ map[string]float64) float64 { return 100 },
		func(_, _ map[string]float64) float64 { return -100 },
		func(_, _ map[string]float64) float64 { return math.Inf(1) },
		func(_, _ map[string]float64) float64 { return 0.6 },
	}

	for i := 0; i < 20; i++ {
		insight, err := engine.RecordOutcome(ctx, pred, nil, fns[i%len(fns)])
		if err != nil {
			t.Fatalf("RecordOutcome %d: %v", i, err)
		}
		if insight.NewConfidence < 0 || insight.NewConfidence > 1 {
			t.Fatalf("confidence %v escaped [0, 1] at step %d", insight.NewConfidence, i)
		}
	}

	p, err := store.Get(ctx, pred.Location, "gfs")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.SampleCount != 20 {
		t.Errorf("SampleCount = %d, expected 20", p.SampleCount)
	}
}

func TestRecordOutcomeConcurrentSameKey(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()
	pred := testPrediction("gfs", map[string]float64{"temp": 20})

	// Every outcome must land: lost read-modify-write cycles would leave
	// the sample count short of the number of recorded outcomes.
	const outcomes = 50
	fixed := AccuracyFunc(func(_, _ map[string]float64) float64 { return 0.5 })

	var wg sync.WaitGroup
	errs := make(chan error, outcomes)
	for i := 0; i < outcomes; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.RecordOutcome(ctx, pred, nil, fixed); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("RecordOutcome: %v", err)
	}

	p, err := store.Get(ctx, pred.Location, "gfs")
	if err != nil {
		t.Fatalf("Get after outcomes: %v", err)
	}
	if p.SampleCount != outcomes {
		t.Errorf("SampleCount = %d, want %d", p.SampleCount, outcomes)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		t.Errorf("Confidence = %v, want within [0, 1]", p.Confidence)
	}
}

func TestRecordOutcomeNilAccuracyFnUsesDefault(t *testing.T) {
	engine, _ := newTestEngine(t)
	pred := testPrediction("gfs", map[string]float64{"temp": 20})

	insight, err := engine.RecordOutcome(context.Background(), pred, map[string]float64{"temp": 20}, nil)
	if err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	if insight.Accuracy != 1.0 {
		t.Errorf("Accuracy = %v, expected default accuracy fn to score 1.0", insight.Accuracy)
	}
}

func TestRecordOutcomeInvalidPrediction(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	badLoc := testPrediction("gfs", nil)
	badLoc.Location = geo.Coordinate{Lat: 95, Lon: 0}
	if _, err := engine.RecordOutcome(ctx, badLoc, nil, nil); err == nil {
		t.Error("expected error for out-of-range location")
	}

	noModel := testPrediction("", nil)
	if _, err := engine.RecordOutcome(ctx, noModel, nil, nil); err == nil {
		t.Error("expected error for empty model_id")
	}
}

func TestDefaultAccuracy(t *testing.T) {
	fn := DefaultAccuracy(10)

	tests := []struct {
		name      string
		predicted map[string]float64
		actual    map[string]float64
		want      float64
	}{
		{"perfect", map[string]float64{"temp": 20}, map[string]float64{"temp": 20}, 1.0},
		{"half scale off", map[string]float64{"temp": 20}, map[string]float64{"temp": 25}, 0.5},
		{"beyond scale", map[string]float64{"temp": 20}, map[string]float64{"temp": 50}, 0.0},
		{
			"averaged over fields",
			map[string]float64{"temp": 20, "wind": 10},
			map[string]float64{"temp": 20, "wind": 15},
			0.75,
		},
		{
			"unshared fields ignored",
			map[string]float64{"temp": 20, "pressure": 1013},
			map[string]float64{"temp": 20},
			1.0,
		},
		{"no shared fields", map[string]float64{"temp": 20}, map[string]float64{"wind": 5}, 0.0},
		{"empty payloads", nil, nil, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fn(tt.predicted, tt.actual)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("accuracy = %v, expected %v", got, tt.want)
			}
		})
	}
}
