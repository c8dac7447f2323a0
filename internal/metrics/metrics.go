// Adaptopt - Adaptive Model Selection for Geospatial Predictions
// Copyright 2026 Meridian Weather
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianwx/adaptopt

// Package metrics provides Prometheus instrumentation for the optimizer,
// learning engine, and caches. Collectors are registered with the default
// registry via promauto; expose them with promhttp in the embedding process.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Recommendation Metrics
	RecommendationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adaptopt_recommendations_total",
			Help: "Total number of recommendations served, by source",
		},
		[]string{"source"}, // "learned", "default"
	)

	RecommendationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adaptopt_recommendation_errors_total",
			Help: "Total number of failed recommendation requests",
		},
	)

	// Optimization Cache Metrics
	OptimizationCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adaptopt_optimization_cache_hits_total",
			Help: "Total number of optimization cache hits",
		},
	)

	OptimizationCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adaptopt_optimization_cache_misses_total",
			Help: "Total number of optimization cache misses",
		},
	)

	OptimizationCacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adaptopt_optimization_cache_invalidations_total",
			Help: "Total number of cache entries invalidated by learning events",
		},
	)

	// Learning Metrics
	OutcomesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adaptopt_outcomes_recorded_total",
			Help: "Total number of outcomes recorded, by result",
		},
		[]string{"result"}, // "created", "updated", "clamped", "error"
	)

	AccuracyScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "adaptopt_accuracy_score",
			Help:    "Distribution of computed accuracy scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 to 1.0
		},
	)

	// Pattern Store Metrics
	PatternUpserts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adaptopt_pattern_upserts_total",
			Help: "Total number of pattern upserts",
		},
	)

	// Prediction Cache Metrics
	PredictionCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adaptopt_prediction_cache_hits_total",
			Help: "Total number of prediction cache hits",
		},
	)

	PredictionCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adaptopt_prediction_cache_misses_total",
			Help: "Total number of prediction cache misses",
		},
	)
)

// RecordRecommendation increments the recommendation counter for a source.
func RecordRecommendation(source string) {
	RecommendationsTotal.WithLabelValues(source).Inc()
}

// RecordOutcome increments the outcome counter and observes the accuracy.
func RecordOutcome(result string, accuracy float64) {
	OutcomesRecorded.WithLabelValues(result).Inc()
	AccuracyScore.Observe(accuracy)
}

// RecordCacheLookup tracks an optimization cache lookup.
func RecordCacheLookup(hit bool) {
	if hit {
		OptimizationCacheHits.Inc()
	} else {
		OptimizationCacheMisses.Inc()
	}
}
