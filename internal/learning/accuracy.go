// Adaptopt - Adaptive Model Selection for Geospatial Predictions
// Copyright 2026 Meridian Weather
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianwx/adaptopt

package learning

import "math"

// AccuracyFunc scores how well a predicted payload matched the observed
// outcome, returning a value in [0, 1] where 1 is a perfect prediction.
// The function is an injected collaborator: the engine clamps out-of-range
// results rather than rejecting the call, so a buggy implementation cannot
// stall learning.
type AccuracyFunc func(predicted, actual map[string]float64) float64

// DefaultAccuracyScale is the normalization scale for the default accuracy
// function: a per-field error of this magnitude (or more) scores zero.
const DefaultAccuracyScale = 10.0

// DefaultAccuracy returns the default per-field normalized-error accuracy
// function: for each field present in both payloads it computes
// 1 - min(|predicted - actual| / scale, 1) and averages the results.
// Fields present in only one payload are ignored; if the payloads share no
// fields the score is 0.
func DefaultAccuracy(scale float64) AccuracyFunc {
	if scale <= 0 {
		scale = DefaultAccuracyScale
	}

	return func(predicted, actual map[string]float64) float64 {
		sum := 0.0
		n := 0
		for field, p := range predicted {
			a, ok := actual[field]
			if !ok {
				continue
			}

			diff := math.Abs(p - a)
			if math.IsNaN(diff) {
				continue
			}

			sum += 1 - math.Min(diff/scale, 1)
			n++
		}

		if n == 0 {
			return 0
		}
		return sum / float64(n)
	}
}
