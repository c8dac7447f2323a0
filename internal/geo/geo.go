// Adaptopt - Adaptive Model Selection for Geospatial Predictions
// Copyright 2026 Meridian Weather
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianwx/adaptopt

// Package geo provides coordinate validation and great-circle distance
// computation. It is pure and dependency-free; every other package that
// reasons about locations builds on it.
package geo

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

// KmPerDegree is the approximate surface distance of one degree of latitude
// (and of longitude at the equator). Used for grid sizing, not for distance
// computation.
const KmPerDegree = 111.0

// ErrInvalidCoordinate indicates a latitude or longitude outside the valid
// range, or a non-finite component.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Coordinate is a geographic point in decimal degrees.
type Coordinate struct {
	// Lat is the latitude in degrees, valid range [-90, 90].
	Lat float64 `json:"lat"`

	// Lon is the longitude in degrees, valid range [-180, 180].
	Lon float64 `json:"lon"`
}

// Validate checks that both components are finite and within range.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) ||
		math.IsNaN(c.Lon) || math.IsInf(c.Lon, 0) {
		return fmt.Errorf("%w: non-finite component (%v, %v)", ErrInvalidCoordinate, c.Lat, c.Lon)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range [-90, 90]", ErrInvalidCoordinate, c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range [-180, 180]", ErrInvalidCoordinate, c.Lon)
	}
	return nil
}

// String returns the coordinate formatted to six decimal places (~0.1m),
// suitable for use in storage keys and logs.
func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// Distance returns the great-circle distance between a and b in kilometers
// using the haversine formula. Both coordinates are validated; out-of-range
// input fails with ErrInvalidCoordinate.
func Distance(a, b Coordinate) (float64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	if err := b.Validate(); err != nil {
		return 0, err
	}
	return HaversineKm(a, b), nil
}

// HaversineKm computes the haversine distance for coordinates already known
// to be valid. Callers that validated on ingest use this to avoid
// re-validating in hot query loops; prefer Distance at API boundaries.
func HaversineKm(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	deltaLat := (b.Lat - a.Lat) * math.Pi / 180
	deltaLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusKm * c
}
