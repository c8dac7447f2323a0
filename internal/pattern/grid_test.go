// Adaptopt - Adaptive Model Selection for Geospatial Predictions
// Copyright 2026 Meridian Weather
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianwx/adaptopt

package pattern

import (
	"testing"

	"github.com/meridianwx/adaptopt/internal/geo"
)

func TestGridInsertAndQuery(t *testing.T) {
	g := newGrid(100)

	g.insert("a", geo.Coordinate{Lat: 40.71, Lon: -74.00})
	g.insert("b", geo.Coordinate{Lat: 40.72, Lon: -74.01})
	g.insert("c", geo.Coordinate{Lat: 51.50, Lon: -0.13})

	keys := g.queryRadius(geo.Coordinate{Lat: 40.71, Lon: -74.00}, 5, 0)
	if len(keys) != 2 {
		t.Errorf("queryRadius(5km) = %v, expected 2 keys", keys)
	}

	keys = g.queryRadius(geo.Coordinate{Lat: 51.50, Lon: -0.13}, 1, 0)
	if len(keys) != 1 || keys[0] != "c" {
		t.Errorf("queryRadius around London = %v, expected [c]", keys)
	}
}

func TestGridReinsertMovesEntry(t *testing.T) {
	g := newGrid(100)

	g.insert("a", geo.Coordinate{Lat: 0, Lon: 0})
	g.insert("a", geo.Coordinate{Lat: 45, Lon: 90})

	if g.size() != 1 {
		t.Fatalf("size = %d after reinsert, expected 1", g.size())
	}
	if keys := g.queryRadius(geo.Coordinate{Lat: 0, Lon: 0}, 50, 0); len(keys) != 0 {
		t.Errorf("entry still found at old location: %v", keys)
	}
	if keys := g.queryRadius(geo.Coordinate{Lat: 45, Lon: 90}, 50, 0); len(keys) != 1 {
		t.Errorf("entry not found at new location")
	}
}

func TestGridRemove(t *testing.T) {
	g := newGrid(100)

	g.insert("a", geo.Coordinate{Lat: 10, Lon: 10})
	if !g.remove("a") {
		t.Error("remove(a) = false, expected true")
	}
	if g.remove("a") {
		t.Error("second remove(a) = true, expected false")
	}
	if g.size() != 0 {
		t.Errorf("size = %d after remove, expected 0", g.size())
	}
}

func TestGridCrossesCellBoundaries(t *testing.T) {
	// A small cell size forces the query to walk multiple cells.
	g := newGrid(10)

	g.insert("near", geo.Coordinate{Lat: 40.71, Lon: -74.00})
	g.insert("edge", geo.Coordinate{Lat: 41.50, Lon: -74.00}) // ~88km north

	keys := g.queryRadius(geo.Coordinate{Lat: 40.71, Lon: -74.00}, 100, 0)
	if len(keys) != 2 {
		t.Errorf("queryRadius(100km) across cells = %v, expected both entries", keys)
	}
}

func TestGridQueryHighLatitude(t *testing.T) {
	// Longitude degrees shrink by cos(lat); at latitude 80 a 100km radius
	// spans over 5 degrees of longitude, so the east-west walk must widen
	// beyond the naive 1-degree-per-111km estimate.
	g := newGrid(100)

	center := geo.Coordinate{Lat: 80, Lon: 0}
	target := geo.Coordinate{Lat: 80, Lon: 4} // ~77km east

	if d := geo.HaversineKm(center, target); d > 100 {
		t.Fatalf("test setup: target %v km from center, want within 100", d)
	}

	g.insert("p", target)
	keys := g.queryRadius(center, 100, 0)
	if len(keys) != 1 || keys[0] != "p" {
		t.Errorf("queryRadius(100km) at lat 80 = %v, expected [p]", keys)
	}

	// Out-of-radius entries at the same latitude stay excluded.
	g.insert("far", geo.Coordinate{Lat: 80, Lon: 10}) // ~193km east
	keys = g.queryRadius(center, 100, 0)
	if len(keys) != 1 || keys[0] != "p" {
		t.Errorf("queryRadius(100km) after far insert = %v, expected [p]", keys)
	}
}

func TestGridQueryNearPole(t *testing.T) {
	// Above the cos clamp the walk covers every longitude cell, so an
	// entry on the far side of the pole's longitude space is still found.
	g := newGrid(100)

	center := geo.Coordinate{Lat: 89, Lon: 0}
	target := geo.Coordinate{Lat: 89, Lon: 45} // ~87km away

	g.insert("polar", target)
	keys := g.queryRadius(center, 100, 0)
	if len(keys) != 1 || keys[0] != "polar" {
		t.Errorf("queryRadius(100km) at lat 89 = %v, expected [polar]", keys)
	}
}

func TestGridQueryLimit(t *testing.T) {
	g := newGrid(100)

	for _, key := range []string{"a", "b", "c", "d"} {
		g.insert(key, geo.Coordinate{Lat: 0, Lon: 0})
	}

	keys := g.queryRadius(geo.Coordinate{Lat: 0, Lon: 0}, 10, 2)
	if len(keys) != 2 {
		t.Errorf("queryRadius with limit 2 returned %d keys", len(keys))
	}
}
