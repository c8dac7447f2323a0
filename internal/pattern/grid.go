// Adaptopt - Adaptive Model Selection for Geospatial Predictions
// Copyright 2026 Meridian Weather
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianwx/adaptopt

package pattern

import (
	"math"
	"sync"

	"github.com/meridianwx/adaptopt/internal/geo"
)

// grid divides geographic space into cells for fast proximity queries.
// Instead of comparing every stored pattern to the query point, a radius
// query only inspects cells overlapping the search circle, reducing the
// scan from O(n) to O(k) where k is the number of nearby patterns.
//
// The grid is an index, not a store: both backends keep it in memory and
// treat the keyed rows (Badger or a map) as the source of truth.
type grid struct {
	mu       sync.RWMutex
	cells    map[cellKey]*cell
	cellSize float64 // degrees
	index    map[string]*gridEntry
}

// cellKey is a grid cell coordinate.
type cellKey struct {
	x, y int
}

type cell struct {
	entries []*gridEntry
}

type gridEntry struct {
	key     string
	loc     geo.Coordinate
	cellKey cellKey
}

// newGrid creates a grid with the given approximate cell size in kilometers.
func newGrid(cellSizeKm float64) *grid {
	if cellSizeKm <= 0 {
		cellSizeKm = 100
	}

	return &grid{
		cells:    make(map[cellKey]*cell),
		cellSize: cellSizeKm / geo.KmPerDegree,
		index:    make(map[string]*gridEntry),
	}
}

func (g *grid) keyFor(loc geo.Coordinate) cellKey {
	lon := loc.Lon
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}

	return cellKey{
		x: int(math.Floor(lon / g.cellSize)),
		y: int(math.Floor(loc.Lat / g.cellSize)),
	}
}

// insert adds or repositions a keyed location in the grid.
func (g *grid) insert(key string, loc geo.Coordinate) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.index[key]; ok {
		g.removeFromCellLocked(existing)
	}

	ck := g.keyFor(loc)
	entry := &gridEntry{key: key, loc: loc, cellKey: ck}

	c, ok := g.cells[ck]
	if !ok {
		c = &cell{entries: make([]*gridEntry, 0, 4)}
		g.cells[ck] = c
	}
	c.entries = append(c.entries, entry)
	g.index[key] = entry
}

// remove deletes a keyed location. Returns false if the key is unknown.
func (g *grid) remove(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.index[key]
	if !ok {
		return false
	}

	g.removeFromCellLocked(entry)
	delete(g.index, key)
	return true
}

// removeFromCellLocked removes an entry from its cell. Caller holds g.mu.
func (g *grid) removeFromCellLocked(entry *gridEntry) {
	c, ok := g.cells[entry.cellKey]
	if !ok {
		return
	}

	for i, e := range c.entries {
		if e.key == entry.key {
			c.entries[i] = c.entries[len(c.entries)-1]
			c.entries = c.entries[:len(c.entries)-1]
			break
		}
	}

	if len(c.entries) == 0 {
		delete(g.cells, entry.cellKey)
	}
}

// queryRadius returns the keys of all stored locations within radiusKm of
// center, up to limit (0 means unlimited). Candidate cells come from the
// bounding box; each candidate is confirmed with the exact haversine
// distance, so match semantics are identical to a full scan.
func (g *grid) queryRadius(center geo.Coordinate, radiusKm float64, limit int) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	radiusDeg := radiusKm / geo.KmPerDegree
	latCells := int(math.Ceil(radiusDeg/g.cellSize)) + 1

	// A degree of longitude spans KmPerDegree*cos(lat) km, so the east-west
	// walk must widen toward the poles or in-radius cells fall outside the
	// bounding box. The divisor uses the highest latitude the search circle
	// touches; near the poles cos vanishes, so walk every longitude cell.
	allLonCells := int(math.Ceil(360/g.cellSize)) + 1
	lonCells := allLonCells
	if maxAbsLat := math.Abs(center.Lat) + radiusDeg; maxAbsLat < 85 {
		cosLat := math.Cos(maxAbsLat * math.Pi / 180)
		lonCells = int(math.Ceil(radiusDeg/cosLat/g.cellSize)) + 1
		if lonCells > allLonCells {
			lonCells = allLonCells
		}
	}

	centerCell := g.keyFor(center)

	var keys []string
	for dx := -lonCells; dx <= lonCells; dx++ {
		for dy := -latCells; dy <= latCells; dy++ {
			c, ok := g.cells[cellKey{x: centerCell.x + dx, y: centerCell.y + dy}]
			if !ok {
				continue
			}

			for _, entry := range c.entries {
				if geo.HaversineKm(center, entry.loc) <= radiusKm {
					keys = append(keys, entry.key)
					if limit > 0 && len(keys) >= limit {
						return keys
					}
				}
			}
		}
	}

	return keys
}

// size returns the number of indexed locations.
func (g *grid) size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.index)
}
