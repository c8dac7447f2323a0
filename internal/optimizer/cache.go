// Adaptopt - Adaptive Model Selection for Geospatial Predictions
// Copyright 2026 Meridian Weather
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianwx/adaptopt

package optimizer

import (
	"fmt"
	"sync"
	"time"

	"github.com/meridianwx/adaptopt/internal/geo"
)

// optEntry is one cached recommendation keyed by the query it answered.
type optEntry struct {
	center     geo.Coordinate
	radiusKm   float64
	minSamples uint64
	rec        Recommendation
	expiresAt  time.Time
}

// optimizationCache stores recent recommendations so repeated queries for
// the same neighborhood skip the store scan. Unlike the prediction cache it
// matches geometrically: a query hits if its center is within epsilonKm of
// a cached center and the cached entry covered at least the requested
// radius.
type optimizationCache struct {
	mu         sync.RWMutex
	entries    map[string]optEntry
	ttl        time.Duration
	maxEntries int
	epsilonKm  float64
}

func newOptimizationCache(ttl time.Duration, maxEntries int, epsilonKm float64) *optimizationCache {
	return &optimizationCache{
		entries:    make(map[string]optEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		epsilonKm:  epsilonKm,
	}
}

// lookup returns a cached recommendation covering the query, if any. An
// entry only matches a query with the same sample threshold; a looser or
// stricter filter could have produced a different answer.
func (c *optimizationCache) lookup(center geo.Coordinate, radiusKm float64, minSamples uint64, now time.Time) (Recommendation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, e := range c.entries {
		if now.After(e.expiresAt) {
			continue
		}
		if e.radiusKm < radiusKm || e.minSamples != minSamples {
			continue
		}
		if geo.HaversineKm(e.center, center) <= c.epsilonKm {
			return e.rec, true
		}
	}
	return Recommendation{}, false
}

// put stores a recommendation for the given query. When full, expired
// entries are dropped first; if none are expired the entry closest to
// expiry is evicted.
func (c *optimizationCache) put(center geo.Coordinate, radiusKm float64, minSamples uint64, rec Recommendation, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.makeRoomLocked(now)
	}
	key := fmt.Sprintf("%s|%.3f|%d", center.String(), radiusKm, minSamples)
	c.entries[key] = optEntry{
		center:     center,
		radiusKm:   radiusKm,
		minSamples: minSamples,
		rec:        rec,
		expiresAt:  now.Add(c.ttl),
	}
}

func (c *optimizationCache) makeRoomLocked(now time.Time) {
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	if len(c.entries) < c.maxEntries {
		return
	}
	var victim string
	var earliest time.Time
	for k, e := range c.entries {
		if victim == "" || e.expiresAt.Before(earliest) {
			victim = k
			earliest = e.expiresAt
		}
	}
	if victim != "" {
		delete(c.entries, victim)
	}
}

// invalidate drops every cached entry whose coverage area contains loc.
// Called after an outcome is recorded near loc so stale recommendations
// are not served. Returns the number of entries removed.
func (c *optimizationCache) invalidate(loc geo.Coordinate) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if geo.HaversineKm(e.center, loc) <= e.radiusKm {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

func (c *optimizationCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
