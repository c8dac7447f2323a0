// Adaptopt - Adaptive Model Selection for Geospatial Predictions
// Copyright 2026 Meridian Weather
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianwx/adaptopt

// Package predcache provides a thread-safe in-memory TTL cache for recent
// prediction outputs, keyed by (location, time bucket, model version).
//
// The cache holds computed results, not learned recommendations: its entries
// expire purely by TTL and are never touched by learning events. Expired
// entries are evicted lazily on Get and collected by ClearExpired, which can
// be driven by StartCleanup as a background sweep.
package predcache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/meridianwx/adaptopt/internal/geo"
	"github.com/meridianwx/adaptopt/internal/metrics"
)

// Entry is a cached prediction payload with its expiration.
type Entry struct {
	Payload   any
	ExpiresAt time.Time
}

// Cache is a thread-safe TTL cache for prediction results.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]Entry
	ttl        time.Duration
	maxEntries int
	stats      Stats
}

// Stats tracks cache performance counters.
type Stats struct {
	mu          sync.RWMutex
	Hits        int64
	Misses      int64
	Evictions   int64
	TotalKeys   int64
	LastCleanup time.Time
}

// DefaultMaxEntries bounds memory use when no cap is configured. Reaching
// the cap degrades to evicting the entry closest to expiry; it never errors.
const DefaultMaxEntries = 100000

// New creates a cache with the given default TTL and maximum entry count.
// maxEntries <= 0 selects DefaultMaxEntries.
func New(ttl time.Duration, maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	return &Cache{
		entries:    make(map[string]Entry),
		ttl:        ttl,
		maxEntries: maxEntries,
		stats: Stats{
			LastCleanup: time.Now(),
		},
	}
}

// Key builds the canonical cache key for a prediction: the query location,
// the time bucket of the forecast, and the producing model version. The
// tuple is JSON-serialized and hashed for a compact, stable key.
func Key(loc geo.Coordinate, bucket time.Time, modelVersion string) string {
	params := struct {
		Lat     float64 `json:"lat"`
		Lon     float64 `json:"lon"`
		Bucket  int64   `json:"bucket"`
		Version string  `json:"version"`
	}{loc.Lat, loc.Lon, bucket.Unix(), modelVersion}

	data, err := json.Marshal(params)
	if err != nil {
		// Fallback to a plain string key
		return fmt.Sprintf("pred:%s:%d:%s", loc.String(), bucket.Unix(), modelVersion)
	}

	hash := sha256.Sum256(data)
	return fmt.Sprintf("pred:%x", hash[:16])
}

// Get retrieves a payload by key. An expired entry is removed and reported
// as a miss (lazy eviction). A miss is a normal fallback path, never an
// error.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		c.recordMiss()
		return nil, false
	}

	if time.Now().After(entry.ExpiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a Put may have refreshed the key.
		if current, ok := c.entries[key]; ok && time.Now().After(current.ExpiresAt) {
			delete(c.entries, key)
			c.recordEviction()
		}
		c.mu.Unlock()
		c.recordMiss()
		return nil, false
	}

	c.recordHit()
	return entry.Payload, true
}

// Put stores a payload with the cache's default TTL.
func (c *Cache) Put(key string, payload any) {
	c.PutWithTTL(key, payload, c.ttl)
}

// PutWithTTL stores a payload with an explicit TTL.
func (c *Cache) PutWithTTL(key string, payload any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.makeRoomLocked()
	}

	c.entries[key] = Entry{
		Payload:   payload,
		ExpiresAt: time.Now().Add(ttl),
	}

	c.stats.mu.Lock()
	c.stats.TotalKeys = int64(len(c.entries))
	c.stats.mu.Unlock()
}

// makeRoomLocked frees one slot when the cache is full: expired entries
// first, otherwise the entry closest to expiry. Caller holds c.mu.
func (c *Cache) makeRoomLocked() {
	now := time.Now()
	evicted := int64(0)
	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
			evicted++
		}
	}

	if evicted == 0 {
		var oldestKey string
		var oldestExpiry time.Time
		for key, entry := range c.entries {
			if oldestKey == "" || entry.ExpiresAt.Before(oldestExpiry) {
				oldestKey = key
				oldestExpiry = entry.ExpiresAt
			}
		}
		if oldestKey != "" {
			delete(c.entries, oldestKey)
			evicted = 1
		}
	}

	c.stats.mu.Lock()
	c.stats.Evictions += evicted
	c.stats.mu.Unlock()
}

// Delete removes a specific entry.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()

	c.recordEviction()
}

// ClearExpired removes all expired entries and returns how many were evicted.
func (c *Cache) ClearExpired() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
			evicted++
		}
	}

	c.stats.mu.Lock()
	c.stats.Evictions += int64(evicted)
	c.stats.TotalKeys = int64(len(c.entries))
	c.stats.LastCleanup = now
	c.stats.mu.Unlock()

	return evicted
}

// StartCleanup runs ClearExpired on a ticker until ctx is cancelled.
func (c *Cache) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.ClearExpired()
			}
		}
	}()
}

// Len returns the current number of entries, including not-yet-collected
// expired ones.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// GetStats returns a snapshot of the cache counters.
func (c *Cache) GetStats() Stats {
	c.stats.mu.RLock()
	defer c.stats.mu.RUnlock()

	return Stats{
		Hits:        c.stats.Hits,
		Misses:      c.stats.Misses,
		Evictions:   c.stats.Evictions,
		TotalKeys:   c.stats.TotalKeys,
		LastCleanup: c.stats.LastCleanup,
	}
}

// HitRate returns the hit percentage over all lookups.
func (c *Cache) HitRate() float64 {
	stats := c.GetStats()
	total := stats.Hits + stats.Misses
	if total == 0 {
		return 0.0
	}
	return float64(stats.Hits) / float64(total) * 100.0
}

func (c *Cache) recordHit() {
	c.stats.mu.Lock()
	c.stats.Hits++
	c.stats.mu.Unlock()
	metrics.PredictionCacheHits.Inc()
}

func (c *Cache) recordMiss() {
	c.stats.mu.Lock()
	c.stats.Misses++
	c.stats.mu.Unlock()
	metrics.PredictionCacheMisses.Inc()
}

func (c *Cache) recordEviction() {
	c.stats.mu.Lock()
	c.stats.Evictions++
	c.stats.mu.Unlock()
}
