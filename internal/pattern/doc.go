// Adaptopt - Adaptive Model Selection for Geospatial Predictions
// Copyright 2026 Meridian Weather
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianwx/adaptopt

/*
Package pattern provides durable keyed storage of learned model-performance
patterns with radius-bounded reads.

A Pattern associates an exact geographic location and a model identifier with
a blended accuracy estimate (confidence) and an observation count. Patterns
are uniquely identified by (location, model_id); locations are never bucketed
or rounded on write, but radius queries match any stored location within a
caller-supplied distance of the query point.

# Backends

Two Store implementations are provided:

  - BadgerStore: durable storage on BadgerDB with an in-memory spatial hash
    grid index rebuilt from disk on open. Suitable for production.
  - MemoryStore: grid-only storage for tests and embedded use.

Use NewStore to select a backend from configuration.

# Failure model

ErrUnavailable aborts the calling operation (the backing store cannot be
reached). Corrupt rows encountered during a radius query are skipped with a
logged warning rather than failing the whole query; they surface only if
requested directly via Get, as ErrCorruptRecord.

# Concurrency

Upserts are serialized per key via striped locks, so no concurrent upserts to
the same (location, model_id) can lose an update. Reads proceed concurrently
with writes to other keys.
*/
package pattern
