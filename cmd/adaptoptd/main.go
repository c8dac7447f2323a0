// Adaptopt - Adaptive Model Selection for Geospatial Predictions
// Copyright 2026 Meridian Weather
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianwx/adaptopt

// Package main is the entry point for the adaptoptd daemon.
//
// Adaptopt learns which prediction model performs best per geographic
// region and recommends models for new queries. The daemon wires the
// optimizer together with its pattern store and caches, exposes Prometheus
// metrics, and logs aggregate stats periodically.
//
// # Startup Order
//
//  1. Configuration: Koanf v2 layered sources (ENV > config.yaml > defaults)
//  2. Logging: zerolog, JSON by default
//  3. Pattern store: BadgerDB (persistent) or in-memory
//  4. Optimizer: recommendation facade with optimization cache
//  5. Prediction cache: TTL cache with background sweeper
//  6. Metrics endpoint: Prometheus on METRICS_ADDR (default :9090)
//
// # Configuration
//
//	export STORE_BACKEND=badger
//	export STORE_PATH=/data/adaptopt/patterns
//	export OPTIMIZER_DEFAULT_MODEL_ID=ensemble
//	export OPTIMIZER_RADIUS_KM=111
//	./adaptoptd
//
// # Signal Handling
//
// The daemon shuts down gracefully on SIGINT and SIGTERM: the metrics
// server drains, background sweepers stop, and the pattern store closes so
// BadgerDB can flush cleanly.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meridianwx/adaptopt/internal/config"
	"github.com/meridianwx/adaptopt/internal/learning"
	"github.com/meridianwx/adaptopt/internal/logging"
	"github.com/meridianwx/adaptopt/internal/optimizer"
	"github.com/meridianwx/adaptopt/internal/pattern"
	"github.com/meridianwx/adaptopt/internal/predcache"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("backend", cfg.Store.Backend).
		Str("store_path", cfg.Store.Path).
		Str("default_model", cfg.Optimizer.DefaultModelID).
		Float64("radius_km", cfg.Optimizer.RadiusKm).
		Msg("Starting adaptoptd")

	store, err := pattern.NewStore(pattern.Options{
		Backend:    pattern.BackendType(cfg.Store.Backend),
		Path:       cfg.Store.Path,
		MaxResults: cfg.Store.MaxResults,
		GridCellKm: cfg.Store.GridCellKm,
	}, logging.Logger())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open pattern store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing pattern store")
		}
	}()

	opt, err := optimizer.New(optimizer.Config{
		DefaultModelID:  cfg.Optimizer.DefaultModelID,
		RadiusKm:        cfg.Optimizer.RadiusKm,
		MinSamples:      cfg.Optimizer.MinSamples,
		CacheEnabled:    cfg.Optimizer.CacheEnabled,
		CacheTTL:        cfg.Optimizer.CacheTTL,
		CacheMaxEntries: cfg.Optimizer.CacheMaxEntries,
		CacheEpsilonKm:  cfg.Optimizer.CacheEpsilonKm,
	}, store, logging.Logger())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create optimizer")
	}
	opt.SetAccuracyFunc(learning.DefaultAccuracy(cfg.Learning.AccuracyScale))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	predCache := predcache.New(cfg.Prediction.CacheTTL, cfg.Prediction.CacheMaxEntries)
	predCache.StartCleanup(ctx, cfg.Prediction.CleanupInterval)
	logging.Info().
		Dur("ttl", cfg.Prediction.CacheTTL).
		Int("max_entries", cfg.Prediction.CacheMaxEntries).
		Msg("Prediction cache initialized")

	var metricsServer *http.Server
	if cfg.Server.MetricsAddr != "" {
		metricsServer = startMetricsServer(cfg.Server.MetricsAddr)
	}

	if cfg.Server.StatsInterval > 0 {
		go logStatsLoop(ctx, opt, predCache, cfg.Server.StatsInterval)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logging.Info().Str("signal", sig.String()).Msg("Shutdown signal received")

	cancel()

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logging.Error().Err(err).Msg("Metrics server shutdown failed")
		}
	}

	logging.Info().Msg("Shutdown complete")
}

// startMetricsServer exposes the Prometheus registry on addr.
func startMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logging.Info().Str("addr", addr).Msg("Metrics endpoint listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	return srv
}

// logStatsLoop periodically logs aggregate optimizer and cache stats.
func logStatsLoop(ctx context.Context, opt *optimizer.Optimizer, predCache *predcache.Cache, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := opt.Stats(ctx)
			if err != nil {
				logging.Warn().Err(err).Msg("Failed to collect optimizer stats")
				continue
			}
			cacheStats := predCache.GetStats()
			logging.Info().
				Int("total_patterns", stats.TotalPatterns).
				Float64("avg_confidence", stats.AverageConfidence).
				Int("opt_cache_entries", stats.CacheEntries).
				Int64("opt_cache_hits", stats.CacheHits).
				Int64("opt_cache_misses", stats.CacheMisses).
				Int64("pred_cache_hits", cacheStats.Hits).
				Int64("pred_cache_misses", cacheStats.Misses).
				Msg("Optimizer stats")
		}
	}
}
