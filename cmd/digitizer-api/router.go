// Package main provides the API router setup.
package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/conceptmap-ai/digitizer/cmd/digitizer-api/handlers"
	"github.com/conceptmap-ai/digitizer/cmd/digitizer-api/middleware"
	"github.com/conceptmap-ai/digitizer/internal/cache"
	"github.com/conceptmap-ai/digitizer/internal/config"
	"github.com/conceptmap-ai/digitizer/internal/digitize"
	"github.com/conceptmap-ai/digitizer/internal/export"
	"github.com/conceptmap-ai/digitizer/internal/graph"
	"github.com/conceptmap-ai/digitizer/internal/normalize"
	"github.com/conceptmap-ai/digitizer/internal/observability"
	"github.com/conceptmap-ai/digitizer/internal/recognize"
)

// NewRouter creates the main API router with all routes configured. The
// returned cleanup function releases the cache connection.
func NewRouter(logger *observability.Logger, cfg *config.Config) (http.Handler, func(), error) {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))
	// The recognition round trip dominates request time; bound the whole
	// request a little above the upstream timeout.
	r.Use(chimiddleware.Timeout(cfg.Recognition.Timeout + cfg.Server.ReadTimeout))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"digitizer"}`))
	})

	// Create pipeline dependencies
	resultCache, err := newCache(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	exporter := export.NewExporter(export.Config{
		MarginPx:       cfg.Export.MarginPx,
		FallbackWidth:  cfg.Export.FallbackWidth,
		FallbackHeight: cfg.Export.FallbackHeight,
	}, logger)

	normalizer := normalize.NewNormalizer(cfg.Normalize.MaxDimension, logger)

	recognizer := recognize.NewClient(recognize.Config{
		BaseURL:      cfg.Recognition.BaseURL,
		ProcessPath:  cfg.Recognition.ProcessPath,
		GeneratePath: cfg.Recognition.GeneratePath,
		Timeout:      cfg.Recognition.Timeout,
	}, logger)

	builder := graph.NewBuilder(logger)

	controller := digitize.NewController(exporter, normalizer, recognizer, builder, logger,
		digitize.WithCache(resultCache, cfg.Cache.TTL),
		digitize.WithMapType(cfg.Recognition.MapType),
	)

	// Initialize handlers
	digitizeHandler := handlers.NewDigitizeHandler(logger, controller, export.Config{
		MarginPx:       cfg.Export.MarginPx,
		FallbackWidth:  cfg.Export.FallbackWidth,
		FallbackHeight: cfg.Export.FallbackHeight,
	})

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/digitize", digitizeHandler.Digitize)
		r.Get("/digitize/state", digitizeHandler.State)
	})

	cleanup := func() {
		if err := resultCache.Close(); err != nil {
			logger.Warn().Err(err).Msg("Cache close failed")
		}
	}
	return r, cleanup, nil
}

// newCache builds the configured cache backend, falling back to the
// in-memory client when Redis is unreachable.
func newCache(cfg *config.Config, logger *observability.Logger) (cache.Client, error) {
	if cfg.Cache.Driver != "redis" {
		return cache.NewMemoryClient(cfg.Cache.MaxEntries), nil
	}

	client, err := cache.NewRedisClient(cache.RedisConfig{
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		PoolSize: cfg.Cache.Redis.PoolSize,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable, using in-memory cache")
		return cache.NewMemoryClient(cfg.Cache.MaxEntries), nil
	}
	return client, nil
}
