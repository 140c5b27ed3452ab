// Package digitizer is the public entry point for the drawing digitization
// library. It wires the export, normalization, recognition, and graph stages
// into a single client.
package digitizer

import (
	"context"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/conceptmap-ai/digitizer/internal/cache"
	"github.com/conceptmap-ai/digitizer/internal/config"
	"github.com/conceptmap-ai/digitizer/internal/digitize"
	"github.com/conceptmap-ai/digitizer/internal/domain"
	"github.com/conceptmap-ai/digitizer/internal/export"
	"github.com/conceptmap-ai/digitizer/internal/graph"
	"github.com/conceptmap-ai/digitizer/internal/normalize"
	"github.com/conceptmap-ai/digitizer/internal/observability"
	"github.com/conceptmap-ai/digitizer/internal/recognize"
)

// Re-export domain types for the public API
type (
	Snapshot      = domain.Snapshot
	Shape         = domain.Shape
	Point         = domain.Point
	Concept       = domain.Concept
	Relationship  = domain.Relationship
	StructureHint = domain.StructureHint
	ConceptGraph  = domain.ConceptGraph
	Result        = digitize.Result
)

// Shape kind constants
const (
	ShapeStroke  = domain.ShapeStroke
	ShapeLine    = domain.ShapeLine
	ShapeRect    = domain.ShapeRect
	ShapeEllipse = domain.ShapeEllipse
	ShapeText    = domain.ShapeText
)

// Client is the main entry point for the digitizer library
type Client struct {
	controller  *digitize.Controller
	resultCache cache.Client
	marginPx    int
}

// NewClient creates a digitizer client configured from the environment.
// RECOGNITION_URL must point at the recognition service.
func NewClient() (*Client, error) {
	// Load environment variables
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	cfg := config.DefaultConfig()
	if url := os.Getenv("RECOGNITION_URL"); url != "" {
		cfg.Recognition.BaseURL = strings.TrimSuffix(url, "/")
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: "digitizer",
	})

	return NewClientWithConfig(cfg, logger)
}

// NewClientWithConfig creates a digitizer client with custom configuration.
func NewClientWithConfig(cfg *config.Config, logger *observability.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	resultCache := cache.Client(cache.NewMemoryClient(cfg.Cache.MaxEntries))
	if cfg.Cache.Driver == "redis" {
		redisCache, err := cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			PoolSize: cfg.Cache.Redis.PoolSize,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, using in-memory cache")
		} else {
			resultCache = redisCache
		}
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

	controller := digitize.NewController(exporter, normalizer, recognizer, graph.NewBuilder(logger), logger,
		digitize.WithCache(resultCache, cfg.Cache.TTL),
		digitize.WithMapType(cfg.Recognition.MapType),
	)

	return &Client{
		controller:  controller,
		resultCache: resultCache,
		marginPx:    cfg.Export.MarginPx,
	}, nil
}

// Digitize converts a drawing snapshot into a concept graph.
func (c *Client) Digitize(ctx context.Context, snapshot Snapshot) (*Result, error) {
	result, err := c.controller.Digitize(ctx, export.NewSnapshotEditor(snapshot, c.marginPx))
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// DigitizeSVG converts a pre-rendered SVG document into a concept graph.
func (c *Client) DigitizeSVG(ctx context.Context, doc string) (*Result, error) {
	result, err := c.controller.Digitize(ctx, export.NewStaticSVGEditor(doc))
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Close cleans up resources
func (c *Client) Close() error {
	return c.resultCache.Close()
}
