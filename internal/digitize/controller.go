// Package digitize orchestrates the drawing digitization pipeline: export,
// normalization, recognition (with text fallback), and graph construction.
package digitize

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/conceptmap-ai/digitizer/internal/cache"
	"github.com/conceptmap-ai/digitizer/internal/domain"
	"github.com/conceptmap-ai/digitizer/internal/export"
	"github.com/conceptmap-ai/digitizer/internal/observability"
)

// State names the pipeline stage a run is currently in.
type State string

const (
	StateIdle         State = "idle"
	StateExporting    State = "exporting"
	StateNormalizing  State = "normalizing"
	StateRecognizing  State = "recognizing"
	StateTextFallback State = "text_fallback"
	StateBuilding     State = "building"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// Source records which path produced the final graph.
type Source string

const (
	SourceVision Source = "vision"
	SourceText   Source = "text"
	SourceCache  Source = "cache"
)

// Result is the outcome of a successful digitization run.
type Result struct {
	Graph    domain.ConceptGraph `json:"graph"`
	Degraded bool                `json:"degraded"`
	Source   Source              `json:"source"`
	RawText  string              `json:"rawText,omitempty"`
}

// Exporter renders an editor state to a raster image.
type Exporter interface {
	Export(ed export.Editor) (domain.RasterImage, bool, error)
}

// Normalizer flattens an exported image into an opaque PNG.
type Normalizer interface {
	Normalize(img domain.RasterImage) (domain.RasterImage, error)
}

// Recognizer submits images and text to the recognition service.
type Recognizer interface {
	Recognize(ctx context.Context, img domain.RasterImage) domain.RecognitionResult
	GenerateFromText(ctx context.Context, text, mapType string) domain.RecognitionResult
}

// GraphBuilder validates structured recognition output.
type GraphBuilder interface {
	Build(res domain.StructuredResult) (domain.ConceptGraph, error)
}

// Controller runs the pipeline end to end. A controller admits one run at a
// time; a second call while a run is in flight fails fast rather than
// queueing.
type Controller struct {
	exporter   Exporter
	normalizer Normalizer
	recognizer Recognizer
	builder    GraphBuilder
	cache      cache.Client
	cacheTTL   time.Duration
	mapType    string
	logger     *observability.Logger

	busy  atomic.Bool
	state atomic.Value // State
}

// Option configures a Controller.
type Option func(*Controller)

// WithCache enables content-addressed caching of recognition results.
func WithCache(c cache.Client, ttl time.Duration) Option {
	return func(ctrl *Controller) {
		ctrl.cache = c
		ctrl.cacheTTL = ttl
	}
}

// WithMapType sets the map type requested on the text fallback path.
func WithMapType(mapType string) Option {
	return func(ctrl *Controller) {
		ctrl.mapType = mapType
	}
}

// NewController wires the pipeline stages together.
func NewController(exp Exporter, norm Normalizer, rec Recognizer, builder GraphBuilder, logger *observability.Logger, opts ...Option) *Controller {
	ctrl := &Controller{
		exporter:   exp,
		normalizer: norm,
		recognizer: rec,
		builder:    builder,
		mapType:    "mindmap",
		logger:     logger.WithComponent("digitize"),
	}
	ctrl.state.Store(StateIdle)
	for _, opt := range opts {
		opt(ctrl)
	}
	return ctrl
}

// State reports the stage of the current (or last) run.
func (c *Controller) State() State {
	return c.state.Load().(State)
}

// Digitize runs the full pipeline for one editor state. Only one run may be
// in flight per controller; concurrent calls fail with AlreadyInProgress.
func (c *Controller) Digitize(ctx context.Context, ed export.Editor) (Result, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return Result{}, domain.AlreadyInProgressError()
	}
	defer c.busy.Store(false)

	start := time.Now()
	res, err := c.run(ctx, ed)
	if err != nil {
		c.state.Store(StateFailed)
		return Result{}, err
	}
	c.state.Store(StateDone)
	c.logger.Info().
		Str("source", string(res.Source)).
		Bool("degraded", res.Degraded).
		Int("concepts", len(res.Graph.Concepts)).
		Dur("elapsed", time.Since(start)).
		Msg("digitization complete")
	return res, nil
}

func (c *Controller) run(ctx context.Context, ed export.Editor) (Result, error) {
	c.state.Store(StateExporting)
	raster, degraded, err := c.exporter.Export(ed)
	if err != nil {
		return Result{}, err
	}

	c.state.Store(StateNormalizing)
	normalized, err := c.normalizer.Normalize(raster)
	if err != nil {
		return Result{}, err
	}

	if cached, ok := c.cachedResult(ctx, normalized); ok {
		cached.Degraded = cached.Degraded || degraded
		return cached, nil
	}

	c.state.Store(StateRecognizing)
	recognized := c.recognizer.Recognize(ctx, normalized)

	var (
		structured domain.StructuredResult
		source     = SourceVision
		rawText    string
	)

	switch r := recognized.(type) {
	case domain.StructuredResult:
		structured = r
		rawText = r.RawText

	case domain.TextOnlyResult:
		c.state.Store(StateTextFallback)
		c.logger.Info().Msg("recognition returned text only, generating graph from text")
		fallback := c.recognizer.GenerateFromText(ctx, r.RawText, c.mapType)
		switch f := fallback.(type) {
		case domain.StructuredResult:
			structured = f
			source = SourceText
			rawText = r.RawText
		case domain.TextOnlyResult:
			return Result{}, domain.TextFallbackError("text generation produced no structure", f.RawText)
		case domain.Failure:
			return Result{}, domain.TextFallbackError("text generation failed", f.Message)
		}

	case domain.Failure:
		return Result{}, domain.RecognitionError("recognition failed", r.Message)
	}

	c.state.Store(StateBuilding)
	graph, err := c.builder.Build(structured)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Graph:    graph,
		Degraded: degraded,
		Source:   source,
		RawText:  rawText,
	}
	c.storeResult(ctx, normalized, result)
	return result, nil
}

// cacheKey addresses a result by the normalized image content, so identical
// drawings hit the cache regardless of which editor produced them.
func cacheKey(img domain.RasterImage) string {
	sum := sha256.Sum256(img.Data)
	return "digitize:" + hex.EncodeToString(sum[:])
}

func (c *Controller) cachedResult(ctx context.Context, img domain.RasterImage) (Result, bool) {
	if c.cache == nil {
		return Result{}, false
	}
	raw, err := c.cache.Get(ctx, cacheKey(img))
	if err != nil {
		if err != cache.ErrCacheMiss {
			c.logger.Warn().Err(err).Msg("cache lookup failed")
		}
		return Result{}, false
	}
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		c.logger.Warn().Err(err).Msg("discarding undecodable cached result")
		return Result{}, false
	}
	res.Source = SourceCache
	return res, true
}

func (c *Controller) storeResult(ctx context.Context, img domain.RasterImage, res Result) {
	if c.cache == nil {
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, cacheKey(img), raw, c.cacheTTL); err != nil {
		c.logger.Warn().Err(err).Msg("cache store failed")
	}
}
