package export

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	svg "github.com/ajstarks/svgo"

	"github.com/conceptmap-ai/digitizer/internal/domain"
	"github.com/conceptmap-ai/digitizer/internal/observability"
)

// Strategy is one way of obtaining a vector export from an editor.
// Strategies are tried in order; a classified failure moves the exporter to
// the next one.
type Strategy interface {
	Name() string
	Export(ed Editor) (domain.RasterImage, error)
}

// Config holds exporter settings.
type Config struct {
	MarginPx       int
	FallbackWidth  int
	FallbackHeight int
}

// Exporter turns the current drawing into a single SVG raster image. The
// native engine export is attempted first; if it raises or produces a
// structurally invalid document, a minimal canvas-sized SVG is constructed
// instead, so the pipeline degrades to a blank-but-correctly-sized image
// rather than failing outright.
type Exporter struct {
	strategies []Strategy
	logger     *observability.Logger
}

// NewExporter creates an exporter with the default strategy order.
func NewExporter(cfg Config, logger *observability.Logger) *Exporter {
	return &Exporter{
		strategies: []Strategy{
			nativeStrategy{},
			canvasBoundsStrategy{
				fallbackWidth:  cfg.FallbackWidth,
				fallbackHeight: cfg.FallbackHeight,
			},
		},
		logger: logger.WithComponent("export"),
	}
}

// Export produces a raster image for the editor's current drawing. The
// second return reports whether a fallback strategy was used (degraded
// export). An empty canvas aborts before any strategy runs.
func (e *Exporter) Export(ed Editor) (domain.RasterImage, bool, error) {
	if len(ed.Shapes()) == 0 {
		return domain.RasterImage{}, false, domain.EmptyCanvasError()
	}

	var lastErr error
	for i, strat := range e.strategies {
		img, err := strat.Export(ed)
		if err != nil {
			e.logger.Warn().Str("strategy", strat.Name()).Err(err).Msg("export strategy failed")
			lastErr = err
			continue
		}
		if img.Width <= 0 || img.Height <= 0 {
			e.logger.Warn().Str("strategy", strat.Name()).Msg("export strategy returned empty dimensions")
			lastErr = fmt.Errorf("strategy %s returned empty dimensions", strat.Name())
			continue
		}

		degraded := i > 0
		if degraded {
			e.logger.Warn().Str("strategy", strat.Name()).Msg("export degraded to fallback strategy")
		}
		return img, degraded, nil
	}

	return domain.RasterImage{}, false, domain.ExportError("all export strategies failed", lastErr)
}

// nativeStrategy asks the editor for its native vector export and rejects
// structurally invalid documents.
type nativeStrategy struct{}

func (nativeStrategy) Name() string { return "native-svg" }

func (nativeStrategy) Export(ed Editor) (domain.RasterImage, error) {
	doc, err := ed.NativeSVG()
	if err != nil {
		return domain.RasterImage{}, fmt.Errorf("native export: %w", err)
	}

	width, height, err := inspectSVG(doc)
	if err != nil {
		return domain.RasterImage{}, fmt.Errorf("native export invalid: %w", err)
	}

	return domain.RasterImage{
		Data:     []byte(doc),
		Width:    width,
		Height:   height,
		MIME:     domain.MIMESVG,
		Encoding: domain.EncodingRaw,
	}, nil
}

// canvasBoundsStrategy reconstructs a minimal SVG document from the
// container's pixel dimensions. Shape detail is lost, but the canvas bounds
// survive.
type canvasBoundsStrategy struct {
	fallbackWidth  int
	fallbackHeight int
}

func (canvasBoundsStrategy) Name() string { return "canvas-bounds" }

func (s canvasBoundsStrategy) Export(ed Editor) (domain.RasterImage, error) {
	width, height := ed.ContainerSize()
	if width <= 0 || height <= 0 {
		width, height = s.fallbackWidth, s.fallbackHeight
	}

	var buf bytes.Buffer
	canvas := svg.New(&buf)
	canvas.Startview(width, height, 0, 0, width, height)
	canvas.Rect(0, 0, width, height, "fill:white")
	canvas.End()

	return domain.RasterImage{
		Data:     buf.Bytes(),
		Width:    width,
		Height:   height,
		MIME:     domain.MIMESVG,
		Encoding: domain.EncodingRaw,
	}, nil
}

// inspectSVG verifies that doc has an <svg> root element and returns its
// declared pixel dimensions, falling back to the viewBox when width/height
// attributes are missing.
func inspectSVG(doc string) (width, height int, err error) {
	dec := xml.NewDecoder(strings.NewReader(doc))
	for {
		tok, terr := dec.Token()
		if terr != nil {
			return 0, 0, fmt.Errorf("no root element: %w", terr)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "svg" {
			return 0, 0, fmt.Errorf("unexpected root element <%s>", start.Name.Local)
		}

		var viewBox string
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "width":
				width = parseDimension(attr.Value)
			case "height":
				height = parseDimension(attr.Value)
			case "viewBox":
				viewBox = attr.Value
			}
		}

		if (width <= 0 || height <= 0) && viewBox != "" {
			parts := strings.Fields(viewBox)
			if len(parts) == 4 {
				width = parseDimension(parts[2])
				height = parseDimension(parts[3])
			}
		}

		if width <= 0 || height <= 0 {
			return 0, 0, fmt.Errorf("svg declares no usable dimensions")
		}
		return width, height, nil
	}
}

// parseDimension reads a CSS-style length, tolerating a px suffix.
func parseDimension(v string) int {
	v = strings.TrimSuffix(strings.TrimSpace(v), "px")
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0
	}
	return int(f)
}
