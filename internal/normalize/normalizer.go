// Package normalize guarantees that an exported raster reaches the
// recognition service as an opaque PNG data URI. Transparent regions are
// flattened against white because the recognition backend frequently
// misreads them as edges.
package normalize

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	xdraw "golang.org/x/image/draw"

	"github.com/conceptmap-ai/digitizer/internal/domain"
	"github.com/conceptmap-ai/digitizer/internal/observability"
)

// Normalizer converts any supported raster input into an alpha-free PNG.
type Normalizer struct {
	maxDim int
	logger *observability.Logger
}

// NewNormalizer creates a normalizer. maxDim bounds the longer side of the
// output; larger images are downscaled preserving aspect ratio.
func NewNormalizer(maxDim int, logger *observability.Logger) *Normalizer {
	if maxDim < 16 {
		maxDim = 768
	}
	return &Normalizer{
		maxDim: maxDim,
		logger: logger.WithComponent("normalize"),
	}
}

// Normalize returns an opaque PNG representation of img, encoded for data
// URI transport. An already-opaque PNG within the size bound passes through
// with a byte-identical payload.
func (n *Normalizer) Normalize(img domain.RasterImage) (domain.RasterImage, error) {
	mime, data, err := resolvePayload(img)
	if err != nil {
		return domain.RasterImage{}, domain.NormalizationError("decode input payload", err)
	}

	switch mime {
	case domain.MIMEPNG:
		return n.normalizePNG(data)
	case domain.MIMESVG:
		return n.rasterizeSVG(data)
	default:
		return domain.RasterImage{}, domain.NormalizationError(
			fmt.Sprintf("unsupported image type %q", mime), nil)
	}
}

// resolvePayload coerces the input into (mime, raw bytes), unwrapping a
// data URI when the payload arrived as one. Data always holds the payload
// bytes themselves, so the Encoding field alone does not force unwrapping.
func resolvePayload(img domain.RasterImage) (string, []byte, error) {
	if bytes.HasPrefix(img.Data, []byte("data:")) {
		return domain.ParseDataURI(string(img.Data))
	}

	mime := img.MIME
	if mime == "" {
		// Sniff: PNG magic, otherwise assume a vector document.
		if bytes.HasPrefix(img.Data, []byte("\x89PNG")) {
			mime = domain.MIMEPNG
		} else if strings.Contains(string(img.Data[:min(len(img.Data), 256)]), "<svg") {
			mime = domain.MIMESVG
		}
	}
	return mime, img.Data, nil
}

// normalizePNG flattens a PNG payload. Opaque payloads within the size
// bound are passed through unchanged.
func (n *Normalizer) normalizePNG(data []byte) (domain.RasterImage, error) {
	m, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return domain.RasterImage{}, domain.NormalizationError("decode png", err)
	}

	bounds := m.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if isOpaque(m) && w <= n.maxDim && h <= n.maxDim {
		return domain.RasterImage{
			Data:     data,
			Width:    w,
			Height:   h,
			MIME:     domain.MIMEPNG,
			Encoding: domain.EncodingDataURI,
		}, nil
	}

	tw, th := fitWithin(w, h, n.maxDim)
	n.logger.Debug().Int("width", tw).Int("height", th).Msg("flattening png against white background")
	return encodePNG(flattenBitmap(m, tw, th))
}

// rasterizeSVG renders an SVG document to an opaque PNG.
func (n *Normalizer) rasterizeSVG(data []byte) (domain.RasterImage, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data), oksvg.WarnErrorMode)
	if err != nil {
		return domain.RasterImage{}, domain.NormalizationError("parse svg", err)
	}

	w := int(math.Ceil(icon.ViewBox.W))
	h := int(math.Ceil(icon.ViewBox.H))
	if w <= 0 || h <= 0 {
		return domain.RasterImage{}, domain.NormalizationError("svg has no usable dimensions", nil)
	}

	tw, th := fitWithin(w, h, n.maxDim)
	icon.SetTarget(0, 0, float64(tw), float64(th))

	rgba := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.Draw(rgba, rgba.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(tw, th, rgba, rgba.Bounds())
	icon.Draw(rasterx.NewDasher(tw, th, scanner), 1.0)

	return encodePNG(rgba)
}

// flattenBitmap composites m over a white background at the target size.
func flattenBitmap(m image.Image, tw, th int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	if m.Bounds().Dx() == tw && m.Bounds().Dy() == th {
		draw.Draw(dst, dst.Bounds(), m, m.Bounds().Min, draw.Over)
	} else {
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), m, m.Bounds(), xdraw.Over, nil)
	}
	return dst
}

// encodePNG re-encodes the bitmap and wraps it for data URI transport.
func encodePNG(m *image.RGBA) (domain.RasterImage, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, m); err != nil {
		return domain.RasterImage{}, domain.NormalizationError("encode png", err)
	}

	return domain.RasterImage{
		Data:     buf.Bytes(),
		Width:    m.Bounds().Dx(),
		Height:   m.Bounds().Dy(),
		MIME:     domain.MIMEPNG,
		Encoding: domain.EncodingDataURI,
	}, nil
}

// isOpaque reports whether every pixel is fully opaque.
func isOpaque(m image.Image) bool {
	if o, ok := m.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}

	bounds := m.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if _, _, _, a := m.At(x, y).RGBA(); a != 0xffff {
				return false
			}
		}
	}
	return true
}

// fitWithin scales (w, h) down so the longer side is at most max.
func fitWithin(w, h, max int) (int, int) {
	if w <= max && h <= max {
		return w, h
	}
	ratio := math.Min(float64(max)/float64(w), float64(max)/float64(h))
	tw := int(float64(w) * ratio)
	th := int(float64(h) * ratio)
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}
	return tw, th
}
