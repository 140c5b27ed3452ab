package normalize

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conceptmap-ai/digitizer/internal/domain"
	"github.com/conceptmap-ai/digitizer/internal/observability"
)

func newTestNormalizer(maxDim int) *Normalizer {
	return NewNormalizer(maxDim, observability.Nop())
}

func encodeTestPNG(t *testing.T, m image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, m))
	return buf.Bytes()
}

func opaquePNG(t *testing.T, w, h int) []byte {
	m := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	return encodeTestPNG(t, m)
}

func transparentPNG(t *testing.T, w, h int) []byte {
	m := image.NewRGBA(image.Rect(0, 0, w, h))
	// Fully transparent except one black pixel
	m.Set(0, 0, color.RGBA{A: 255})
	return encodeTestPNG(t, m)
}

func TestNormalize_OpaquePNGPassesThroughByteIdentical(t *testing.T) {
	n := newTestNormalizer(768)
	data := opaquePNG(t, 100, 80)

	out, err := n.Normalize(domain.RasterImage{
		Data: data, MIME: domain.MIMEPNG, Encoding: domain.EncodingRaw,
	})
	require.NoError(t, err)

	assert.Equal(t, data, out.Data)
	assert.Equal(t, 100, out.Width)
	assert.Equal(t, 80, out.Height)
	assert.Equal(t, domain.MIMEPNG, out.MIME)
	assert.Equal(t, domain.EncodingDataURI, out.Encoding)
}

func TestNormalize_Idempotent(t *testing.T) {
	n := newTestNormalizer(768)
	data := opaquePNG(t, 64, 64)

	first, err := n.Normalize(domain.RasterImage{Data: data, MIME: domain.MIMEPNG})
	require.NoError(t, err)

	second, err := n.Normalize(first)
	require.NoError(t, err)
	assert.Equal(t, first.Data, second.Data)
}

func TestNormalize_TransparentPNGFlattenedWhite(t *testing.T) {
	n := newTestNormalizer(768)

	out, err := n.Normalize(domain.RasterImage{
		Data: transparentPNG(t, 10, 10), MIME: domain.MIMEPNG,
	})
	require.NoError(t, err)

	m, err := png.Decode(bytes.NewReader(out.Data))
	require.NoError(t, err)

	// Transparent pixels become white; the drawn pixel stays dark.
	r, g, b, a := m.At(5, 5).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0xffff), g)
	assert.Equal(t, uint32(0xffff), b)
	assert.Equal(t, uint32(0xffff), a)

	r, _, _, a = m.At(0, 0).RGBA()
	assert.Equal(t, uint32(0), r)
	assert.Equal(t, uint32(0xffff), a)
}

func TestNormalize_OversizedPNGDownscaled(t *testing.T) {
	n := newTestNormalizer(768)

	out, err := n.Normalize(domain.RasterImage{
		Data: opaquePNG(t, 2000, 1000), MIME: domain.MIMEPNG,
	})
	require.NoError(t, err)

	assert.Equal(t, 768, out.Width)
	assert.Equal(t, 384, out.Height)

	m, err := png.Decode(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, 768, m.Bounds().Dx())
}

func TestNormalize_SVGRasterized(t *testing.T) {
	n := newTestNormalizer(768)
	doc := `<svg xmlns="http://www.w3.org/2000/svg" width="200" height="100" viewBox="0 0 200 100">
		<rect x="0" y="0" width="200" height="100" fill="white"/>
		<rect x="20" y="20" width="60" height="40" fill="none" stroke="black" stroke-width="2"/>
	</svg>`

	out, err := n.Normalize(domain.RasterImage{
		Data: []byte(doc), MIME: domain.MIMESVG, Encoding: domain.EncodingRaw,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.MIMEPNG, out.MIME)
	assert.Equal(t, domain.EncodingDataURI, out.Encoding)
	assert.Equal(t, 200, out.Width)
	assert.Equal(t, 100, out.Height)

	m, err := png.Decode(bytes.NewReader(out.Data))
	require.NoError(t, err)

	// Background outside the drawn rect is white and opaque.
	r, g, b, a := m.At(150, 80).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0xffff), g)
	assert.Equal(t, uint32(0xffff), b)
	assert.Equal(t, uint32(0xffff), a)
}

func TestNormalize_DataURIInput(t *testing.T) {
	n := newTestNormalizer(768)
	raw := opaquePNG(t, 40, 30)
	uri := domain.RasterImage{Data: raw, MIME: domain.MIMEPNG}.DataURI()

	out, err := n.Normalize(domain.RasterImage{
		Data: []byte(uri), Encoding: domain.EncodingDataURI,
	})
	require.NoError(t, err)
	assert.Equal(t, raw, out.Data)
	assert.Equal(t, 40, out.Width)
}

func TestNormalize_SniffsPNGWithoutMIME(t *testing.T) {
	n := newTestNormalizer(768)

	out, err := n.Normalize(domain.RasterImage{Data: opaquePNG(t, 10, 10)})
	require.NoError(t, err)
	assert.Equal(t, domain.MIMEPNG, out.MIME)
}

func TestNormalize_Failures(t *testing.T) {
	n := newTestNormalizer(768)

	tests := []struct {
		name string
		img  domain.RasterImage
	}{
		{
			name: "corrupt png",
			img:  domain.RasterImage{Data: []byte("\x89PNG not really"), MIME: domain.MIMEPNG},
		},
		{
			name: "unsupported mime",
			img:  domain.RasterImage{Data: []byte("GIF89a"), MIME: "image/gif"},
		},
		{
			name: "svg without dimensions",
			img:  domain.RasterImage{Data: []byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`), MIME: domain.MIMESVG},
		},
		{
			name: "malformed data uri",
			img:  domain.RasterImage{Data: []byte("data:image/png;base64"), Encoding: domain.EncodingDataURI},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(tt.img)
			require.Error(t, err)
			assert.Equal(t, domain.ErrNormalizationFailed, domain.KindOf(err))
		})
	}
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		w, h, max      int
		wantW, wantH   int
	}{
		{100, 50, 768, 100, 50},
		{2000, 1000, 768, 768, 384},
		{1000, 2000, 768, 384, 768},
		{768, 768, 768, 768, 768},
	}

	for _, tt := range tests {
		w, h := fitWithin(tt.w, tt.h, tt.max)
		assert.Equal(t, tt.wantW, w)
		assert.Equal(t, tt.wantH, h)
	}
}
