package export

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conceptmap-ai/digitizer/internal/domain"
	"github.com/conceptmap-ai/digitizer/internal/observability"
)

func testConfig() Config {
	return Config{MarginPx: 20, FallbackWidth: 800, FallbackHeight: 600}
}

func TestExport_EmptyCanvas(t *testing.T) {
	e := NewExporter(testConfig(), observability.Nop())

	_, _, err := e.Export(NewSnapshotEditor(domain.Snapshot{}, 20))
	require.Error(t, err)
	assert.Equal(t, domain.ErrEmptyCanvas, domain.KindOf(err))
}

func TestExport_SnapshotProducesSVG(t *testing.T) {
	e := NewExporter(testConfig(), observability.Nop())

	img, degraded, err := e.Export(NewSnapshotEditor(domain.Snapshot{
		Shapes: []domain.Shape{
			{Kind: domain.ShapeRect, X: 10, Y: 10, W: 100, H: 50},
			{Kind: domain.ShapeText, X: 20, Y: 40, Text: "Sun"},
		},
	}, 20))
	require.NoError(t, err)

	assert.False(t, degraded)
	assert.Equal(t, domain.MIMESVG, img.MIME)
	assert.Greater(t, img.Width, 0)
	assert.Greater(t, img.Height, 0)

	doc := string(img.Data)
	assert.Contains(t, doc, "<svg")
	assert.Contains(t, doc, "<rect")
	assert.Contains(t, doc, "Sun")
	// White background behind the shapes
	assert.Contains(t, doc, "fill:white")
}

func TestExport_MarginExpandsBounds(t *testing.T) {
	e := NewExporter(testConfig(), observability.Nop())

	img, _, err := e.Export(NewSnapshotEditor(domain.Snapshot{
		Shapes: []domain.Shape{{Kind: domain.ShapeRect, X: 0, Y: 0, W: 100, H: 50}},
	}, 20))
	require.NoError(t, err)

	assert.Equal(t, 140, img.Width)
	assert.Equal(t, 90, img.Height)
}

func TestExport_StaticSVGPassesThrough(t *testing.T) {
	e := NewExporter(testConfig(), observability.Nop())
	doc := `<svg xmlns="http://www.w3.org/2000/svg" width="300" height="200"><circle cx="50" cy="50" r="40"/></svg>`

	img, degraded, err := e.Export(NewStaticSVGEditor(doc))
	require.NoError(t, err)

	assert.False(t, degraded)
	assert.Equal(t, doc, string(img.Data))
	assert.Equal(t, 300, img.Width)
	assert.Equal(t, 200, img.Height)
}

func TestExport_EmptyStaticSVGIsEmptyCanvas(t *testing.T) {
	e := NewExporter(testConfig(), observability.Nop())

	_, _, err := e.Export(NewStaticSVGEditor("   "))
	require.Error(t, err)
	assert.Equal(t, domain.ErrEmptyCanvas, domain.KindOf(err))
}

// failingEditor simulates a drawing engine whose native export raises.
type failingEditor struct {
	width, height int
}

func (e failingEditor) Shapes() []domain.Shape {
	return []domain.Shape{{Kind: domain.ShapeStroke}}
}

func (e failingEditor) NativeSVG() (string, error) {
	return "", fmt.Errorf("engine crashed")
}

func (e failingEditor) ContainerSize() (int, int) {
	return e.width, e.height
}

func TestExport_FallsBackToCanvasBounds(t *testing.T) {
	e := NewExporter(testConfig(), observability.Nop())

	img, degraded, err := e.Export(failingEditor{width: 1024, height: 768})
	require.NoError(t, err)

	assert.True(t, degraded)
	assert.Equal(t, 1024, img.Width)
	assert.Equal(t, 768, img.Height)
	assert.Contains(t, string(img.Data), "fill:white")
}

func TestExport_FallbackUsesConfiguredSizeWhenContainerUnknown(t *testing.T) {
	e := NewExporter(testConfig(), observability.Nop())

	img, degraded, err := e.Export(failingEditor{})
	require.NoError(t, err)

	assert.True(t, degraded)
	assert.Equal(t, 800, img.Width)
	assert.Equal(t, 600, img.Height)
}

func TestInspectSVG(t *testing.T) {
	tests := []struct {
		name       string
		doc        string
		wantWidth  int
		wantHeight int
		wantErr    bool
	}{
		{
			name:      "width and height attributes",
			doc:       `<svg width="200" height="100"></svg>`,
			wantWidth: 200, wantHeight: 100,
		},
		{
			name:      "px suffix",
			doc:       `<svg width="200px" height="100px"></svg>`,
			wantWidth: 200, wantHeight: 100,
		},
		{
			name:      "viewBox fallback",
			doc:       `<svg viewBox="0 0 640 480"></svg>`,
			wantWidth: 640, wantHeight: 480,
		},
		{
			name:    "wrong root element",
			doc:     `<div>not svg</div>`,
			wantErr: true,
		},
		{
			name:    "no dimensions",
			doc:     `<svg></svg>`,
			wantErr: true,
		},
		{
			name:    "not xml",
			doc:     `plain text`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, err := inspectSVG(tt.doc)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantWidth, w)
			assert.Equal(t, tt.wantHeight, h)
		})
	}
}

func TestSnapshotEditor_StrokeRendering(t *testing.T) {
	ed := NewSnapshotEditor(domain.Snapshot{
		Shapes: []domain.Shape{
			{Kind: domain.ShapeStroke, Points: []domain.Point{{X: 0, Y: 0}, {X: 50, Y: 20}, {X: 80, Y: 60}}},
		},
	}, 10)

	doc, err := ed.NativeSVG()
	require.NoError(t, err)
	assert.Contains(t, doc, "<polyline")
	assert.Equal(t, 1, strings.Count(doc, "<polyline"))
}
