// Package export turns the live drawing state into a single flattened
// vector image with a deterministic coordinate frame.
package export

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	svg "github.com/ajstarks/svgo"

	"github.com/conceptmap-ai/digitizer/internal/domain"
)

// Editor is the boundary to the drawing engine. Implementations expose the
// current shape list, a native vector export, and the rendering container's
// pixel dimensions for the fallback export path.
type Editor interface {
	Shapes() []domain.Shape
	NativeSVG() (string, error)
	ContainerSize() (width, height int)
}

// SnapshotEditor is an Editor backed by an immutable drawing snapshot.
type SnapshotEditor struct {
	snap   domain.Snapshot
	margin int
}

// NewSnapshotEditor creates an editor over a snapshot. marginPx pads the
// shape bounding box on every side of the export.
func NewSnapshotEditor(snap domain.Snapshot, marginPx int) *SnapshotEditor {
	if marginPx < 0 {
		marginPx = 0
	}
	return &SnapshotEditor{snap: snap, margin: marginPx}
}

// Shapes returns the snapshot's shape list.
func (e *SnapshotEditor) Shapes() []domain.Shape {
	return e.snap.Shapes
}

// ContainerSize returns the canvas dimensions recorded in the snapshot.
func (e *SnapshotEditor) ContainerSize() (int, int) {
	return e.snap.Width, e.snap.Height
}

// NativeSVG renders the shape list as an SVG document. The origin is the
// top-left corner of the bounding box of all shapes, padded by the margin.
func (e *SnapshotEditor) NativeSVG() (string, error) {
	if len(e.snap.Shapes) == 0 {
		return "", fmt.Errorf("no shapes to export")
	}

	minX, minY, maxX, maxY := shapeBounds(e.snap.Shapes)
	width := int(math.Ceil(maxX-minX)) + 2*e.margin
	height := int(math.Ceil(maxY-minY)) + 2*e.margin
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}

	var buf bytes.Buffer
	canvas := svg.New(&buf)
	canvas.Startview(width, height, 0, 0, width, height)
	canvas.Rect(0, 0, width, height, "fill:white")
	canvas.Gtransform(fmt.Sprintf("translate(%d,%d)", e.margin-int(math.Floor(minX)), e.margin-int(math.Floor(minY))))
	for _, s := range e.snap.Shapes {
		renderShape(canvas, s)
	}
	canvas.Gend()
	canvas.End()

	return buf.String(), nil
}

// StaticSVGEditor is an Editor wrapping a pre-drawn SVG document, used when
// the caller already holds a vector export (CLI file input).
type StaticSVGEditor struct {
	doc string
}

// NewStaticSVGEditor wraps an SVG document string.
func NewStaticSVGEditor(doc string) *StaticSVGEditor {
	return &StaticSVGEditor{doc: doc}
}

// Shapes reports a single synthetic shape when the document is non-empty,
// so the empty-canvas check reflects the document rather than a shape list
// the editor never had.
func (e *StaticSVGEditor) Shapes() []domain.Shape {
	if strings.TrimSpace(e.doc) == "" {
		return nil
	}
	return []domain.Shape{{Kind: domain.ShapeStroke}}
}

// NativeSVG returns the wrapped document.
func (e *StaticSVGEditor) NativeSVG() (string, error) {
	return e.doc, nil
}

// ContainerSize returns the document's declared dimensions, or zero when
// they cannot be read.
func (e *StaticSVGEditor) ContainerSize() (int, int) {
	w, h, err := inspectSVG(e.doc)
	if err != nil {
		return 0, 0
	}
	return w, h
}

// shapeBounds computes the bounding box over every shape's geometry.
func shapeBounds(shapes []domain.Shape) (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)

	include := func(x, y float64) {
		minX = math.Min(minX, x)
		minY = math.Min(minY, y)
		maxX = math.Max(maxX, x)
		maxY = math.Max(maxY, y)
	}

	for _, s := range shapes {
		for _, p := range s.Points {
			include(p.X, p.Y)
		}
		if len(s.Points) == 0 {
			include(s.X, s.Y)
			include(s.X+s.W, s.Y+s.H)
		}
	}

	if math.IsInf(minX, 1) {
		return 0, 0, 0, 0
	}
	return minX, minY, maxX, maxY
}

// renderShape draws a single shape onto the SVG canvas.
func renderShape(canvas *svg.SVG, s domain.Shape) {
	style := shapeStyle(s)

	switch s.Kind {
	case domain.ShapeStroke:
		if len(s.Points) < 2 {
			return
		}
		xs := make([]int, len(s.Points))
		ys := make([]int, len(s.Points))
		for i, p := range s.Points {
			xs[i] = int(math.Round(p.X))
			ys[i] = int(math.Round(p.Y))
		}
		canvas.Polyline(xs, ys, style)

	case domain.ShapeLine:
		if len(s.Points) < 2 {
			return
		}
		a, b := s.Points[0], s.Points[len(s.Points)-1]
		canvas.Line(int(math.Round(a.X)), int(math.Round(a.Y)), int(math.Round(b.X)), int(math.Round(b.Y)), style)

	case domain.ShapeRect:
		canvas.Rect(int(math.Round(s.X)), int(math.Round(s.Y)), int(math.Round(s.W)), int(math.Round(s.H)), style)

	case domain.ShapeEllipse:
		cx := int(math.Round(s.X + s.W/2))
		cy := int(math.Round(s.Y + s.H/2))
		canvas.Ellipse(cx, cy, int(math.Round(s.W/2)), int(math.Round(s.H/2)), style)

	case domain.ShapeText:
		fill := s.Stroke
		if fill == "" {
			fill = "black"
		}
		canvas.Text(int(math.Round(s.X)), int(math.Round(s.Y)), s.Text, fmt.Sprintf("font-size:16px;fill:%s", fill))
	}
}

// shapeStyle builds the style attribute for outline shapes.
func shapeStyle(s domain.Shape) string {
	stroke := s.Stroke
	if stroke == "" {
		stroke = "black"
	}
	width := s.StrokeWidth
	if width <= 0 {
		width = 2
	}
	fill := s.Fill
	if fill == "" {
		fill = "none"
	}
	return fmt.Sprintf("fill:%s;stroke:%s;stroke-width:%.1f", fill, stroke, width)
}
