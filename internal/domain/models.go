// Package domain contains the core data structures for the digitization
// pipeline, independent of the transport and rendering layers.
package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Default values applied while normalizing a recognition payload.
const (
	DefaultConceptName       = "Unnamed Concept"
	DefaultRelationshipLabel = "relates to"
	DefaultStructureType     = "hierarchical"
)

// ShapeKind identifies the kind of a drawn shape.
type ShapeKind string

const (
	ShapeStroke  ShapeKind = "stroke"
	ShapeLine    ShapeKind = "line"
	ShapeRect    ShapeKind = "rect"
	ShapeEllipse ShapeKind = "ellipse"
	ShapeText    ShapeKind = "text"
)

// Point is a single coordinate on the canvas. The origin is the top-left
// corner; X grows rightward, Y grows downward.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Shape is one drawn element of a snapshot.
type Shape struct {
	ID          string    `json:"id,omitempty"`
	Kind        ShapeKind `json:"kind"`
	Points      []Point   `json:"points,omitempty"`
	X           float64   `json:"x,omitempty"`
	Y           float64   `json:"y,omitempty"`
	W           float64   `json:"w,omitempty"`
	H           float64   `json:"h,omitempty"`
	Text        string    `json:"text,omitempty"`
	Stroke      string    `json:"stroke,omitempty"`
	StrokeWidth float64   `json:"strokeWidth,omitempty"`
	Fill        string    `json:"fill,omitempty"`
}

// Snapshot is the drawing state handed to the pipeline. It is read-only
// input: the pipeline never mutates or retains it past the export stage.
type Snapshot struct {
	Shapes []Shape `json:"shapes"`
	Width  int     `json:"width,omitempty"`
	Height int     `json:"height,omitempty"`
}

// Raster image MIME types accepted by the pipeline.
const (
	MIMESVG = "image/svg+xml"
	MIMEPNG = "image/png"
)

// Encoding describes how a raster image payload is presented.
type Encoding string

const (
	EncodingRaw     Encoding = "raw"
	EncodingDataURI Encoding = "dataURI"
)

// RasterImage is a flattened image with its declared dimensions and format.
// Data always holds the raw payload bytes; Encoding records how the image
// was transported. After normalization the MIME type is always MIMEPNG, the
// encoding EncodingDataURI, and every pixel is fully opaque.
type RasterImage struct {
	Data     []byte
	Width    int
	Height   int
	MIME     string
	Encoding Encoding
}

// DataURI renders the image as a self-describing data URI.
func (r RasterImage) DataURI() string {
	return fmt.Sprintf("data:%s;base64,%s", r.MIME, base64.StdEncoding.EncodeToString(r.Data))
}

// Base64 returns the raw payload encoded as standard base64.
func (r RasterImage) Base64() string {
	return base64.StdEncoding.EncodeToString(r.Data)
}

// ParseDataURI decodes a data URI into its MIME type and payload bytes.
func ParseDataURI(uri string) (mime string, data []byte, err error) {
	if !strings.HasPrefix(uri, "data:") {
		return "", nil, fmt.Errorf("not a data URI")
	}
	header, encoded, ok := strings.Cut(uri, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data URI: missing payload")
	}
	header = strings.TrimPrefix(header, "data:")
	mime = header
	if i := strings.Index(header, ";"); i >= 0 {
		mime = header[:i]
	}
	if !strings.Contains(header, "base64") {
		// Plain-text payloads (URL-encoded SVG) are passed through as bytes.
		return mime, []byte(encoded), nil
	}
	data, err = base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URI payload: %w", err)
	}
	return mime, data, nil
}

// Concept is a single node of the recognized graph.
type Concept struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Relationship is a directed, labeled edge between two concepts.
type Relationship struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
}

// StructureHint tells a consumer how to lay the graph out.
type StructureHint struct {
	Type string `json:"type"`
	Root string `json:"root"`
}

// ConceptGraph is the validated output of the pipeline. The structure root
// always resolves to a concept in Concepts; relationship endpoints may
// reference concepts the recognition service named but never listed.
type ConceptGraph struct {
	Concepts      []Concept      `json:"concepts"`
	Relationships []Relationship `json:"relationships"`
	Structure     StructureHint  `json:"structure"`
}

// HasConcept reports whether id resolves to a concept in the graph.
func (g ConceptGraph) HasConcept(id string) bool {
	for _, c := range g.Concepts {
		if c.ID == id {
			return true
		}
	}
	return false
}
