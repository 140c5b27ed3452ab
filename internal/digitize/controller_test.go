package digitize

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conceptmap-ai/digitizer/internal/cache"
	"github.com/conceptmap-ai/digitizer/internal/domain"
	"github.com/conceptmap-ai/digitizer/internal/export"
	"github.com/conceptmap-ai/digitizer/internal/graph"
	"github.com/conceptmap-ai/digitizer/internal/observability"
)

type fakeExporter struct {
	image    domain.RasterImage
	degraded bool
	err      error
}

func (f *fakeExporter) Export(ed export.Editor) (domain.RasterImage, bool, error) {
	return f.image, f.degraded, f.err
}

type fakeNormalizer struct {
	err error
}

func (f *fakeNormalizer) Normalize(img domain.RasterImage) (domain.RasterImage, error) {
	if f.err != nil {
		return domain.RasterImage{}, f.err
	}
	img.MIME = domain.MIMEPNG
	img.Encoding = domain.EncodingDataURI
	return img, nil
}

type fakeRecognizer struct {
	mu            sync.Mutex
	recognizeN    int
	generateN     int
	recognizeRes  domain.RecognitionResult
	generateRes   domain.RecognitionResult
	lastMapType   string
	recognizeWait chan struct{}
}

func (f *fakeRecognizer) Recognize(ctx context.Context, img domain.RasterImage) domain.RecognitionResult {
	f.mu.Lock()
	f.recognizeN++
	f.mu.Unlock()
	if f.recognizeWait != nil {
		<-f.recognizeWait
	}
	return f.recognizeRes
}

func (f *fakeRecognizer) GenerateFromText(ctx context.Context, text, mapType string) domain.RecognitionResult {
	f.mu.Lock()
	f.generateN++
	f.lastMapType = mapType
	f.mu.Unlock()
	return f.generateRes
}

func (f *fakeRecognizer) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recognizeN, f.generateN
}

func testSnapshot() export.Editor {
	return export.NewSnapshotEditor(domain.Snapshot{
		Shapes: []domain.Shape{
			{Kind: domain.ShapeRect, X: 10, Y: 10, W: 100, H: 40},
		},
	}, 20)
}

func structuredResult() domain.StructuredResult {
	return domain.StructuredResult{
		Concepts: []domain.Concept{
			{ID: "c1", Name: "Sun"},
			{ID: "c2", Name: "Plant"},
		},
		Relationships: []domain.Relationship{
			{Source: "c1", Target: "c2", Label: "feeds"},
		},
	}
}

func newTestController(rec *fakeRecognizer, opts ...Option) *Controller {
	exp := &fakeExporter{image: domain.RasterImage{
		Data: []byte("png"), Width: 100, Height: 80, MIME: domain.MIMEPNG,
	}}
	return NewController(exp, &fakeNormalizer{}, rec, graph.NewBuilder(observability.Nop()), observability.Nop(), opts...)
}

func TestDigitize_StructuredPath(t *testing.T) {
	rec := &fakeRecognizer{recognizeRes: structuredResult()}
	ctrl := newTestController(rec)

	result, err := ctrl.Digitize(context.Background(), testSnapshot())
	require.NoError(t, err)

	assert.Equal(t, SourceVision, result.Source)
	assert.False(t, result.Degraded)
	assert.Len(t, result.Graph.Concepts, 2)
	assert.Equal(t, "c1", result.Graph.Structure.Root)
	assert.Equal(t, StateDone, ctrl.State())

	recognizeN, generateN := rec.calls()
	assert.Equal(t, 1, recognizeN)
	assert.Equal(t, 0, generateN)
}

func TestDigitize_EmptyCanvasNeverReachesService(t *testing.T) {
	rec := &fakeRecognizer{recognizeRes: structuredResult()}
	exp := export.NewExporter(export.Config{MarginPx: 20, FallbackWidth: 800, FallbackHeight: 600}, observability.Nop())
	ctrl := NewController(exp, &fakeNormalizer{}, rec, graph.NewBuilder(observability.Nop()), observability.Nop())

	empty := export.NewSnapshotEditor(domain.Snapshot{}, 20)
	_, err := ctrl.Digitize(context.Background(), empty)
	require.Error(t, err)
	assert.Equal(t, domain.ErrEmptyCanvas, domain.KindOf(err))
	assert.Equal(t, StateFailed, ctrl.State())

	recognizeN, _ := rec.calls()
	assert.Equal(t, 0, recognizeN)
}

func TestDigitize_TextFallback(t *testing.T) {
	rec := &fakeRecognizer{
		recognizeRes: domain.TextOnlyResult{RawText: "Water Cycle notes"},
		generateRes:  structuredResult(),
	}
	ctrl := newTestController(rec, WithMapType("conceptmap"))

	result, err := ctrl.Digitize(context.Background(), testSnapshot())
	require.NoError(t, err)

	assert.Equal(t, SourceText, result.Source)
	assert.Equal(t, "Water Cycle notes", result.RawText)
	assert.Len(t, result.Graph.Concepts, 2)

	recognizeN, generateN := rec.calls()
	assert.Equal(t, 1, recognizeN)
	assert.Equal(t, 1, generateN)
	assert.Equal(t, "conceptmap", rec.lastMapType)
}

func TestDigitize_TextFallbackFails(t *testing.T) {
	rec := &fakeRecognizer{
		recognizeRes: domain.TextOnlyResult{RawText: "scribbles"},
		generateRes:  domain.Failure{Message: "model overloaded"},
	}
	ctrl := newTestController(rec)

	_, err := ctrl.Digitize(context.Background(), testSnapshot())
	require.Error(t, err)
	assert.Equal(t, domain.ErrTextFallbackFailed, domain.KindOf(err))
	assert.Equal(t, "model overloaded", domain.DiagnosticOf(err))
}

func TestDigitize_RecognitionFailure(t *testing.T) {
	rec := &fakeRecognizer{recognizeRes: domain.Failure{Message: "image unreadable"}}
	ctrl := newTestController(rec)

	_, err := ctrl.Digitize(context.Background(), testSnapshot())
	require.Error(t, err)
	assert.Equal(t, domain.ErrRecognitionFailed, domain.KindOf(err))
	assert.Equal(t, "image unreadable", domain.DiagnosticOf(err))

	// No automatic retry
	recognizeN, generateN := rec.calls()
	assert.Equal(t, 1, recognizeN)
	assert.Equal(t, 0, generateN)
}

func TestDigitize_DegradedExportPropagates(t *testing.T) {
	rec := &fakeRecognizer{recognizeRes: structuredResult()}
	exp := &fakeExporter{
		image:    domain.RasterImage{Data: []byte("png"), Width: 800, Height: 600, MIME: domain.MIMEPNG},
		degraded: true,
	}
	ctrl := NewController(exp, &fakeNormalizer{}, rec, graph.NewBuilder(observability.Nop()), observability.Nop())

	result, err := ctrl.Digitize(context.Background(), testSnapshot())
	require.NoError(t, err)
	assert.True(t, result.Degraded)
}

func TestDigitize_SingleFlight(t *testing.T) {
	gate := make(chan struct{})
	rec := &fakeRecognizer{
		recognizeRes:  structuredResult(),
		recognizeWait: gate,
	}
	ctrl := newTestController(rec)

	var firstErr error
	done := make(chan struct{})
	go func() {
		_, firstErr = ctrl.Digitize(context.Background(), testSnapshot())
		close(done)
	}()

	// Wait until the first run is inside recognition.
	require.Eventually(t, func() bool {
		n, _ := rec.calls()
		return n == 1
	}, time.Second, 5*time.Millisecond)

	_, err := ctrl.Digitize(context.Background(), testSnapshot())
	require.Error(t, err)
	assert.Equal(t, domain.ErrAlreadyInProgress, domain.KindOf(err))

	close(gate)
	<-done
	require.NoError(t, firstErr)

	// The controller admits a new run once the first completes.
	rec.recognizeWait = nil
	_, err = ctrl.Digitize(context.Background(), testSnapshot())
	require.NoError(t, err)
}

func TestDigitize_CacheHitSkipsRecognition(t *testing.T) {
	rec := &fakeRecognizer{recognizeRes: structuredResult()}
	memCache := cache.NewMemoryClient(10)
	ctrl := newTestController(rec, WithCache(memCache, time.Minute))

	first, err := ctrl.Digitize(context.Background(), testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, SourceVision, first.Source)

	second, err := ctrl.Digitize(context.Background(), testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, SourceCache, second.Source)
	assert.Equal(t, first.Graph, second.Graph)

	recognizeN, _ := rec.calls()
	assert.Equal(t, 1, recognizeN)
}

func TestState_TransitionsToDone(t *testing.T) {
	rec := &fakeRecognizer{recognizeRes: structuredResult()}
	ctrl := newTestController(rec)

	assert.Equal(t, StateIdle, ctrl.State())

	_, err := ctrl.Digitize(context.Background(), testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, StateDone, ctrl.State())
}
