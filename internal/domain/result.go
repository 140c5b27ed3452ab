package domain

// RecognitionResult is the outcome of a recognition call. It is a closed
// union: StructuredResult, TextOnlyResult or Failure. The union is resolved
// once at the recognition boundary; downstream components never re-validate
// the payload.
type RecognitionResult interface {
	recognitionResult()
}

// StructuredResult carries the concepts and relationships the service
// extracted from the image (or from fallback text). Fields may be partial;
// GraphBuilder owns defaulting and validation.
type StructuredResult struct {
	Concepts      []Concept
	Relationships []Relationship
	Structure     *StructureHint
	RawText       string
}

// TextOnlyResult means the service read text off the drawing but could not
// infer graph structure. The controller routes RawText through the
// text-to-graph endpoint.
type TextOnlyResult struct {
	RawText string
}

// Failure carries the service's diagnostic message verbatim.
type Failure struct {
	Message string
}

func (StructuredResult) recognitionResult() {}
func (TextOnlyResult) recognitionResult()   {}
func (Failure) recognitionResult()          {}
