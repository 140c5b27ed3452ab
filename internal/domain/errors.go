package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures. Every component converts its
// internal failures into one of these kinds before the error crosses into
// the controller.
type ErrorKind string

const (
	ErrEmptyCanvas         ErrorKind = "empty_canvas"
	ErrAlreadyInProgress   ErrorKind = "already_in_progress"
	ErrExportFailed        ErrorKind = "export_failed"
	ErrNormalizationFailed ErrorKind = "normalization_failed"
	ErrRecognitionFailed   ErrorKind = "recognition_failed"
	ErrTextFallbackFailed  ErrorKind = "text_fallback_failed"
	ErrGraphBuildFailed    ErrorKind = "graph_build_failed"
)

// PipelineError is a classified pipeline failure. Diagnostic holds the
// literal remote service output for the remote failure kinds, so callers
// can surface it for debugging.
type PipelineError struct {
	Kind       ErrorKind
	Message    string
	Diagnostic string
	Err        error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewError creates a classified pipeline error.
func NewError(kind ErrorKind, message string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Message: message, Err: err}
}

// Common error constructors
func EmptyCanvasError() *PipelineError {
	return NewError(ErrEmptyCanvas, "nothing drawn on the canvas", nil)
}

func AlreadyInProgressError() *PipelineError {
	return NewError(ErrAlreadyInProgress, "a digitization is already running", nil)
}

func ExportError(message string, err error) *PipelineError {
	return NewError(ErrExportFailed, message, err)
}

func NormalizationError(message string, err error) *PipelineError {
	return NewError(ErrNormalizationFailed, message, err)
}

func RecognitionError(message, diagnostic string) *PipelineError {
	e := NewError(ErrRecognitionFailed, message, nil)
	e.Diagnostic = diagnostic
	return e
}

func TextFallbackError(message, diagnostic string) *PipelineError {
	e := NewError(ErrTextFallbackFailed, message, nil)
	e.Diagnostic = diagnostic
	return e
}

func GraphBuildError(message string) *PipelineError {
	return NewError(ErrGraphBuildFailed, message, nil)
}

// KindOf returns the classification of err, or the empty kind for
// unclassified errors.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// DiagnosticOf returns the remote diagnostic text attached to err, if any.
func DiagnosticOf(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Diagnostic
	}
	return ""
}
