// Package handlers provides HTTP handlers for the Digitizer API.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/conceptmap-ai/digitizer/internal/digitize"
	"github.com/conceptmap-ai/digitizer/internal/domain"
	"github.com/conceptmap-ai/digitizer/internal/export"
	"github.com/conceptmap-ai/digitizer/internal/observability"
)

// DigitizeHandler handles drawing digitization requests.
type DigitizeHandler struct {
	logger     *observability.Logger
	controller *digitize.Controller
	exportCfg  export.Config
}

// NewDigitizeHandler creates a new digitize handler.
func NewDigitizeHandler(logger *observability.Logger, controller *digitize.Controller, exportCfg export.Config) *DigitizeHandler {
	return &DigitizeHandler{
		logger:     logger,
		controller: controller,
		exportCfg:  exportCfg,
	}
}

// DigitizeRequestDTO represents the API request. Exactly one of Snapshot and
// SVG must be set: Snapshot for live editor state, SVG for a pre-rendered
// document.
type DigitizeRequestDTO struct {
	Snapshot *domain.Snapshot `json:"snapshot,omitempty"`
	SVG      string           `json:"svg,omitempty"`
}

// DigitizeResponseDTO represents the API response.
type DigitizeResponseDTO struct {
	Graph    domain.ConceptGraph `json:"graph"`
	Degraded bool                `json:"degraded"`
	Source   string              `json:"source"`
	RawText  string              `json:"rawText,omitempty"`
}

// StateResponseDTO reports the pipeline state.
type StateResponseDTO struct {
	State string `json:"state"`
}

// Digitize handles POST /api/v1/digitize.
func (h *DigitizeHandler) Digitize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var reqDTO DigitizeRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	var ed export.Editor
	switch {
	case reqDTO.Snapshot != nil && reqDTO.SVG != "":
		h.writeError(w, http.StatusBadRequest, "snapshot and svg are mutually exclusive", "")
		return
	case reqDTO.Snapshot != nil:
		ed = export.NewSnapshotEditor(*reqDTO.Snapshot, h.exportCfg.MarginPx)
	case reqDTO.SVG != "":
		ed = export.NewStaticSVGEditor(reqDTO.SVG)
	default:
		h.writeError(w, http.StatusBadRequest, "snapshot or svg is required", "")
		return
	}

	result, err := h.controller.Digitize(ctx, ed)
	if err != nil {
		status, message := statusFor(err)
		h.logger.Warn().Err(err).Int("status", status).Msg("Digitization failed")
		h.writeError(w, status, message, domain.DiagnosticOf(err))
		return
	}

	resp := DigitizeResponseDTO{
		Graph:    result.Graph,
		Degraded: result.Degraded,
		Source:   string(result.Source),
		RawText:  result.RawText,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// State handles GET /api/v1/digitize/state.
func (h *DigitizeHandler) State(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StateResponseDTO{State: string(h.controller.State())})
}

// statusFor maps pipeline errors to HTTP status codes. Remote recognition
// failures surface as bad gateway; everything the caller can fix is a 4xx.
func statusFor(err error) (int, string) {
	switch domain.KindOf(err) {
	case domain.ErrEmptyCanvas:
		return http.StatusUnprocessableEntity, "canvas is empty"
	case domain.ErrAlreadyInProgress:
		return http.StatusConflict, "a digitization is already in progress"
	case domain.ErrRecognitionFailed, domain.ErrTextFallbackFailed, domain.ErrGraphBuildFailed:
		return http.StatusBadGateway, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func (h *DigitizeHandler) writeError(w http.ResponseWriter, status int, message, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := map[string]string{
		"error":   message,
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	json.NewEncoder(w).Encode(resp)
}
