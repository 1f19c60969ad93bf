package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/veridata-labs/veridata-engine/pkg/apperrors"
	"github.com/veridata-labs/veridata-engine/pkg/services"
)

// RunValidationRequest starts a validation run.
type RunValidationRequest struct {
	// BusinessRules is the natural-language rule text driving
	// test case generation.
	BusinessRules string `json:"business_rules"`
	// Name labels the resulting report. Optional.
	Name string `json:"name,omitempty"`
}

// ValidationHandler exposes validation runs over HTTP.
type ValidationHandler struct {
	orchestrator services.ValidationOrchestrator
	logger       *zap.Logger
}

// NewValidationHandler creates a new ValidationHandler.
func NewValidationHandler(orchestrator services.ValidationOrchestrator, logger *zap.Logger) *ValidationHandler {
	return &ValidationHandler{orchestrator: orchestrator, logger: logger}
}

// RegisterRoutes registers the validation handler's routes on the given mux.
func (h *ValidationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/validations", h.Run)
	mux.HandleFunc("POST /api/validations/stream", h.RunStream)
}

// Run handles POST /api/validations. It executes a full validation run
// synchronously and returns the report.
func (h *ValidationHandler) Run(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	report, err := h.orchestrator.Run(r.Context(), req.BusinessRules, req.Name)
	if err != nil {
		h.writeRunError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, report); err != nil {
		h.logger.Error("Failed to encode validation report", zap.Error(err))
	}
}

// RunStream handles POST /api/validations/stream. It executes a run
// and streams phase events as server-sent events, ending with either a
// "report" or an "error" event.
func (h *ValidationHandler) RunStream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		_ = ErrorResponse(w, http.StatusInternalServerError, "streaming_unsupported", "response writer does not support streaming")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sendEvent := func(event string, payload any) {
		data, err := json.Marshal(payload)
		if err != nil {
			h.logger.Error("Failed to encode stream event", zap.Error(err))
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}

	report, err := h.orchestrator.RunWithProgress(r.Context(), req.BusinessRules, req.Name, func(e services.PhaseEvent) {
		sendEvent("progress", e)
	})
	if err != nil {
		sendEvent("error", map[string]string{"message": err.Error()})
		return
	}
	sendEvent("report", report)
}

func (h *ValidationHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (RunValidationRequest, bool) {
	var req RunValidationRequest
	if !DecodeJSON(w, r, &req) {
		return req, false
	}
	if strings.TrimSpace(req.BusinessRules) == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "missing_rules", "business_rules is required")
		return req, false
	}
	return req, true
}

func (h *ValidationHandler) writeRunError(w http.ResponseWriter, err error) {
	h.logger.Error("Validation run failed", zap.Error(err))

	var genErr *services.GenerationError
	switch {
	case errors.As(err, &genErr):
		_ = ErrorResponse(w, http.StatusBadGateway, "generation_failed", err.Error())
	case errors.Is(err, apperrors.ErrNoTestCases):
		_ = ErrorResponse(w, http.StatusUnprocessableEntity, "no_test_cases", err.Error())
	default:
		_ = ErrorResponse(w, http.StatusInternalServerError, "run_failed", err.Error())
	}
}
