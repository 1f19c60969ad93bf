package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/veridata-labs/veridata-engine/pkg/apperrors"
	"github.com/veridata-labs/veridata-engine/pkg/services"
)

// SchemaHandler exposes schema snapshots and structural comparison.
type SchemaHandler struct {
	schemas services.SchemaService
	logger  *zap.Logger
}

// NewSchemaHandler creates a new SchemaHandler.
func NewSchemaHandler(schemas services.SchemaService, logger *zap.Logger) *SchemaHandler {
	return &SchemaHandler{schemas: schemas, logger: logger}
}

// RegisterRoutes registers the schema handler's routes on the given mux.
func (h *SchemaHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/schemas/{databaseID}", h.Snapshot)
	mux.HandleFunc("GET /api/schemas/compare", h.Compare)
}

// Snapshot handles GET /api/schemas/{databaseID}.
func (h *SchemaHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	databaseID := r.PathValue("databaseID")

	snapshot, err := h.schemas.Snapshot(r.Context(), databaseID)
	if err != nil {
		if errors.Is(err, apperrors.ErrUnknownDatabase) {
			_ = ErrorResponse(w, http.StatusNotFound, "unknown_database", err.Error())
			return
		}
		h.logger.Error("Schema capture failed", zap.String("database_id", databaseID), zap.Error(err))
		_ = ErrorResponse(w, http.StatusBadGateway, "schema_capture_failed", err.Error())
		return
	}

	if err := WriteJSON(w, http.StatusOK, snapshot); err != nil {
		h.logger.Error("Failed to encode schema snapshot", zap.Error(err))
	}
}

// Compare handles GET /api/schemas/compare. It captures both roles and
// returns the structural diff.
func (h *SchemaHandler) Compare(w http.ResponseWriter, r *http.Request) {
	source, target, err := h.schemas.Snapshots(r.Context())
	if err != nil {
		h.logger.Error("Schema comparison failed", zap.Error(err))
		_ = ErrorResponse(w, http.StatusBadGateway, "schema_capture_failed", err.Error())
		return
	}

	comparison := h.schemas.CompareSnapshots(source, target)
	if err := WriteJSON(w, http.StatusOK, comparison); err != nil {
		h.logger.Error("Failed to encode schema comparison", zap.Error(err))
	}
}
