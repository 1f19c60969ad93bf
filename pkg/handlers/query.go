package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/veridata-labs/veridata-engine/pkg/services"
)

// ExecuteQueryRequest runs one ad-hoc read against one database role.
type ExecuteQueryRequest struct {
	// DatabaseID selects the role: "source" or "target".
	DatabaseID string `json:"database_id"`
	SQL        string `json:"sql"`
}

// GenerateQueryRequest asks for SQL from a natural-language description.
type GenerateQueryRequest struct {
	DatabaseID  string `json:"database_id"`
	Description string `json:"description"`
	// Execute runs the generated SQL when true.
	Execute bool `json:"execute,omitempty"`
}

// QueryHandler exposes ad-hoc query execution and generation.
type QueryHandler struct {
	executor  services.QueryExecutor
	generator services.TestCaseGenerator
	schemas   services.SchemaService
	logger    *zap.Logger
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(executor services.QueryExecutor, generator services.TestCaseGenerator, schemas services.SchemaService, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{executor: executor, generator: generator, schemas: schemas, logger: logger}
}

// RegisterRoutes registers the query handler's routes on the given mux.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/queries/execute", h.Execute)
	mux.HandleFunc("POST /api/queries/generate", h.Generate)
}

// Execute handles POST /api/queries/execute. The executor's safety
// check applies: write statements come back as a failed result, never
// reaching a database.
func (h *QueryHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteQueryRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.SQL) == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "missing_sql", "sql is required")
		return
	}
	if req.DatabaseID == "" {
		req.DatabaseID = services.SourceDatabaseID
	}

	result := h.executor.Execute(r.Context(), req.DatabaseID, req.SQL, 0, 0)
	if err := WriteJSON(w, http.StatusOK, result); err != nil {
		h.logger.Error("Failed to encode query result", zap.Error(err))
	}
}

// Generate handles POST /api/queries/generate. It turns a description
// into SQL against the role's schema and optionally executes it.
func (h *QueryHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateQueryRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "missing_description", "description is required")
		return
	}
	if req.DatabaseID == "" {
		req.DatabaseID = services.SourceDatabaseID
	}

	schema, err := h.schemas.Snapshot(r.Context(), req.DatabaseID)
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "unknown_database", err.Error())
		return
	}

	sql, err := h.generator.GenerateSQL(r.Context(), req.Description, schema)
	if err != nil {
		h.logger.Error("SQL generation failed", zap.Error(err))
		_ = ErrorResponse(w, http.StatusBadGateway, "generation_failed", err.Error())
		return
	}

	response := map[string]any{"sql": sql}
	if req.Execute {
		response["result"] = h.executor.Execute(r.Context(), req.DatabaseID, sql, 0, 0)
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode generated query", zap.Error(err))
	}
}
