package handlers

import (
	"net/http"
	"os"
	"runtime"

	"go.uber.org/zap"

	"github.com/veridata-labs/veridata-engine/pkg/config"
	"github.com/veridata-labs/veridata-engine/pkg/services"
)

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
}

// ConnectionsResponse reports reachability per database role.
type ConnectionsResponse struct {
	Databases map[string]string `json:"databases"`
	Healthy   bool              `json:"healthy"`
}

// HealthHandler handles health check and connectivity endpoints.
type HealthHandler struct {
	cfg     *config.Config
	schemas services.SchemaService
	logger  *zap.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(cfg *config.Config, schemas services.SchemaService, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, schemas: schemas, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
	mux.HandleFunc("GET /api/connections", h.Connections)
}

// Health handles GET /health requests.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ping handles GET /ping requests.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "veridata-engine",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}

// Connections handles GET /api/connections. It pings both database
// roles and reports per-role status; 503 when any role is down.
func (h *HealthHandler) Connections(w http.ResponseWriter, r *http.Request) {
	results := h.schemas.TestConnections(r.Context())

	response := ConnectionsResponse{Databases: make(map[string]string, len(results)), Healthy: true}
	for id, err := range results {
		if err != nil {
			response.Databases[id] = err.Error()
			response.Healthy = false
			continue
		}
		response.Databases[id] = "ok"
	}

	status := http.StatusOK
	if !response.Healthy {
		status = http.StatusServiceUnavailable
	}
	if err := WriteJSON(w, status, response); err != nil {
		h.logger.Error("Failed to encode connections response", zap.Error(err))
	}
}
