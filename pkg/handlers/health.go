package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/config"
)

// VersionProvider reports the version of the embedded query engine.
type VersionProvider interface {
	Version(ctx context.Context) (string, error)
}

// HealthResponse reports service status and the query engine version.
type HealthResponse struct {
	Status        string `json:"status"`
	DuckDBVersion string `json:"duckdb_version"`
	Version       string `json:"version"`
}

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg    *config.Config
	engine VersionProvider
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler with the given configuration.
func NewHealthHandler(cfg *config.Config, engine VersionProvider, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, engine: engine, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /api/health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health requests.
// Opens the query engine to report its version; an engine that cannot start
// answers 503.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	duckdbVersion, err := h.engine.Version(r.Context())
	if err != nil {
		h.logger.Error("Query engine health check failed", zap.Error(err))
		if err := ErrorResponse(w, http.StatusServiceUnavailable, "engine_unavailable", "Query engine unavailable"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	response := HealthResponse{
		Status:        "healthy",
		DuckDBVersion: duckdbVersion,
		Version:       h.cfg.Version,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "ekaya-insights",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
