package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ekaya-inc/exim-agent/pkg/config"
)

// healthCheckTimeout bounds the database probe of GET /health.
const healthCheckTimeout = 3 * time.Second

// Pinger checks that the trade database is reachable.
type Pinger interface {
	TestConnection(ctx context.Context) error
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
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
	db     Pinger
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db may be nil, in which case
// the database is not probed.
func NewHealthHandler(cfg *config.Config, db Pinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, db: db, logger: logger}
}

// RegisterRoutes registers the health handler's routes.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/ping", h.Ping)
}

// Health handles GET /health requests.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	status := http.StatusOK

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := h.db.TestConnection(ctx); err != nil {
			h.logger.Warn("Database health check failed", zap.Error(err))
			resp.Status = "degraded"
			resp.Database = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			resp.Database = "ok"
		}
	}

	if err := WriteJSON(w, status, resp); err != nil {
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
		Service:     "exim-agent",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
