package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ekaya-inc/exim-agent/pkg/apperrors"
	"github.com/ekaya-inc/exim-agent/pkg/export"
	"github.com/ekaya-inc/exim-agent/pkg/models"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportJobs is the part of the export manager the HTTP surface needs.
type ExportJobs interface {
	Get(ctx context.Context, id string) (*models.ExportJob, error)
	Cancel(id string) error
	Dir() string
}

// ExportStatusResponse is returned by GET /export_status/{job_id}.
type ExportStatusResponse struct {
	Status   models.ExportStatus `json:"status"`
	Progress int                 `json:"progress"`
	File     string              `json:"file,omitempty"`
}

// ExportHandler serves export progress, downloads and cancellation.
type ExportHandler struct {
	jobs   ExportJobs
	logger *zap.Logger
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(jobs ExportJobs, logger *zap.Logger) *ExportHandler {
	return &ExportHandler{jobs: jobs, logger: logger}
}

// RegisterRoutes registers the export routes.
func (h *ExportHandler) RegisterRoutes(r chi.Router) {
	r.Get("/export_status/{job_id}", h.Status)
	r.Get("/download/{filename}", h.Download)
	r.Delete("/export/{job_id}", h.Cancel)
}

// Status handles GET /export_status/{job_id}.
func (h *ExportHandler) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job_id")

	job, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			h.logger.Error("Failed to read export job", zap.String("job_id", id), zap.Error(err))
		}
		if err := WriteJSON(w, http.StatusNotFound, map[string]string{"status": "not_found"}); err != nil {
			h.logger.Error("Failed to encode export status", zap.Error(err))
		}
		return
	}

	resp := ExportStatusResponse{Status: job.Status, Progress: job.Progress, File: job.File}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode export status", zap.Error(err))
	}
}

// Download handles GET /download/{filename}. Only finished workbooks in the
// export directory are served.
func (h *ExportHandler) Download(w http.ResponseWriter, r *http.Request) {
	path, err := export.ResolveFile(h.jobs.Dir(), chi.URLParam(r, "filename"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}

// Cancel handles DELETE /export/{job_id}.
func (h *ExportHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job_id")

	if err := h.jobs.Cancel(id); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("Failed to cancel export", zap.String("job_id", id), zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "Failed to cancel export"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
