package handlers

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"sessionexport/backend/services/report-service/internal/apperr"
	"sessionexport/backend/services/report-service/internal/models"
)

const maxListLimit = 500

// RunLister reads export audit records.
type RunLister interface {
	List(ctx context.Context, limit int) ([]models.ExportRun, error)
}

// ExportsHandlers exposes the export audit trail.
type ExportsHandlers struct {
	runs   RunLister
	logger *zap.Logger
}

// NewExportsHandlers returns handler.
func NewExportsHandlers(runs RunLister, logger *zap.Logger) *ExportsHandlers {
	return &ExportsHandlers{runs: runs, logger: logger}
}

// List handles GET /api/exports.
func (h *ExportsHandlers) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxListLimit {
			writeAppError(w, apperr.InvalidRequest("limit must be between 1 and 500"))
			return
		}
		limit = n
	}
	runs, err := h.runs.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("list export runs failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Details: "failed to list exports"})
		return
	}
	writeJSON(w, http.StatusOK, runs)
}
