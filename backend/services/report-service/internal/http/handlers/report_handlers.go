package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sessionexport/backend/services/report-service/internal/apperr"
	"sessionexport/backend/services/report-service/internal/http/middleware"
	"sessionexport/backend/services/report-service/internal/models"
	"sessionexport/backend/services/report-service/internal/report"
	"sessionexport/backend/services/report-service/internal/service"
)

const maxRequestBody = 1 << 16

// Exporter runs one export.
type Exporter interface {
	Export(ctx context.Context, req service.ExportRequest) (*service.ExportResult, error)
}

// ReportDefaults are the fallbacks applied to fields a request leaves out.
type ReportDefaults struct {
	Credentials models.Credentials
	UnitPrice   decimal.Decimal
}

// ReportHandlers serves the workbook download and the form defaults.
type ReportHandlers struct {
	exporter Exporter
	defaults ReportDefaults
	logger   *zap.Logger
	now      func() time.Time
}

// NewReportHandlers returns handler struct.
func NewReportHandlers(exporter Exporter, defaults ReportDefaults, logger *zap.Logger) *ReportHandlers {
	return &ReportHandlers{exporter: exporter, defaults: defaults, logger: logger, now: time.Now}
}

type downloadRequest struct {
	StartDate          string           `json:"startDate"`
	EndDate            string           `json:"endDate"`
	OperatorIdentifier string           `json:"operatorIdentifier"`
	Secret             string           `json:"secret"`
	UnitPrice          *decimal.Decimal `json:"unitPrice"`
	ExportID           string           `json:"exportId"`
}

// Download handles POST /sessions/report.
func (h *ReportHandlers) Download(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseDownload(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if sub, ok := middleware.SubjectFromContext(r.Context()); ok {
		req.RequestedBy = sub
	} else {
		req.RequestedBy = middleware.ClientIP(r)
	}

	result, err := h.exporter.Export(r.Context(), req)
	if err != nil {
		writeAppError(w, err)
		return
	}

	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Document.Bytes)))
	w.Header().Set("X-Export-ID", result.ExportID)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Document.Bytes); err != nil {
		h.logger.Warn("failed to send workbook", zap.String("export_id", result.ExportID), zap.Error(err))
	}
}

func (h *ReportHandlers) parseDownload(r *http.Request) (service.ExportRequest, error) {
	var body downloadRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		if strings.HasPrefix(err.Error(), "json: unknown field ") {
			return service.ExportRequest{}, apperr.InvalidRequest(strings.TrimPrefix(err.Error(), "json: "))
		}
		return service.ExportRequest{}, apperr.InvalidRequest("invalid json body")
	}

	rng, err := models.ParseDateRange(strings.TrimSpace(body.StartDate), strings.TrimSpace(body.EndDate))
	if err != nil {
		return service.ExportRequest{}, apperr.InvalidRequest(err.Error())
	}
	if rng.End.Before(rng.Start) {
		return service.ExportRequest{}, apperr.InvalidRequest("endDate must not be before startDate")
	}

	creds := models.Credentials{Identifier: body.OperatorIdentifier, Secret: body.Secret}
	if creds.Identifier == "" && creds.Secret == "" {
		creds = h.defaults.Credentials
	}
	if creds.Identifier == "" || creds.Secret == "" {
		return service.ExportRequest{}, apperr.InvalidRequest("operator credentials required")
	}

	price := h.defaults.UnitPrice
	if body.UnitPrice != nil {
		price = *body.UnitPrice
	}
	if price.IsNegative() {
		return service.ExportRequest{}, apperr.InvalidRequest("unitPrice must not be negative")
	}

	return service.ExportRequest{
		ExportID:    strings.TrimSpace(body.ExportID),
		Range:       rng,
		Credentials: creds,
		UnitPrice:   price,
	}, nil
}

type defaultsResponse struct {
	StartDate string          `json:"startDate"`
	EndDate   string          `json:"endDate"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Defaults handles GET /api/report/defaults.
func (h *ReportHandlers) Defaults(w http.ResponseWriter, r *http.Request) {
	rng := models.PreviousMonth(h.now())
	writeJSON(w, http.StatusOK, defaultsResponse{
		StartDate: rng.FormatStart(),
		EndDate:   rng.FormatEnd(),
		UnitPrice: h.defaults.UnitPrice,
	})
}
