package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sessionexport/backend/services/report-service/internal/apperr"
	"sessionexport/backend/services/report-service/internal/models"
	"sessionexport/backend/services/report-service/internal/progress"
	"sessionexport/backend/services/report-service/internal/report"
)

const auditTimeout = 5 * time.Second

// UpstreamClient is the station management API as seen by an export.
type UpstreamClient interface {
	Authenticator
	PageFetcher
}

// ProgressPublisher receives export progress events.
type ProgressPublisher interface {
	Publish(ev progress.Event)
}

// RunRecorder stores the audit record of a finished export.
type RunRecorder interface {
	Create(ctx context.Context, run *models.ExportRun) error
}

// ExportRequest carries everything one export needs. Credentials live only as long as the call.
type ExportRequest struct {
	ExportID    string
	Range       models.DateRange
	Credentials models.Credentials
	UnitPrice   decimal.Decimal
	RequestedBy string
}

// ExportResult is a finished workbook ready to be sent.
type ExportResult struct {
	ExportID string
	Filename string
	Document *report.Document
}

// ExportService runs the authenticate, paginate, project, render pipeline.
type ExportService struct {
	upstream UpstreamClient
	progress ProgressPublisher
	recorder RunRecorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewExportService builds service. publisher and recorder may be nil.
func NewExportService(upstream UpstreamClient, publisher ProgressPublisher, recorder RunRecorder, logger *zap.Logger) *ExportService {
	return &ExportService{
		upstream: upstream,
		progress: publisher,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Filename returns the attachment name for a date range.
func Filename(r models.DateRange) string {
	return fmt.Sprintf("sessions-%s-to-%s.xlsx", r.FormatStart(), r.FormatEnd())
}

// Export runs every stage strictly in sequence. On failure it returns an *apperr.Error and no
// document.
func (s *ExportService) Export(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	if req.ExportID == "" {
		req.ExportID = uuid.NewString()
	}
	started := s.now()
	logger := s.logger.With(
		zap.String("export_id", req.ExportID),
		zap.String("start_date", req.Range.FormatStart()),
		zap.String("end_date", req.Range.FormatEnd()),
	)

	doc, err := s.run(ctx, req, logger)
	elapsed := s.now().Sub(started)

	if err != nil {
		logger.Warn("export failed",
			zap.String("kind", string(apperr.KindOf(err))),
			zap.Error(err),
			zap.Duration("elapsed", elapsed),
		)
		s.publish(progress.Event{ExportID: req.ExportID, Stage: progress.StageFailed, Error: apperr.DetailOf(err)})
		s.record(ctx, logger, req, nil, err, elapsed)
		return nil, err
	}

	logger.Info("export completed",
		zap.Int("rows", doc.DataRows),
		zap.String("total_kwh", doc.TotalKWh.String()),
		zap.String("payout", doc.Payout.String()),
		zap.Duration("elapsed", elapsed),
	)
	s.publish(progress.Event{ExportID: req.ExportID, Stage: progress.StageCompleted, Rows: doc.DataRows})
	s.record(ctx, logger, req, doc, nil, elapsed)

	return &ExportResult{
		ExportID: req.ExportID,
		Filename: Filename(req.Range),
		Document: doc,
	}, nil
}

func (s *ExportService) run(ctx context.Context, req ExportRequest, logger *zap.Logger) (*report.Document, error) {
	token, err := s.upstream.Authenticate(ctx, req.Credentials)
	if err != nil {
		return nil, asKind(err, apperr.KindAuthentication, "authenticate")
	}
	s.publish(progress.Event{ExportID: req.ExportID, Stage: progress.StageAuthenticated})

	raws, err := FetchAllSessions(ctx, s.upstream, token, req.Range, func(page, pageCount, rows int) {
		if page == 1 {
			logger.Info("fetching sessions", zap.Int("pages", pageCount))
		}
		logger.Debug("fetched page", zap.Int("page", page), zap.Int("pages", pageCount), zap.Int("rows", rows))
		s.publish(progress.Event{ExportID: req.ExportID, Stage: progress.StagePage, Page: page, PageCount: pageCount, Rows: rows})
	})
	if err != nil {
		return nil, err
	}
	logger.Info("fetched sessions", zap.Int("rows", len(raws)))

	doc, err := report.Build(ProjectAll(raws), req.UnitPrice)
	if err != nil {
		return nil, asKind(err, apperr.KindRender, "render report")
	}
	s.publish(progress.Event{ExportID: req.ExportID, Stage: progress.StageRendered, Rows: doc.DataRows})
	return doc, nil
}

func (s *ExportService) publish(ev progress.Event) {
	if s.progress != nil {
		s.progress.Publish(ev)
	}
}

// record writes the audit row even when the request context is already cancelled.
func (s *ExportService) record(ctx context.Context, logger *zap.Logger, req ExportRequest, doc *report.Document, exportErr error, elapsed time.Duration) {
	if s.recorder == nil {
		return
	}
	run := &models.ExportRun{
		ID:          uuid.NewString(),
		ExportID:    req.ExportID,
		StartDate:   req.Range.FormatStart(),
		EndDate:     req.Range.FormatEnd(),
		RequestedBy: req.RequestedBy,
		Status:      models.ExportStatusCompleted,
		UnitPrice:   req.UnitPrice,
		DurationMS:  elapsed.Milliseconds(),
		CreatedAt:   s.now().UTC(),
	}
	if doc != nil {
		run.Rows = doc.DataRows
		run.TotalKWh = doc.TotalKWh
		run.Payout = doc.Payout
	}
	if exportErr != nil {
		run.Status = models.ExportStatusFailed
		run.ErrorKind = string(apperr.KindOf(exportErr))
		run.ErrorDetail = apperr.DetailOf(exportErr)
	}

	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := s.recorder.Create(auditCtx, run); err != nil {
		logger.Warn("failed to record export run", zap.Error(err))
	}
}

func asKind(err error, kind apperr.Kind, detail string) error {
	if apperr.KindOf(err) == kind {
		return err
	}
	return apperr.New(kind, detail, err)
}
