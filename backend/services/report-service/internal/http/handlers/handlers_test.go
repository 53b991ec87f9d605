package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sessionexport/backend/services/report-service/internal/apperr"
	"sessionexport/backend/services/report-service/internal/models"
	"sessionexport/backend/services/report-service/internal/progress"
	"sessionexport/backend/services/report-service/internal/report"
	"sessionexport/backend/services/report-service/internal/service"
)

type fakeExporter struct {
	err   error
	calls []service.ExportRequest
}

func (f *fakeExporter) Export(_ context.Context, req service.ExportRequest) (*service.ExportResult, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return &service.ExportResult{
		ExportID: "exp-1",
		Filename: service.Filename(req.Range),
		Document: &report.Document{Bytes: []byte("PK-workbook")},
	}, nil
}

func newReportHandlers(exp Exporter) *ReportHandlers {
	return NewReportHandlers(exp, ReportDefaults{
		Credentials: models.Credentials{Identifier: "cfg@example.com", Secret: "cfg-secret"},
		UnitPrice:   decimal.RequireFromString("0.30"),
	}, zap.NewNop())
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestDownloadStreamsWorkbook(t *testing.T) {
	exp := &fakeExporter{}
	h := newReportHandlers(exp)

	req := httptest.NewRequest(http.MethodPost, "/sessions/report", strings.NewReader(
		`{"startDate":"2024-01-01","endDate":"2024-01-31","operatorIdentifier":"ops@example.com","secret":"pw","unitPrice":"0.45","exportId":"abc"}`))
	req.RemoteAddr = "198.51.100.7:4000"
	rec := httptest.NewRecorder()
	h.Download(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != report.ContentType {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != "attachment; filename=sessions-2024-01-01-to-2024-01-31.xlsx" {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if id := rec.Header().Get("X-Export-ID"); id != "exp-1" {
		t.Errorf("X-Export-ID = %q", id)
	}
	if rec.Body.String() != "PK-workbook" {
		t.Errorf("body = %q", rec.Body.String())
	}

	if len(exp.calls) != 1 {
		t.Fatalf("exporter calls = %d", len(exp.calls))
	}
	got := exp.calls[0]
	if got.Credentials.Identifier != "ops@example.com" || got.Credentials.Secret != "pw" {
		t.Errorf("credentials = %v", got.Credentials)
	}
	if !got.UnitPrice.Equal(decimal.RequireFromString("0.45")) {
		t.Errorf("unit price = %s", got.UnitPrice)
	}
	if got.ExportID != "abc" || got.RequestedBy != "198.51.100.7" {
		t.Errorf("export id = %q, requested by = %q", got.ExportID, got.RequestedBy)
	}
}

func TestDownloadFallsBackToConfiguredDefaults(t *testing.T) {
	exp := &fakeExporter{}
	h := newReportHandlers(exp)

	rec := httptest.NewRecorder()
	h.Download(rec, httptest.NewRequest(http.MethodPost, "/api/sessions/download",
		strings.NewReader(`{"startDate":"2024-02-01","endDate":"2024-02-29"}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := exp.calls[0]
	if got.Credentials.Identifier != "cfg@example.com" || got.Credentials.Secret != "cfg-secret" {
		t.Errorf("credentials = %v", got.Credentials)
	}
	if !got.UnitPrice.Equal(decimal.RequireFromString("0.3")) {
		t.Errorf("unit price = %s", got.UnitPrice)
	}
}

func TestDownloadRejectsInvalidRequests(t *testing.T) {
	cases := map[string]string{
		"malformed json":   `{"startDate":`,
		"bad start":        `{"startDate":"01/01/2024","endDate":"2024-01-31"}`,
		"bad end":          `{"startDate":"2024-01-01","endDate":"2024-02-30"}`,
		"reversed range":   `{"startDate":"2024-02-01","endDate":"2024-01-01"}`,
		"negative price":   `{"startDate":"2024-01-01","endDate":"2024-01-31","unitPrice":-1}`,
		"half credentials": `{"startDate":"2024-01-01","endDate":"2024-01-31","operatorIdentifier":"x"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			exp := &fakeExporter{}
			rec := httptest.NewRecorder()
			newReportHandlers(exp).Download(rec, httptest.NewRequest(http.MethodPost, "/sessions/report", strings.NewReader(body)))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if e := decodeError(t, rec); e.Error != "invalid_request" || e.Details == "" {
				t.Errorf("error body = %+v", e)
			}
			if len(exp.calls) != 0 {
				t.Errorf("exporter called for invalid request")
			}
		})
	}
}

func TestDownloadRejectsUnknownFields(t *testing.T) {
	exp := &fakeExporter{}
	rec := httptest.NewRecorder()
	newReportHandlers(exp).Download(rec, httptest.NewRequest(http.MethodPost, "/api/sessions/download", strings.NewReader(
		`{"startDate":"2024-01-01","endDate":"2024-01-31","userId":"me@op","password":"pw","kwhPrice":0.5}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	e := decodeError(t, rec)
	if e.Error != "invalid_request" || !strings.Contains(e.Details, "userId") {
		t.Errorf("error body = %+v", e)
	}
	if len(exp.calls) != 0 {
		t.Error("export ran with configured defaults instead of the caller's fields")
	}
}

func TestDownloadMapsErrorKinds(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantKind   string
	}{
		{apperr.Authentication("login rejected: status 401", nil), http.StatusUnauthorized, "authentication"},
		{apperr.Upstream("fetch page 2: status 500", nil), http.StatusBadGateway, "upstream"},
		{apperr.Render("serialize workbook", errors.New("disk")), http.StatusInternalServerError, "render"},
		{apperr.Configuration("missing base url", nil), http.StatusInternalServerError, "configuration"},
	}
	for _, tc := range cases {
		t.Run(tc.wantKind, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newReportHandlers(&fakeExporter{err: tc.err}).Download(rec, httptest.NewRequest(http.MethodPost, "/sessions/report",
				strings.NewReader(`{"startDate":"2024-01-01","endDate":"2024-01-31"}`)))

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if rec.Header().Get("Content-Disposition") != "" {
				t.Error("failed export must not carry an attachment")
			}
			e := decodeError(t, rec)
			if e.Error != tc.wantKind || e.Details != apperr.DetailOf(tc.err) {
				t.Errorf("error body = %+v", e)
			}
		})
	}
}

func TestDefaultsReturnsPreviousMonth(t *testing.T) {
	h := newReportHandlers(&fakeExporter{})
	h.now = func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) }

	rec := httptest.NewRecorder()
	h.Defaults(rec, httptest.NewRequest(http.MethodGet, "/api/report/defaults", nil))

	var body struct {
		StartDate string `json:"startDate"`
		EndDate   string `json:"endDate"`
		UnitPrice string `json:"unitPrice"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.StartDate != "2024-02-01" || body.EndDate != "2024-02-29" || body.UnitPrice != "0.3" {
		t.Errorf("defaults = %+v", body)
	}
}

type fakeLister struct {
	runs  []models.ExportRun
	err   error
	limit int
}

func (f *fakeLister) List(_ context.Context, limit int) ([]models.ExportRun, error) {
	f.limit = limit
	return f.runs, f.err
}

func TestExportsList(t *testing.T) {
	lister := &fakeLister{runs: []models.ExportRun{{ExportID: "exp-1", Status: models.ExportStatusCompleted}}}
	h := NewExportsHandlers(lister, zap.NewNop())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/exports?limit=5", nil))
	if rec.Code != http.StatusOK || lister.limit != 5 {
		t.Fatalf("status = %d, limit = %d", rec.Code, lister.limit)
	}
	var runs []models.ExportRun
	if err := json.NewDecoder(rec.Body).Decode(&runs); err != nil || len(runs) != 1 || runs[0].ExportID != "exp-1" {
		t.Errorf("runs = %+v, err = %v", runs, err)
	}

	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/exports?limit=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", rec.Code)
	}

	lister.err = errors.New("db down")
	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/exports", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("db failure status = %d", rec.Code)
	}
}

func TestProgressRequiresExportID(t *testing.T) {
	rec := httptest.NewRecorder()
	NewProgressHandler(progress.NewHub(), nil, zap.NewNop()).Stream(rec, httptest.NewRequest(http.MethodGet, "/api/exports/progress", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestProgressStreamsUntilTerminalEvent(t *testing.T) {
	hub := progress.NewHub()
	srv := httptest.NewServer(http.HandlerFunc(NewProgressHandler(hub, nil, zap.NewNop()).Stream))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/exports/progress?export_id=exp-9"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers("exp-9") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Publish(progress.Event{ExportID: "other", Stage: progress.StageFailed})
	hub.Publish(progress.Event{ExportID: "exp-9", Stage: progress.StagePage, Page: 1, PageCount: 2, Rows: 100})
	hub.Publish(progress.Event{ExportID: "exp-9", Stage: progress.StageCompleted, Rows: 150})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var stages []string
	for {
		var ev progress.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Fatalf("ReadJSON: %v", err)
			}
			break
		}
		if ev.ExportID != "exp-9" {
			t.Errorf("received event of %q", ev.ExportID)
		}
		stages = append(stages, ev.Stage)
	}
	if strings.Join(stages, ",") != "page,completed" {
		t.Errorf("stages = %v", stages)
	}
}
