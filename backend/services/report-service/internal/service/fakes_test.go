package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"sessionexport/backend/services/report-service/internal/apperr"
	"sessionexport/backend/services/report-service/internal/models"
	"sessionexport/backend/services/report-service/internal/progress"
)

// fakeUpstream serves canned pages and records every call.
type fakeUpstream struct {
	mu        sync.Mutex
	token     models.AuthToken
	authErr   error
	pages     [][]models.RawSessionRecord
	pageCount int
	failPage  int
	pageErr   error

	authCalls int
	pageCalls []int
	lastToken models.AuthToken
	lastCreds models.Credentials
	lastRange models.DateRange
}

func (f *fakeUpstream) Authenticate(_ context.Context, creds models.Credentials) (models.AuthToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authCalls++
	f.lastCreds = creds
	if f.authErr != nil {
		return "", f.authErr
	}
	return f.token, nil
}

func (f *fakeUpstream) FetchPage(_ context.Context, token models.AuthToken, r models.DateRange, page int) (*models.SessionPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageCalls = append(f.pageCalls, page)
	f.lastToken = token
	f.lastRange = r
	if page == f.failPage {
		if f.pageErr != nil {
			return nil, f.pageErr
		}
		return nil, apperr.Upstream(fmt.Sprintf("fetch page %d: status 500", page), nil)
	}
	var content []models.RawSessionRecord
	if page >= 1 && page <= len(f.pages) {
		content = f.pages[page-1]
	}
	rows := 0
	for _, p := range f.pages {
		rows += len(p)
	}
	return &models.SessionPage{
		Content:    content,
		PagingInfo: &models.PagingInfo{NumOfRows: rows, PageCount: f.pageCount},
	}, nil
}

// pagesOf builds p pages with perPage records each; ids encode page and position.
func pagesOf(p, perPage int) [][]models.RawSessionRecord {
	pages := make([][]models.RawSessionRecord, p)
	for i := range pages {
		for j := 0; j < perPage; j++ {
			pages[i] = append(pages[i], models.RawSessionRecord{
				models.FieldSessionID: json.Number(fmt.Sprintf("%d%03d", i+1, j)),
				models.FieldEnergyKWh: json.Number("1.5"),
				"chargePointId":       "CP-1",
			})
		}
	}
	return pages
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []progress.Event
}

func (p *recordingPublisher) Publish(ev progress.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) stages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Stage
	}
	return out
}

type recordingRecorder struct {
	mu   sync.Mutex
	runs []*models.ExportRun
	err  error
}

func (r *recordingRecorder) Create(_ context.Context, run *models.ExportRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return r.err
}
