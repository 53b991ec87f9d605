package service

import (
	"context"
	"errors"
	"fmt"

	"sessionexport/backend/services/report-service/internal/apperr"
	"sessionexport/backend/services/report-service/internal/models"
)

// Authenticator exchanges operator credentials for a bearer token.
type Authenticator interface {
	Authenticate(ctx context.Context, creds models.Credentials) (models.AuthToken, error)
}

// PageFetcher returns one 1-based page of sessions for a date range.
type PageFetcher interface {
	FetchPage(ctx context.Context, token models.AuthToken, r models.DateRange, page int) (*models.SessionPage, error)
}

// PageObserver is told about every page once it has been appended.
type PageObserver func(page, pageCount, rows int)

// FetchAllSessions reads page 1 to learn the page count and then fetches pages 2..pageCount
// in order. Records keep the upstream order across pages. Any failure discards everything
// fetched so far.
func FetchAllSessions(ctx context.Context, fetcher PageFetcher, token models.AuthToken, r models.DateRange, observe PageObserver) ([]models.RawSessionRecord, error) {
	first, err := fetcher.FetchPage(ctx, token, r, 1)
	if err != nil {
		return nil, asUpstream(err, "fetch page 1")
	}
	if first.PagingInfo == nil {
		return nil, apperr.Upstream("page 1: missing paging info", nil)
	}

	pageCount := first.PagingInfo.PageCount
	if pageCount < 0 {
		return nil, apperr.Upstream(fmt.Sprintf("page 1: invalid page count %d", pageCount), nil)
	}
	if pageCount == 0 {
		return []models.RawSessionRecord{}, nil
	}

	sessions := append([]models.RawSessionRecord{}, first.Content...)
	notify(observe, 1, pageCount, len(sessions))

	for page := 2; page <= pageCount; page++ {
		if err := ctx.Err(); err != nil {
			return nil, apperr.Upstream(fmt.Sprintf("export cancelled before page %d", page), err)
		}
		next, err := fetcher.FetchPage(ctx, token, r, page)
		if err != nil {
			return nil, asUpstream(err, fmt.Sprintf("fetch page %d", page))
		}
		sessions = append(sessions, next.Content...)
		notify(observe, page, pageCount, len(sessions))
	}

	return sessions, nil
}

func notify(observe PageObserver, page, pageCount, rows int) {
	if observe != nil {
		observe(page, pageCount, rows)
	}
}

func asUpstream(err error, detail string) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Upstream(detail, err)
}
