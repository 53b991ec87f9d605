package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"sessionexport/backend/services/report-service/internal/apperr"
	"sessionexport/backend/services/report-service/internal/models"
)

// PageSize is the number of sessions requested per upstream page.
const PageSize = 100

const (
	loginPath    = "/api/webOperatorLogin"
	sessionsPath = "/api/chargingSession"
)

// EtrelClient talks to the charging station management API.
type EtrelClient struct {
	base   *BaseClient
	logger *zap.Logger
}

// NewEtrelClient returns client.
func NewEtrelClient(baseURL string, httpClient HTTPDoer, logger *zap.Logger) *EtrelClient {
	return &EtrelClient{base: NewBaseClient(baseURL, httpClient), logger: logger}
}

type loginResponse struct {
	Token string `json:"token"`
}

// Authenticate exchanges operator credentials for a bearer token. It never retries.
func (c *EtrelClient) Authenticate(ctx context.Context, creds models.Credentials) (models.AuthToken, error) {
	form := url.Values{}
	form.Set("email", creds.Identifier)
	form.Set("password", creds.Secret)

	status, body, err := c.base.PostForm(ctx, loginPath, form, nil)
	if err != nil {
		return "", apperr.Authentication("login request failed", err)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return "", apperr.Authentication(fmt.Sprintf("login rejected with status %d", status), nil)
	}

	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", apperr.Authentication("decode login response", err)
	}
	if strings.TrimSpace(resp.Token) == "" {
		return "", apperr.Authentication("no token received from authentication endpoint", nil)
	}

	c.logger.Debug("authenticated against station api")
	return models.AuthToken(resp.Token), nil
}

// FetchPage retrieves one 1-based page of sessions started within the range, newest first.
// PagingInfo is left nil when the page carries none; only page 1 needs it.
func (c *EtrelClient) FetchPage(ctx context.Context, token models.AuthToken, r models.DateRange, page int) (*models.SessionPage, error) {
	form := url.Values{}
	form.Set("orderByColumn", models.FieldStartedTime)
	form.Set("orderDirection", "Descending")
	form.Set("chargingStartedTimeFrom", r.FormatStart())
	form.Set("chargingStartedTimeTo", r.FormatEnd())
	form.Set("pageSize", strconv.Itoa(PageSize))
	form.Set("pageNumber", strconv.Itoa(page))

	headers := map[string]string{
		"Authorization": "Bearer " + string(token),
	}

	status, body, err := c.base.PostForm(ctx, sessionsPath, form, headers)
	if err != nil {
		return nil, apperr.Upstream(fmt.Sprintf("fetch page %d", page), err)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return nil, apperr.Upstream(fmt.Sprintf("fetch page %d: status %d", page, status), nil)
	}

	result := &models.SessionPage{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(result); err != nil {
		return nil, apperr.Upstream(fmt.Sprintf("decode page %d", page), err)
	}
	return result, nil
}
