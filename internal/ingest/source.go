// Package ingest implements the job-posting ingestion pipeline: fetching
// from board connectors, normalization, duplicate detection, embedding and
// vector indexing.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"jobmatch-go/internal/config"
	"jobmatch-go/internal/domain"
)

// Page is one batch of raw postings from a connector. Raw carries the
// unparsed response body for archival.
type Page struct {
	Postings   []domain.RawPosting
	NextCursor string
	HasMore    bool
	Raw        []byte
}

// JobSource is a job-board connector. FetchPage walks the board's listing
// with an opaque cursor; the first call passes an empty cursor.
type JobSource interface {
	Name() domain.SourceName
	FetchPage(ctx context.Context, cursor string) (*Page, error)
}

// HTTPSource fetches postings from a JSON listing endpoint. All supported
// boards expose the same page shape behind different base URLs, so one
// connector type covers them.
type HTTPSource struct {
	name       domain.SourceName
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

var _ JobSource = (*HTTPSource)(nil)

// NewHTTPSource builds a connector from its config entry.
func NewHTTPSource(cfg config.ConnectorConfig) (*HTTPSource, error) {
	if cfg.BaseURL == "" {
		return nil, &domain.ConfigurationError{
			Field:  fmt.Sprintf("ingest.connectors.%s.base_url", cfg.Name),
			Reason: "must not be empty",
		}
	}
	return &HTTPSource{
		name:       cfg.Name,
		baseURL:    cfg.BaseURL,
		apiToken:   cfg.APIToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (s *HTTPSource) Name() domain.SourceName {
	return s.name
}

// pageResponse is the wire shape of a listing page.
type pageResponse struct {
	Postings   []domain.RawPosting `json:"postings"`
	NextCursor string              `json:"next_cursor"`
	HasMore    bool                `json:"has_more"`
}

// FetchPage implements JobSource. Rate-limit and server errors surface as
// TransientProviderError so the pipeline retries them with backoff.
func (s *HTTPSource) FetchPage(ctx context.Context, cursor string) (*Page, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connector url: %w", err)
	}
	if cursor != "" {
		q := u.Query()
		q.Set("cursor", cursor)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create fetch request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiToken)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &domain.TransientProviderError{Op: string(s.name) + ".fetch_page", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransientProviderError{Op: string(s.name) + ".read_page", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		pageErr := fmt.Errorf("%s returned status %d", s.name, resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, &domain.TransientProviderError{Op: string(s.name) + ".fetch_page", Err: pageErr}
		}
		return nil, pageErr
	}

	var parsed pageResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse %s page: %w", s.name, err)
	}
	return &Page{
		Postings:   parsed.Postings,
		NextCursor: parsed.NextCursor,
		HasMore:    parsed.HasMore,
		Raw:        body,
	}, nil
}
