// Package profile reads candidate profiles from the external user-profile
// service. The matching engine never writes profiles back.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"jobmatch-go/internal/domain"
)

// Provider fetches the read-only matching projection of a candidate. The
// returned version changes whenever the profile content changes; it feeds
// the match-cache key.
type Provider interface {
	GetProfile(ctx context.Context, candidateID string) (*domain.CandidateProfile, string, error)
}

// HTTPProvider talks to the profile service's REST endpoint.
type HTTPProvider struct {
	baseURL    string
	httpClient *http.Client
}

var _ Provider = (*HTTPProvider)(nil)

// NewHTTPProvider builds a provider from the service base URL.
func NewHTTPProvider(baseURL string) (*HTTPProvider, error) {
	if baseURL == "" {
		return nil, &domain.ConfigurationError{
			Field:  "scoring.profile_service_url",
			Reason: "must not be empty",
		}
	}
	return &HTTPProvider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type profileResponse struct {
	Profile domain.CandidateProfile `json:"profile"`
	Version string                  `json:"version"`
}

// GetProfile implements Provider. A missing candidate maps to
// domain.ErrNotFound; rate limits and server errors are transient.
func (p *HTTPProvider) GetProfile(ctx context.Context, candidateID string) (*domain.CandidateProfile, string, error) {
	if candidateID == "" {
		return nil, "", &domain.InputValidationError{Field: "candidate_id", Reason: "must not be empty"}
	}

	endpoint := fmt.Sprintf("%s/profiles/%s", p.baseURL, url.PathEscape(candidateID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create profile request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, "", err
		}
		return nil, "", &domain.TransientProviderError{Op: "profile.get", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &domain.TransientProviderError{Op: "profile.read", Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, "", domain.ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, "", &domain.TransientProviderError{
			Op:  "profile.get",
			Err: fmt.Errorf("profile service status %d", resp.StatusCode),
		}
	case resp.StatusCode != http.StatusOK:
		return nil, "", fmt.Errorf("profile service status %d", resp.StatusCode)
	}

	var parsed profileResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, "", fmt.Errorf("parse profile response: %w", err)
	}
	if parsed.Profile.CandidateID == "" {
		parsed.Profile.CandidateID = candidateID
	}
	return &parsed.Profile, parsed.Version, nil
}
