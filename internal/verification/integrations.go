package verification

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ranklite/backlink-engine/internal/logger"
)

// HTTPIntegrationStore looks up CMS integrations through the adapter
// gateway. It backs the API verification method in deployments where the
// CMS adapter layer runs as a separate service.
type HTTPIntegrationStore struct {
	endpoint string
	client   *http.Client
	logger   logger.Logger
}

func NewHTTPIntegrationStore(endpoint string, timeout time.Duration, log logger.Logger) *HTTPIntegrationStore {
	return &HTTPIntegrationStore{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   log,
	}
}

type integrationResponse struct {
	Connected bool `json:"connected"`
}

// HasIntegration reports whether the user has a working CMS integration
// for the site.
func (s *HTTPIntegrationStore) HasIntegration(ctx context.Context, userID, siteID string) (bool, error) {
	query := fmt.Sprintf("%s?user_id=%s&site_id=%s",
		s.endpoint, url.QueryEscape(userID), url.QueryEscape(siteID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, query, nil)
	if err != nil {
		return false, fmt.Errorf("build integration lookup: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("Integration lookup failed",
			logger.String("user_id", userID),
			logger.String("site_id", siteID),
			logger.Error(err),
		)
		return false, fmt.Errorf("integration gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("integration gateway returned %d", resp.StatusCode)
	}

	var body integrationResponse
	if decodeErr := decodeJSON(resp.Body, &body); decodeErr != nil {
		return false, fmt.Errorf("malformed integration response: %w", decodeErr)
	}

	return body.Connected, nil
}
