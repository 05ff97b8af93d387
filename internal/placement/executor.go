// Package placement defines the external link placement collaborator. The
// engine treats placement as an opaque, possibly-slow, possibly-failing
// call; transport errors are normalized into a failed Result, never leaked
// to callers.
package placement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ranklite/backlink-engine/internal/logger"
)

// Result is the outcome of one placement attempt.
type Result struct {
	Success    bool   `json:"success"`
	LinkingURL string `json:"linking_url,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Executor writes a link onto a source site.
type Executor interface {
	Place(ctx context.Context, sourceSiteID, targetURL, anchorText string) Result
}

// HTTPExecutor places links through the CMS publishing gateway.
type HTTPExecutor struct {
	endpoint string
	client   *http.Client
	logger   logger.Logger
}

func NewHTTPExecutor(endpoint string, timeout time.Duration, log logger.Logger) *HTTPExecutor {
	return &HTTPExecutor{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   log,
	}
}

type placeRequest struct {
	SourceSiteID string `json:"source_site_id"`
	TargetURL    string `json:"target_url"`
	AnchorText   string `json:"anchor_text"`
}

type placeResponse struct {
	Success    bool   `json:"success"`
	LinkingURL string `json:"linking_url"`
	Error      string `json:"error"`
}

// Place submits the placement request. Timeouts and transport errors fail
// closed as an unsuccessful Result.
func (e *HTTPExecutor) Place(ctx context.Context, sourceSiteID, targetURL, anchorText string) Result {
	payload, err := json.Marshal(placeRequest{
		SourceSiteID: sourceSiteID,
		TargetURL:    targetURL,
		AnchorText:   anchorText,
	})
	if err != nil {
		return Result{Reason: fmt.Sprintf("encode request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Result{Reason: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Warn("Placement request failed",
			logger.String("target_url", targetURL),
			logger.Error(err),
		)
		return Result{Reason: "placement gateway unreachable"}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{Reason: fmt.Sprintf("placement gateway returned %d", resp.StatusCode)}
	}

	var body placeResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&body); decodeErr != nil {
		return Result{Reason: "malformed placement response"}
	}

	if !body.Success {
		reason := body.Error
		if reason == "" {
			reason = "placement rejected"
		}
		return Result{Reason: reason}
	}

	return Result{
		Success:    true,
		LinkingURL: body.LinkingURL,
	}
}

// Recorder is a placement fake for tests. It records calls and returns the
// configured results in order, repeating the last one.
type Recorder struct {
	Results []Result
	Calls   []string
}

// Place implements Executor.
func (r *Recorder) Place(_ context.Context, sourceSiteID, targetURL, _ string) Result {
	r.Calls = append(r.Calls, sourceSiteID+"->"+targetURL)
	if len(r.Results) == 0 {
		return Result{Success: true, LinkingURL: "https://placed.example/" + sourceSiteID}
	}
	result := r.Results[0]
	if len(r.Results) > 1 {
		r.Results = r.Results[1:]
	}
	return result
}
