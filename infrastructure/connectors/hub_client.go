// Package connectors is the HTTP client for the connector hub that fronts
// the external CMS, commerce, and CRM systems workflow steps talk to.
package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"opsbrain/application/ports"
	apperrors "opsbrain/pkg/errors"

	"go.uber.org/zap"
)

// HubClient implements ports.ExternalConnector against the connector hub
type HubClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHubClient creates a new connector hub client
func NewHubClient(baseURL string, logger *zap.Logger) ports.ExternalConnector {
	return &HubClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// Publish pushes a payload to the target system
func (c *HubClient) Publish(ctx context.Context, target string, payload map[string]interface{}) error {
	return c.call(ctx, http.MethodPost, fmt.Sprintf("/connectors/%s/publish", target), payload, nil)
}

// Fetch reads current state from the target system
func (c *HubClient) Fetch(ctx context.Context, target string, query map[string]interface{}) (map[string]interface{}, error) {
	var result map[string]interface{}
	if err := c.call(ctx, http.MethodPost, fmt.Sprintf("/connectors/%s/fetch", target), query, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Update modifies records in the target system
func (c *HubClient) Update(ctx context.Context, target string, payload map[string]interface{}) error {
	return c.call(ctx, http.MethodPost, fmt.Sprintf("/connectors/%s/update", target), payload, nil)
}

func (c *HubClient) call(ctx context.Context, method, path string, body map[string]interface{}, out interface{}) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal connector payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to build connector request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.NewExternalError("connector-hub", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return apperrors.NewExternalError("connector-hub",
			fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, string(payload)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewExternalError("connector-hub", fmt.Errorf("invalid response body: %w", err))
	}
	return nil
}
