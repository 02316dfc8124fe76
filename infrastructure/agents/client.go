// Package agents is the HTTP client for the asynchronous agent-execution
// backend: POST a task, poll its status until terminal.
package agents

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

const defaultTimeout = 30 * time.Second

// Client implements ports.AgentRunner over HTTP
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option customizes the client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates a new agent backend client
func NewClient(baseURL, apiKey string, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type submitResponse struct {
	TaskID string `json:"task_id"`
}

// Submit sends the task to the backend and returns its id
func (c *Client) Submit(ctx context.Context, task ports.AgentTask) (string, error) {
	body, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("failed to marshal agent task: %w", err)
	}

	var resp submitResponse
	if err := c.do(ctx, http.MethodPost, "/tasks", bytes.NewReader(body), &resp); err != nil {
		return "", err
	}
	if resp.TaskID == "" {
		return "", apperrors.NewExternalError("agent-backend", fmt.Errorf("submit returned no task id"))
	}

	c.logger.Debug("Agent task submitted",
		zap.String("taskID", resp.TaskID),
		zap.String("agentType", task.AgentType),
	)

	return resp.TaskID, nil
}

// Status polls one task
func (c *Client) Status(ctx context.Context, taskID string) (*ports.AgentTaskStatus, error) {
	var status ports.AgentTaskStatus
	if err := c.do(ctx, http.MethodGet, "/tasks/"+taskID, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.NewExternalError("agent-backend", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return apperrors.NewNotFoundError(fmt.Sprintf("agent task %s not found", path))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return apperrors.NewExternalError("agent-backend",
			fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, string(payload)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewExternalError("agent-backend", fmt.Errorf("invalid response body: %w", err))
	}
	return nil
}
