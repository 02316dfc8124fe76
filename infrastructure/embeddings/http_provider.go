// Package embeddings is the HTTP client for the embedding provider used by
// the retrieval service and semantic indexing.
package embeddings

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

// HTTPProvider implements ports.EmbeddingProvider over a simple embed endpoint
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	dimensions int
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPProvider creates a new embedding client
func NewHTTPProvider(baseURL, apiKey string, dimensions int, logger *zap.Logger) ports.EmbeddingProvider {
	return &HTTPProvider{
		baseURL:    baseURL,
		apiKey:     apiKey,
		dimensions: dimensions,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

type embedRequest struct {
	Input string `json:"input"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns the vector for one text
func (p *HTTPProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(embedRequest{Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("X-API-Key", p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewExternalError("embeddings", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, apperrors.NewExternalError("embeddings",
			fmt.Errorf("embed returned %d: %s", resp.StatusCode, string(payload)))
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, apperrors.NewExternalError("embeddings", fmt.Errorf("invalid response body: %w", err))
	}
	if len(decoded.Embedding) != p.dimensions {
		return nil, apperrors.NewExternalError("embeddings",
			fmt.Errorf("expected %d dimensions, got %d", p.dimensions, len(decoded.Embedding)))
	}

	return decoded.Embedding, nil
}

// Dimensions reports the configured vector width
func (p *HTTPProvider) Dimensions() int {
	return p.dimensions
}
