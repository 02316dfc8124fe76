// Package knowledge holds the domain types for the retrieval substrate:
// content chunks with embeddings, typed links between them, and cached
// agent responses.
package knowledge

import (
	"math"
	"time"

	"github.com/google/uuid"

	"opsbrain/pkg/errors"
)

// GlobalAgentScope marks a chunk as visible to every agent within its tenant.
const GlobalAgentScope = "global"

// Chunk is a stored unit of text with its embedding and metadata.
// Chunks are immutable once ingested.
type Chunk struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenant_id"`
	AgentID   string            `json:"agent_id"`
	Content   string            `json:"content"`
	Embedding []float64         `json:"embedding"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewChunk creates a chunk for ingestion. An empty agentID defaults to the
// global scope.
func NewChunk(content string, embedding []float64, metadata map[string]string, tenantID, agentID string) (*Chunk, error) {
	if content == "" {
		return nil, errors.NewValidationError("chunk content cannot be empty")
	}
	if tenantID == "" {
		return nil, errors.NewValidationError("tenant id is required")
	}
	if agentID == "" {
		agentID = GlobalAgentScope
	}
	if metadata == nil {
		metadata = map[string]string{}
	}

	return &Chunk{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		AgentID:   agentID,
		Content:   content,
		Embedding: embedding,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// VisibleTo reports whether the chunk is in scope for the requesting agent.
func (c *Chunk) VisibleTo(agentID string) bool {
	return c.AgentID == agentID || c.AgentID == GlobalAgentScope
}

// MatchesFilters reports whether every filter key/value is present in the
// chunk metadata (containment semantics).
func (c *Chunk) MatchesFilters(filters map[string]string) bool {
	for k, v := range filters {
		if c.Metadata[k] != v {
			return false
		}
	}
	return true
}

// CosineSimilarity computes the cosine similarity of two vectors. Mismatched
// dimensions or zero vectors score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// ZeroVector returns an all-zero embedding of the given dimensionality,
// used as the degraded fallback when the embedding provider is unavailable.
func ZeroVector(dimensions int) []float64 {
	return make([]float64, dimensions)
}
