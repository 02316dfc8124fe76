package services

import (
	"context"
	"sort"

	"opsbrain/application/ports"
	"opsbrain/domain/knowledge"
	"opsbrain/pkg/async"

	"go.uber.org/zap"
)

// graphExpansionSources bounds how many primary results seed the 1-hop
// expansion pass
const graphExpansionSources = 3

// RetrievalService stores content chunks with embeddings and answers
// similarity queries, extended with 1-hop graph expansion.
type RetrievalService struct {
	chunks   ports.ChunkRepository
	embedder ports.EmbeddingProvider
	graph    *GraphService
	pool     *async.Pool
	logger   *zap.Logger
}

// NewRetrievalService creates a new RetrievalService
func NewRetrievalService(chunks ports.ChunkRepository, embedder ports.EmbeddingProvider, graph *GraphService, pool *async.Pool, logger *zap.Logger) *RetrievalService {
	return &RetrievalService{
		chunks:   chunks,
		embedder: embedder,
		graph:    graph,
		pool:     pool,
		logger:   logger,
	}
}

// Ingest embeds and persists one chunk, then kicks off relation extraction
// in the background. An embedding failure degrades to a zero vector so the
// content is still stored and retrievable by graph expansion later.
func (s *RetrievalService) Ingest(ctx context.Context, content string, metadata map[string]string, tenantID, agentID string) (string, error) {
	embedding, err := s.embedder.Embed(ctx, content)
	if err != nil {
		s.logger.Warn("Embedding failed, storing chunk with zero vector",
			zap.String("tenantID", tenantID),
			zap.Error(err),
		)
		embedding = knowledge.ZeroVector(s.embedder.Dimensions())
	}

	chunk, err := knowledge.NewChunk(content, embedding, metadata, tenantID, agentID)
	if err != nil {
		return "", err
	}

	if err := s.chunks.Save(ctx, chunk); err != nil {
		return "", err
	}

	s.graph.ExtractAndLink(ctx, chunk.ID, content, tenantID)

	s.logger.Debug("Chunk ingested",
		zap.String("chunkID", chunk.ID),
		zap.String("tenantID", tenantID),
		zap.String("agentID", chunk.AgentID),
	)

	return chunk.ID, nil
}

// RetrievedChunk is one retrieval result
type RetrievedChunk struct {
	ChunkID    string  `json:"id"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
	Expanded   bool    `json:"expanded,omitempty"`
}

// Retrieve answers a similarity query. Primary results are the tenant's
// chunks visible to the agent, filtered by exact metadata match and ordered
// by cosine similarity descending. Graph-expanded neighbors of the top
// primaries are appended after the primaries, deduplicated, and the whole
// list is truncated to limit. Expansion failure falls back to primary-only.
func (s *RetrievalService) Retrieve(ctx context.Context, query, tenantID, agentID string, limit int, filters map[string]string) ([]RetrievedChunk, error) {
	if limit < 1 {
		limit = 5
	}

	queryVector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Warn("Query embedding failed, using zero vector",
			zap.String("tenantID", tenantID),
			zap.Error(err),
		)
		queryVector = knowledge.ZeroVector(s.embedder.Dimensions())
	}

	candidates, err := s.chunks.ListByScope(ctx, tenantID, agentID)
	if err != nil {
		return nil, err
	}

	var primaries []RetrievedChunk
	for _, chunk := range candidates {
		if !chunk.MatchesFilters(filters) {
			continue
		}
		primaries = append(primaries, RetrievedChunk{
			ChunkID:    chunk.ID,
			Content:    chunk.Content,
			Similarity: knowledge.CosineSimilarity(queryVector, chunk.Embedding),
		})
	}
	sort.SliceStable(primaries, func(i, j int) bool {
		return primaries[i].Similarity > primaries[j].Similarity
	})
	if len(primaries) > limit {
		primaries = primaries[:limit]
	}

	results := s.expand(ctx, tenantID, primaries, limit)
	return results, nil
}

// expand appends 1-hop neighbors of the top primaries after the primary
// results, skipping anything already present
func (s *RetrievalService) expand(ctx context.Context, tenantID string, primaries []RetrievedChunk, limit int) []RetrievedChunk {
	seen := make(map[string]bool, len(primaries))
	for _, p := range primaries {
		seen[p.ChunkID] = true
	}

	results := primaries
	sources := len(primaries)
	if sources > graphExpansionSources {
		sources = graphExpansionSources
	}

	for i := 0; i < sources && len(results) < limit; i++ {
		related, err := s.graph.GetRelated(ctx, tenantID, primaries[i].ChunkID, 1)
		if err != nil {
			s.logger.Warn("Graph expansion failed, returning primary results only",
				zap.String("chunkID", primaries[i].ChunkID),
				zap.Error(err),
			)
			return primaries
		}
		for _, rel := range related {
			if seen[rel.ChunkID] || rel.Content == "" {
				continue
			}
			seen[rel.ChunkID] = true
			results = append(results, RetrievedChunk{
				ChunkID:  rel.ChunkID,
				Content:  rel.Content,
				Expanded: true,
			})
			if len(results) >= limit {
				break
			}
		}
	}

	return results
}

// Delete removes a chunk from the tenant's store
func (s *RetrievalService) Delete(ctx context.Context, tenantID, chunkID string) error {
	return s.chunks.Delete(ctx, tenantID, chunkID)
}
