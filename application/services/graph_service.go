package services

import (
	"context"
	"fmt"
	"time"

	"opsbrain/application/ports"
	"opsbrain/domain/knowledge"
	"opsbrain/pkg/async"

	"go.uber.org/zap"
)

// AgentCaller is the slice of the gateway the graph service needs for
// relation extraction. Defined here to break the construction cycle between
// the gateway and the graph service.
type AgentCaller interface {
	CallAgent(ctx context.Context, req AgentRequest) (*AgentResult, error)
}

// GraphService maintains typed relations between chunks. The relational
// store is the source of truth; the graph-native mirror is a best-effort
// projection for fast traversal.
type GraphService struct {
	links  ports.LinkRepository
	chunks ports.ChunkRepository
	mirror ports.GraphMirror
	pool   *async.Pool
	agents AgentCaller
	logger *zap.Logger
}

// NewGraphService creates a new GraphService. The agent caller is attached
// later via SetAgentCaller once the gateway exists.
func NewGraphService(links ports.LinkRepository, chunks ports.ChunkRepository, mirror ports.GraphMirror, pool *async.Pool, logger *zap.Logger) *GraphService {
	return &GraphService{
		links:  links,
		chunks: chunks,
		mirror: mirror,
		pool:   pool,
		logger: logger,
	}
}

// SetAgentCaller wires the gateway in after construction
func (s *GraphService) SetAgentCaller(caller AgentCaller) {
	s.agents = caller
}

// Link upserts the edge (source, target, relation) in the source of truth,
// then projects it into the mirror in the background. A repeated call with
// the same triple updates weight and metadata instead of duplicating.
func (s *GraphService) Link(ctx context.Context, sourceID, targetID, relationType string, weight float64, metadata map[string]string) error {
	link, err := knowledge.NewLink(sourceID, targetID, relationType, weight, metadata)
	if err != nil {
		return err
	}

	if err := s.links.Upsert(ctx, link); err != nil {
		return err
	}

	projected := *link
	s.pool.Submit("graph-mirror-project", func(taskCtx context.Context) error {
		if err := s.mirror.Project(taskCtx, &projected); err != nil {
			s.logger.Warn("Graph mirror projection failed",
				zap.String("sourceID", projected.SourceID),
				zap.String("targetID", projected.TargetID),
				zap.Error(err),
			)
		}
		return nil
	})

	return nil
}

// GetRelated expands up to depth hops from a chunk. The mirror is tried
// first; on failure or empty mirror the relational store is walked
// recursively. Both paths return the same shape, with chunk content joined
// in where the tenant's chunk store has it.
func (s *GraphService) GetRelated(ctx context.Context, tenantID, chunkID string, depth int) ([]knowledge.Related, error) {
	if depth < 1 {
		depth = 1
	}

	related, err := s.mirror.Traverse(ctx, chunkID, depth)
	if err != nil || len(related) == 0 {
		if err != nil {
			s.logger.Warn("Graph mirror traversal failed, falling back to relational store",
				zap.String("chunkID", chunkID),
				zap.Error(err),
			)
		}
		related, err = s.traverseRelational(ctx, chunkID, depth)
		if err != nil {
			return nil, err
		}
	}

	s.joinContent(ctx, tenantID, related)
	return related, nil
}

// ExtractAndLink asks the relation-extraction agent for relations in newly
// ingested content and records each as a link. RAG is disabled on the call
// to avoid grounding extraction on the graph it is about to extend. Runs on
// the background pool; every failure is logged, never propagated.
func (s *GraphService) ExtractAndLink(ctx context.Context, chunkID, content, tenantID string) {
	if s.agents == nil {
		return
	}

	s.pool.Submit("relation-extraction", func(taskCtx context.Context) error {
		result, err := s.agents.CallAgent(taskCtx, AgentRequest{
			AgentType:       "relation_extraction",
			TaskDescription: "Extract typed relations from the provided content",
			Payload: map[string]interface{}{
				"chunk_id": chunkID,
				"content":  content,
			},
			TenantID:   tenantID,
			AgentID:    knowledge.GlobalAgentScope,
			UseRAG:     false,
			AutoIngest: false,
		})
		if err != nil {
			s.logger.Warn("Relation extraction failed",
				zap.String("chunkID", chunkID),
				zap.Error(err),
			)
			return nil
		}

		for _, relation := range parseRelations(result.Data) {
			if err := s.Link(taskCtx, chunkID, relation.targetID, relation.relationType, relation.weight, nil); err != nil {
				s.logger.Warn("Failed to record extracted relation",
					zap.String("chunkID", chunkID),
					zap.String("targetID", relation.targetID),
					zap.Error(err),
				)
			}
		}
		return nil
	})
}

func (s *GraphService) traverseRelational(ctx context.Context, chunkID string, depth int) ([]knowledge.Related, error) {
	visited := map[string]bool{chunkID: true}
	frontier := []string{chunkID}
	var results []knowledge.Related

	for hop := 1; hop <= depth; hop++ {
		var next []string
		for _, source := range frontier {
			links, err := s.links.GetBySource(ctx, source)
			if err != nil {
				return nil, fmt.Errorf("traversal at %s: %w", source, err)
			}
			for _, link := range links {
				if visited[link.TargetID] {
					continue
				}
				visited[link.TargetID] = true
				results = append(results, knowledge.Related{
					ChunkID:  link.TargetID,
					Relation: link.Relation,
					Weight:   link.Weight,
					Depth:    hop,
				})
				next = append(next, link.TargetID)
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}

	return results, nil
}

func (s *GraphService) joinContent(ctx context.Context, tenantID string, related []knowledge.Related) {
	for i := range related {
		chunk, err := s.chunks.GetByID(ctx, tenantID, related[i].ChunkID)
		if err != nil {
			continue
		}
		related[i].Content = chunk.Content
	}
}

// ReconcileMirror re-projects links written since the given instant into
// the fast store, repairing divergence left by failed projections. Returns
// how many links were re-projected.
func (s *GraphService) ReconcileMirror(ctx context.Context, since time.Time) (int, error) {
	links, err := s.links.ListRecent(ctx, since, 500)
	if err != nil {
		return 0, err
	}

	projected := 0
	for _, link := range links {
		if err := s.mirror.Project(ctx, link); err != nil {
			s.logger.Warn("Mirror reconciliation failed for link",
				zap.String("sourceID", link.SourceID),
				zap.String("targetID", link.TargetID),
				zap.Error(err),
			)
			continue
		}
		projected++
	}
	return projected, nil
}

type extractedRelation struct {
	targetID     string
	relationType string
	weight       float64
}

// parseRelations reads the extraction agent's result shape:
// {"relations": [{"target_id": ..., "relation_type": ..., "weight": ...}]}
func parseRelations(data map[string]interface{}) []extractedRelation {
	raw, ok := data["relations"].([]interface{})
	if !ok {
		return nil
	}

	var relations []extractedRelation
	for _, entry := range raw {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		targetID, _ := m["target_id"].(string)
		if targetID == "" {
			continue
		}
		relationType, _ := m["relation_type"].(string)
		weight, _ := m["weight"].(float64)
		relations = append(relations, extractedRelation{
			targetID:     targetID,
			relationType: relationType,
			weight:       weight,
		})
	}
	return relations
}
