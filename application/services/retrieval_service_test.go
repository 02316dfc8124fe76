package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"opsbrain/pkg/async"
)

type retrievalFixture struct {
	retrieval *RetrievalService
	graph     *GraphService
	chunks    *fakeChunkRepo
	mirror    *fakeMirror
	pool      *async.Pool
}

func newRetrievalFixture(t *testing.T) *retrievalFixture {
	t.Helper()
	logger := zap.NewNop()

	pool := async.NewPool(1, 32, time.Second, logger)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	chunks := newFakeChunkRepo()
	mirror := newFakeMirror()
	graph := NewGraphService(newFakeLinkRepo(), chunks, mirror, pool, logger)
	retrieval := NewRetrievalService(chunks, newFakeEmbedder(), graph, pool, logger)

	return &retrievalFixture{
		retrieval: retrieval,
		graph:     graph,
		chunks:    chunks,
		mirror:    mirror,
		pool:      pool,
	}
}

func TestIngestThenRetrieve(t *testing.T) {
	fx := newRetrievalFixture(t)
	ctx := context.Background()

	_, err := fx.retrieval.Ingest(ctx, "Refund window is 30 days", nil, "t1", "")
	require.NoError(t, err)
	_, err = fx.retrieval.Ingest(ctx, "Shipping takes five business days", nil, "t1", "")
	require.NoError(t, err)

	results, err := fx.retrieval.Retrieve(ctx, "what is the refund policy", "t1", "a1", 5, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, "Refund window is 30 days", results[0].Content)
	assert.Greater(t, results[0].Similarity, 0.0)
}

func TestRetrieveOrderingAndTruncation(t *testing.T) {
	fx := newRetrievalFixture(t)
	ctx := context.Background()

	contents := []string{
		"refund refund refund",
		"refund policy overview",
		"shipping and handling",
		"holiday schedule notes",
	}
	for _, content := range contents {
		_, err := fx.retrieval.Ingest(ctx, content, nil, "t1", "")
		require.NoError(t, err)
	}

	results, err := fx.retrieval.Retrieve(ctx, "refund", "t1", "a1", 3, nil)
	require.NoError(t, err)
	require.LessOrEqual(t, len(results), 3)

	for i := 1; i < len(results); i++ {
		if results[i].Expanded {
			break
		}
		assert.GreaterOrEqual(t, results[i-1].Similarity, results[i].Similarity)
	}
}

func TestRetrieveMetadataFilters(t *testing.T) {
	fx := newRetrievalFixture(t)
	ctx := context.Background()

	_, err := fx.retrieval.Ingest(ctx, "refund policy for europe", map[string]string{"region": "eu"}, "t1", "")
	require.NoError(t, err)
	_, err = fx.retrieval.Ingest(ctx, "refund policy for americas", map[string]string{"region": "us"}, "t1", "")
	require.NoError(t, err)

	results, err := fx.retrieval.Retrieve(ctx, "refund policy", "t1", "a1", 5, map[string]string{"region": "eu"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "refund policy for europe", results[0].Content)
}

func TestRetrieveRespectsAgentScope(t *testing.T) {
	fx := newRetrievalFixture(t)
	ctx := context.Background()

	_, err := fx.retrieval.Ingest(ctx, "private planner notes", nil, "t1", "planner")
	require.NoError(t, err)
	_, err = fx.retrieval.Ingest(ctx, "shared tenant knowledge", nil, "t1", "")
	require.NoError(t, err)

	results, err := fx.retrieval.Retrieve(ctx, "notes knowledge", "t1", "writer", 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "shared tenant knowledge", results[0].Content)
}

func TestRetrieveGraphExpansion(t *testing.T) {
	fx := newRetrievalFixture(t)
	ctx := context.Background()

	primaryID, err := fx.retrieval.Ingest(ctx, "refund window is 30 days", nil, "t1", "")
	require.NoError(t, err)
	// Scoped to another agent, so it can only surface through expansion
	neighborID, err := fx.retrieval.Ingest(ctx, "escalation playbook for chargebacks", nil, "t1", "support")
	require.NoError(t, err)

	require.NoError(t, fx.graph.Link(ctx, primaryID, neighborID, "related_to", 0.8, nil))

	// Drain the async mirror projection before querying
	fx.pool.Stop()

	results, err := fx.retrieval.Retrieve(ctx, "refund", "t1", "a1", 5, nil)
	require.NoError(t, err)

	var sawExpanded bool
	for i, r := range results {
		if r.ChunkID == neighborID && r.Expanded {
			sawExpanded = true
			// Expanded neighbors come after the primaries
			assert.Greater(t, i, 0)
		}
	}
	assert.True(t, sawExpanded, "expected the linked neighbor as an expanded result")

	// The neighbor appears exactly once
	occurrences := 0
	for _, r := range results {
		if r.ChunkID == neighborID {
			occurrences++
		}
	}
	assert.Equal(t, 1, occurrences)
}

func TestIngestDegradesToZeroVectorOnEmbeddingFailure(t *testing.T) {
	logger := zap.NewNop()
	pool := async.NewPool(1, 8, time.Second, logger)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	chunks := newFakeChunkRepo()
	embedder := newFakeEmbedder()
	embedder.err = context.DeadlineExceeded
	graph := NewGraphService(newFakeLinkRepo(), chunks, newFakeMirror(), pool, logger)
	retrieval := NewRetrievalService(chunks, embedder, graph, pool, logger)

	chunkID, err := retrieval.Ingest(context.Background(), "still stored", nil, "t1", "")
	require.NoError(t, err)

	chunk, err := chunks.GetByID(context.Background(), "t1", chunkID)
	require.NoError(t, err)
	assert.Len(t, chunk.Embedding, embedder.Dimensions())
	for _, v := range chunk.Embedding {
		assert.Zero(t, v)
	}
}

func TestDeleteRemovesChunk(t *testing.T) {
	fx := newRetrievalFixture(t)
	ctx := context.Background()

	chunkID, err := fx.retrieval.Ingest(ctx, "temporary content", nil, "t1", "")
	require.NoError(t, err)

	require.NoError(t, fx.retrieval.Delete(ctx, "t1", chunkID))

	_, err = fx.chunks.GetByID(ctx, "t1", chunkID)
	assert.Error(t, err)
}
