package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChunkDefaults(t *testing.T) {
	chunk, err := NewChunk("some content", []float64{1, 0}, nil, "t1", "")
	require.NoError(t, err)

	assert.NotEmpty(t, chunk.ID)
	assert.Equal(t, GlobalAgentScope, chunk.AgentID)
	assert.NotNil(t, chunk.Metadata)
	assert.False(t, chunk.CreatedAt.IsZero())
}

func TestNewChunkValidation(t *testing.T) {
	_, err := NewChunk("", []float64{1}, nil, "t1", "a1")
	assert.Error(t, err)

	_, err = NewChunk("content", []float64{1}, nil, "", "a1")
	assert.Error(t, err)
}

func TestVisibleTo(t *testing.T) {
	scoped, err := NewChunk("content", nil, nil, "t1", "planner")
	require.NoError(t, err)
	global, err := NewChunk("content", nil, nil, "t1", "")
	require.NoError(t, err)

	assert.True(t, scoped.VisibleTo("planner"))
	assert.False(t, scoped.VisibleTo("writer"))
	assert.True(t, global.VisibleTo("writer"))
}

func TestMatchesFilters(t *testing.T) {
	chunk, err := NewChunk("content", nil, map[string]string{"region": "eu", "kind": "policy"}, "t1", "")
	require.NoError(t, err)

	assert.True(t, chunk.MatchesFilters(nil))
	assert.True(t, chunk.MatchesFilters(map[string]string{"region": "eu"}))
	assert.True(t, chunk.MatchesFilters(map[string]string{"region": "eu", "kind": "policy"}))
	assert.False(t, chunk.MatchesFilters(map[string]string{"region": "us"}))
	assert.False(t, chunk.MatchesFilters(map[string]string{"missing": "x"}))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float64{1, 2, 3}, []float64{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float64{1, 0}, []float64{-1, 0}), 1e-9)

	// Degenerate inputs score zero
	assert.Zero(t, CosineSimilarity([]float64{1, 2}, []float64{1, 2, 3}))
	assert.Zero(t, CosineSimilarity(nil, nil))
	assert.Zero(t, CosineSimilarity([]float64{0, 0}, []float64{1, 2}))
}

func TestNewLinkDefaults(t *testing.T) {
	link, err := NewLink("a", "b", "", 0.5, nil)
	require.NoError(t, err)
	assert.Equal(t, "related_to", link.Relation)
	assert.NotNil(t, link.Metadata)

	_, err = NewLink("a", "a", "related_to", 1, nil)
	assert.Error(t, err)

	_, err = NewLink("", "b", "related_to", 1, nil)
	assert.Error(t, err)
}
