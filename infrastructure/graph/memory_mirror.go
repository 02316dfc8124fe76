// Package graph provides the optional graph-native fast store as an
// in-process adjacency projection. It is eventually consistent with the
// relational source of truth: projection happens on the background task
// queue and a periodic sweep re-projects recent links.
package graph

import (
	"context"
	"sync"

	"opsbrain/application/ports"
	"opsbrain/domain/knowledge"
)

type edge struct {
	target   string
	relation string
	weight   float64
}

var _ ports.GraphMirror = (*MemoryMirror)(nil)

// MemoryMirror implements ports.GraphMirror with an in-memory adjacency map
type MemoryMirror struct {
	mu        sync.RWMutex
	adjacency map[string]map[string]edge // source -> (target#relation -> edge)
}

// NewMemoryMirror creates an empty mirror
func NewMemoryMirror() *MemoryMirror {
	return &MemoryMirror{
		adjacency: make(map[string]map[string]edge),
	}
}

// Project upserts one edge into the adjacency map
func (m *MemoryMirror) Project(ctx context.Context, link *knowledge.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := link.TargetID + "#" + link.Relation
	if m.adjacency[link.SourceID] == nil {
		m.adjacency[link.SourceID] = make(map[string]edge)
	}
	m.adjacency[link.SourceID][key] = edge{
		target:   link.TargetID,
		relation: link.Relation,
		weight:   link.Weight,
	}
	return nil
}

// Traverse walks the adjacency map breadth-first up to depth hops.
// Each chunk appears once, at the shallowest depth it was reached.
func (m *MemoryMirror) Traverse(ctx context.Context, chunkID string, depth int) ([]knowledge.Related, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if depth < 1 {
		depth = 1
	}

	visited := map[string]bool{chunkID: true}
	frontier := []string{chunkID}
	var results []knowledge.Related

	for hop := 1; hop <= depth; hop++ {
		var next []string
		for _, source := range frontier {
			for _, e := range m.adjacency[source] {
				if visited[e.target] {
					continue
				}
				visited[e.target] = true
				results = append(results, knowledge.Related{
					ChunkID:  e.target,
					Relation: e.relation,
					Weight:   e.weight,
					Depth:    hop,
				})
				next = append(next, e.target)
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}

	return results, nil
}

// Len returns the number of sources with at least one projected edge
func (m *MemoryMirror) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.adjacency)
}
