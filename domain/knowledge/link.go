package knowledge

import (
	"time"

	"opsbrain/pkg/errors"
)

// Link is a typed, weighted relation between two chunks. The triple
// (SourceID, TargetID, Relation) is the unique key: writing the same triple
// again updates weight and metadata instead of duplicating the edge.
type Link struct {
	SourceID  string            `json:"source_id"`
	TargetID  string            `json:"target_id"`
	Relation  string            `json:"relation_type"`
	Weight    float64           `json:"weight"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewLink creates a link between two chunks
func NewLink(sourceID, targetID, relation string, weight float64, metadata map[string]string) (*Link, error) {
	if sourceID == "" || targetID == "" {
		return nil, errors.NewValidationError("link requires source and target chunk ids")
	}
	if sourceID == targetID {
		return nil, errors.NewValidationError("link cannot be self-referential")
	}
	if relation == "" {
		relation = "related_to"
	}
	if metadata == nil {
		metadata = map[string]string{}
	}

	return &Link{
		SourceID:  sourceID,
		TargetID:  targetID,
		Relation:  relation,
		Weight:    weight,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Related is one hop of a graph expansion result. Content is populated when
// the traversal joins back to the chunk store.
type Related struct {
	ChunkID  string  `json:"id"`
	Relation string  `json:"relationship"`
	Weight   float64 `json:"weight"`
	Depth    int     `json:"depth"`
	Content  string  `json:"content,omitempty"`
}

// CacheEntry is a cached agent response keyed by request fingerprint.
// Entries are ephemeral and best-effort.
type CacheEntry struct {
	Fingerprint string                 `json:"fingerprint"`
	Response    map[string]interface{} `json:"response"`
	Metadata    map[string]string      `json:"metadata"`
	CreatedAt   time.Time              `json:"created_at"`
	ExpiresAt   time.Time              `json:"expires_at"`
}
