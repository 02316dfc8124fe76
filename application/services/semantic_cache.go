// Package services contains the application services that orchestrate the
// domain: retrieval, knowledge graph, semantic cache, the intelligence
// gateway, workflow execution, discovery, monitoring, and scheduling.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"opsbrain/application/ports"
	"opsbrain/domain/knowledge"

	"go.uber.org/zap"
)

// SemanticCache deduplicates repeated agent calls. It is strictly
// best-effort: every storage error degrades to a miss.
type SemanticCache struct {
	repo   ports.CacheRepository
	ttl    time.Duration
	logger *zap.Logger
}

// NewSemanticCache creates a new SemanticCache
func NewSemanticCache(repo ports.CacheRepository, ttl time.Duration, logger *zap.Logger) *SemanticCache {
	return &SemanticCache{
		repo:   repo,
		ttl:    ttl,
		logger: logger,
	}
}

// Fingerprint derives the cache key from everything that shapes the agent's
// answer. The resolved model id is part of the key; without it two models
// would collide on the same task. Payload serialization is deterministic
// because encoding/json emits map keys in sorted order.
func (c *SemanticCache) Fingerprint(agentType, taskDescription, resolvedModel string, payload map[string]interface{}) string {
	serialized, err := json.Marshal(payload)
	if err != nil {
		serialized = []byte(fmt.Sprintf("%v", payload))
	}

	h := sha256.New()
	h.Write([]byte(agentType))
	h.Write([]byte{0})
	h.Write([]byte(taskDescription))
	h.Write([]byte{0})
	h.Write([]byte(resolvedModel))
	h.Write([]byte{0})
	h.Write(serialized)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached response for a fingerprint, or ok=false on a miss
func (c *SemanticCache) Get(ctx context.Context, fingerprint string) (map[string]interface{}, bool) {
	entry, err := c.repo.Get(ctx, fingerprint)
	if err != nil {
		c.logger.Warn("Semantic cache read failed, treating as miss",
			zap.String("fingerprint", fingerprint),
			zap.Error(err),
		)
		return nil, false
	}
	if entry == nil {
		return nil, false
	}
	return entry.Response, true
}

// Put stores a response under the fingerprint. Failures are logged only.
func (c *SemanticCache) Put(ctx context.Context, fingerprint string, response map[string]interface{}, metadata map[string]string) {
	now := time.Now().UTC()
	entry := &knowledge.CacheEntry{
		Fingerprint: fingerprint,
		Response:    response,
		Metadata:    metadata,
		CreatedAt:   now,
		ExpiresAt:   now.Add(c.ttl),
	}

	if err := c.repo.Put(ctx, entry); err != nil {
		c.logger.Warn("Semantic cache write failed",
			zap.String("fingerprint", fingerprint),
			zap.Error(err),
		)
	}
}
