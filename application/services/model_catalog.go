package services

import (
	"context"
	"fmt"

	"opsbrain/application/ports"
	"opsbrain/pkg/errors"

	"go.uber.org/zap"
)

// ModelTier classifies agent types by the capability their work needs
type ModelTier int

const (
	TierDefault ModelTier = iota
	TierSpeed
	TierReasoning
)

// speedOptimizedAgents finish fast, cheap work; reasoningHeavyAgents need
// the higher-capability model. Unlisted agent types get the default tier.
var speedOptimizedAgents = map[string]bool{
	"classifier":          true,
	"tagger":              true,
	"summarizer":          true,
	"router":              true,
	"sentiment":           true,
	"relation_extraction": true,
}

var reasoningHeavyAgents = map[string]bool{
	"strategist":         true,
	"campaign_planner":   true,
	"content_generation": true,
	"analyst":            true,
	"workflow_architect": true,
}

// ModelCatalog resolves which model an agent call runs on. A tenant-specific
// fine-tuned model registered in the secret store always wins; otherwise the
// tier table decides.
type ModelCatalog struct {
	secrets        ports.SecretStore
	secretPrefix   string
	modelFast      string
	modelReasoning string
	modelDefault   string
	logger         *zap.Logger
}

// NewModelCatalog creates a new ModelCatalog
func NewModelCatalog(secrets ports.SecretStore, secretPrefix, modelFast, modelReasoning, modelDefault string, logger *zap.Logger) *ModelCatalog {
	return &ModelCatalog{
		secrets:        secrets,
		secretPrefix:   secretPrefix,
		modelFast:      modelFast,
		modelReasoning: modelReasoning,
		modelDefault:   modelDefault,
		logger:         logger,
	}
}

// Tier classifies an agent type
func (m *ModelCatalog) Tier(agentType string) ModelTier {
	if speedOptimizedAgents[agentType] {
		return TierSpeed
	}
	if reasoningHeavyAgents[agentType] {
		return TierReasoning
	}
	return TierDefault
}

// Resolve returns the model id for this tenant and agent type
func (m *ModelCatalog) Resolve(ctx context.Context, tenantID, agentType string) string {
	if tenantID != "" {
		keyPath := fmt.Sprintf("%s/tenants/%s/models/%s", m.secretPrefix, tenantID, agentType)
		model, err := m.secrets.Get(ctx, keyPath)
		if err == nil && model != "" {
			m.logger.Debug("Using tenant fine-tuned model",
				zap.String("tenantID", tenantID),
				zap.String("agentType", agentType),
				zap.String("model", model),
			)
			return model
		}
		if err != nil && !errors.IsNotFound(err) {
			m.logger.Warn("Model override lookup failed, using tier default",
				zap.String("tenantID", tenantID),
				zap.Error(err),
			)
		}
	}

	switch m.Tier(agentType) {
	case TierSpeed:
		return m.modelFast
	case TierReasoning:
		return m.modelReasoning
	default:
		return m.modelDefault
	}
}
