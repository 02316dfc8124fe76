package services

import (
	"context"
	"fmt"
	"strings"

	"opsbrain/application/ports"
	"opsbrain/pkg/errors"

	"go.uber.org/zap"
)

// Per-call base cost estimates in budget units, by model tier
const (
	costBaseFast      = 0.01
	costBaseDefault   = 0.05
	costBaseReasoning = 0.15
	costPerKiloChars  = 0.002
)

// defaultBlockedTerms is the built-in input/output policy list. Deployments
// extend it through governance configuration.
var defaultBlockedTerms = []string{
	"ignore previous instructions",
	"disregard your system prompt",
	"exfiltrate",
	"credit card number",
	"social security number",
}

// Governance wraps every agent call with the policy, budget, and output
// review checks. Input rejection and budget exhaustion abort the call before
// any dispatch happens; output review only attaches warnings.
type Governance struct {
	budget       ports.BudgetRepository
	blockedTerms []string
	logger       *zap.Logger
}

// NewGovernance creates a Governance service with the built-in policy list
// plus any extra blocked terms
func NewGovernance(budget ports.BudgetRepository, extraBlockedTerms []string, logger *zap.Logger) *Governance {
	terms := make([]string, 0, len(defaultBlockedTerms)+len(extraBlockedTerms))
	terms = append(terms, defaultBlockedTerms...)
	terms = append(terms, extraBlockedTerms...)

	return &Governance{
		budget:       budget,
		blockedTerms: terms,
		logger:       logger,
	}
}

// ReviewInput checks the task and payload against the policy list
func (g *Governance) ReviewInput(taskDescription string, payload map[string]interface{}) error {
	haystack := strings.ToLower(taskDescription + " " + fmt.Sprintf("%v", payload))
	for _, term := range g.blockedTerms {
		if strings.Contains(haystack, term) {
			return errors.NewPolicyViolationError(fmt.Sprintf("input contains blocked term %q", term))
		}
	}
	return nil
}

// EstimateCost predicts the budget units one call will consume, by model
// tier plus a length component
func (g *Governance) EstimateCost(modelTier ModelTier, taskDescription string) float64 {
	base := costBaseDefault
	switch modelTier {
	case TierSpeed:
		base = costBaseFast
	case TierReasoning:
		base = costBaseReasoning
	}
	return base + costPerKiloChars*float64(len(taskDescription))/1000
}

// ChargeBudget debits the estimated cost from the tenant's quota. A failed
// debit aborts the call with BudgetExceeded.
func (g *Governance) ChargeBudget(ctx context.Context, tenantID string, amount float64) error {
	if err := g.budget.Debit(ctx, tenantID, amount); err != nil {
		if errors.IsBudgetExceeded(err) {
			g.logger.Warn("Agent call rejected: budget exhausted",
				zap.String("tenantID", tenantID),
				zap.Float64("estimated", amount),
			)
		}
		return err
	}
	return nil
}

// ReviewOutput scans the agent response for policy terms and returns the
// warnings to attach to the result. It never blocks a completed call.
func (g *Governance) ReviewOutput(result map[string]interface{}) []string {
	haystack := strings.ToLower(fmt.Sprintf("%v", result))

	var warnings []string
	for _, term := range g.blockedTerms {
		if strings.Contains(haystack, term) {
			warnings = append(warnings, fmt.Sprintf("response flagged for term %q", term))
		}
	}
	return warnings
}
