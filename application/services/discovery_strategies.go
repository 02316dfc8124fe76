package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"opsbrain/application/ports"
	"opsbrain/domain/workflow"
)

// Strategy thresholds. A signal below these is noise, not a proposal.
const (
	supportThemeMinOccurrences = 10
	supportThemeMinTenants     = 3
	sequenceMinOccurrences     = 15
	toolGapMinAdopters         = 3
	integrationMinTenants      = 3
)

// supportPainPointStrategy mines support telemetry for recurring topics
// worth an automated first response
type supportPainPointStrategy struct{}

func (s *supportPainPointStrategy) Name() string { return "support_pain_points" }

func (s *supportPainPointStrategy) Discover(ctx context.Context, telemetry ports.TelemetryReader, since time.Time) ([]ProposalDraft, error) {
	themes, err := telemetry.SupportThemes(ctx, since)
	if err != nil {
		return nil, err
	}

	var drafts []ProposalDraft
	for _, theme := range themes {
		if theme.Occurrences < supportThemeMinOccurrences || theme.TenantCount < supportThemeMinTenants {
			continue
		}
		drafts = append(drafts, ProposalDraft{
			Name:        "auto-support-" + slugify(theme.Topic),
			Description: fmt.Sprintf("Automated first response for recurring support topic %q", theme.Topic),
			Category:    "support",
			// One generation call per occurrence at the default tier
			EstimatedCost:  costBaseDefault * float64(theme.Occurrences),
			ImpactAnalysis: fmt.Sprintf("%d occurrences across %d tenants in the window", theme.Occurrences, theme.TenantCount),
			Definition: workflow.Blueprint{
				Name: "auto-support-" + slugify(theme.Topic),
				Steps: []workflow.Step{
					{
						Action: workflow.ActionGenerateContent,
						Parameters: map[string]interface{}{
							"agent_type": "content_generation",
							"task":       fmt.Sprintf("Draft a reusable support response for topic %q", theme.Topic),
						},
					},
					{
						Action: workflow.ActionNotify,
						Parameters: map[string]interface{}{
							"message":  fmt.Sprintf("Support response draft ready for topic %q", theme.Topic),
							"severity": ports.SeverityInfo,
						},
					},
				},
				Config: workflow.Config{NotifyOnError: true},
			},
		})
	}
	return drafts, nil
}

// manualSequenceStrategy detects multi-step sequences users repeat by hand
type manualSequenceStrategy struct{}

func (s *manualSequenceStrategy) Name() string { return "manual_sequences" }

func (s *manualSequenceStrategy) Discover(ctx context.Context, telemetry ports.TelemetryReader, since time.Time) ([]ProposalDraft, error) {
	sequences, err := telemetry.FrequentSequences(ctx, since)
	if err != nil {
		return nil, err
	}

	var drafts []ProposalDraft
	for _, seq := range sequences {
		if seq.Occurrences < sequenceMinOccurrences {
			continue
		}

		name := "auto-sequence-" + slugify(strings.Join(seq.Actions, "-"))
		steps := make([]workflow.Step, 0, len(seq.Actions))
		for _, action := range seq.Actions {
			steps = append(steps, workflow.Step{
				Action: workflow.ActionPublish,
				Parameters: map[string]interface{}{
					"target":  action,
					"payload": map[string]interface{}{},
				},
			})
		}

		drafts = append(drafts, ProposalDraft{
			Name:           name,
			Description:    fmt.Sprintf("Automate the manual sequence %s", strings.Join(seq.Actions, " > ")),
			Category:       "operations",
			EstimatedCost:  costBaseFast * float64(len(seq.Actions)),
			ImpactAnalysis: fmt.Sprintf("repeated %d times by %d tenants", seq.Occurrences, seq.TenantCount),
			Definition: workflow.Blueprint{
				Name:   name,
				Steps:  steps,
				Config: workflow.Config{NotifyOnError: true},
			},
		})
	}
	return drafts, nil
}

// peerToolGapStrategy suggests to low performers the tools their
// high-performing peers rely on
type peerToolGapStrategy struct{}

func (s *peerToolGapStrategy) Name() string { return "peer_tool_gaps" }

func (s *peerToolGapStrategy) Discover(ctx context.Context, telemetry ports.TelemetryReader, since time.Time) ([]ProposalDraft, error) {
	usage, err := telemetry.ToolUsageByTenant(ctx, since)
	if err != nil {
		return nil, err
	}
	if len(usage) < 4 {
		return nil, nil
	}

	sorted := make([]ports.TenantToolUsage, len(usage))
	copy(sorted, usage)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ConversionRate > sorted[j].ConversionRate })

	// Top and bottom quartiles by conversion rate
	quartile := len(sorted) / 4
	if quartile == 0 {
		quartile = 1
	}
	top := sorted[:quartile]
	bottom := sorted[len(sorted)-quartile:]

	topTools := make(map[string]int)
	for _, tenant := range top {
		for _, tool := range tenant.Tools {
			topTools[tool]++
		}
	}
	bottomTools := make(map[string]bool)
	for _, tenant := range bottom {
		for _, tool := range tenant.Tools {
			bottomTools[tool] = true
		}
	}

	var drafts []ProposalDraft
	for tool, adopters := range topTools {
		if adopters < toolGapMinAdopters || bottomTools[tool] {
			continue
		}
		name := "adopt-" + slugify(tool)
		drafts = append(drafts, ProposalDraft{
			Name:           name,
			Description:    fmt.Sprintf("Introduce %q, used by top-performing tenants but absent among low performers", tool),
			Category:       "growth",
			EstimatedCost:  costBaseDefault,
			ImpactAnalysis: fmt.Sprintf("%d of %d top-quartile tenants use %q", adopters, len(top), tool),
			Definition: workflow.Blueprint{
				Name: name,
				Steps: []workflow.Step{
					{
						Action: workflow.ActionGenerateContent,
						Parameters: map[string]interface{}{
							"agent_type": "strategist",
							"task":       fmt.Sprintf("Produce an adoption playbook for tool %q", tool),
						},
					},
					{
						Action: workflow.ActionNotify,
						Parameters: map[string]interface{}{
							"message":  fmt.Sprintf("Adoption playbook for %q is ready", tool),
							"severity": ports.SeverityInfo,
						},
					},
				},
				Config: workflow.Config{NotifyOnError: true},
			},
		})
	}
	return drafts, nil
}

// integrationGapStrategy finds tool pairs frequently co-used by the same
// tenants but never automated together
type integrationGapStrategy struct{}

func (s *integrationGapStrategy) Name() string { return "integration_gaps" }

func (s *integrationGapStrategy) Discover(ctx context.Context, telemetry ports.TelemetryReader, since time.Time) ([]ProposalDraft, error) {
	pairs, err := telemetry.CoUsedTools(ctx, since)
	if err != nil {
		return nil, err
	}

	var drafts []ProposalDraft
	for _, pair := range pairs {
		if pair.Automated || pair.TenantCount < integrationMinTenants {
			continue
		}
		name := fmt.Sprintf("integrate-%s-%s", slugify(pair.ToolA), slugify(pair.ToolB))
		drafts = append(drafts, ProposalDraft{
			Name:           name,
			Description:    fmt.Sprintf("Bridge %q and %q, co-used by the same tenants without an automation", pair.ToolA, pair.ToolB),
			Category:       "integration",
			EstimatedCost:  costBaseFast * 2,
			ImpactAnalysis: fmt.Sprintf("%d tenants use both tools", pair.TenantCount),
			Definition: workflow.Blueprint{
				Name: name,
				Steps: []workflow.Step{
					{
						Action: workflow.ActionFetchState,
						Parameters: map[string]interface{}{
							"target": pair.ToolA,
							"query":  map[string]interface{}{},
						},
					},
					{
						Action: workflow.ActionUpdateState,
						Parameters: map[string]interface{}{
							"target":  pair.ToolB,
							"payload": map[string]interface{}{},
						},
						Condition: &workflow.Condition{Field: "step_0.state", Operator: "exists"},
					},
				},
				Config: workflow.Config{NotifyOnError: true},
			},
		})
	}
	return drafts, nil
}

// slugify turns free text into a proposal-name-safe token
func slugify(text string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
