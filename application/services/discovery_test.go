package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"opsbrain/application/ports"
	"opsbrain/domain/workflow"
)

func TestRunCycleDeduplicatesProposals(t *testing.T) {
	proposals := newFakeProposalRepo()
	telemetry := &fakeTelemetry{
		themes: []ports.SupportTheme{
			{Topic: "Password Reset", Occurrences: 12, TenantCount: 4},
		},
	}
	discovery := NewDiscovery(proposals, telemetry, &fakeLocker{}, zap.NewNop())

	created, err := discovery.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	// The same signal on the next cycle produces nothing new
	created, err = discovery.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Equal(t, 1, proposals.count())

	proposal, err := proposals.GetByName(context.Background(), "auto-support-password-reset")
	require.NoError(t, err)
	assert.Equal(t, workflow.ProposalProposed, proposal.Status)
	assert.Equal(t, "support_pain_points", proposal.DiscoveryMethod)
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	proposals := newFakeProposalRepo()
	telemetry := &fakeTelemetry{
		themes: []ports.SupportTheme{
			{Topic: "Password Reset", Occurrences: 12, TenantCount: 4},
		},
	}
	locker := &fakeLocker{held: true}
	discovery := NewDiscovery(proposals, telemetry, locker, zap.NewNop())

	created, err := discovery.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Equal(t, 0, proposals.count())
	assert.Equal(t, 1, locker.acquires)
}

func TestSupportPainPointThresholds(t *testing.T) {
	telemetry := &fakeTelemetry{
		themes: []ports.SupportTheme{
			{Topic: "qualifies", Occurrences: 10, TenantCount: 3},
			{Topic: "too rare", Occurrences: 9, TenantCount: 5},
			{Topic: "one tenant", Occurrences: 50, TenantCount: 2},
		},
	}

	strategy := &supportPainPointStrategy{}
	drafts, err := strategy.Discover(context.Background(), telemetry, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "auto-support-qualifies", drafts[0].Name)
	assert.Equal(t, "support", drafts[0].Category)
}

func TestManualSequenceStrategyBuildsStepPerAction(t *testing.T) {
	telemetry := &fakeTelemetry{
		sequences: []ports.ActionSequence{
			{Actions: []string{"export-report", "upload-cms"}, Occurrences: 20, TenantCount: 6},
			{Actions: []string{"rare-thing"}, Occurrences: 3, TenantCount: 1},
		},
	}

	strategy := &manualSequenceStrategy{}
	drafts, err := strategy.Discover(context.Background(), telemetry, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, drafts, 1)

	assert.Equal(t, "auto-sequence-export-report-upload-cms", drafts[0].Name)
	require.Len(t, drafts[0].Definition.Steps, 2)
	assert.Equal(t, workflow.ActionPublish, drafts[0].Definition.Steps[0].Action)
	assert.Equal(t, "export-report", drafts[0].Definition.Steps[0].Parameters["target"])
}

func TestPeerToolGapStrategyComparesQuartiles(t *testing.T) {
	usage := []ports.TenantToolUsage{
		{TenantID: "top-1", Tools: []string{"analytics-pro"}, ConversionRate: 0.95},
		{TenantID: "top-2", Tools: []string{"analytics-pro"}, ConversionRate: 0.93},
		{TenantID: "top-3", Tools: []string{"analytics-pro", "crm"}, ConversionRate: 0.90},
		{TenantID: "mid-1", Tools: []string{"crm"}, ConversionRate: 0.60},
		{TenantID: "mid-2", Tools: []string{"crm"}, ConversionRate: 0.55},
		{TenantID: "mid-3", Tools: []string{"crm"}, ConversionRate: 0.52},
		{TenantID: "mid-4", Tools: []string{"crm"}, ConversionRate: 0.50},
		{TenantID: "mid-5", Tools: []string{"crm"}, ConversionRate: 0.45},
		{TenantID: "mid-6", Tools: []string{"crm"}, ConversionRate: 0.40},
		{TenantID: "low-1", Tools: []string{"crm"}, ConversionRate: 0.20},
		{TenantID: "low-2", Tools: []string{"crm"}, ConversionRate: 0.15},
		{TenantID: "low-3", Tools: []string{"crm"}, ConversionRate: 0.10},
	}
	telemetry := &fakeTelemetry{usage: usage}

	strategy := &peerToolGapStrategy{}
	drafts, err := strategy.Discover(context.Background(), telemetry, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "adopt-analytics-pro", drafts[0].Name)
}

func TestPeerToolGapStrategyNeedsEnoughTenants(t *testing.T) {
	telemetry := &fakeTelemetry{usage: []ports.TenantToolUsage{
		{TenantID: "a", Tools: []string{"x"}, ConversionRate: 0.9},
		{TenantID: "b", Tools: []string{"y"}, ConversionRate: 0.1},
	}}

	strategy := &peerToolGapStrategy{}
	drafts, err := strategy.Discover(context.Background(), telemetry, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func TestIntegrationGapStrategy(t *testing.T) {
	telemetry := &fakeTelemetry{pairs: []ports.ToolPair{
		{ToolA: "Shop Feed", ToolB: "Mail Blast", TenantCount: 5},
		{ToolA: "a", ToolB: "b", TenantCount: 5, Automated: true},
		{ToolA: "c", ToolB: "d", TenantCount: 2},
	}}

	strategy := &integrationGapStrategy{}
	drafts, err := strategy.Discover(context.Background(), telemetry, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, drafts, 1)

	draft := drafts[0]
	assert.Equal(t, "integrate-shop-feed-mail-blast", draft.Name)
	require.Len(t, draft.Definition.Steps, 2)
	assert.Equal(t, workflow.ActionFetchState, draft.Definition.Steps[0].Action)
	assert.Equal(t, workflow.ActionUpdateState, draft.Definition.Steps[1].Action)
	require.NotNil(t, draft.Definition.Steps[1].Condition)
	assert.Equal(t, "step_0.state", draft.Definition.Steps[1].Condition.Field)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "password-reset", slugify("Password Reset"))
	assert.Equal(t, "a-b-c", slugify("  a -- b __ c  "))
	assert.Equal(t, "v2-launch", slugify("V2 Launch!"))
	assert.Equal(t, "", slugify("***"))
}
