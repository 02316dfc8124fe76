package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"opsbrain/domain/workflow"
	"opsbrain/pkg/errors"
)

type proposalFixture struct {
	service   *ProposalService
	proposals *fakeProposalRepo
	schedules *fakeScheduleBackend
	connector *fakeConnector
}

func newProposalFixture(t *testing.T) *proposalFixture {
	t.Helper()
	logger := zap.NewNop()

	proposals := newFakeProposalRepo()
	backend := newFakeScheduleBackend()
	executions := newFakeExecutionRepo()
	connector := &fakeConnector{}
	alerts := &fakeAlerts{}
	monitor := NewMonitor(executions, alerts, newTestMetrics(), logger)

	engine := NewEngine(executions, &fakeAgentCaller{}, connector, alerts, monitor, logger)
	manager := NewScheduleManager(backend, logger)

	return &proposalFixture{
		service:   NewProposalService(proposals, manager, engine, logger),
		proposals: proposals,
		schedules: backend,
		connector: connector,
	}
}

func (fx *proposalFixture) seedProposal(t *testing.T, name, schedule string) {
	t.Helper()
	blueprint := workflow.Blueprint{
		Name: name,
		Steps: []workflow.Step{
			{Action: workflow.ActionPublish, Parameters: map[string]interface{}{"target": "cms"}},
		},
		Config: workflow.Config{Schedule: schedule},
	}
	proposal, err := workflow.NewProposal(name, "desc", "ops", "manual_sequences", blueprint, 1, "impact")
	require.NoError(t, err)

	inserted, err := fx.proposals.Create(context.Background(), proposal)
	require.NoError(t, err)
	require.True(t, inserted)
}

func TestApproveThenDeployRunsImmediately(t *testing.T) {
	fx := newProposalFixture(t)
	ctx := context.Background()

	fx.seedProposal(t, "auto-publish", "")

	approved, err := fx.service.Approve(ctx, "auto-publish", "lgtm")
	require.NoError(t, err)
	assert.Equal(t, workflow.ProposalApproved, approved.Status)
	assert.Equal(t, "lgtm", approved.ReviewNote)

	execution, err := fx.service.Deploy(ctx, "auto-publish", "t1")
	require.NoError(t, err)
	require.NotNil(t, execution)
	assert.Equal(t, workflow.StatusCompleted, execution.Status)
	assert.Equal(t, []string{"cms"}, fx.connector.published)
}

func TestDeployScheduledProposalRegistersSchedule(t *testing.T) {
	fx := newProposalFixture(t)
	ctx := context.Background()

	fx.seedProposal(t, "nightly-sync", "0 2 * * *")
	_, err := fx.service.Approve(ctx, "nightly-sync", "")
	require.NoError(t, err)

	execution, err := fx.service.Deploy(ctx, "nightly-sync", "t1")
	require.NoError(t, err)
	assert.Nil(t, execution)

	record, found, err := fx.schedules.Get(ctx, "nightly-sync")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "0 2 * * *", record.CronExpression)
	assert.True(t, record.Enabled)

	// Nothing ran immediately
	assert.Equal(t, 0, fx.connector.publishCount())
}

func TestDeployRequiresApproval(t *testing.T) {
	fx := newProposalFixture(t)
	ctx := context.Background()

	fx.seedProposal(t, "auto-publish", "")

	_, err := fx.service.Deploy(ctx, "auto-publish", "t1")
	assert.True(t, errors.IsConflict(err))

	_, err = fx.service.Reject(ctx, "auto-publish", "not worth it")
	require.NoError(t, err)

	_, err = fx.service.Deploy(ctx, "auto-publish", "t1")
	assert.True(t, errors.IsConflict(err))
}

func TestReviewingTwiceIsConflict(t *testing.T) {
	fx := newProposalFixture(t)
	ctx := context.Background()

	fx.seedProposal(t, "auto-publish", "")

	_, err := fx.service.Approve(ctx, "auto-publish", "")
	require.NoError(t, err)

	_, err = fx.service.Reject(ctx, "auto-publish", "changed my mind")
	assert.Error(t, err)
}

func TestListFiltersByStatus(t *testing.T) {
	fx := newProposalFixture(t)
	ctx := context.Background()

	fx.seedProposal(t, "one", "")
	fx.seedProposal(t, "two", "")
	_, err := fx.service.Approve(ctx, "one", "")
	require.NoError(t, err)

	approved, err := fx.service.List(ctx, workflow.ProposalApproved)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, "one", approved[0].Name)

	all, err := fx.service.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
