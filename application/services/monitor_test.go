package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"opsbrain/domain/workflow"
)

type monitorFixture struct {
	monitor    *Monitor
	executions *fakeExecutionRepo
	alerts     *fakeAlerts
}

func newMonitorFixture(t *testing.T) *monitorFixture {
	t.Helper()
	executions := newFakeExecutionRepo()
	alerts := &fakeAlerts{}
	return &monitorFixture{
		monitor:    NewMonitor(executions, alerts, newTestMetrics(), zap.NewNop()),
		executions: executions,
		alerts:     alerts,
	}
}

func (fx *monitorFixture) seed(t *testing.T, workflowID string, successes, failures int) {
	t.Helper()
	blueprint := &workflow.Blueprint{
		ID:   workflowID,
		Name: workflowID,
		Steps: []workflow.Step{
			{Action: workflow.ActionWait, Parameters: map[string]interface{}{"seconds": 1}},
		},
	}

	ctx := context.Background()
	for i := 0; i < successes; i++ {
		e := workflow.NewExecution(blueprint, "t1")
		e.Complete(1)
		require.NoError(t, fx.executions.Save(ctx, e))
	}
	for i := 0; i < failures; i++ {
		e := workflow.NewExecution(blueprint, "t1")
		e.Fail(0, fmt.Sprintf("failure %d", i))
		require.NoError(t, fx.executions.Save(ctx, e))
	}
}

func TestEvaluateAlertsFiresOncePerBreach(t *testing.T) {
	fx := newMonitorFixture(t)
	ctx := context.Background()

	// 5 executions, 40% success: breach
	fx.seed(t, "wf-1", 2, 3)

	require.NoError(t, fx.monitor.EvaluateAlerts(ctx))
	require.Equal(t, 1, fx.alerts.count())
	assert.Equal(t, "workflow.success_rate", fx.alerts.alerts[0].AlertType)
	assert.Equal(t, "wf-1", fx.alerts.alerts[0].WorkflowID)

	// Still breached: stays silent
	require.NoError(t, fx.monitor.EvaluateAlerts(ctx))
	assert.Equal(t, 1, fx.alerts.count())
}

func TestEvaluateAlertsRearmsAfterRecovery(t *testing.T) {
	fx := newMonitorFixture(t)
	ctx := context.Background()

	fx.seed(t, "wf-1", 2, 3)
	require.NoError(t, fx.monitor.EvaluateAlerts(ctx))
	require.Equal(t, 1, fx.alerts.count())

	// Recovery: 8 of 11 succeed, condition clears and the breach disarms
	fx.seed(t, "wf-1", 6, 0)
	require.NoError(t, fx.monitor.EvaluateAlerts(ctx))
	assert.Equal(t, 1, fx.alerts.count())

	// Collapse again: a fresh breach alerts a second time
	fx.seed(t, "wf-1", 0, 9)
	require.NoError(t, fx.monitor.EvaluateAlerts(ctx))
	assert.Equal(t, 2, fx.alerts.count())
}

func TestEvaluateAlertsIgnoresLowVolume(t *testing.T) {
	fx := newMonitorFixture(t)

	// All failing, but below the execution floor
	fx.seed(t, "wf-1", 0, 4)

	require.NoError(t, fx.monitor.EvaluateAlerts(context.Background()))
	assert.Equal(t, 0, fx.alerts.count())
}

func TestEvaluateAlertsRearmsWhenPublishFails(t *testing.T) {
	fx := newMonitorFixture(t)
	ctx := context.Background()

	fx.seed(t, "wf-1", 0, 5)
	fx.alerts.err = context.DeadlineExceeded

	require.NoError(t, fx.monitor.EvaluateAlerts(ctx))
	assert.Equal(t, 0, fx.alerts.count())

	// The next sweep retries the publication
	fx.alerts.err = nil
	require.NoError(t, fx.monitor.EvaluateAlerts(ctx))
	assert.Equal(t, 1, fx.alerts.count())
}

func TestWorkflowMetricsFor(t *testing.T) {
	fx := newMonitorFixture(t)

	fx.seed(t, "wf-1", 3, 2)
	fx.seed(t, "wf-other", 0, 4)

	metrics, err := fx.monitor.WorkflowMetricsFor(context.Background(), "wf-1", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 5, metrics.Total)
	assert.Equal(t, 3, metrics.Successful)
	assert.Equal(t, 2, metrics.Failed)
	assert.InDelta(t, 0.6, metrics.SuccessRate, 0.001)
	assert.Len(t, metrics.RecentFailures, 2)
}

func TestAggregateRanksFailingWorkflows(t *testing.T) {
	fx := newMonitorFixture(t)

	fx.seed(t, "wf-flaky", 1, 4)
	fx.seed(t, "wf-worse", 0, 6)
	fx.seed(t, "wf-healthy", 5, 0)

	agg, err := fx.monitor.Aggregate(context.Background(), time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 16, agg.TotalExecutions)
	assert.Equal(t, 6, agg.ByStatus[string(workflow.StatusCompleted)])
	assert.Equal(t, 10, agg.ByStatus[string(workflow.StatusFailed)])

	require.Len(t, agg.TopFailing, 2)
	assert.Equal(t, "wf-worse", agg.TopFailing[0].WorkflowID)
	assert.Equal(t, 6, agg.TopFailing[0].Failures)
	assert.Equal(t, "wf-flaky", agg.TopFailing[1].WorkflowID)
}

func TestRecordLifecyclePersists(t *testing.T) {
	fx := newMonitorFixture(t)
	ctx := context.Background()

	blueprint := &workflow.Blueprint{
		ID:   "wf-1",
		Name: "wf-1",
		Steps: []workflow.Step{
			{Action: workflow.ActionWait, Parameters: map[string]interface{}{"seconds": 1}},
		},
	}
	execution := workflow.NewExecution(blueprint, "t1")

	require.NoError(t, fx.monitor.RecordStart(ctx, execution))
	stored, err := fx.executions.GetByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusRunning, stored.Status)

	execution.Complete(1)
	require.NoError(t, fx.monitor.RecordCompletion(ctx, execution))
	stored, err = fx.executions.GetByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, stored.Status)
}
