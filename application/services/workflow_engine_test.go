package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"opsbrain/domain/workflow"
)

// fakeAgentCaller satisfies AgentCaller for engine tests
type fakeAgentCaller struct {
	mu     sync.Mutex
	calls  int
	result *AgentResult
	err    error
}

func (f *fakeAgentCaller) CallAgent(ctx context.Context, req AgentRequest) (*AgentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &AgentResult{Data: map[string]interface{}{"content": "generated"}, Model: "model-standard"}, nil
}

type engineFixture struct {
	engine     *Engine
	executions *fakeExecutionRepo
	caller     *fakeAgentCaller
	connector  *fakeConnector
	alerts     *fakeAlerts
	delays     *[]time.Duration
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	logger := zap.NewNop()

	executions := newFakeExecutionRepo()
	caller := &fakeAgentCaller{}
	connector := &fakeConnector{}
	alerts := &fakeAlerts{}
	monitor := NewMonitor(executions, alerts, newTestMetrics(), logger)

	engine := NewEngine(executions, caller, connector, alerts, monitor, logger)

	delays := &[]time.Duration{}
	var mu sync.Mutex
	engine.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		*delays = append(*delays, d)
		return nil
	}

	return &engineFixture{
		engine:     engine,
		executions: executions,
		caller:     caller,
		connector:  connector,
		alerts:     alerts,
		delays:     delays,
	}
}

func publishBlueprint(targets ...string) *workflow.Blueprint {
	steps := make([]workflow.Step, 0, len(targets))
	for _, target := range targets {
		steps = append(steps, workflow.Step{
			Action:     workflow.ActionPublish,
			Parameters: map[string]interface{}{"target": target},
		})
	}
	return &workflow.Blueprint{ID: "wf-1", Name: "publish-flow", Steps: steps}
}

func TestExecuteRunsAllSteps(t *testing.T) {
	fx := newEngineFixture(t)

	execution, err := fx.engine.Execute(context.Background(), publishBlueprint("cms", "crm"), "t1")
	require.NoError(t, err)

	assert.Equal(t, workflow.StatusCompleted, execution.Status)
	assert.Equal(t, 2, execution.StepsCompleted)
	assert.Equal(t, []string{"cms", "crm"}, fx.connector.published)

	stored, err := fx.executions.GetByID(context.Background(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, stored.Status)
}

func TestExecuteRetriesWithIncreasingBackoff(t *testing.T) {
	fx := newEngineFixture(t)
	fx.connector.publishErr = context.DeadlineExceeded

	blueprint := publishBlueprint("cms")
	blueprint.Config.MaxRetries = 3

	execution, err := fx.engine.Execute(context.Background(), blueprint, "t1")
	require.Error(t, err)

	// Attempted exactly the retry budget, no more
	assert.Equal(t, 3, fx.connector.publishCount())

	// Backoff before attempts 2 and 3, strictly increasing
	require.Len(t, *fx.delays, 2)
	assert.Equal(t, time.Second, (*fx.delays)[0])
	assert.Equal(t, 2*time.Second, (*fx.delays)[1])

	assert.Equal(t, workflow.StatusFailed, execution.Status)
	assert.Equal(t, 0, execution.FailedStep)
}

func TestExecuteNotifiesOnErrorWhenConfigured(t *testing.T) {
	fx := newEngineFixture(t)
	fx.connector.publishErr = context.DeadlineExceeded

	blueprint := publishBlueprint("cms")
	blueprint.Config.MaxRetries = 1
	blueprint.Config.NotifyOnError = true

	_, err := fx.engine.Execute(context.Background(), blueprint, "t1")
	require.Error(t, err)

	require.Equal(t, 1, fx.alerts.count())
	assert.Equal(t, "workflow.step_failed", fx.alerts.alerts[0].AlertType)
	assert.Equal(t, "wf-1", fx.alerts.alerts[0].WorkflowID)
}

func TestExecuteSkipsStepOnCondition(t *testing.T) {
	fx := newEngineFixture(t)

	blueprint := &workflow.Blueprint{
		ID:   "wf-2",
		Name: "conditional-flow",
		Steps: []workflow.Step{
			{Action: workflow.ActionPublish, Parameters: map[string]interface{}{"target": "cms"}},
			{
				Action:     workflow.ActionNotify,
				Parameters: map[string]interface{}{"message": "never sent"},
				Condition:  &workflow.Condition{Field: "step_0.status", Operator: "equals", Value: "failed"},
			},
		},
	}

	execution, err := fx.engine.Execute(context.Background(), blueprint, "t1")
	require.NoError(t, err)

	assert.Equal(t, workflow.StatusCompleted, execution.Status)
	assert.Equal(t, 1, execution.StepsCompleted)
	assert.Equal(t, 0, fx.alerts.count())
}

func TestExecuteAccumulatesGenerationCost(t *testing.T) {
	fx := newEngineFixture(t)
	fx.caller.result = &AgentResult{
		Data:  map[string]interface{}{"content": "draft"},
		Model: "model-deep",
		Cost:  0.25,
	}

	blueprint := &workflow.Blueprint{
		ID:   "wf-3",
		Name: "content-flow",
		Steps: []workflow.Step{
			{Action: workflow.ActionGenerateContent, Parameters: map[string]interface{}{"task": "write"}},
		},
	}

	execution, err := fx.engine.Execute(context.Background(), blueprint, "t1")
	require.NoError(t, err)

	assert.Equal(t, 1, fx.caller.calls)
	assert.Equal(t, 0.25, execution.CostEstimate)
}

func TestResumeSkipsCheckpointedSteps(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	blueprint := publishBlueprint("cms", "crm")
	execution := workflow.NewExecution(blueprint, "t1")
	require.NoError(t, fx.executions.Save(ctx, execution))
	require.NoError(t, fx.executions.MarkStepCompleted(ctx, execution.ID, 0,
		map[string]interface{}{"status": "published", "target": "cms"}))

	resumed, err := fx.engine.Resume(ctx, execution.ID, blueprint)
	require.NoError(t, err)

	// Only the unfinished step ran
	assert.Equal(t, []string{"crm"}, fx.connector.published)
	assert.Equal(t, workflow.StatusCompleted, resumed.Status)
	assert.Equal(t, 2, resumed.StepsCompleted)
}

func TestResumeTerminalExecutionIsNoop(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	blueprint := publishBlueprint("cms")
	execution := workflow.NewExecution(blueprint, "t1")
	execution.Complete(1)
	require.NoError(t, fx.executions.Save(ctx, execution))

	resumed, err := fx.engine.Resume(ctx, execution.ID, blueprint)
	require.NoError(t, err)

	assert.Equal(t, workflow.StatusCompleted, resumed.Status)
	assert.Equal(t, 0, fx.connector.publishCount())
}

func TestExecuteRejectsInvalidBlueprint(t *testing.T) {
	fx := newEngineFixture(t)

	_, err := fx.engine.Execute(context.Background(), &workflow.Blueprint{Name: "empty"}, "t1")
	assert.Error(t, err)
}

func TestConditionReadsCheckpointedResultsOnResume(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	blueprint := &workflow.Blueprint{
		ID:   "wf-4",
		Name: "resume-conditional",
		Steps: []workflow.Step{
			{Action: workflow.ActionFetchState, Parameters: map[string]interface{}{"target": "crm"}},
			{
				Action:     workflow.ActionUpdateState,
				Parameters: map[string]interface{}{"target": "cms"},
				Condition:  &workflow.Condition{Field: "step_0.status", Operator: "equals", Value: "fetched"},
			},
		},
	}

	execution := workflow.NewExecution(blueprint, "t1")
	require.NoError(t, fx.executions.Save(ctx, execution))
	require.NoError(t, fx.executions.MarkStepCompleted(ctx, execution.ID, 0,
		map[string]interface{}{"status": "fetched", "target": "crm"}))

	resumed, err := fx.engine.Resume(ctx, execution.ID, blueprint)
	require.NoError(t, err)

	// The condition saw the checkpointed result and allowed the update
	assert.Equal(t, []string{"cms"}, fx.connector.updated)
	assert.Equal(t, workflow.StatusCompleted, resumed.Status)
	assert.Empty(t, fx.connector.fetched)
}
