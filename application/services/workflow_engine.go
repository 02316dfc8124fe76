package services

import (
	"context"
	"fmt"
	"time"

	"opsbrain/application/ports"
	"opsbrain/domain/workflow"

	"go.uber.org/zap"
)

const (
	defaultStepTimeout = 2 * time.Minute
	defaultBackoffBase = time.Second
)

// Engine interprets workflow blueprints: sequential steps, conditional
// skips, bounded retries with exponential backoff, and durable per-step
// checkpoints so a restarted execution never re-runs a completed step.
// Many executions may run concurrently; steps within one run serially.
type Engine struct {
	executions  ports.ExecutionRepository
	agents      AgentCaller
	connector   ports.ExternalConnector
	alerts      ports.AlertPublisher
	monitor     *Monitor
	logger      *zap.Logger
	backoffBase time.Duration

	// sleep is swapped out by tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine creates a new Engine
func NewEngine(
	executions ports.ExecutionRepository,
	agents AgentCaller,
	connector ports.ExternalConnector,
	alerts ports.AlertPublisher,
	monitor *Monitor,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		executions:  executions,
		agents:      agents,
		connector:   connector,
		alerts:      alerts,
		monitor:     monitor,
		logger:      logger,
		backoffBase: defaultBackoffBase,
		sleep:       sleepWithContext,
	}
}

// Execute runs a blueprint from the beginning as a fresh execution
func (e *Engine) Execute(ctx context.Context, blueprint *workflow.Blueprint, tenantID string) (*workflow.Execution, error) {
	if err := blueprint.Validate(); err != nil {
		return nil, err
	}

	execution := workflow.NewExecution(blueprint, tenantID)
	if err := e.monitor.RecordStart(ctx, execution); err != nil {
		return nil, err
	}

	return execution, e.run(ctx, execution, blueprint, nil)
}

// Resume continues an interrupted execution, skipping every step that
// already has a completion checkpoint
func (e *Engine) Resume(ctx context.Context, executionID string, blueprint *workflow.Blueprint) (*workflow.Execution, error) {
	execution, err := e.executions.GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if execution.IsTerminal() {
		return execution, nil
	}

	completed, err := e.executions.CompletedSteps(ctx, executionID)
	if err != nil {
		return nil, err
	}

	return execution, e.run(ctx, execution, blueprint, completed)
}

func (e *Engine) run(ctx context.Context, execution *workflow.Execution, blueprint *workflow.Blueprint, checkpoints map[int]map[string]interface{}) error {
	results := make(map[string]interface{})
	for index, result := range checkpoints {
		results[stepKey(index)] = result
	}

	stepsRun := len(checkpoints)
	for index, step := range blueprint.Steps {
		if _, done := checkpoints[index]; done {
			continue
		}

		if step.Condition != nil && !step.Condition.Evaluate(results) {
			e.logger.Debug("Step skipped by condition",
				zap.String("executionID", execution.ID),
				zap.Int("step", index),
			)
			continue
		}

		result, err := e.runStepWithRetries(ctx, execution, blueprint, index, step)
		if err != nil {
			e.failExecution(ctx, execution, blueprint, index, step, err)
			return err
		}

		results[stepKey(index)] = result
		stepsRun++
		execution.CostEstimate += costOf(result)

		if err := e.executions.MarkStepCompleted(ctx, execution.ID, index, result); err != nil {
			e.logger.Warn("Failed to checkpoint step, a restart may re-run it",
				zap.String("executionID", execution.ID),
				zap.Int("step", index),
				zap.Error(err),
			)
		}
	}

	execution.Complete(stepsRun)
	return e.monitor.RecordCompletion(ctx, execution)
}

// runStepWithRetries attempts one step up to the blueprint's retry budget,
// with strictly increasing backoff between attempts and a per-attempt
// timeout independent of the gateway's own poll bound
func (e *Engine) runStepWithRetries(ctx context.Context, execution *workflow.Execution, blueprint *workflow.Blueprint, index int, step workflow.Step) (map[string]interface{}, error) {
	maxRetries := blueprint.Config.EffectiveMaxRetries()
	timeout := blueprint.Config.StepTimeout
	if timeout <= 0 {
		timeout = defaultStepTimeout
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			backoff := e.backoffBase * time.Duration(1<<(attempt-2))
			if err := e.sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		result, err := e.runStep(attemptCtx, execution, step)
		cancel()
		if err == nil {
			return result, nil
		}

		lastErr = err
		e.logger.Warn("Step attempt failed",
			zap.String("executionID", execution.ID),
			zap.Int("step", index),
			zap.String("action", step.Action),
			zap.Int("attempt", attempt),
			zap.Int("maxRetries", maxRetries),
			zap.Error(err),
		)
	}

	return nil, fmt.Errorf("step %d (%s) exhausted %d attempts: %w", index, step.Action, maxRetries, lastErr)
}

func (e *Engine) runStep(ctx context.Context, execution *workflow.Execution, step workflow.Step) (map[string]interface{}, error) {
	switch step.Action {
	case workflow.ActionWait:
		return e.actionWait(ctx, step)
	case workflow.ActionGenerateContent:
		return e.actionGenerateContent(ctx, execution, step)
	case workflow.ActionNotify:
		return e.actionNotify(ctx, execution, step)
	case workflow.ActionPublish:
		return e.actionPublish(ctx, step)
	case workflow.ActionFetchState:
		return e.actionFetchState(ctx, step)
	case workflow.ActionUpdateState:
		return e.actionUpdateState(ctx, step)
	default:
		return nil, fmt.Errorf("unknown step action %q", step.Action)
	}
}

func (e *Engine) actionWait(ctx context.Context, step workflow.Step) (map[string]interface{}, error) {
	seconds, _ := asFloat(step.Parameters["seconds"])
	if seconds <= 0 {
		seconds = 1
	}
	if err := e.sleep(ctx, time.Duration(seconds*float64(time.Second))); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "waited", "seconds": seconds}, nil
}

func (e *Engine) actionGenerateContent(ctx context.Context, execution *workflow.Execution, step workflow.Step) (map[string]interface{}, error) {
	task, _ := step.Parameters["task"].(string)
	agentType, _ := step.Parameters["agent_type"].(string)
	if agentType == "" {
		agentType = "content_generation"
	}
	useRAG := true
	if v, ok := step.Parameters["use_rag"].(bool); ok {
		useRAG = v
	}

	payload, _ := step.Parameters["payload"].(map[string]interface{})
	result, err := e.agents.CallAgent(ctx, AgentRequest{
		AgentType:       agentType,
		TaskDescription: task,
		Payload:         payload,
		TenantID:        execution.TenantID,
		AgentID:         execution.WorkflowID,
		UseRAG:          useRAG,
		AutoIngest:      true,
	})
	if err != nil {
		return nil, err
	}

	out := map[string]interface{}{
		"status":        "generated",
		"data":          result.Data,
		"model":         result.Model,
		"cost_estimate": result.Cost,
	}
	if len(result.Warnings) > 0 {
		out["warnings"] = result.Warnings
	}
	return out, nil
}

func (e *Engine) actionNotify(ctx context.Context, execution *workflow.Execution, step workflow.Step) (map[string]interface{}, error) {
	message, _ := step.Parameters["message"].(string)
	severity, _ := step.Parameters["severity"].(string)
	if severity == "" {
		severity = ports.SeverityInfo
	}

	err := e.alerts.Publish(ctx, ports.Alert{
		WorkflowID: execution.WorkflowID,
		AlertType:  "workflow.notification",
		Message:    message,
		Severity:   severity,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "notified"}, nil
}

func (e *Engine) actionPublish(ctx context.Context, step workflow.Step) (map[string]interface{}, error) {
	target, _ := step.Parameters["target"].(string)
	payload, _ := step.Parameters["payload"].(map[string]interface{})
	if err := e.connector.Publish(ctx, target, payload); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "published", "target": target}, nil
}

func (e *Engine) actionFetchState(ctx context.Context, step workflow.Step) (map[string]interface{}, error) {
	target, _ := step.Parameters["target"].(string)
	query, _ := step.Parameters["query"].(map[string]interface{})
	state, err := e.connector.Fetch(ctx, target, query)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "fetched", "target": target, "state": state}, nil
}

func (e *Engine) actionUpdateState(ctx context.Context, step workflow.Step) (map[string]interface{}, error) {
	target, _ := step.Parameters["target"].(string)
	payload, _ := step.Parameters["payload"].(map[string]interface{})
	if err := e.connector.Update(ctx, target, payload); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "updated", "target": target}, nil
}

func (e *Engine) failExecution(ctx context.Context, execution *workflow.Execution, blueprint *workflow.Blueprint, index int, step workflow.Step, cause error) {
	execution.Fail(index, cause.Error())

	if blueprint.Config.NotifyOnError {
		alert := ports.Alert{
			WorkflowID: execution.WorkflowID,
			AlertType:  "workflow.step_failed",
			Severity:   ports.SeverityWarning,
			Message:    fmt.Sprintf("step %d (%s) failed: %v", index, step.Action, cause),
			Timestamp:  time.Now().UTC(),
		}
		if err := e.alerts.Publish(ctx, alert); err != nil {
			e.logger.Error("Failed to publish step-failure alert",
				zap.String("executionID", execution.ID),
				zap.Error(err),
			)
		}
	}

	if err := e.monitor.RecordFailure(ctx, execution); err != nil {
		e.logger.Error("Failed to record execution failure",
			zap.String("executionID", execution.ID),
			zap.Error(err),
		)
	}
}

func stepKey(index int) string {
	return fmt.Sprintf("step_%d", index)
}

// costOf pulls the gateway cost estimate out of a step result
func costOf(result map[string]interface{}) float64 {
	cost, _ := asFloat(result["cost_estimate"])
	return cost
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
