package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"opsbrain/application/ports"
	"opsbrain/domain/workflow"
	"opsbrain/pkg/observability"

	"go.uber.org/zap"
)

// Alert rule thresholds: a workflow with at least alertMinExecutions runs in
// the trailing hour and a success rate below alertSuccessFloor breaches.
const (
	alertWindow        = time.Hour
	alertMinExecutions = 5
	alertSuccessFloor  = 0.5
	recentFailureLimit = 5
)

// WorkflowMetrics summarises one workflow over a trailing window
type WorkflowMetrics struct {
	WorkflowID     string          `json:"workflow_id"`
	Total          int             `json:"total_executions"`
	Successful     int             `json:"successful"`
	Failed         int             `json:"failed"`
	SuccessRate    float64         `json:"success_rate"`
	AvgDuration    time.Duration   `json:"avg_duration"`
	TotalCost      float64         `json:"total_cost"`
	RecentFailures []FailureRecord `json:"recent_failures"`
}

// FailureRecord is one failed execution in a metrics summary
type FailureRecord struct {
	ExecutionID  string    `json:"execution_id"`
	FailedStep   int       `json:"failed_step"`
	ErrorMessage string    `json:"error_message"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// WorkflowFailureCount ranks workflows by failures for the aggregate view
type WorkflowFailureCount struct {
	WorkflowID   string `json:"workflow_id"`
	WorkflowName string `json:"workflow_name"`
	Failures     int    `json:"failures"`
}

// AggregateMetrics summarises all workflows over a trailing window
type AggregateMetrics struct {
	TotalExecutions int                    `json:"total_executions"`
	ByStatus        map[string]int         `json:"by_status"`
	TopFailing      []WorkflowFailureCount `json:"top_failing"`
}

// Monitor records execution lifecycle, computes rolling metrics, and raises
// the critical alert when a workflow's success rate collapses. The breach
// state per workflow is armed on first detection and cleared when the
// condition no longer holds, so each breach alerts exactly once.
type Monitor struct {
	executions ports.ExecutionRepository
	alerts     ports.AlertPublisher
	metrics    *observability.MetricsPublisher
	logger     *zap.Logger

	mu    sync.Mutex
	armed map[string]bool
}

// NewMonitor creates a new Monitor
func NewMonitor(executions ports.ExecutionRepository, alerts ports.AlertPublisher, metrics *observability.MetricsPublisher, logger *zap.Logger) *Monitor {
	return &Monitor{
		executions: executions,
		alerts:     alerts,
		metrics:    metrics,
		logger:     logger,
		armed:      make(map[string]bool),
	}
}

// RecordStart persists a newly started execution
func (m *Monitor) RecordStart(ctx context.Context, execution *workflow.Execution) error {
	if err := m.executions.Save(ctx, execution); err != nil {
		return err
	}

	m.metrics.Count(ctx, "WorkflowExecutionStarted", 1, map[string]string{
		"WorkflowName": execution.WorkflowName,
	})
	m.logger.Info("Workflow execution started",
		zap.String("executionID", execution.ID),
		zap.String("workflowID", execution.WorkflowID),
		zap.String("tenantID", execution.TenantID),
	)
	return nil
}

// RecordCompletion persists a successful execution
func (m *Monitor) RecordCompletion(ctx context.Context, execution *workflow.Execution) error {
	if err := m.executions.Update(ctx, execution); err != nil {
		return err
	}

	m.metrics.Count(ctx, "WorkflowExecutionCompleted", 1, map[string]string{
		"WorkflowName": execution.WorkflowName,
	})
	m.metrics.Duration(ctx, "WorkflowExecutionDuration", execution.Duration, map[string]string{
		"WorkflowName": execution.WorkflowName,
	})
	m.logger.Info("Workflow execution completed",
		zap.String("executionID", execution.ID),
		zap.Int("stepsCompleted", execution.StepsCompleted),
		zap.Duration("duration", execution.Duration),
	)
	return nil
}

// RecordFailure persists a failed execution
func (m *Monitor) RecordFailure(ctx context.Context, execution *workflow.Execution) error {
	if err := m.executions.Update(ctx, execution); err != nil {
		return err
	}

	m.metrics.Count(ctx, "WorkflowExecutionFailed", 1, map[string]string{
		"WorkflowName": execution.WorkflowName,
	})
	m.logger.Warn("Workflow execution failed",
		zap.String("executionID", execution.ID),
		zap.Int("failedStep", execution.FailedStep),
		zap.String("error", execution.ErrorMessage),
	)
	return nil
}

// WorkflowMetricsFor computes one workflow's trailing-window summary
func (m *Monitor) WorkflowMetricsFor(ctx context.Context, workflowID string, window time.Duration) (*WorkflowMetrics, error) {
	executions, err := m.executions.ListByWorkflow(ctx, workflowID, time.Now().UTC().Add(-window))
	if err != nil {
		return nil, err
	}
	return summarize(workflowID, executions), nil
}

// Aggregate computes the cross-workflow trailing-window summary
func (m *Monitor) Aggregate(ctx context.Context, window time.Duration) (*AggregateMetrics, error) {
	executions, err := m.executions.ListSince(ctx, time.Now().UTC().Add(-window))
	if err != nil {
		return nil, err
	}

	byStatus := make(map[string]int)
	failures := make(map[string]*WorkflowFailureCount)
	for _, e := range executions {
		byStatus[string(e.Status)]++
		if e.Status == workflow.StatusFailed || e.Status == workflow.StatusTimeout {
			entry := failures[e.WorkflowID]
			if entry == nil {
				entry = &WorkflowFailureCount{WorkflowID: e.WorkflowID, WorkflowName: e.WorkflowName}
				failures[e.WorkflowID] = entry
			}
			entry.Failures++
		}
	}

	topFailing := make([]WorkflowFailureCount, 0, len(failures))
	for _, entry := range failures {
		topFailing = append(topFailing, *entry)
	}
	sort.Slice(topFailing, func(i, j int) bool { return topFailing[i].Failures > topFailing[j].Failures })
	if len(topFailing) > 10 {
		topFailing = topFailing[:10]
	}

	return &AggregateMetrics{
		TotalExecutions: len(executions),
		ByStatus:        byStatus,
		TopFailing:      topFailing,
	}, nil
}

// EvaluateAlerts runs the breach rule over every workflow seen in the
// trailing hour. A workflow that breaches emits one critical alert and
// stays silent until the condition clears and re-occurs.
func (m *Monitor) EvaluateAlerts(ctx context.Context) error {
	executions, err := m.executions.ListSince(ctx, time.Now().UTC().Add(-alertWindow))
	if err != nil {
		return err
	}

	byWorkflow := make(map[string][]*workflow.Execution)
	for _, e := range executions {
		byWorkflow[e.WorkflowID] = append(byWorkflow[e.WorkflowID], e)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for workflowID, group := range byWorkflow {
		summary := summarize(workflowID, group)
		breached := summary.Total >= alertMinExecutions && summary.SuccessRate < alertSuccessFloor

		if !breached {
			m.armed[workflowID] = false
			continue
		}
		if m.armed[workflowID] {
			continue
		}
		m.armed[workflowID] = true

		alert := ports.Alert{
			WorkflowID: workflowID,
			AlertType:  "workflow.success_rate",
			Severity:   ports.SeverityCritical,
			Message: fmt.Sprintf("workflow %s: %d executions in the last hour with %.0f%% success rate",
				workflowID, summary.Total, summary.SuccessRate*100),
			Timestamp: time.Now().UTC(),
		}
		if err := m.alerts.Publish(ctx, alert); err != nil {
			// Re-arm next sweep rather than lose the breach
			m.armed[workflowID] = false
			m.logger.Error("Failed to publish breach alert",
				zap.String("workflowID", workflowID),
				zap.Error(err),
			)
		}
	}

	return nil
}

func summarize(workflowID string, executions []*workflow.Execution) *WorkflowMetrics {
	summary := &WorkflowMetrics{WorkflowID: workflowID}

	var totalDuration time.Duration
	var finished int
	for _, e := range executions {
		summary.Total++
		summary.TotalCost += e.CostEstimate
		switch e.Status {
		case workflow.StatusCompleted:
			summary.Successful++
		case workflow.StatusFailed, workflow.StatusTimeout, workflow.StatusCancelled:
			summary.Failed++
			if len(summary.RecentFailures) < recentFailureLimit {
				occurredAt := e.StartedAt
				if e.CompletedAt != nil {
					occurredAt = *e.CompletedAt
				}
				summary.RecentFailures = append(summary.RecentFailures, FailureRecord{
					ExecutionID:  e.ID,
					FailedStep:   e.FailedStep,
					ErrorMessage: e.ErrorMessage,
					OccurredAt:   occurredAt,
				})
			}
		}
		if e.IsTerminal() {
			totalDuration += e.Duration
			finished++
		}
	}

	if summary.Total > 0 {
		summary.SuccessRate = float64(summary.Successful) / float64(summary.Total)
	}
	if finished > 0 {
		summary.AvgDuration = totalDuration / time.Duration(finished)
	}
	return summary
}
