package workflow

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus is the lifecycle state of one workflow run
type ExecutionStatus string

const (
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
	StatusTimeout   ExecutionStatus = "timeout"
	StatusCancelled ExecutionStatus = "cancelled"
)

// Execution is one run instance of a blueprint. It is created when the run
// starts and becomes terminal once status leaves "running".
type Execution struct {
	ID             string          `json:"id"`
	WorkflowID     string          `json:"workflow_id"`
	WorkflowName   string          `json:"workflow_name"`
	TenantID       string          `json:"tenant_id"`
	Status         ExecutionStatus `json:"status"`
	StepsTotal     int             `json:"steps_total"`
	StepsCompleted int             `json:"steps_completed"`
	StepsFailed    int             `json:"steps_failed"`
	FailedStep     int             `json:"failed_step"`
	CostEstimate   float64         `json:"cost_estimate"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	Duration       time.Duration   `json:"duration"`
}

// NewExecution creates a running execution for a blueprint
func NewExecution(blueprint *Blueprint, tenantID string) *Execution {
	return &Execution{
		ID:           uuid.New().String(),
		WorkflowID:   blueprint.ID,
		WorkflowName: blueprint.Name,
		TenantID:     tenantID,
		Status:       StatusRunning,
		StepsTotal:   len(blueprint.Steps),
		FailedStep:   -1,
		StartedAt:    time.Now().UTC(),
	}
}

// Complete marks the execution as successfully finished
func (e *Execution) Complete(stepsCompleted int) {
	now := time.Now().UTC()
	e.Status = StatusCompleted
	e.StepsCompleted = stepsCompleted
	e.CompletedAt = &now
	e.Duration = now.Sub(e.StartedAt)
}

// Fail marks the execution as failed at the given step
func (e *Execution) Fail(stepIndex int, message string) {
	now := time.Now().UTC()
	e.Status = StatusFailed
	e.StepsFailed++
	e.FailedStep = stepIndex
	e.ErrorMessage = message
	e.CompletedAt = &now
	e.Duration = now.Sub(e.StartedAt)
}

// IsTerminal reports whether the execution has left the running state
func (e *Execution) IsTerminal() bool {
	return e.Status != StatusRunning
}

// Succeeded reports whether the execution completed normally
func (e *Execution) Succeeded() bool {
	return e.Status == StatusCompleted
}
