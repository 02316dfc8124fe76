package ports

import (
	"context"
	"time"

	"opsbrain/domain/knowledge"
)

// EmbeddingProvider turns text into a fixed-dimension vector
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Dimensions() int
}

// AgentTask is a unit of work submitted to the agent-execution backend
type AgentTask struct {
	AgentType       string                 `json:"agent_type"`
	TaskDescription string                 `json:"task_description"`
	InputData       map[string]interface{} `json:"input_data"`
	Priority        string                 `json:"priority,omitempty"`
	Config          map[string]interface{} `json:"config,omitempty"`
}

// Agent task terminal statuses reported by the execution backend
const (
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
	TaskStatusCancelled = "cancelled"
)

// AgentTaskStatus is one poll result for a submitted task
type AgentTaskStatus struct {
	TaskID       string                 `json:"task_id"`
	Status       string                 `json:"status"`
	ResultData   map[string]interface{} `json:"result_data,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}

// AgentRunner is the asynchronous agent-execution backend: submit returns a
// task id, status is polled until terminal
type AgentRunner interface {
	Submit(ctx context.Context, task AgentTask) (string, error)
	Status(ctx context.Context, taskID string) (*AgentTaskStatus, error)
}

// SecretStore is a key-path lookup for tenant model overrides and provider
// credentials
type SecretStore interface {
	// Get returns the value at the key path; a missing key returns a
	// NOT_FOUND error
	Get(ctx context.Context, keyPath string) (string, error)
}

// GraphMirror is the optional graph-native fast store. Projection is
// best-effort; traversal errors make callers fall back to the relational
// source of truth.
type GraphMirror interface {
	Project(ctx context.Context, link *knowledge.Link) error
	Traverse(ctx context.Context, chunkID string, depth int) ([]knowledge.Related, error)
}

// Alert severities accepted by the admin notification channel
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert is an admin notification
type Alert struct {
	WorkflowID string    `json:"workflow_id,omitempty"`
	AlertType  string    `json:"alert_type"`
	Message    string    `json:"message"`
	Severity   string    `json:"severity"`
	Timestamp  time.Time `json:"timestamp"`
}

// AlertPublisher delivers alerts to the admin notification channel
type AlertPublisher interface {
	Publish(ctx context.Context, alert Alert) error
}

// ScheduleRecord is the stored form of a recurring trigger
type ScheduleRecord struct {
	ID             string     `json:"schedule_id"`
	CronExpression string     `json:"cron_expression"`
	SnapshotType   string     `json:"snapshot_type,omitempty"`
	TimeRange      string     `json:"time_range,omitempty"`
	Timezone       string     `json:"timezone,omitempty"`
	Description    string     `json:"description,omitempty"`
	Note           string     `json:"note,omitempty"`
	Enabled        bool       `json:"enabled"`
	CreatedAt      time.Time  `json:"created_at"`
	LastRun        *time.Time `json:"last_run,omitempty"`
}

// ScheduleBackend is the native scheduling service behind the schedule
// manager. The manager hands it an already-translated recurrence expression.
type ScheduleBackend interface {
	Put(ctx context.Context, record ScheduleRecord, nativeExpression string) error
	Get(ctx context.Context, scheduleID string) (*ScheduleRecord, bool, error)
	List(ctx context.Context) ([]ScheduleRecord, error)
	SetEnabled(ctx context.Context, scheduleID string, enabled bool, note string) error
	Delete(ctx context.Context, scheduleID string) error
	// Emit fires the schedule's trigger event immediately
	Emit(ctx context.Context, scheduleID string) error
}

// ExternalConnector reaches the CMS/e-commerce/CRM collaborators that
// workflow steps publish to and read from. Their internals are black boxes.
type ExternalConnector interface {
	Publish(ctx context.Context, target string, payload map[string]interface{}) error
	Fetch(ctx context.Context, target string, query map[string]interface{}) (map[string]interface{}, error)
	Update(ctx context.Context, target string, payload map[string]interface{}) error
}

// SupportTheme is a recurring support pain point mined from telemetry
type SupportTheme struct {
	Topic       string
	Occurrences int
	TenantCount int
}

// ActionSequence is a repeated manual multi-step sequence from action logs
type ActionSequence struct {
	Actions     []string
	Occurrences int
	TenantCount int
}

// TenantToolUsage summarises which tools a tenant drives and how it performs
type TenantToolUsage struct {
	TenantID       string
	Tools          []string
	ConversionRate float64
}

// ToolPair is a pair of tools frequently co-used by the same tenants
type ToolPair struct {
	ToolA       string
	ToolB       string
	TenantCount int
	Automated   bool
}

// TelemetryReader exposes the platform telemetry the discovery strategies
// mine
type TelemetryReader interface {
	SupportThemes(ctx context.Context, since time.Time) ([]SupportTheme, error)
	FrequentSequences(ctx context.Context, since time.Time) ([]ActionSequence, error)
	ToolUsageByTenant(ctx context.Context, since time.Time) ([]TenantToolUsage, error)
	CoUsedTools(ctx context.Context, since time.Time) ([]ToolPair, error)
}
