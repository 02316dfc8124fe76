package ports

import (
	"context"
	"time"

	"opsbrain/domain/knowledge"
	"opsbrain/domain/workflow"
)

// ChunkRepository defines the interface for knowledge chunk persistence.
// This is a port in hexagonal architecture - the domain doesn't know about
// the implementation.
type ChunkRepository interface {
	// Save persists a chunk
	Save(ctx context.Context, chunk *knowledge.Chunk) error

	// GetByID retrieves a chunk by its id within a tenant
	GetByID(ctx context.Context, tenantID, chunkID string) (*knowledge.Chunk, error)

	// ListByScope retrieves all chunks for a tenant visible to the given
	// agent (its own plus global-scoped chunks)
	ListByScope(ctx context.Context, tenantID, agentID string) ([]*knowledge.Chunk, error)

	// Delete removes a chunk
	Delete(ctx context.Context, tenantID, chunkID string) error
}

// LinkRepository is the durable source of truth for knowledge links
type LinkRepository interface {
	// Upsert writes a link keyed by (source, target, relation); a repeated
	// write updates weight and metadata in place
	Upsert(ctx context.Context, link *knowledge.Link) error

	// GetBySource retrieves all outgoing links from a chunk
	GetBySource(ctx context.Context, sourceID string) ([]*knowledge.Link, error)

	// ListRecent retrieves links created after the given instant, used by
	// the mirror reconciliation sweep
	ListRecent(ctx context.Context, since time.Time, limit int32) ([]*knowledge.Link, error)
}

// CacheRepository stores semantic cache entries. Implementations are
// best-effort; callers treat any error as a miss.
type CacheRepository interface {
	Get(ctx context.Context, fingerprint string) (*knowledge.CacheEntry, error)
	Put(ctx context.Context, entry *knowledge.CacheEntry) error
}

// ProposalRepository persists discovered workflow proposals
type ProposalRepository interface {
	// Create inserts a proposal if no proposal with the same name exists in
	// any status. Returns false when the name is already taken.
	Create(ctx context.Context, proposal *workflow.Proposal) (bool, error)

	// GetByName retrieves a proposal
	GetByName(ctx context.Context, name string) (*workflow.Proposal, error)

	// List retrieves proposals, optionally filtered by status
	List(ctx context.Context, status workflow.ProposalStatus) ([]*workflow.Proposal, error)

	// Update persists a reviewed proposal
	Update(ctx context.Context, proposal *workflow.Proposal) error
}

// ExecutionRepository persists workflow executions and their per-step
// completion checkpoints
type ExecutionRepository interface {
	// Save persists a new execution record
	Save(ctx context.Context, execution *workflow.Execution) error

	// Update persists lifecycle changes to an execution
	Update(ctx context.Context, execution *workflow.Execution) error

	// GetByID retrieves an execution
	GetByID(ctx context.Context, executionID string) (*workflow.Execution, error)

	// ListByWorkflow retrieves executions of a workflow started after the
	// given instant, newest first
	ListByWorkflow(ctx context.Context, workflowID string, since time.Time) ([]*workflow.Execution, error)

	// ListSince retrieves all executions started after the given instant
	ListSince(ctx context.Context, since time.Time) ([]*workflow.Execution, error)

	// MarkStepCompleted checkpoints a completed step so a restarted
	// execution does not run it again. Writing the same checkpoint twice is
	// a no-op.
	MarkStepCompleted(ctx context.Context, executionID string, stepIndex int, result map[string]interface{}) error

	// CompletedSteps returns the checkpointed results keyed by step index
	CompletedSteps(ctx context.Context, executionID string) (map[int]map[string]interface{}, error)
}

// BudgetRepository tracks per-tenant spend quotas
type BudgetRepository interface {
	// Debit atomically reserves the amount against the tenant's remaining
	// budget, failing when the balance is insufficient
	Debit(ctx context.Context, tenantID string, amount float64) error

	// Remaining returns the tenant's remaining budget
	Remaining(ctx context.Context, tenantID string) (float64, error)
}
