package services

import (
	"context"
	"fmt"
	"os"
	"time"

	"opsbrain/application/ports"
	"opsbrain/domain/workflow"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	discoveryLockResource = "workflow-discovery"
	discoveryLockDuration = 10 * time.Minute
	discoveryWindow       = 7 * 24 * time.Hour
)

// LockHandle is an acquired single-flight lock
type LockHandle interface {
	Release(ctx context.Context) error
}

// CycleLocker guards a periodic job against overlapping cycles across
// processes
type CycleLocker interface {
	Acquire(ctx context.Context, resourceName, ownerID string, lockDuration time.Duration) (LockHandle, error)
}

// DiscoveryStrategy is one way of mining telemetry for automatable workflows
type DiscoveryStrategy interface {
	Name() string
	Discover(ctx context.Context, telemetry ports.TelemetryReader, since time.Time) ([]ProposalDraft, error)
}

// ProposalDraft is a strategy's raw output before persistence
type ProposalDraft struct {
	Name           string
	Description    string
	Category       string
	EstimatedCost  float64
	ImpactAnalysis string
	Definition     workflow.Blueprint
}

func (d ProposalDraft) toProposal(method string) (*workflow.Proposal, error) {
	return workflow.NewProposal(d.Name, d.Description, d.Category, method, d.Definition, d.EstimatedCost, d.ImpactAnalysis)
}

// Discovery is the periodic batch job that mines platform telemetry and
// submits deduplicated workflow proposals for approval. One cycle runs at
// most once across the fleet, enforced by the cycle lock.
type Discovery struct {
	proposals  ports.ProposalRepository
	telemetry  ports.TelemetryReader
	locker     CycleLocker
	strategies []DiscoveryStrategy
	ownerID    string
	logger     *zap.Logger
}

// NewDiscovery creates a Discovery agent with the standard strategy set
func NewDiscovery(proposals ports.ProposalRepository, telemetry ports.TelemetryReader, locker CycleLocker, logger *zap.Logger) *Discovery {
	hostname, _ := os.Hostname()
	return &Discovery{
		proposals: proposals,
		telemetry: telemetry,
		locker:    locker,
		strategies: []DiscoveryStrategy{
			&supportPainPointStrategy{},
			&manualSequenceStrategy{},
			&peerToolGapStrategy{},
			&integrationGapStrategy{},
		},
		ownerID: fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8]),
		logger:  logger,
	}
}

// RunCycle executes one discovery pass and returns how many new proposals
// were created. A cycle already running elsewhere makes this a quiet no-op.
func (d *Discovery) RunCycle(ctx context.Context) (int, error) {
	lock, err := d.locker.Acquire(ctx, discoveryLockResource, d.ownerID, discoveryLockDuration)
	if err != nil {
		d.logger.Info("Skipping discovery cycle, lock not acquired", zap.Error(err))
		return 0, nil
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			d.logger.Warn("Failed to release discovery lock", zap.Error(err))
		}
	}()

	since := time.Now().UTC().Add(-discoveryWindow)
	created := 0

	for _, strategy := range d.strategies {
		drafts, err := strategy.Discover(ctx, d.telemetry, since)
		if err != nil {
			d.logger.Warn("Discovery strategy failed",
				zap.String("strategy", strategy.Name()),
				zap.Error(err),
			)
			continue
		}

		for _, draft := range drafts {
			proposal, err := draft.toProposal(strategy.Name())
			if err != nil {
				d.logger.Warn("Discarding invalid proposal draft",
					zap.String("strategy", strategy.Name()),
					zap.String("name", draft.Name),
					zap.Error(err),
				)
				continue
			}

			inserted, err := d.proposals.Create(ctx, proposal)
			if err != nil {
				d.logger.Warn("Failed to persist proposal",
					zap.String("name", proposal.Name),
					zap.Error(err),
				)
				continue
			}
			if !inserted {
				d.logger.Debug("Proposal name already exists, skipping",
					zap.String("name", proposal.Name),
				)
				continue
			}
			created++
			d.logger.Info("Workflow proposal created",
				zap.String("name", proposal.Name),
				zap.String("strategy", strategy.Name()),
			)
		}
	}

	d.logger.Info("Discovery cycle finished", zap.Int("created", created))
	return created, nil
}
