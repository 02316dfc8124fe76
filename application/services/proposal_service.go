package services

import (
	"context"
	"fmt"

	"opsbrain/application/ports"
	"opsbrain/domain/workflow"
	"opsbrain/pkg/errors"

	"go.uber.org/zap"
)

// ProposalService is the review surface for discovered proposals: listing,
// approval, rejection, and deployment of approved ones.
type ProposalService struct {
	proposals ports.ProposalRepository
	schedules *ScheduleManager
	engine    *Engine
	logger    *zap.Logger
}

// NewProposalService creates a new ProposalService
func NewProposalService(proposals ports.ProposalRepository, schedules *ScheduleManager, engine *Engine, logger *zap.Logger) *ProposalService {
	return &ProposalService{
		proposals: proposals,
		schedules: schedules,
		engine:    engine,
		logger:    logger,
	}
}

// List returns proposals, optionally filtered by status
func (s *ProposalService) List(ctx context.Context, status workflow.ProposalStatus) ([]*workflow.Proposal, error) {
	return s.proposals.List(ctx, status)
}

// Get returns one proposal by name
func (s *ProposalService) Get(ctx context.Context, name string) (*workflow.Proposal, error) {
	return s.proposals.GetByName(ctx, name)
}

// Approve marks a proposal approved. Reviewing an already-reviewed proposal
// is a conflict.
func (s *ProposalService) Approve(ctx context.Context, name, note string) (*workflow.Proposal, error) {
	return s.review(ctx, name, note, (*workflow.Proposal).Approve)
}

// Reject marks a proposal rejected
func (s *ProposalService) Reject(ctx context.Context, name, note string) (*workflow.Proposal, error) {
	return s.review(ctx, name, note, (*workflow.Proposal).Reject)
}

func (s *ProposalService) review(ctx context.Context, name, note string, transition func(*workflow.Proposal, string) error) (*workflow.Proposal, error) {
	proposal, err := s.proposals.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := transition(proposal, note); err != nil {
		return nil, err
	}
	if err := s.proposals.Update(ctx, proposal); err != nil {
		return nil, err
	}

	s.logger.Info("Proposal reviewed",
		zap.String("name", name),
		zap.String("status", string(proposal.Status)),
	)
	return proposal, nil
}

// Deploy hands an approved proposal to the scheduler when its blueprint
// carries a schedule, otherwise runs it once immediately. Only approved
// proposals deploy.
func (s *ProposalService) Deploy(ctx context.Context, name, tenantID string) (*workflow.Execution, error) {
	proposal, err := s.proposals.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if !proposal.Deployable() {
		return nil, errors.NewConflictError(fmt.Sprintf("proposal %q is %s, only approved proposals deploy", name, proposal.Status))
	}

	blueprint := proposal.Definition
	if blueprint.ID == "" {
		blueprint.ID = slugify(proposal.Name)
	}

	if blueprint.Config.Schedule != "" {
		err := s.schedules.Create(ctx, ports.ScheduleRecord{
			ID:             blueprint.ID,
			CronExpression: blueprint.Config.Schedule,
			Description:    proposal.Description,
		})
		if err != nil {
			return nil, err
		}
		s.logger.Info("Proposal deployed as schedule",
			zap.String("name", name),
			zap.String("scheduleID", blueprint.ID),
		)
		return nil, nil
	}

	return s.engine.Execute(ctx, &blueprint, tenantID)
}
