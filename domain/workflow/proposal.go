package workflow

import (
	"time"

	"opsbrain/pkg/errors"
)

// ProposalStatus tracks the approval lifecycle of a discovered workflow
type ProposalStatus string

const (
	ProposalProposed ProposalStatus = "proposed"
	ProposalApproved ProposalStatus = "approved"
	ProposalRejected ProposalStatus = "rejected"
)

// Proposal is a discovered, not-yet-approved candidate blueprint. Name is
// the dedup key: a repeat submission of an identical name is a no-op.
type Proposal struct {
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	Category        string         `json:"category"`
	Definition      Blueprint      `json:"workflow_definition"`
	EstimatedCost   float64        `json:"estimated_cost"`
	ImpactAnalysis  string         `json:"impact_analysis"`
	DiscoveryMethod string         `json:"discovery_method"`
	Status          ProposalStatus `json:"status"`
	ReviewNote      string         `json:"review_note,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	ReviewedAt      *time.Time     `json:"reviewed_at,omitempty"`
}

// NewProposal creates a proposal in the proposed state
func NewProposal(name, description, category, method string, definition Blueprint, estimatedCost float64, impact string) (*Proposal, error) {
	if name == "" {
		return nil, errors.NewValidationError("proposal name is required")
	}
	if err := definition.Validate(); err != nil {
		return nil, errors.Wrap(err, "proposal blueprint")
	}

	return &Proposal{
		Name:            name,
		Description:     description,
		Category:        category,
		Definition:      definition,
		EstimatedCost:   estimatedCost,
		ImpactAnalysis:  impact,
		DiscoveryMethod: method,
		Status:          ProposalProposed,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

// Approve transitions the proposal to approved
func (p *Proposal) Approve(note string) error {
	return p.review(ProposalApproved, note)
}

// Reject transitions the proposal to rejected
func (p *Proposal) Reject(note string) error {
	return p.review(ProposalRejected, note)
}

func (p *Proposal) review(status ProposalStatus, note string) error {
	if p.Status != ProposalProposed {
		return errors.NewConflictError("proposal has already been reviewed")
	}
	now := time.Now().UTC()
	p.Status = status
	p.ReviewNote = note
	p.ReviewedAt = &now
	return nil
}

// Deployable reports whether the proposal may be handed to the execution
// engine or schedule manager.
func (p *Proposal) Deployable() bool {
	return p.Status == ProposalApproved
}
