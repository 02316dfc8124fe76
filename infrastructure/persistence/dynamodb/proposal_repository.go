package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"opsbrain/application/ports"
	"opsbrain/domain/workflow"
	apperrors "opsbrain/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// ProposalRepository implements ports.ProposalRepository using DynamoDB.
// Name dedup relies on a conditional put: two discovery cycles racing on
// the same name cannot both insert.
type ProposalRepository struct {
	client      *dynamodb.Client
	tableName   string
	entityIndex string
	logger      *zap.Logger
}

// NewProposalRepository creates a new ProposalRepository
func NewProposalRepository(client *dynamodb.Client, tableName, entityIndex string, logger *zap.Logger) ports.ProposalRepository {
	return &ProposalRepository{
		client:      client,
		tableName:   tableName,
		entityIndex: entityIndex,
		logger:      logger,
	}
}

type proposalItem struct {
	PK              string  `dynamodbav:"PK"`     // PROPOSAL#<name>
	SK              string  `dynamodbav:"SK"`     // METADATA
	GSI1PK          string  `dynamodbav:"GSI1PK"` // PROPOSAL
	GSI1SK          string  `dynamodbav:"GSI1SK"` // <created_at>
	EntityType      string  `dynamodbav:"EntityType"`
	Name            string  `dynamodbav:"Name"`
	Description     string  `dynamodbav:"Description"`
	Category        string  `dynamodbav:"Category"`
	Definition      string  `dynamodbav:"Definition"` // JSON-encoded blueprint
	EstimatedCost   float64 `dynamodbav:"EstimatedCost"`
	ImpactAnalysis  string  `dynamodbav:"ImpactAnalysis"`
	DiscoveryMethod string  `dynamodbav:"DiscoveryMethod"`
	Status          string  `dynamodbav:"Status"`
	ReviewNote      string  `dynamodbav:"ReviewNote"`
	CreatedAt       string  `dynamodbav:"CreatedAt"`
	ReviewedAt      string  `dynamodbav:"ReviewedAt,omitempty"`
}

// Create inserts a proposal if no proposal with the same name exists in any
// status. Returns false when the name is already taken.
func (r *ProposalRepository) Create(ctx context.Context, proposal *workflow.Proposal) (bool, error) {
	item, err := toProposalItem(proposal)
	if err != nil {
		return false, err
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return false, fmt.Errorf("failed to marshal proposal: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var conditionalCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionalCheckFailed) {
			r.logger.Debug("Proposal already exists, skipping",
				zap.String("name", proposal.Name),
				zap.String("method", proposal.DiscoveryMethod),
			)
			return false, nil
		}
		return false, apperrors.NewDatabaseError("create proposal", err)
	}

	r.logger.Info("Proposal created",
		zap.String("name", proposal.Name),
		zap.String("category", proposal.Category),
		zap.String("method", proposal.DiscoveryMethod),
	)

	return true, nil
}

// GetByName retrieves a proposal
func (r *ProposalRepository) GetByName(ctx context.Context, name string) (*workflow.Proposal, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("PROPOSAL#%s", name)},
			"SK": &types.AttributeValueMemberS{Value: "METADATA"},
		},
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("get proposal", err)
	}
	if result.Item == nil {
		return nil, apperrors.NewNotFoundError("proposal")
	}

	var item proposalItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal proposal: %w", err)
	}
	return item.toDomain()
}

// List retrieves proposals via the entity index, newest first, optionally
// filtered by status
func (r *ProposalRepository) List(ctx context.Context, status workflow.ProposalStatus) ([]*workflow.Proposal, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(r.entityIndex),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: "PROPOSAL"},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if status != "" {
		input.FilterExpression = aws.String("#status = :status")
		input.ExpressionAttributeNames = map[string]string{"#status": "Status"}
		input.ExpressionAttributeValues[":status"] = &types.AttributeValueMemberS{Value: string(status)}
	}

	result, err := r.client.Query(ctx, input)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list proposals", err)
	}

	proposals := make([]*workflow.Proposal, 0, len(result.Items))
	for _, raw := range result.Items {
		var item proposalItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			r.logger.Warn("Failed to unmarshal proposal item", zap.Error(err))
			continue
		}
		proposal, err := item.toDomain()
		if err != nil {
			r.logger.Warn("Failed to restore proposal", zap.String("name", item.Name), zap.Error(err))
			continue
		}
		proposals = append(proposals, proposal)
	}

	return proposals, nil
}

// Update persists a reviewed proposal
func (r *ProposalRepository) Update(ctx context.Context, proposal *workflow.Proposal) error {
	item, err := toProposalItem(proposal)
	if err != nil {
		return err
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal proposal: %w", err)
	}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_exists(PK)"),
	}); err != nil {
		var conditionalCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionalCheckFailed) {
			return apperrors.NewNotFoundError("proposal")
		}
		return apperrors.NewDatabaseError("update proposal", err)
	}

	return nil
}

func toProposalItem(proposal *workflow.Proposal) (*proposalItem, error) {
	definition, err := json.Marshal(proposal.Definition)
	if err != nil {
		return nil, fmt.Errorf("failed to encode blueprint: %w", err)
	}

	item := &proposalItem{
		PK:              fmt.Sprintf("PROPOSAL#%s", proposal.Name),
		SK:              "METADATA",
		GSI1PK:          "PROPOSAL",
		GSI1SK:          proposal.CreatedAt.Format(time.RFC3339Nano),
		EntityType:      "PROPOSAL",
		Name:            proposal.Name,
		Description:     proposal.Description,
		Category:        proposal.Category,
		Definition:      string(definition),
		EstimatedCost:   proposal.EstimatedCost,
		ImpactAnalysis:  proposal.ImpactAnalysis,
		DiscoveryMethod: proposal.DiscoveryMethod,
		Status:          string(proposal.Status),
		ReviewNote:      proposal.ReviewNote,
		CreatedAt:       proposal.CreatedAt.Format(time.RFC3339Nano),
	}
	if proposal.ReviewedAt != nil {
		item.ReviewedAt = proposal.ReviewedAt.Format(time.RFC3339Nano)
	}
	return item, nil
}

func (i *proposalItem) toDomain() (*workflow.Proposal, error) {
	var definition workflow.Blueprint
	if err := json.Unmarshal([]byte(i.Definition), &definition); err != nil {
		return nil, fmt.Errorf("failed to decode blueprint: %w", err)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, i.CreatedAt)
	proposal := &workflow.Proposal{
		Name:            i.Name,
		Description:     i.Description,
		Category:        i.Category,
		Definition:      definition,
		EstimatedCost:   i.EstimatedCost,
		ImpactAnalysis:  i.ImpactAnalysis,
		DiscoveryMethod: i.DiscoveryMethod,
		Status:          workflow.ProposalStatus(i.Status),
		ReviewNote:      i.ReviewNote,
		CreatedAt:       createdAt,
	}
	if i.ReviewedAt != "" {
		reviewedAt, err := time.Parse(time.RFC3339Nano, i.ReviewedAt)
		if err == nil {
			proposal.ReviewedAt = &reviewedAt
		}
	}
	return proposal, nil
}
