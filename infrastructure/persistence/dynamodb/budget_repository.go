package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"opsbrain/application/ports"
	apperrors "opsbrain/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// BudgetRepository implements ports.BudgetRepository using DynamoDB
// conditional updates, so concurrent debits against one tenant cannot
// overspend the balance.
type BudgetRepository struct {
	client        *dynamodb.Client
	tableName     string
	defaultBudget float64
	logger        *zap.Logger
}

// NewBudgetRepository creates a new BudgetRepository. Tenants without a
// budget item are initialized lazily with the default allowance.
func NewBudgetRepository(client *dynamodb.Client, tableName string, defaultBudget float64, logger *zap.Logger) ports.BudgetRepository {
	return &BudgetRepository{
		client:        client,
		tableName:     tableName,
		defaultBudget: defaultBudget,
		logger:        logger,
	}
}

func budgetKey(tenantID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("TENANT#%s", tenantID)},
		"SK": &types.AttributeValueMemberS{Value: "BUDGET"},
	}
}

// Debit atomically reserves the amount against the tenant's remaining budget
func (r *BudgetRepository) Debit(ctx context.Context, tenantID string, amount float64) error {
	if amount <= 0 {
		return nil
	}

	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 budgetKey(tenantID),
		UpdateExpression:    aws.String("SET Remaining = Remaining - :amount"),
		ConditionExpression: aws.String("attribute_exists(PK) AND Remaining >= :amount"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":amount": &types.AttributeValueMemberN{Value: fmt.Sprintf("%g", amount)},
		},
	})
	if err == nil {
		return nil
	}

	var conditionalCheckFailed *types.ConditionalCheckFailedException
	if !errors.As(err, &conditionalCheckFailed) {
		return apperrors.NewDatabaseError("debit budget", err)
	}

	// Either the tenant has no budget item yet or the balance is too low.
	// Try to initialize the item with the default allowance minus this
	// debit; losing that race means the item exists and the balance truly
	// is insufficient.
	if r.defaultBudget >= amount {
		if initErr := r.initialize(ctx, tenantID, r.defaultBudget-amount); initErr == nil {
			return nil
		}
	}

	return apperrors.NewBudgetExceededError(tenantID, amount)
}

// Remaining returns the tenant's remaining budget. Tenants without an item
// report the default allowance.
func (r *BudgetRepository) Remaining(ctx context.Context, tenantID string) (float64, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       budgetKey(tenantID),
	})
	if err != nil {
		return 0, apperrors.NewDatabaseError("get budget", err)
	}
	if result.Item == nil {
		return r.defaultBudget, nil
	}

	remaining, ok := result.Item["Remaining"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("budget item for tenant %s missing Remaining attribute", tenantID)
	}

	var value float64
	if _, err := fmt.Sscanf(remaining.Value, "%g", &value); err != nil {
		return 0, fmt.Errorf("invalid budget value %q: %w", remaining.Value, err)
	}
	return value, nil
}

func (r *BudgetRepository) initialize(ctx context.Context, tenantID string, remaining float64) error {
	item := map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: fmt.Sprintf("TENANT#%s", tenantID)},
		"SK":         &types.AttributeValueMemberS{Value: "BUDGET"},
		"EntityType": &types.AttributeValueMemberS{Value: "BUDGET"},
		"TenantID":   &types.AttributeValueMemberS{Value: tenantID},
		"Remaining":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%g", remaining)},
	}

	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return err
	}

	r.logger.Info("Tenant budget initialized",
		zap.String("tenantID", tenantID),
		zap.Float64("remaining", remaining),
	)
	return nil
}
