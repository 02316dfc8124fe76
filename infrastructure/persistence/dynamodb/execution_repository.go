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

// ExecutionRepository implements ports.ExecutionRepository using DynamoDB.
// Execution metadata and per-step checkpoints share a partition so one
// query restores the full durable state of a run.
type ExecutionRepository struct {
	client        *dynamodb.Client
	tableName     string
	entityIndex   string
	workflowIndex string
	logger        *zap.Logger
}

// NewExecutionRepository creates a new ExecutionRepository
func NewExecutionRepository(client *dynamodb.Client, tableName, entityIndex, workflowIndex string, logger *zap.Logger) ports.ExecutionRepository {
	return &ExecutionRepository{
		client:        client,
		tableName:     tableName,
		entityIndex:   entityIndex,
		workflowIndex: workflowIndex,
		logger:        logger,
	}
}

type executionItem struct {
	PK             string  `dynamodbav:"PK"`     // EXECUTION#<id>
	SK             string  `dynamodbav:"SK"`     // METADATA
	GSI1PK         string  `dynamodbav:"GSI1PK"` // EXECUTION
	GSI1SK         string  `dynamodbav:"GSI1SK"` // <started_at>
	GSI2PK         string  `dynamodbav:"GSI2PK"` // WORKFLOW#<workflow_id>
	GSI2SK         string  `dynamodbav:"GSI2SK"` // <started_at>
	EntityType     string  `dynamodbav:"EntityType"`
	ExecutionID    string  `dynamodbav:"ExecutionID"`
	WorkflowID     string  `dynamodbav:"WorkflowID"`
	WorkflowName   string  `dynamodbav:"WorkflowName"`
	TenantID       string  `dynamodbav:"TenantID"`
	Status         string  `dynamodbav:"Status"`
	StepsTotal     int     `dynamodbav:"StepsTotal"`
	StepsCompleted int     `dynamodbav:"StepsCompleted"`
	StepsFailed    int     `dynamodbav:"StepsFailed"`
	FailedStep     int     `dynamodbav:"FailedStep"`
	CostEstimate   float64 `dynamodbav:"CostEstimate"`
	ErrorMessage   string  `dynamodbav:"ErrorMessage"`
	StartedAt      string  `dynamodbav:"StartedAt"`
	CompletedAt    string  `dynamodbav:"CompletedAt,omitempty"`
	DurationMillis int64   `dynamodbav:"DurationMillis"`
}

type stepCheckpointItem struct {
	PK         string `dynamodbav:"PK"` // EXECUTION#<id>
	SK         string `dynamodbav:"SK"` // STEP#<index, zero padded>
	EntityType string `dynamodbav:"EntityType"`
	StepIndex  int    `dynamodbav:"StepIndex"`
	Result     string `dynamodbav:"Result"` // JSON-encoded step result
	CompletedAt string `dynamodbav:"CompletedAt"`
}

// Save persists a new execution record
func (r *ExecutionRepository) Save(ctx context.Context, execution *workflow.Execution) error {
	return r.put(ctx, execution, "save execution")
}

// Update persists lifecycle changes to an execution
func (r *ExecutionRepository) Update(ctx context.Context, execution *workflow.Execution) error {
	return r.put(ctx, execution, "update execution")
}

func (r *ExecutionRepository) put(ctx context.Context, execution *workflow.Execution, operation string) error {
	item := toExecutionItem(execution)
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	}); err != nil {
		return apperrors.NewDatabaseError(operation, err)
	}
	return nil
}

// GetByID retrieves an execution
func (r *ExecutionRepository) GetByID(ctx context.Context, executionID string) (*workflow.Execution, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("EXECUTION#%s", executionID)},
			"SK": &types.AttributeValueMemberS{Value: "METADATA"},
		},
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("get execution", err)
	}
	if result.Item == nil {
		return nil, apperrors.NewNotFoundError("execution")
	}

	var item executionItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution: %w", err)
	}
	return item.toDomain(), nil
}

// ListByWorkflow retrieves executions of a workflow started after the given
// instant, newest first
func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string, since time.Time) ([]*workflow.Execution, error) {
	return r.queryExecutions(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(r.workflowIndex),
		KeyConditionExpression: aws.String("GSI2PK = :pk AND GSI2SK > :since"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":    &types.AttributeValueMemberS{Value: fmt.Sprintf("WORKFLOW#%s", workflowID)},
			":since": &types.AttributeValueMemberS{Value: since.UTC().Format(time.RFC3339Nano)},
		},
		ScanIndexForward: aws.Bool(false),
	})
}

// ListSince retrieves all executions started after the given instant
func (r *ExecutionRepository) ListSince(ctx context.Context, since time.Time) ([]*workflow.Execution, error) {
	return r.queryExecutions(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(r.entityIndex),
		KeyConditionExpression: aws.String("GSI1PK = :pk AND GSI1SK > :since"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":    &types.AttributeValueMemberS{Value: "EXECUTION"},
			":since": &types.AttributeValueMemberS{Value: since.UTC().Format(time.RFC3339Nano)},
		},
		ScanIndexForward: aws.Bool(false),
	})
}

func (r *ExecutionRepository) queryExecutions(ctx context.Context, input *dynamodb.QueryInput) ([]*workflow.Execution, error) {
	var executions []*workflow.Execution
	var lastKey map[string]types.AttributeValue

	for {
		input.ExclusiveStartKey = lastKey
		result, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, apperrors.NewDatabaseError("query executions", err)
		}

		for _, raw := range result.Items {
			var item executionItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				r.logger.Warn("Failed to unmarshal execution item", zap.Error(err))
				continue
			}
			executions = append(executions, item.toDomain())
		}

		if result.LastEvaluatedKey == nil {
			break
		}
		lastKey = result.LastEvaluatedKey
	}

	return executions, nil
}

// MarkStepCompleted checkpoints a completed step. The conditional put makes
// the checkpoint idempotent under at-least-once step delivery.
func (r *ExecutionRepository) MarkStepCompleted(ctx context.Context, executionID string, stepIndex int, result map[string]interface{}) error {
	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode step result: %w", err)
	}

	item := stepCheckpointItem{
		PK:          fmt.Sprintf("EXECUTION#%s", executionID),
		SK:          fmt.Sprintf("STEP#%05d", stepIndex),
		EntityType:  "STEP_CHECKPOINT",
		StepIndex:   stepIndex,
		Result:      string(encoded),
		CompletedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal step checkpoint: %w", err)
	}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	}); err != nil {
		var conditionalCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionalCheckFailed) {
			// Already checkpointed by an earlier attempt
			return nil
		}
		return apperrors.NewDatabaseError("checkpoint step", err)
	}

	return nil
}

// CompletedSteps returns the checkpointed results keyed by step index
func (r *ExecutionRepository) CompletedSteps(ctx context.Context, executionID string) (map[int]map[string]interface{}, error) {
	result, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: fmt.Sprintf("EXECUTION#%s", executionID)},
			":sk": &types.AttributeValueMemberS{Value: "STEP#"},
		},
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("query step checkpoints", err)
	}

	steps := make(map[int]map[string]interface{}, len(result.Items))
	for _, raw := range result.Items {
		var item stepCheckpointItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			r.logger.Warn("Failed to unmarshal step checkpoint", zap.Error(err))
			continue
		}
		var stepResult map[string]interface{}
		if err := json.Unmarshal([]byte(item.Result), &stepResult); err != nil {
			r.logger.Warn("Failed to decode step result",
				zap.Int("stepIndex", item.StepIndex),
				zap.Error(err),
			)
			continue
		}
		steps[item.StepIndex] = stepResult
	}

	return steps, nil
}

func toExecutionItem(execution *workflow.Execution) *executionItem {
	startedAt := execution.StartedAt.UTC().Format(time.RFC3339Nano)
	item := &executionItem{
		PK:             fmt.Sprintf("EXECUTION#%s", execution.ID),
		SK:             "METADATA",
		GSI1PK:         "EXECUTION",
		GSI1SK:         startedAt,
		GSI2PK:         fmt.Sprintf("WORKFLOW#%s", execution.WorkflowID),
		GSI2SK:         startedAt,
		EntityType:     "EXECUTION",
		ExecutionID:    execution.ID,
		WorkflowID:     execution.WorkflowID,
		WorkflowName:   execution.WorkflowName,
		TenantID:       execution.TenantID,
		Status:         string(execution.Status),
		StepsTotal:     execution.StepsTotal,
		StepsCompleted: execution.StepsCompleted,
		StepsFailed:    execution.StepsFailed,
		FailedStep:     execution.FailedStep,
		CostEstimate:   execution.CostEstimate,
		ErrorMessage:   execution.ErrorMessage,
		StartedAt:      startedAt,
		DurationMillis: execution.Duration.Milliseconds(),
	}
	if execution.CompletedAt != nil {
		item.CompletedAt = execution.CompletedAt.UTC().Format(time.RFC3339Nano)
	}
	return item
}

func (i *executionItem) toDomain() *workflow.Execution {
	startedAt, _ := time.Parse(time.RFC3339Nano, i.StartedAt)
	execution := &workflow.Execution{
		ID:             i.ExecutionID,
		WorkflowID:     i.WorkflowID,
		WorkflowName:   i.WorkflowName,
		TenantID:       i.TenantID,
		Status:         workflow.ExecutionStatus(i.Status),
		StepsTotal:     i.StepsTotal,
		StepsCompleted: i.StepsCompleted,
		StepsFailed:    i.StepsFailed,
		FailedStep:     i.FailedStep,
		CostEstimate:   i.CostEstimate,
		ErrorMessage:   i.ErrorMessage,
		StartedAt:      startedAt,
		Duration:       time.Duration(i.DurationMillis) * time.Millisecond,
	}
	if i.CompletedAt != "" {
		completedAt, err := time.Parse(time.RFC3339Nano, i.CompletedAt)
		if err == nil {
			execution.CompletedAt = &completedAt
		}
	}
	return execution
}
