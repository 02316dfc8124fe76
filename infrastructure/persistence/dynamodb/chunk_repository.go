package dynamodb

import (
	"context"
	"fmt"
	"time"

	"opsbrain/application/ports"
	"opsbrain/domain/knowledge"
	apperrors "opsbrain/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// ChunkRepository implements ports.ChunkRepository using DynamoDB
type ChunkRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewChunkRepository creates a new ChunkRepository
func NewChunkRepository(client *dynamodb.Client, tableName string, logger *zap.Logger) ports.ChunkRepository {
	return &ChunkRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// chunkItem represents the DynamoDB item structure for a knowledge chunk
type chunkItem struct {
	PK         string            `dynamodbav:"PK"` // TENANT#<tenant_id>
	SK         string            `dynamodbav:"SK"` // CHUNK#<chunk_id>
	EntityType string            `dynamodbav:"EntityType"`
	ChunkID    string            `dynamodbav:"ChunkID"`
	TenantID   string            `dynamodbav:"TenantID"`
	AgentID    string            `dynamodbav:"AgentID"`
	Content    string            `dynamodbav:"Content"`
	Embedding  []float64         `dynamodbav:"Embedding"`
	Metadata   map[string]string `dynamodbav:"Metadata"`
	CreatedAt  string            `dynamodbav:"CreatedAt"`
}

func chunkKey(tenantID, chunkID string) (string, string) {
	return fmt.Sprintf("TENANT#%s", tenantID), fmt.Sprintf("CHUNK#%s", chunkID)
}

// Save persists a chunk to DynamoDB
func (r *ChunkRepository) Save(ctx context.Context, chunk *knowledge.Chunk) error {
	pk, sk := chunkKey(chunk.TenantID, chunk.ID)
	item := chunkItem{
		PK:         pk,
		SK:         sk,
		EntityType: "CHUNK",
		ChunkID:    chunk.ID,
		TenantID:   chunk.TenantID,
		AgentID:    chunk.AgentID,
		Content:    chunk.Content,
		Embedding:  chunk.Embedding,
		Metadata:   chunk.Metadata,
		CreatedAt:  chunk.CreatedAt.Format(time.RFC3339Nano),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal chunk: %w", err)
	}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	}); err != nil {
		return apperrors.NewDatabaseError("save chunk", err)
	}

	r.logger.Debug("Chunk saved",
		zap.String("chunkID", chunk.ID),
		zap.String("tenantID", chunk.TenantID),
		zap.String("agentID", chunk.AgentID),
	)

	return nil
}

// GetByID retrieves a chunk by its id within a tenant
func (r *ChunkRepository) GetByID(ctx context.Context, tenantID, chunkID string) (*knowledge.Chunk, error) {
	pk, sk := chunkKey(tenantID, chunkID)
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("get chunk", err)
	}
	if result.Item == nil {
		return nil, apperrors.NewNotFoundError("chunk")
	}

	var item chunkItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal chunk: %w", err)
	}

	return item.toDomain()
}

// ListByScope retrieves all chunks for a tenant visible to the given agent.
// Scope filtering (own agent or global) happens server-side via a filter
// expression; similarity ranking happens in the retrieval service.
func (r *ChunkRepository) ListByScope(ctx context.Context, tenantID, agentID string) ([]*knowledge.Chunk, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(fmt.Sprintf("TENANT#%s", tenantID))).
		And(expression.Key("SK").BeginsWith("CHUNK#"))
	filter := expression.Name("AgentID").Equal(expression.Value(agentID)).
		Or(expression.Name("AgentID").Equal(expression.Value(knowledge.GlobalAgentScope)))

	expr, err := expression.NewBuilder().
		WithKeyCondition(keyCond).
		WithFilter(filter).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build chunk query expression: %w", err)
	}

	var chunks []*knowledge.Chunk
	var lastKey map[string]types.AttributeValue

	for {
		result, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(r.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         lastKey,
		})
		if err != nil {
			return nil, apperrors.NewDatabaseError("list chunks", err)
		}

		for _, raw := range result.Items {
			var item chunkItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				r.logger.Warn("Failed to unmarshal chunk item", zap.Error(err))
				continue
			}
			chunk, err := item.toDomain()
			if err != nil {
				r.logger.Warn("Failed to restore chunk", zap.String("chunkID", item.ChunkID), zap.Error(err))
				continue
			}
			chunks = append(chunks, chunk)
		}

		if result.LastEvaluatedKey == nil {
			break
		}
		lastKey = result.LastEvaluatedKey
	}

	return chunks, nil
}

// Delete removes a chunk
func (r *ChunkRepository) Delete(ctx context.Context, tenantID, chunkID string) error {
	pk, sk := chunkKey(tenantID, chunkID)
	if _, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
	}); err != nil {
		return apperrors.NewDatabaseError("delete chunk", err)
	}
	return nil
}

func (i *chunkItem) toDomain() (*knowledge.Chunk, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, i.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid chunk timestamp %q: %w", i.CreatedAt, err)
	}
	return &knowledge.Chunk{
		ID:        i.ChunkID,
		TenantID:  i.TenantID,
		AgentID:   i.AgentID,
		Content:   i.Content,
		Embedding: i.Embedding,
		Metadata:  i.Metadata,
		CreatedAt: createdAt,
	}, nil
}
