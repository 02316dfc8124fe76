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
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// LinkRepository implements ports.LinkRepository using DynamoDB. It is the
// durable source of truth for knowledge links; the graph-native mirror is a
// projection of these items.
type LinkRepository struct {
	client      *dynamodb.Client
	tableName   string
	entityIndex string
	logger      *zap.Logger
}

// NewLinkRepository creates a new LinkRepository
func NewLinkRepository(client *dynamodb.Client, tableName, entityIndex string, logger *zap.Logger) ports.LinkRepository {
	return &LinkRepository{
		client:      client,
		tableName:   tableName,
		entityIndex: entityIndex,
		logger:      logger,
	}
}

// linkItem represents the DynamoDB item structure for a knowledge link.
// The sort key encodes the full unique triple so repeated writes land on
// the same item.
type linkItem struct {
	PK         string            `dynamodbav:"PK"`     // CHUNK#<source_id>
	SK         string            `dynamodbav:"SK"`     // LINK#<target_id>#<relation>
	GSI1PK     string            `dynamodbav:"GSI1PK"` // LINK
	GSI1SK     string            `dynamodbav:"GSI1SK"` // <created_at>
	EntityType string            `dynamodbav:"EntityType"`
	SourceID   string            `dynamodbav:"SourceID"`
	TargetID   string            `dynamodbav:"TargetID"`
	Relation   string            `dynamodbav:"Relation"`
	Weight     float64           `dynamodbav:"Weight"`
	Metadata   map[string]string `dynamodbav:"Metadata"`
	CreatedAt  string            `dynamodbav:"CreatedAt"`
}

func linkKey(link *knowledge.Link) (string, string) {
	return fmt.Sprintf("CHUNK#%s", link.SourceID),
		fmt.Sprintf("LINK#%s#%s", link.TargetID, link.Relation)
}

// Upsert writes a link keyed by (source, target, relation). Concurrent
// writers race safely: the update is a single conditional-free UpdateItem,
// so the last write wins on weight and metadata while CreatedAt keeps the
// first writer's value.
func (r *LinkRepository) Upsert(ctx context.Context, link *knowledge.Link) error {
	pk, sk := linkKey(link)
	now := link.CreatedAt.Format(time.RFC3339Nano)

	metadataAV, err := attributevalue.Marshal(link.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal link metadata: %w", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
		UpdateExpression: aws.String(
			"SET Weight = :weight, Metadata = :metadata, " +
				"EntityType = :entityType, SourceID = :source, TargetID = :target, Relation = :relation, " +
				"GSI1PK = :gsi1pk, GSI1SK = if_not_exists(GSI1SK, :createdAt), " +
				"CreatedAt = if_not_exists(CreatedAt, :createdAt)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":weight":     &types.AttributeValueMemberN{Value: fmt.Sprintf("%g", link.Weight)},
			":metadata":   metadataAV,
			":entityType": &types.AttributeValueMemberS{Value: "LINK"},
			":source":     &types.AttributeValueMemberS{Value: link.SourceID},
			":target":     &types.AttributeValueMemberS{Value: link.TargetID},
			":relation":   &types.AttributeValueMemberS{Value: link.Relation},
			":gsi1pk":     &types.AttributeValueMemberS{Value: "LINK"},
			":createdAt":  &types.AttributeValueMemberS{Value: now},
		},
	})
	if err != nil {
		return apperrors.NewDatabaseError("upsert link", err)
	}

	r.logger.Debug("Link upserted",
		zap.String("sourceID", link.SourceID),
		zap.String("targetID", link.TargetID),
		zap.String("relation", link.Relation),
		zap.Float64("weight", link.Weight),
	)

	return nil
}

// GetBySource retrieves all outgoing links from a chunk
func (r *LinkRepository) GetBySource(ctx context.Context, sourceID string) ([]*knowledge.Link, error) {
	result, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: fmt.Sprintf("CHUNK#%s", sourceID)},
			":sk": &types.AttributeValueMemberS{Value: "LINK#"},
		},
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("query links", err)
	}

	links := make([]*knowledge.Link, 0, len(result.Items))
	for _, raw := range result.Items {
		var item linkItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			r.logger.Warn("Failed to unmarshal link item", zap.Error(err))
			continue
		}
		links = append(links, item.toDomain())
	}

	return links, nil
}

// ListRecent retrieves links created after the given instant via the entity
// index, used by the mirror reconciliation sweep
func (r *LinkRepository) ListRecent(ctx context.Context, since time.Time, limit int32) ([]*knowledge.Link, error) {
	result, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(r.entityIndex),
		KeyConditionExpression: aws.String("GSI1PK = :pk AND GSI1SK > :since"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":    &types.AttributeValueMemberS{Value: "LINK"},
			":since": &types.AttributeValueMemberS{Value: since.Format(time.RFC3339Nano)},
		},
		Limit: aws.Int32(limit),
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("list recent links", err)
	}

	links := make([]*knowledge.Link, 0, len(result.Items))
	for _, raw := range result.Items {
		var item linkItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			r.logger.Warn("Failed to unmarshal link item", zap.Error(err))
			continue
		}
		links = append(links, item.toDomain())
	}

	return links, nil
}

func (i *linkItem) toDomain() *knowledge.Link {
	createdAt, _ := time.Parse(time.RFC3339Nano, i.CreatedAt)
	return &knowledge.Link{
		SourceID:  i.SourceID,
		TargetID:  i.TargetID,
		Relation:  i.Relation,
		Weight:    i.Weight,
		Metadata:  i.Metadata,
		CreatedAt: createdAt,
	}
}
