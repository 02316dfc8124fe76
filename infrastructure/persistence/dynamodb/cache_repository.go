package dynamodb

import (
	"context"
	"encoding/json"
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

// CacheRepository implements ports.CacheRepository using DynamoDB with TTL
// expiry. Entries are best-effort; the semantic cache treats every error
// here as a miss.
type CacheRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewCacheRepository creates a new CacheRepository
func NewCacheRepository(client *dynamodb.Client, tableName string, logger *zap.Logger) ports.CacheRepository {
	return &CacheRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

type cacheItem struct {
	PK         string            `dynamodbav:"PK"` // CACHE#<fingerprint>
	SK         string            `dynamodbav:"SK"` // ENTRY
	EntityType string            `dynamodbav:"EntityType"`
	Response   string            `dynamodbav:"Response"` // JSON-encoded payload
	Metadata   map[string]string `dynamodbav:"Metadata"`
	CreatedAt  string            `dynamodbav:"CreatedAt"`
	TTL        int64             `dynamodbav:"TTL"`
}

// Get retrieves a cache entry by fingerprint. Expired-but-not-yet-swept
// items are treated as misses.
func (r *CacheRepository) Get(ctx context.Context, fingerprint string) (*knowledge.CacheEntry, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("CACHE#%s", fingerprint)},
			"SK": &types.AttributeValueMemberS{Value: "ENTRY"},
		},
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("get cache entry", err)
	}
	if result.Item == nil {
		return nil, apperrors.NewNotFoundError("cache entry")
	}

	var item cacheItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}

	expiresAt := time.Unix(item.TTL, 0)
	if time.Now().After(expiresAt) {
		return nil, apperrors.NewNotFoundError("cache entry")
	}

	var response map[string]interface{}
	if err := json.Unmarshal([]byte(item.Response), &response); err != nil {
		return nil, fmt.Errorf("failed to decode cached response: %w", err)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, item.CreatedAt)
	return &knowledge.CacheEntry{
		Fingerprint: fingerprint,
		Response:    response,
		Metadata:    item.Metadata,
		CreatedAt:   createdAt,
		ExpiresAt:   expiresAt,
	}, nil
}

// Put stores a cache entry with its TTL
func (r *CacheRepository) Put(ctx context.Context, entry *knowledge.CacheEntry) error {
	response, err := json.Marshal(entry.Response)
	if err != nil {
		return fmt.Errorf("failed to encode response for cache: %w", err)
	}

	item := cacheItem{
		PK:         fmt.Sprintf("CACHE#%s", entry.Fingerprint),
		SK:         "ENTRY",
		EntityType: "CACHE_ENTRY",
		Response:   string(response),
		Metadata:   entry.Metadata,
		CreatedAt:  entry.CreatedAt.Format(time.RFC3339Nano),
		TTL:        entry.ExpiresAt.Unix(),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	}); err != nil {
		return apperrors.NewDatabaseError("put cache entry", err)
	}

	return nil
}
