package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// ErrLockHeld is returned when the lock is owned by another process
var ErrLockHeld = errors.New("lock already held")

// DistributedLock provides distributed locking using DynamoDB conditional
// writes. The discovery agent and schedule triggers use it to stay
// single-flight across processes.
type DistributedLock struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewDistributedLock creates a new distributed lock instance
func NewDistributedLock(client *dynamodb.Client, tableName string, logger *zap.Logger) *DistributedLock {
	return &DistributedLock{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// Acquire attempts to acquire a distributed lock for the given resource.
// Returns ErrLockHeld when another owner holds an unexpired lock.
func (dl *DistributedLock) Acquire(ctx context.Context, resourceName, ownerID string, lockDuration time.Duration) (*Lock, error) {
	lockID := fmt.Sprintf("%s_%d", ownerID, time.Now().UnixNano())
	now := time.Now()
	expiresAt := now.Add(lockDuration)

	item := map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: fmt.Sprintf("LOCK#%s", resourceName)},
		"SK":         &types.AttributeValueMemberS{Value: "LOCK"},
		"LockID":     &types.AttributeValueMemberS{Value: lockID},
		"Owner":      &types.AttributeValueMemberS{Value: ownerID},
		"AcquiredAt": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		"ExpiresAt":  &types.AttributeValueMemberS{Value: expiresAt.Format(time.RFC3339)},
		"TTL":        &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expiresAt.Unix())},
	}

	_, err := dl.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(dl.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) OR ExpiresAt < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
	})
	if err != nil {
		var conditionalCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionalCheckFailed) {
			dl.logger.Debug("Failed to acquire lock - already held",
				zap.String("resource", resourceName),
				zap.String("owner", ownerID),
			)
			return nil, fmt.Errorf("resource %s: %w", resourceName, ErrLockHeld)
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	dl.logger.Debug("Lock acquired",
		zap.String("resource", resourceName),
		zap.String("lockID", lockID),
		zap.String("owner", ownerID),
		zap.Duration("duration", lockDuration),
	)

	return &Lock{
		distributedLock: dl,
		resourceName:    resourceName,
		lockID:          lockID,
		ownerID:         ownerID,
		expiresAt:       expiresAt,
	}, nil
}

// release deletes the lock record if this owner still holds it
func (dl *DistributedLock) release(ctx context.Context, resourceName, lockID, ownerID string) error {
	_, err := dl.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(dl.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("LOCK#%s", resourceName)},
			"SK": &types.AttributeValueMemberS{Value: "LOCK"},
		},
		ConditionExpression: aws.String("LockID = :lockId AND #owner = :owner"),
		ExpressionAttributeNames: map[string]string{
			"#owner": "Owner",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":lockId": &types.AttributeValueMemberS{Value: lockID},
			":owner":  &types.AttributeValueMemberS{Value: ownerID},
		},
	})
	if err != nil {
		var conditionalCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionalCheckFailed) {
			dl.logger.Warn("Lock already released or owned by someone else",
				zap.String("resource", resourceName),
				zap.String("lockID", lockID),
			)
			return nil
		}
		return fmt.Errorf("failed to release lock: %w", err)
	}

	dl.logger.Debug("Lock released",
		zap.String("resource", resourceName),
		zap.String("lockID", lockID),
	)

	return nil
}

// Lock represents an acquired distributed lock
type Lock struct {
	distributedLock *DistributedLock
	resourceName    string
	lockID          string
	ownerID         string
	expiresAt       time.Time
}

// Release releases the lock
func (l *Lock) Release(ctx context.Context) error {
	return l.distributedLock.release(ctx, l.resourceName, l.lockID, l.ownerID)
}

// IsExpired checks if the lock has expired
func (l *Lock) IsExpired() bool {
	return time.Now().After(l.expiresAt)
}
