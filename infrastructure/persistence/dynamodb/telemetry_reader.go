package dynamodb

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"opsbrain/application/ports"
	apperrors "opsbrain/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// TelemetryReader implements ports.TelemetryReader over the platform
// telemetry partitions. Raw events are written by the collaborating
// platform services; this reader only aggregates them for discovery.
type TelemetryReader struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewTelemetryReader creates a new TelemetryReader
func NewTelemetryReader(client *dynamodb.Client, tableName string, logger *zap.Logger) ports.TelemetryReader {
	return &TelemetryReader{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// telemetryItem is one raw telemetry event. Kind partitions:
// SUPPORT (Topic), ACTION_SEQUENCE (Actions), TOOL_USAGE (Tools,
// ConversionRate), AUTOMATION (Tools marks a pair as automated).
type telemetryItem struct {
	PK             string   `dynamodbav:"PK"` // TELEMETRY#<kind>
	SK             string   `dynamodbav:"SK"` // <timestamp>#<event_id>
	TenantID       string   `dynamodbav:"TenantID"`
	Topic          string   `dynamodbav:"Topic,omitempty"`
	Actions        []string `dynamodbav:"Actions,omitempty"`
	Tools          []string `dynamodbav:"Tools,omitempty"`
	ConversionRate float64  `dynamodbav:"ConversionRate,omitempty"`
}

func (r *TelemetryReader) queryKind(ctx context.Context, kind string, since time.Time) ([]telemetryItem, error) {
	var items []telemetryItem
	var lastKey map[string]types.AttributeValue

	for {
		result, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.tableName),
			KeyConditionExpression: aws.String("PK = :pk AND SK > :since"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":    &types.AttributeValueMemberS{Value: fmt.Sprintf("TELEMETRY#%s", kind)},
				":since": &types.AttributeValueMemberS{Value: since.UTC().Format(time.RFC3339Nano)},
			},
			ExclusiveStartKey: lastKey,
		})
		if err != nil {
			return nil, apperrors.NewDatabaseError("query telemetry", err)
		}

		for _, raw := range result.Items {
			var item telemetryItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				r.logger.Warn("Failed to unmarshal telemetry item", zap.Error(err))
				continue
			}
			items = append(items, item)
		}

		if result.LastEvaluatedKey == nil {
			break
		}
		lastKey = result.LastEvaluatedKey
	}

	return items, nil
}

// SupportThemes aggregates support events into recurring topics
func (r *TelemetryReader) SupportThemes(ctx context.Context, since time.Time) ([]ports.SupportTheme, error) {
	items, err := r.queryKind(ctx, "SUPPORT", since)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	tenants := make(map[string]map[string]bool)
	for _, item := range items {
		if item.Topic == "" {
			continue
		}
		counts[item.Topic]++
		if tenants[item.Topic] == nil {
			tenants[item.Topic] = make(map[string]bool)
		}
		tenants[item.Topic][item.TenantID] = true
	}

	themes := make([]ports.SupportTheme, 0, len(counts))
	for topic, count := range counts {
		themes = append(themes, ports.SupportTheme{
			Topic:       topic,
			Occurrences: count,
			TenantCount: len(tenants[topic]),
		})
	}
	sort.Slice(themes, func(i, j int) bool { return themes[i].Occurrences > themes[j].Occurrences })
	return themes, nil
}

// FrequentSequences aggregates action-log events into repeated sequences
func (r *TelemetryReader) FrequentSequences(ctx context.Context, since time.Time) ([]ports.ActionSequence, error) {
	items, err := r.queryKind(ctx, "ACTION_SEQUENCE", since)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	tenants := make(map[string]map[string]bool)
	actionsByKey := make(map[string][]string)
	for _, item := range items {
		if len(item.Actions) < 2 {
			continue
		}
		key := strings.Join(item.Actions, ">")
		counts[key]++
		actionsByKey[key] = item.Actions
		if tenants[key] == nil {
			tenants[key] = make(map[string]bool)
		}
		tenants[key][item.TenantID] = true
	}

	sequences := make([]ports.ActionSequence, 0, len(counts))
	for key, count := range counts {
		sequences = append(sequences, ports.ActionSequence{
			Actions:     actionsByKey[key],
			Occurrences: count,
			TenantCount: len(tenants[key]),
		})
	}
	sort.Slice(sequences, func(i, j int) bool { return sequences[i].Occurrences > sequences[j].Occurrences })
	return sequences, nil
}

// ToolUsageByTenant returns each tenant's tool set and conversion rate
func (r *TelemetryReader) ToolUsageByTenant(ctx context.Context, since time.Time) ([]ports.TenantToolUsage, error) {
	items, err := r.queryKind(ctx, "TOOL_USAGE", since)
	if err != nil {
		return nil, err
	}

	usage := make([]ports.TenantToolUsage, 0, len(items))
	for _, item := range items {
		usage = append(usage, ports.TenantToolUsage{
			TenantID:       item.TenantID,
			Tools:          item.Tools,
			ConversionRate: item.ConversionRate,
		})
	}
	return usage, nil
}

// CoUsedTools derives pairs of tools used by the same tenants, marking
// pairs that already have an automation between them
func (r *TelemetryReader) CoUsedTools(ctx context.Context, since time.Time) ([]ports.ToolPair, error) {
	usage, err := r.ToolUsageByTenant(ctx, since)
	if err != nil {
		return nil, err
	}
	automated, err := r.queryKind(ctx, "AUTOMATION", since)
	if err != nil {
		return nil, err
	}

	automatedPairs := make(map[string]bool)
	for _, item := range automated {
		if len(item.Tools) == 2 {
			automatedPairs[pairKey(item.Tools[0], item.Tools[1])] = true
		}
	}

	pairTenants := make(map[string]map[string]bool)
	for _, u := range usage {
		for i := 0; i < len(u.Tools); i++ {
			for j := i + 1; j < len(u.Tools); j++ {
				key := pairKey(u.Tools[i], u.Tools[j])
				if pairTenants[key] == nil {
					pairTenants[key] = make(map[string]bool)
				}
				pairTenants[key][u.TenantID] = true
			}
		}
	}

	pairs := make([]ports.ToolPair, 0, len(pairTenants))
	for key, tenantSet := range pairTenants {
		parts := strings.SplitN(key, "|", 2)
		pairs = append(pairs, ports.ToolPair{
			ToolA:       parts[0],
			ToolB:       parts[1],
			TenantCount: len(tenantSet),
			Automated:   automatedPairs[key],
		})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].TenantCount > pairs[j].TenantCount })
	return pairs, nil
}

func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}
