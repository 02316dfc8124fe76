// Package observability publishes operational metrics to CloudWatch.
package observability

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// MetricsPublisher records counters and timings. Publishing is best-effort;
// failures are logged and never bubble into request handling.
type MetricsPublisher struct {
	client    *cloudwatch.Client
	namespace string
	enabled   bool
	logger    *zap.Logger
}

// NewMetricsPublisher creates a new MetricsPublisher. With enabled false all
// calls are no-ops, which keeps development environments quiet.
func NewMetricsPublisher(client *cloudwatch.Client, namespace string, enabled bool, logger *zap.Logger) *MetricsPublisher {
	return &MetricsPublisher{
		client:    client,
		namespace: namespace,
		enabled:   enabled,
		logger:    logger,
	}
}

// Count records a counter increment with optional dimensions
func (m *MetricsPublisher) Count(ctx context.Context, name string, value float64, dimensions map[string]string) {
	m.put(ctx, name, value, types.StandardUnitCount, dimensions)
}

// Duration records a timing in milliseconds
func (m *MetricsPublisher) Duration(ctx context.Context, name string, d time.Duration, dimensions map[string]string) {
	m.put(ctx, name, float64(d.Milliseconds()), types.StandardUnitMilliseconds, dimensions)
}

func (m *MetricsPublisher) put(ctx context.Context, name string, value float64, unit types.StandardUnit, dimensions map[string]string) {
	if !m.enabled {
		return
	}

	datum := types.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       unit,
		Timestamp:  aws.Time(time.Now().UTC()),
	}
	for k, v := range dimensions {
		datum.Dimensions = append(datum.Dimensions, types.Dimension{
			Name:  aws.String(k),
			Value: aws.String(v),
		})
	}

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []types.MetricDatum{datum},
	})
	if err != nil {
		m.logger.Warn("Failed to publish metric",
			zap.String("metric", name),
			zap.Error(err),
		)
	}
}
