// Package eventbridge implements the admin notification channel and the
// schedule backend on AWS EventBridge.
package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"opsbrain/application/ports"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"
)

const eventSource = "opsbrain"

// AlertPublisher implements ports.AlertPublisher using EventBridge PutEvents
type AlertPublisher struct {
	client       *eventbridge.Client
	eventBusName string
	logger       *zap.Logger
}

// NewAlertPublisher creates a new AlertPublisher
func NewAlertPublisher(client *eventbridge.Client, eventBusName string, logger *zap.Logger) ports.AlertPublisher {
	return &AlertPublisher{
		client:       client,
		eventBusName: eventBusName,
		logger:       logger,
	}
}

// Publish sends a single alert to the admin event bus
func (p *AlertPublisher) Publish(ctx context.Context, alert ports.Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}

	detail, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{
			{
				EventBusName: aws.String(p.eventBusName),
				Source:       aws.String(eventSource),
				DetailType:   aws.String(alert.AlertType),
				Detail:       aws.String(string(detail)),
				Time:         aws.Time(alert.Timestamp),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish alert to EventBridge: %w", err)
	}
	if result.FailedEntryCount > 0 {
		return fmt.Errorf("EventBridge rejected %d alert entries", result.FailedEntryCount)
	}

	p.logger.Info("Admin alert published",
		zap.String("alertType", alert.AlertType),
		zap.String("severity", alert.Severity),
		zap.String("workflowID", alert.WorkflowID),
	)

	return nil
}
