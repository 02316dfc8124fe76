package eventbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"opsbrain/application/ports"
	apperrors "opsbrain/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"
)

const scheduleDetailType = "schedule.trigger"

// ScheduleBackend implements ports.ScheduleBackend on EventBridge rules.
// One rule per schedule, named <prefix><scheduleID>, with the schedule
// metadata serialized into the rule description. The rule is the single
// source of truth for the schedule.
type ScheduleBackend struct {
	client       *eventbridge.Client
	eventBusName string
	rulePrefix   string
	logger       *zap.Logger
}

// NewScheduleBackend creates a new ScheduleBackend
func NewScheduleBackend(client *eventbridge.Client, eventBusName, rulePrefix string, logger *zap.Logger) ports.ScheduleBackend {
	return &ScheduleBackend{
		client:       client,
		eventBusName: eventBusName,
		rulePrefix:   rulePrefix,
		logger:       logger,
	}
}

func (b *ScheduleBackend) ruleName(scheduleID string) string {
	return b.rulePrefix + scheduleID
}

// Put creates or replaces the rule for one schedule. nativeExpression is
// the already-translated EventBridge cron expression.
func (b *ScheduleBackend) Put(ctx context.Context, record ports.ScheduleRecord, nativeExpression string) error {
	description, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule record: %w", err)
	}

	state := types.RuleStateEnabled
	if !record.Enabled {
		state = types.RuleStateDisabled
	}

	_, err = b.client.PutRule(ctx, &eventbridge.PutRuleInput{
		Name:               aws.String(b.ruleName(record.ID)),
		ScheduleExpression: aws.String(nativeExpression),
		Description:        aws.String(string(description)),
		State:              state,
	})
	if err != nil {
		return fmt.Errorf("failed to put schedule rule: %w", err)
	}

	b.logger.Info("Schedule rule stored",
		zap.String("scheduleID", record.ID),
		zap.String("expression", nativeExpression),
		zap.Bool("enabled", record.Enabled),
	)

	return nil
}

// Get returns the schedule stored on the rule, or found=false when the rule
// does not exist
func (b *ScheduleBackend) Get(ctx context.Context, scheduleID string) (*ports.ScheduleRecord, bool, error) {
	result, err := b.client.DescribeRule(ctx, &eventbridge.DescribeRuleInput{
		Name: aws.String(b.ruleName(scheduleID)),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to describe schedule rule: %w", err)
	}

	record, err := b.decodeRule(aws.ToString(result.Description), result.State, scheduleID)
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

// List returns all schedules under the rule prefix
func (b *ScheduleBackend) List(ctx context.Context) ([]ports.ScheduleRecord, error) {
	var records []ports.ScheduleRecord
	var nextToken *string

	for {
		result, err := b.client.ListRules(ctx, &eventbridge.ListRulesInput{
			NamePrefix: aws.String(b.rulePrefix),
			NextToken:  nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list schedule rules: %w", err)
		}

		for _, rule := range result.Rules {
			scheduleID := strings.TrimPrefix(aws.ToString(rule.Name), b.rulePrefix)
			record, err := b.decodeRule(aws.ToString(rule.Description), rule.State, scheduleID)
			if err != nil {
				b.logger.Warn("Skipping undecodable schedule rule",
					zap.String("rule", aws.ToString(rule.Name)),
					zap.Error(err),
				)
				continue
			}
			records = append(records, *record)
		}

		if result.NextToken == nil {
			break
		}
		nextToken = result.NextToken
	}

	return records, nil
}

// SetEnabled pauses or resumes the schedule, preserving its metadata and
// appending the operator's note
func (b *ScheduleBackend) SetEnabled(ctx context.Context, scheduleID string, enabled bool, note string) error {
	record, found, err := b.Get(ctx, scheduleID)
	if err != nil {
		return err
	}
	if !found {
		return apperrors.NewNotFoundError(fmt.Sprintf("schedule %s not found", scheduleID))
	}

	name := aws.String(b.ruleName(scheduleID))
	if enabled {
		_, err = b.client.EnableRule(ctx, &eventbridge.EnableRuleInput{Name: name})
	} else {
		_, err = b.client.DisableRule(ctx, &eventbridge.DisableRuleInput{Name: name})
	}
	if err != nil {
		return fmt.Errorf("failed to set schedule state: %w", err)
	}

	if note != "" && note != record.Note {
		record.Note = note
		record.Enabled = enabled
		description, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal schedule record: %w", err)
		}
		// PutRule without a schedule expression change keeps the existing one
		current, err := b.client.DescribeRule(ctx, &eventbridge.DescribeRuleInput{Name: name})
		if err != nil {
			return fmt.Errorf("failed to re-read schedule rule: %w", err)
		}
		state := types.RuleStateEnabled
		if !enabled {
			state = types.RuleStateDisabled
		}
		_, err = b.client.PutRule(ctx, &eventbridge.PutRuleInput{
			Name:               name,
			ScheduleExpression: current.ScheduleExpression,
			Description:        aws.String(string(description)),
			State:              state,
		})
		if err != nil {
			return fmt.Errorf("failed to update schedule note: %w", err)
		}
	}

	b.logger.Info("Schedule state changed",
		zap.String("scheduleID", scheduleID),
		zap.Bool("enabled", enabled),
	)

	return nil
}

// Delete removes the schedule rule; deleting a missing schedule is not an error
func (b *ScheduleBackend) Delete(ctx context.Context, scheduleID string) error {
	_, err := b.client.DeleteRule(ctx, &eventbridge.DeleteRuleInput{
		Name: aws.String(b.ruleName(scheduleID)),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to delete schedule rule: %w", err)
	}

	b.logger.Info("Schedule deleted", zap.String("scheduleID", scheduleID))
	return nil
}

// Emit fires the schedule's trigger event immediately, bypassing the rule
func (b *ScheduleBackend) Emit(ctx context.Context, scheduleID string) error {
	record, found, err := b.Get(ctx, scheduleID)
	if err != nil {
		return err
	}
	if !found {
		return apperrors.NewNotFoundError(fmt.Sprintf("schedule %s not found", scheduleID))
	}

	detail, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule record: %w", err)
	}

	result, err := b.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{
			{
				EventBusName: aws.String(b.eventBusName),
				Source:       aws.String(eventSource),
				DetailType:   aws.String(scheduleDetailType),
				Detail:       aws.String(string(detail)),
				Time:         aws.Time(time.Now().UTC()),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to emit schedule trigger: %w", err)
	}
	if result.FailedEntryCount > 0 {
		return fmt.Errorf("EventBridge rejected the schedule trigger")
	}

	b.logger.Info("Schedule triggered manually", zap.String("scheduleID", scheduleID))
	return nil
}

func (b *ScheduleBackend) decodeRule(description string, state types.RuleState, scheduleID string) (*ports.ScheduleRecord, error) {
	var record ports.ScheduleRecord
	if err := json.Unmarshal([]byte(description), &record); err != nil {
		return nil, fmt.Errorf("rule description for schedule %s is not valid metadata: %w", scheduleID, err)
	}
	record.ID = scheduleID
	record.Enabled = state == types.RuleStateEnabled
	return &record, nil
}
