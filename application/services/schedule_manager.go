package services

import (
	"context"
	"time"

	"opsbrain/application/ports"
	"opsbrain/pkg/cron"
	"opsbrain/pkg/errors"

	"go.uber.org/zap"
)

// ScheduleView is a schedule with its computed run times
type ScheduleView struct {
	ports.ScheduleRecord
	NextRun *time.Time `json:"next_run,omitempty"`
}

// ScheduleManager is CRUD over recurring triggers. The scheduling backend
// holds the state; this service validates cron expressions, translates them
// to the backend's convention, and computes next-run times for listings.
type ScheduleManager struct {
	backend ports.ScheduleBackend
	logger  *zap.Logger
}

// NewScheduleManager creates a new ScheduleManager
func NewScheduleManager(backend ports.ScheduleBackend, logger *zap.Logger) *ScheduleManager {
	return &ScheduleManager{
		backend: backend,
		logger:  logger,
	}
}

// Create registers a recurring trigger. Creating an id that already exists
// is a no-op, not an error.
func (m *ScheduleManager) Create(ctx context.Context, record ports.ScheduleRecord) error {
	if record.ID == "" {
		return errors.NewValidationError("schedule id is required")
	}
	if _, err := cron.Parse(record.CronExpression); err != nil {
		return errors.Wrap(err, "invalid cron expression")
	}

	_, exists, err := m.backend.Get(ctx, record.ID)
	if err != nil {
		return err
	}
	if exists {
		m.logger.Debug("Schedule already exists, create is a no-op",
			zap.String("scheduleID", record.ID),
		)
		return nil
	}

	native, err := cron.ToEventBridge(record.CronExpression)
	if err != nil {
		return errors.Wrap(err, "cron translation")
	}

	record.Enabled = true
	record.CreatedAt = time.Now().UTC()
	return m.backend.Put(ctx, record, native)
}

// Get returns one schedule with its next run time
func (m *ScheduleManager) Get(ctx context.Context, scheduleID string) (*ScheduleView, error) {
	record, found, err := m.backend.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.NewNotFoundError("schedule " + scheduleID + " not found")
	}
	view := m.toView(*record)
	return &view, nil
}

// List returns all schedules with next run times
func (m *ScheduleManager) List(ctx context.Context) ([]ScheduleView, error) {
	records, err := m.backend.List(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]ScheduleView, 0, len(records))
	for _, record := range records {
		views = append(views, m.toView(record))
	}
	return views, nil
}

// Pause disables the schedule, keeping it listed
func (m *ScheduleManager) Pause(ctx context.Context, scheduleID, note string) error {
	return m.backend.SetEnabled(ctx, scheduleID, false, note)
}

// Resume re-enables a paused schedule
func (m *ScheduleManager) Resume(ctx context.Context, scheduleID, note string) error {
	return m.backend.SetEnabled(ctx, scheduleID, true, note)
}

// Delete removes the schedule
func (m *ScheduleManager) Delete(ctx context.Context, scheduleID string) error {
	return m.backend.Delete(ctx, scheduleID)
}

// TriggerNow fires the schedule's event immediately without touching its
// recurrence
func (m *ScheduleManager) TriggerNow(ctx context.Context, scheduleID string) error {
	return m.backend.Emit(ctx, scheduleID)
}

func (m *ScheduleManager) toView(record ports.ScheduleRecord) ScheduleView {
	view := ScheduleView{ScheduleRecord: record}
	if !record.Enabled {
		return view
	}

	expr, err := cron.Parse(record.CronExpression)
	if err != nil {
		m.logger.Warn("Stored schedule has an unparseable expression",
			zap.String("scheduleID", record.ID),
			zap.String("expression", record.CronExpression),
			zap.Error(err),
		)
		return view
	}
	if next, err := expr.Next(time.Now().UTC()); err == nil {
		view.NextRun = &next
	}
	return view
}
