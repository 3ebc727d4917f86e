package schedules

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/crewcall/crewcall/pkg/models"
)

// Notifier emits schedule reminders. Implemented by the notifications
// service.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, typ string, payload map[string]interface{})
}

// Reminder runs the hourly sweep that notifies assignees of entries whose
// call time falls inside the next 24 hours.
type Reminder struct {
	logger   *zap.Logger
	db       *gorm.DB
	notifier Notifier
	cron     *cron.Cron
	window   time.Duration
}

// NewReminder creates the reminder sweep.
func NewReminder(logger *zap.Logger, db *gorm.DB, notifier Notifier) *Reminder {
	return &Reminder{
		logger:   logger,
		db:       db,
		notifier: notifier,
		cron:     cron.New(),
		window:   24 * time.Hour,
	}
}

// Start schedules the hourly sweep.
func (r *Reminder) Start() error {
	if _, err := r.cron.AddFunc("@hourly", func() {
		if err := r.Sweep(context.Background()); err != nil {
			r.logger.Error("schedule reminder sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("register reminder sweep: %w", err)
	}
	r.cron.Start()
	return nil
}

// Stop halts the cron scheduler.
func (r *Reminder) Stop() {
	r.cron.Stop()
}

// Sweep notifies assignees of imminent entries and marks them reminded.
// The reminder_sent flag makes the sweep idempotent across restarts and
// overlapping runs.
func (r *Reminder) Sweep(ctx context.Context) error {
	now := time.Now()

	var entries []models.ScheduleEntry
	err := r.db.WithContext(ctx).
		Where("reminder_sent = ? AND call_time > ? AND call_time <= ?", false, now, now.Add(r.window)).
		Find(&entries).Error
	if err != nil {
		return fmt.Errorf("load due entries: %w", err)
	}

	for _, entry := range entries {
		var assignees []uuid.UUID
		if err := r.db.WithContext(ctx).Model(&models.ScheduleAssignee{}).
			Where("entry_id = ?", entry.ID).Pluck("user_id", &assignees).Error; err != nil {
			r.logger.Error("load assignees", zap.String("entry_id", entry.ID.String()), zap.Error(err))
			continue
		}

		for _, userID := range assignees {
			r.notifier.Notify(ctx, userID, models.NotificationTypeScheduleReminder, map[string]interface{}{
				"entry_id":   entry.ID.String(),
				"project_id": entry.ProjectID.String(),
				"call_time":  entry.CallTime.Format(time.RFC3339),
				"location":   entry.Location,
			})
		}

		if err := r.db.WithContext(ctx).Model(&models.ScheduleEntry{}).
			Where("id = ?", entry.ID).Update("reminder_sent", true).Error; err != nil {
			r.logger.Error("mark reminded", zap.String("entry_id", entry.ID.String()), zap.Error(err))
		}
	}

	return nil
}
