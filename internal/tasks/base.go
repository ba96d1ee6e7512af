package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"tripfund/internal/models"
)

// BuildScheduledTask is a helper to build ScheduledTask records generically
func BuildScheduledTask(taskName string, args interface{}, due time.Time, recurringInterval *string, taskType models.ScheduledTaskType, maxAttempt int) (*models.ScheduledTask, error) {
	argsBytes, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal args: %w", err)
	}

	var mapArgs map[string]interface{}
	if err := json.Unmarshal(argsBytes, &mapArgs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into map: %w", err)
	}

	return &models.ScheduledTask{
		TaskName:          taskName,
		Arguments:         mapArgs,
		Due:               due,
		RecurringInterval: recurringInterval,
		Status:            models.ScheduledTaskStatusActive,
		TaskType:          taskType,
		MaxAttempt:        maxAttempt,
	}, nil
}

// EnsureReconcileTask makes sure the recurring reconciliation sweep exists
// with the configured pending age (minutes; <=0 falls back to the default).
// Called at server startup; idempotent, and refreshes the age on an existing
// row so a config change takes effect without manual task surgery.
func EnsureReconcileTask(db *gorm.DB, olderThanMinutes int) error {
	if olderThanMinutes <= 0 {
		olderThanMinutes = defaultReconcileAgeMinutes
	}

	var existing models.ScheduledTask
	err := db.Where("task_name = ? AND status = ?",
		ReconcilePendingHoldsTaskName, models.ScheduledTaskStatusActive).
		First(&existing).Error
	if err == nil {
		if v, ok := existing.Arguments["older_than_minutes"].(float64); ok && int(v) == olderThanMinutes {
			return nil
		}
		existing.Arguments = map[string]interface{}{"older_than_minutes": olderThanMinutes}
		return db.Save(&existing).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	interval := "FREQ=MINUTELY;INTERVAL=5"
	task, err := BuildScheduledTask(
		ReconcilePendingHoldsTaskName,
		map[string]interface{}{"older_than_minutes": olderThanMinutes},
		time.Now().Add(5*time.Minute),
		&interval,
		models.ScheduledTaskTypeRecurring,
		3,
	)
	if err != nil {
		return err
	}
	return db.Create(task).Error
}
