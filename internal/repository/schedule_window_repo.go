package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/bybrooklyn/alchemist/internal/models"
)

// scheduleWindowRepo implements ScheduleWindowRepository using GORM.
type scheduleWindowRepo struct {
	db *gorm.DB
}

// NewScheduleWindowRepository creates a new ScheduleWindowRepository.
func NewScheduleWindowRepository(db *gorm.DB) ScheduleWindowRepository {
	return &scheduleWindowRepo{db: db}
}

// Create adds an active-hours window.
func (r *scheduleWindowRepo) Create(ctx context.Context, window *models.ScheduleWindow) error {
	return withBusyRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Create(window).Error; err != nil {
			return fmt.Errorf("creating schedule window: %w", err)
		}
		return nil
	})
}

// GetAll returns all windows.
func (r *scheduleWindowRepo) GetAll(ctx context.Context) ([]*models.ScheduleWindow, error) {
	var windows []*models.ScheduleWindow
	if err := r.db.WithContext(ctx).Order("start_time ASC").Find(&windows).Error; err != nil {
		return nil, fmt.Errorf("listing schedule windows: %w", err)
	}
	return windows, nil
}

// GetEnabled returns the enabled windows.
func (r *scheduleWindowRepo) GetEnabled(ctx context.Context) ([]*models.ScheduleWindow, error) {
	var windows []*models.ScheduleWindow
	if err := r.db.WithContext(ctx).Where("enabled = ?", true).Order("start_time ASC").Find(&windows).Error; err != nil {
		return nil, fmt.Errorf("listing enabled schedule windows: %w", err)
	}
	return windows, nil
}

// Delete removes a window.
func (r *scheduleWindowRepo) Delete(ctx context.Context, id models.ULID) error {
	return withBusyRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.ScheduleWindow{}).Error; err != nil {
			return fmt.Errorf("deleting schedule window: %w", err)
		}
		return nil
	})
}
