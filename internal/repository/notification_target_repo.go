package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/bybrooklyn/alchemist/internal/models"
)

// notificationTargetRepo implements NotificationTargetRepository using GORM.
type notificationTargetRepo struct {
	db *gorm.DB
}

// NewNotificationTargetRepository creates a new NotificationTargetRepository.
func NewNotificationTargetRepository(db *gorm.DB) NotificationTargetRepository {
	return &notificationTargetRepo{db: db}
}

// Create adds a notification target. A false Enabled is written explicitly
// after the insert, since GORM stores the column default (true) in its place.
func (r *notificationTargetRepo) Create(ctx context.Context, target *models.NotificationTarget) error {
	enabled := target.Enabled
	return withBusyRetry(ctx, func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(target).Error; err != nil {
				return fmt.Errorf("creating notification target: %w", err)
			}
			if !enabled {
				if err := tx.Model(target).Update("enabled", false).Error; err != nil {
					return fmt.Errorf("creating notification target: %w", err)
				}
			}
			return nil
		})
	})
}

// GetAll returns all notification targets.
func (r *notificationTargetRepo) GetAll(ctx context.Context) ([]*models.NotificationTarget, error) {
	var targets []*models.NotificationTarget
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&targets).Error; err != nil {
		return nil, fmt.Errorf("listing notification targets: %w", err)
	}
	return targets, nil
}

// GetEnabled returns the enabled notification targets.
func (r *notificationTargetRepo) GetEnabled(ctx context.Context) ([]*models.NotificationTarget, error) {
	var targets []*models.NotificationTarget
	if err := r.db.WithContext(ctx).Where("enabled = ?", true).Order("name ASC").Find(&targets).Error; err != nil {
		return nil, fmt.Errorf("listing enabled notification targets: %w", err)
	}
	return targets, nil
}

// GetByID returns one target, or nil when not found.
func (r *notificationTargetRepo) GetByID(ctx context.Context, id models.ULID) (*models.NotificationTarget, error) {
	var target models.NotificationTarget
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&target).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting notification target: %w", err)
	}
	return &target, nil
}

// Delete removes a notification target.
func (r *notificationTargetRepo) Delete(ctx context.Context, id models.ULID) error {
	return withBusyRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.NotificationTarget{}).Error; err != nil {
			return fmt.Errorf("deleting notification target: %w", err)
		}
		return nil
	})
}
