package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/bybrooklyn/alchemist/internal/models"
)

// watchDirRepo implements WatchDirRepository using GORM.
type watchDirRepo struct {
	db *gorm.DB
}

// NewWatchDirRepository creates a new WatchDirRepository.
func NewWatchDirRepository(db *gorm.DB) WatchDirRepository {
	return &watchDirRepo{db: db}
}

// Create adds a watched directory.
func (r *watchDirRepo) Create(ctx context.Context, dir *models.WatchDir) error {
	return withBusyRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Create(dir).Error; err != nil {
			return fmt.Errorf("creating watch dir: %w", err)
		}
		return nil
	})
}

// GetAll returns all watched directories.
func (r *watchDirRepo) GetAll(ctx context.Context) ([]*models.WatchDir, error) {
	var dirs []*models.WatchDir
	if err := r.db.WithContext(ctx).Order("path ASC").Find(&dirs).Error; err != nil {
		return nil, fmt.Errorf("listing watch dirs: %w", err)
	}
	return dirs, nil
}

// GetEnabled returns the enabled watched directories.
func (r *watchDirRepo) GetEnabled(ctx context.Context) ([]*models.WatchDir, error) {
	var dirs []*models.WatchDir
	if err := r.db.WithContext(ctx).Where("enabled = ?", true).Order("path ASC").Find(&dirs).Error; err != nil {
		return nil, fmt.Errorf("listing enabled watch dirs: %w", err)
	}
	return dirs, nil
}

// Delete removes a watched directory.
func (r *watchDirRepo) Delete(ctx context.Context, id models.ULID) error {
	return withBusyRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.WatchDir{}).Error; err != nil {
			return fmt.Errorf("deleting watch dir: %w", err)
		}
		return nil
	})
}
