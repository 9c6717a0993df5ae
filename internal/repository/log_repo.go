package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/bybrooklyn/alchemist/internal/models"
)

// logRepo implements LogRepository using GORM.
type logRepo struct {
	db *gorm.DB
}

// NewLogRepository creates a new LogRepository.
func NewLogRepository(db *gorm.DB) LogRepository {
	return &logRepo{db: db}
}

// Record appends a log row.
func (r *logRepo) Record(ctx context.Context, level string, jobID *models.ULID, message string) error {
	entry := &models.LogEntry{
		Level:   level,
		JobID:   jobID,
		Message: message,
	}
	return withBusyRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
			return fmt.Errorf("recording log entry: %w", err)
		}
		return nil
	})
}

// History returns a page of log rows, newest first, and the total count.
func (r *logRepo) History(ctx context.Context, page, perPage int) ([]*models.LogEntry, int64, error) {
	if perPage <= 0 || perPage > 500 {
		perPage = 100
	}
	if page < 1 {
		page = 1
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.LogEntry{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting log entries: %w", err)
	}

	var entries []*models.LogEntry
	if err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("listing log entries: %w", err)
	}
	return entries, total, nil
}

// Clear removes all log rows.
func (r *logRepo) Clear(ctx context.Context) error {
	return withBusyRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Where("1 = 1").Delete(&models.LogEntry{}).Error; err != nil {
			return fmt.Errorf("clearing log entries: %w", err)
		}
		return nil
	})
}

// Sweep deletes the oldest rows beyond keep, bounding the table size.
func (r *logRepo) Sweep(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		keep = 10000
	}

	var affected int64
	err := withBusyRetry(ctx, func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var total int64
			if err := tx.Model(&models.LogEntry{}).Count(&total).Error; err != nil {
				return fmt.Errorf("counting log entries: %w", err)
			}
			excess := total - int64(keep)
			if excess <= 0 {
				affected = 0
				return nil
			}

			var ids []models.ULID
			if err := tx.Model(&models.LogEntry{}).
				Order("created_at ASC, id ASC").
				Limit(int(excess)).
				Pluck("id", &ids).Error; err != nil {
				return fmt.Errorf("selecting old log entries: %w", err)
			}

			res := tx.Where("id IN ?", ids).Delete(&models.LogEntry{})
			if res.Error != nil {
				return fmt.Errorf("sweeping log entries: %w", res.Error)
			}
			affected = res.RowsAffected
			return nil
		})
	})
	return affected, err
}
