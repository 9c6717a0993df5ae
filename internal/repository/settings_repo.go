package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bybrooklyn/alchemist/internal/models"
)

// settingsRepo implements SettingsRepository using GORM.
type settingsRepo struct {
	db *gorm.DB
}

// NewSettingsRepository creates a new SettingsRepository.
func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &settingsRepo{db: db}
}

// GetAll returns every persisted setting as a key/value map.
func (r *settingsRepo) GetAll(ctx context.Context) (map[string]string, error) {
	var rows []models.Setting
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing settings: %w", err)
	}

	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}

// Get returns one setting value, or empty string when absent.
func (r *settingsRepo) Get(ctx context.Context, key string) (string, error) {
	var row models.Setting
	if err := r.db.WithContext(ctx).Where("key = ?", key).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("getting setting %q: %w", key, err)
	}
	return row.Value, nil
}

// Set upserts one setting.
func (r *settingsRepo) Set(ctx context.Context, key, value string) error {
	return withBusyRetry(ctx, func() error {
		row := models.Setting{Key: key, Value: value}
		if err := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value"}),
			}).
			Create(&row).Error; err != nil {
			return fmt.Errorf("setting %q: %w", key, err)
		}
		return nil
	})
}

// SetAll upserts multiple settings in one transaction.
func (r *settingsRepo) SetAll(ctx context.Context, values map[string]string) error {
	return withBusyRetry(ctx, func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for key, value := range values {
				row := models.Setting{Key: key, Value: value}
				if err := tx.
					Clauses(clause.OnConflict{
						Columns:   []clause.Column{{Name: "key"}},
						DoUpdates: clause.AssignmentColumns([]string{"value"}),
					}).
					Create(&row).Error; err != nil {
					return fmt.Errorf("setting %q: %w", key, err)
				}
			}
			return nil
		})
	})
}
