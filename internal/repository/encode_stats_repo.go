package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bybrooklyn/alchemist/internal/models"
)

// encodeStatsRepo implements EncodeStatsRepository using GORM.
type encodeStatsRepo struct {
	db *gorm.DB
}

// NewEncodeStatsRepository creates a new EncodeStatsRepository.
func NewEncodeStatsRepository(db *gorm.DB) EncodeStatsRepository {
	return &encodeStatsRepo{db: db}
}

// Record stores the stats row for a committed encode. The unique index on
// job_id guarantees at most one row per job; a restarted job that completes
// again replaces its previous stats.
func (r *encodeStatsRepo) Record(ctx context.Context, stats *models.EncodeStats) error {
	return withBusyRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "job_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"input_size_bytes", "output_size_bytes", "compression_ratio",
					"encode_time_seconds", "encode_speed", "avg_bitrate_kbps",
					"vmaf_score", "updated_at",
				}),
			}).
			Create(stats).Error; err != nil {
			return fmt.Errorf("recording encode stats: %w", err)
		}
		return nil
	})
}

// GetByJob returns the stats for a job, or nil when none exist.
func (r *encodeStatsRepo) GetByJob(ctx context.Context, jobID models.ULID) (*models.EncodeStats, error) {
	var stats models.EncodeStats
	if err := r.db.WithContext(ctx).Where("job_id = ?", jobID).First(&stats).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting encode stats: %w", err)
	}
	return &stats, nil
}
