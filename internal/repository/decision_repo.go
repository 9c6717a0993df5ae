package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/bybrooklyn/alchemist/internal/models"
)

// decisionRepo implements DecisionRepository using GORM.
type decisionRepo struct {
	db *gorm.DB
}

// NewDecisionRepository creates a new DecisionRepository.
func NewDecisionRepository(db *gorm.DB) DecisionRepository {
	return &decisionRepo{db: db}
}

// Record appends a decision for a job.
func (r *decisionRepo) Record(ctx context.Context, jobID models.ULID, action models.DecisionAction, reason string) (*models.Decision, error) {
	decision := &models.Decision{
		JobID:  jobID,
		Action: action,
		Reason: reason,
	}
	err := withBusyRetry(ctx, func() error {
		return r.db.WithContext(ctx).Create(decision).Error
	})
	if err != nil {
		return nil, fmt.Errorf("recording decision: %w", err)
	}
	return decision, nil
}

// ListByJob returns all decisions for a job, oldest first.
func (r *decisionRepo) ListByJob(ctx context.Context, jobID models.ULID) ([]*models.Decision, error) {
	var decisions []*models.Decision
	if err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at ASC, id ASC").
		Find(&decisions).Error; err != nil {
		return nil, fmt.Errorf("listing decisions: %w", err)
	}
	return decisions, nil
}

// Latest returns the most recent decision for a job, or nil.
func (r *decisionRepo) Latest(ctx context.Context, jobID models.ULID) (*models.Decision, error) {
	var decision models.Decision
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at DESC, id DESC").
		First(&decision).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting latest decision: %w", err)
	}
	return &decision, nil
}
