package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/bybrooklyn/alchemist/internal/models"
)

// sessionRepo implements SessionRepository using GORM. The auth collaborator
// owns token issuance and verification; this repository only persists rows.
type sessionRepo struct {
	db *gorm.DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepo{db: db}
}

// Create stores a session.
func (r *sessionRepo) Create(ctx context.Context, session *models.Session) error {
	return withBusyRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
		return nil
	})
}

// GetByToken returns the session for a token, or nil.
func (r *sessionRepo) GetByToken(ctx context.Context, token string) (*models.Session, error) {
	var session models.Session
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting session: %w", err)
	}
	return &session, nil
}

// Delete removes one session.
func (r *sessionRepo) Delete(ctx context.Context, id models.ULID) error {
	return withBusyRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Session{}).Error; err != nil {
			return fmt.Errorf("deleting session: %w", err)
		}
		return nil
	})
}

// DeleteExpired removes sessions past their expiry.
func (r *sessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var affected int64
	err := withBusyRetry(ctx, func() error {
		res := r.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&models.Session{})
		if res.Error != nil {
			return fmt.Errorf("deleting expired sessions: %w", res.Error)
		}
		affected = res.RowsAffected
		return nil
	})
	return affected, err
}
