// Package service composes repositories, the engine, and the event bus
// into the operations the HTTP surface exposes.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bybrooklyn/alchemist/internal/encoder"
	"github.com/bybrooklyn/alchemist/internal/events"
	"github.com/bybrooklyn/alchemist/internal/models"
	"github.com/bybrooklyn/alchemist/internal/repository"
	"github.com/bybrooklyn/alchemist/internal/scheduler"
	"github.com/bybrooklyn/alchemist/internal/settings"
)

// JobService exposes job listing and lifecycle operations.
type JobService struct {
	jobs     repository.JobRepository
	engine   *scheduler.Engine
	settings *settings.Service
	bus      *events.Bus
	logger   *slog.Logger
}

// NewJobService creates a job service.
func NewJobService(
	jobs repository.JobRepository,
	engine *scheduler.Engine,
	settingsSvc *settings.Service,
	bus *events.Bus,
	logger *slog.Logger,
) *JobService {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobService{
		jobs:     jobs,
		engine:   engine,
		settings: settingsSvc,
		bus:      bus,
		logger:   logger,
	}
}

// List returns a filtered page of jobs and the total count.
func (s *JobService) List(ctx context.Context, filter repository.JobFilter) ([]*models.Job, int64, error) {
	return s.jobs.List(ctx, filter)
}

// Detail returns the per-job view, or nil when the job does not exist.
func (s *JobService) Detail(ctx context.Context, id models.ULID) (*repository.JobDetail, error) {
	return s.jobs.Detail(ctx, id)
}

// Cancel cancels a job. In-flight jobs get their context cancelled and the
// orchestrator performs the transition; queued jobs transition directly.
func (s *JobService) Cancel(ctx context.Context, id models.ULID) error {
	if s.engine.Cancel(id) {
		return nil
	}

	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", id)
	}

	switch job.Status {
	case models.JobStatusQueued:
		// A queued job has no orchestrator to observe cancellation; walk it
		// through claimed to the cancelled terminal directly.
		if err := s.jobs.Transition(ctx, id, models.JobStatusQueued, models.JobStatusClaimed); err != nil {
			return err
		}
		if err := s.jobs.Transition(ctx, id, models.JobStatusClaimed, models.JobStatusCancelled); err != nil {
			return err
		}
		s.bus.PublishStatus(id, models.JobStatusCancelled)
		return nil
	default:
		return fmt.Errorf("job %s is %s and cannot be cancelled", id, job.Status)
	}
}

// Restart re-queues a terminal job.
func (s *JobService) Restart(ctx context.Context, id models.ULID) error {
	if err := s.jobs.Restart(ctx, id); err != nil {
		return err
	}
	s.bus.PublishStatus(id, models.JobStatusQueued)
	return nil
}

// Delete removes a job. In-flight jobs must be cancelled first.
func (s *JobService) Delete(ctx context.Context, id models.ULID) error {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}
	if job.Status.IsInFlight() {
		return fmt.Errorf("job %s is %s; cancel it before deleting", id, job.Status)
	}
	if err := s.jobs.Delete(ctx, id); err != nil {
		return err
	}
	// Leftover partial output from old attempts is garbage once the row
	// is gone.
	if job.OutputPath != "" {
		encoder.CleanupPartial(job.OutputPath)
	}
	return nil
}

// BulkCancel cancels every job in the id list, collecting errors.
func (s *JobService) BulkCancel(ctx context.Context, ids []models.ULID) (int, error) {
	return s.bulk(ids, func(id models.ULID) error { return s.Cancel(ctx, id) })
}

// BulkRestart restarts every job in the id list.
func (s *JobService) BulkRestart(ctx context.Context, ids []models.ULID) (int, error) {
	return s.bulk(ids, func(id models.ULID) error { return s.Restart(ctx, id) })
}

// BulkDelete deletes every job in the id list.
func (s *JobService) BulkDelete(ctx context.Context, ids []models.ULID) (int, error) {
	return s.bulk(ids, func(id models.ULID) error { return s.Delete(ctx, id) })
}

// ClearCompleted removes all completed jobs.
func (s *JobService) ClearCompleted(ctx context.Context) (int64, error) {
	return s.jobs.DeleteCompleted(ctx)
}

// bulk applies one operation per id, returning how many succeeded and the
// first error encountered.
func (s *JobService) bulk(ids []models.ULID, op func(models.ULID) error) (int, error) {
	var done int
	var firstErr error
	for _, id := range ids {
		if err := op(id); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		done++
	}
	return done, firstErr
}

// EngineStatus is the engine status view.
type EngineStatus struct {
	Paused          bool  `json:"paused"`
	Active          int   `json:"active"`
	ConcurrentLimit int   `json:"concurrent_limit"`
	Total           int64 `json:"total"`
	Completed       int64 `json:"completed"`
	Failed          int64 `json:"failed"`
}

// Pause stops the engine from claiming new work.
func (s *JobService) Pause() {
	s.engine.Pause()
	s.logger.Info("engine paused")
}

// Resume re-enables claiming.
func (s *JobService) Resume() {
	s.engine.Resume()
	s.logger.Info("engine resumed")
}

// Status returns the engine status.
func (s *JobService) Status(ctx context.Context) (*EngineStatus, error) {
	counts, err := s.jobs.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, n := range counts {
		total += n
	}

	return &EngineStatus{
		Paused:          s.engine.IsPaused(),
		Active:          s.engine.ActiveCount(),
		ConcurrentLimit: s.settings.Cached().Transcode.ConcurrentJobs,
		Total:           total,
		Completed:       counts[models.JobStatusCompleted],
		Failed:          counts[models.JobStatusFailed],
	}, nil
}

// StatsService exposes aggregate views over completed encodes.
type StatsService struct {
	jobs repository.JobRepository
}

// NewStatsService creates a stats service.
func NewStatsService(jobs repository.JobRepository) *StatsService {
	return &StatsService{jobs: jobs}
}

// Aggregated returns totals over all jobs and encode stats.
func (s *StatsService) Aggregated(ctx context.Context) (*repository.AggregatedStats, error) {
	return s.jobs.Aggregated(ctx)
}

// Daily returns the trailing-30-day rollup.
func (s *StatsService) Daily(ctx context.Context) ([]repository.DailyStat, error) {
	return s.jobs.Daily(ctx, 30, time.Now().UTC())
}

// Detailed returns recent completed jobs with stats and decisions.
func (s *StatsService) Detailed(ctx context.Context, limit int) ([]*repository.JobDetail, error) {
	return s.jobs.RecentCompleted(ctx, limit)
}
