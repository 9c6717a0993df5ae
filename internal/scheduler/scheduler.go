package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bybrooklyn/alchemist/internal/models"
	"github.com/bybrooklyn/alchemist/internal/repository"
	"github.com/bybrooklyn/alchemist/internal/settings"
)

// JobRunner processes one claimed job to a terminal status. The context is
// cancelled when the user cancels the job or the process shuts down.
type JobRunner interface {
	Process(ctx context.Context, job *models.Job, snap settings.Snapshot)
}

// defaultPollInterval is the claim-loop period.
const defaultPollInterval = time.Second

// Scheduler runs the claim loop: it computes free slots, checks pause and
// active hours, claims eligible jobs, and spawns one runner per claim.
type Scheduler struct {
	jobs     repository.JobRepository
	windows  repository.ScheduleWindowRepository
	settings *settings.Service
	engine   *Engine
	runner   JobRunner
	logger   *slog.Logger

	pollInterval time.Duration

	// now is swappable for tests pinning a time zone.
	now func() time.Time

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler.
func NewScheduler(
	jobs repository.JobRepository,
	windows repository.ScheduleWindowRepository,
	settingsSvc *settings.Service,
	engine *Engine,
	runner JobRunner,
	logger *slog.Logger,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		jobs:         jobs,
		windows:      windows,
		settings:     settingsSvc,
		engine:       engine,
		runner:       runner,
		logger:       logger,
		pollInterval: defaultPollInterval,
		now:          time.Now,
	}
}

// WithPollInterval overrides the claim-loop period.
func (s *Scheduler) WithPollInterval(interval time.Duration) *Scheduler {
	if interval > 0 {
		s.pollInterval = interval
	}
	return s
}

// WithClock overrides the time source. Tests use this to pin a zone.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

// clockNow reads the time source under the lock.
func (s *Scheduler) clockNow() time.Time {
	s.mu.Lock()
	now := s.now
	s.mu.Unlock()
	return now()
}

// Start begins the claim loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		return fmt.Errorf("scheduler already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.claimLoop()

	s.logger.Info("scheduler started",
		slog.Duration("poll_interval", s.pollInterval),
	)
	return nil
}

// Stop cancels in-flight work and waits for the loop to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.engine.CancelAll()
	s.wg.Wait()
}

// claimLoop ticks at the poll interval and claims work when slots are free.
func (s *Scheduler) claimLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.claimOnce()
		}
	}
}

// claimOnce performs one claim iteration. Settings are re-read every
// iteration so concurrency edits apply to new claims immediately.
func (s *Scheduler) claimOnce() {
	ctx := s.ctx

	if s.engine.IsPaused() {
		return
	}

	snap, err := s.settings.Snapshot(ctx)
	if err != nil {
		s.logger.Error("claim loop: loading settings", slog.String("error", err.Error()))
		return
	}

	slots := snap.Transcode.ConcurrentJobs - s.engine.ActiveCount()
	if slots <= 0 {
		return
	}

	windows, err := s.windows.GetEnabled(ctx)
	if err != nil {
		s.logger.Error("claim loop: loading schedule windows", slog.String("error", err.Error()))
		return
	}
	if !InActiveHours(windows, s.clockNow()) {
		return
	}

	claimed, err := s.jobs.ClaimNextEligible(ctx, slots, s.engine.InFlightPaths())
	if err != nil {
		s.logger.Error("claim loop: claiming jobs", slog.String("error", err.Error()))
		return
	}

	for _, job := range claimed {
		s.spawn(job, snap)
	}
}

// spawn starts one orchestrator task for a claimed job.
func (s *Scheduler) spawn(job *models.Job, snap settings.Snapshot) {
	jobCtx, cancel := context.WithCancel(s.ctx)
	s.engine.Register(job.ID, job.InputPath, cancel)

	s.logger.Info("job claimed",
		slog.String("job_id", job.ID.String()),
		slog.String("input", job.InputPath),
		slog.Int("priority", job.Priority),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer s.engine.Unregister(job.ID)

		s.runner.Process(jobCtx, job, snap)
	}()
}
