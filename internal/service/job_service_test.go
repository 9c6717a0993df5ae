package service

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bybrooklyn/alchemist/internal/config"
	"github.com/bybrooklyn/alchemist/internal/events"
	"github.com/bybrooklyn/alchemist/internal/models"
	"github.com/bybrooklyn/alchemist/internal/repository"
	"github.com/bybrooklyn/alchemist/internal/scheduler"
	"github.com/bybrooklyn/alchemist/internal/settings"
)

func setupJobService(t *testing.T) (*JobService, repository.JobRepository, *scheduler.Engine) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Job{}, &models.Decision{}, &models.EncodeStats{}, &models.Setting{},
	))

	jobs := repository.NewJobRepository(db)
	engine := scheduler.NewEngine()
	settingsSvc := settings.NewService(repository.NewSettingsRepository(db), &config.Config{
		Transcode: config.TranscodeConfig{ConcurrentJobs: 2},
	})
	bus := events.NewBus(64)

	return NewJobService(jobs, engine, settingsSvc, bus, nil), jobs, engine
}

func queueJob(t *testing.T, jobs repository.JobRepository, path string) *models.Job {
	t.Helper()
	job, _, err := jobs.Insert(context.Background(), path, path+".out", "H", 0)
	require.NoError(t, err)
	return job
}

func TestCancelQueuedJob(t *testing.T) {
	svc, jobs, _ := setupJobService(t)
	ctx := context.Background()

	job := queueJob(t, jobs, "/m/a.mkv")
	require.NoError(t, svc.Cancel(ctx, job.ID))

	fresh, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, fresh.Status)
}

func TestCancelInFlightJobFiresRegistry(t *testing.T) {
	svc, jobs, engine := setupJobService(t)
	ctx := context.Background()

	job := queueJob(t, jobs, "/m/a.mkv")
	require.NoError(t, jobs.Transition(ctx, job.ID, models.JobStatusQueued, models.JobStatusClaimed))

	jobCtx, cancel := context.WithCancel(context.Background())
	engine.Register(job.ID, job.InputPath, cancel)

	require.NoError(t, svc.Cancel(ctx, job.ID))
	select {
	case <-jobCtx.Done():
	default:
		t.Fatal("cancel did not reach the in-flight job")
	}
}

func TestCancelTerminalJobFails(t *testing.T) {
	svc, jobs, _ := setupJobService(t)
	ctx := context.Background()

	job := queueJob(t, jobs, "/m/a.mkv")
	require.NoError(t, jobs.Transition(ctx, job.ID, models.JobStatusQueued, models.JobStatusClaimed))
	require.NoError(t, jobs.Transition(ctx, job.ID, models.JobStatusClaimed, models.JobStatusAnalyzing))
	require.NoError(t, jobs.Transition(ctx, job.ID, models.JobStatusAnalyzing, models.JobStatusSkipped))

	assert.Error(t, svc.Cancel(ctx, job.ID))
}

func TestRestartAndStatus(t *testing.T) {
	svc, jobs, engine := setupJobService(t)
	ctx := context.Background()

	job := queueJob(t, jobs, "/m/a.mkv")
	require.NoError(t, jobs.Transition(ctx, job.ID, models.JobStatusQueued, models.JobStatusClaimed))
	require.NoError(t, jobs.Transition(ctx, job.ID, models.JobStatusClaimed, models.JobStatusFailed))

	require.NoError(t, svc.Restart(ctx, job.ID))
	fresh, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, fresh.Status)

	queueJob(t, jobs, "/m/b.mkv")

	status, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.ConcurrentLimit)
	assert.EqualValues(t, 2, status.Total)
	assert.EqualValues(t, 0, status.Completed)
	assert.False(t, status.Paused)

	svc.Pause()
	status, err = svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Paused)
	assert.Equal(t, 0, engine.ActiveCount())
}

func TestDeleteRejectsInFlight(t *testing.T) {
	svc, jobs, _ := setupJobService(t)
	ctx := context.Background()

	job := queueJob(t, jobs, "/m/a.mkv")
	require.NoError(t, jobs.Transition(ctx, job.ID, models.JobStatusQueued, models.JobStatusClaimed))

	assert.Error(t, svc.Delete(ctx, job.ID))

	require.NoError(t, jobs.Transition(ctx, job.ID, models.JobStatusClaimed, models.JobStatusCancelled))
	require.NoError(t, svc.Delete(ctx, job.ID))

	fresh, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Nil(t, fresh)
}

func TestBulkRestart(t *testing.T) {
	svc, jobs, _ := setupJobService(t)
	ctx := context.Background()

	var ids []models.ULID
	for _, path := range []string{"/m/a.mkv", "/m/b.mkv"} {
		job := queueJob(t, jobs, path)
		require.NoError(t, jobs.Transition(ctx, job.ID, models.JobStatusQueued, models.JobStatusClaimed))
		require.NoError(t, jobs.Transition(ctx, job.ID, models.JobStatusClaimed, models.JobStatusFailed))
		ids = append(ids, job.ID)
	}

	done, err := svc.BulkRestart(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, 2, done)
}
