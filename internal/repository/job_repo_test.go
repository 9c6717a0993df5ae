package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bybrooklyn/alchemist/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.Job{},
		&models.Decision{},
		&models.EncodeStats{},
		&models.LogEntry{},
		&models.Setting{},
		&models.Session{},
	)
	require.NoError(t, err)

	return db
}

func insertTestJob(t *testing.T, repo JobRepository, path string, priority int) *models.Job {
	t.Helper()
	job, created, err := repo.Insert(context.Background(), path, path+".out.mkv", "hash-"+path, priority)
	require.NoError(t, err)
	require.True(t, created)
	return job
}

func TestJobRepoInsertIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	// First insert creates the row.
	job1, created, err := repo.Insert(ctx, "/m/c.mp4", "/m/c-alchemist.mkv", "H", 0)
	require.NoError(t, err)
	assert.True(t, created)

	// Same fingerprint is a no-op.
	job2, created, err := repo.Insert(ctx, "/m/c.mp4", "/m/c-alchemist.mkv", "H", 0)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, job1.ID, job2.ID)

	var count int64
	require.NoError(t, db.Model(&models.Job{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestJobRepoInsertChangedFingerprint(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	job, _, err := repo.Insert(ctx, "/m/c.mp4", "/m/c-alchemist.mkv", "H", 0)
	require.NoError(t, err)

	// Simulate a finished run with attempts.
	require.NoError(t, repo.IncrementAttempt(ctx, job.ID))
	require.NoError(t, repo.Transition(ctx, job.ID, models.JobStatusQueued, models.JobStatusClaimed))
	require.NoError(t, repo.Transition(ctx, job.ID, models.JobStatusClaimed, models.JobStatusAnalyzing))
	require.NoError(t, repo.Transition(ctx, job.ID, models.JobStatusAnalyzing, models.JobStatusSkipped))

	// Changed file resets to queued and preserves attempt_count.
	requeued, changed, err := repo.Insert(ctx, "/m/c.mp4", "/m/c-alchemist.mkv", "H2", 0)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, job.ID, requeued.ID)

	fresh, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, fresh.Status)
	assert.Equal(t, 1, fresh.AttemptCount)
	assert.Equal(t, "H2", fresh.MtimeHash)

	var count int64
	require.NoError(t, db.Model(&models.Job{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestJobRepoClaimOrdering(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	low := insertTestJob(t, repo, "/m/low.mkv", 0)
	high := insertTestJob(t, repo, "/m/high.mkv", 5)
	mid := insertTestJob(t, repo, "/m/mid.mkv", 3)

	claimed, err := repo.ClaimNextEligible(ctx, 2, nil)
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	// priority DESC first.
	assert.Equal(t, high.ID, claimed[0].ID)
	assert.Equal(t, mid.ID, claimed[1].ID)
	for _, j := range claimed {
		assert.Equal(t, models.JobStatusClaimed, j.Status)
	}

	// A second claim picks up the remaining queued row only.
	claimed, err = repo.ClaimNextEligible(ctx, 10, nil)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, low.ID, claimed[0].ID)

	// Nothing left to claim.
	claimed, err = repo.ClaimNextEligible(ctx, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestJobRepoClaimExcludesInFlightPaths(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	insertTestJob(t, repo, "/m/a.mkv", 0)
	b := insertTestJob(t, repo, "/m/b.mkv", 0)

	claimed, err := repo.ClaimNextEligible(ctx, 10, []string{"/m/a.mkv"})
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, b.ID, claimed[0].ID)
}

func TestJobRepoTransition(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	job := insertTestJob(t, repo, "/m/a.mkv", 0)

	// Illegal edge is rejected.
	err := repo.Transition(ctx, job.ID, models.JobStatusQueued, models.JobStatusEncoding)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	// Wrong current status is rejected.
	err = repo.Transition(ctx, job.ID, models.JobStatusClaimed, models.JobStatusAnalyzing)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	// The legal path works end to end.
	path := []models.JobStatus{
		models.JobStatusClaimed,
		models.JobStatusAnalyzing,
		models.JobStatusEncoding,
		models.JobStatusVerifying,
		models.JobStatusCompleted,
	}
	from := models.JobStatusQueued
	for _, to := range path {
		require.NoError(t, repo.Transition(ctx, job.ID, from, to))
		from = to
	}

	fresh, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, fresh.Status)
	assert.Equal(t, 100.0, fresh.Progress)
}

func TestJobRepoTerminalProgressSideEffects(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	job := insertTestJob(t, repo, "/m/a.mkv", 0)
	require.NoError(t, repo.Transition(ctx, job.ID, models.JobStatusQueued, models.JobStatusClaimed))
	require.NoError(t, repo.Transition(ctx, job.ID, models.JobStatusClaimed, models.JobStatusAnalyzing))
	require.NoError(t, repo.Transition(ctx, job.ID, models.JobStatusAnalyzing, models.JobStatusEncoding))
	require.NoError(t, repo.MarkProgress(ctx, job.ID, 42.7))

	// Cancellation keeps the progress the run reached.
	require.NoError(t, repo.Transition(ctx, job.ID, models.JobStatusEncoding, models.JobStatusCancelled))
	fresh, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 42.7, fresh.Progress)

	// Reverted forces progress back to zero.
	job2 := insertTestJob(t, repo, "/m/b.mkv", 0)
	require.NoError(t, repo.Transition(ctx, job2.ID, models.JobStatusQueued, models.JobStatusClaimed))
	require.NoError(t, repo.Transition(ctx, job2.ID, models.JobStatusClaimed, models.JobStatusAnalyzing))
	require.NoError(t, repo.Transition(ctx, job2.ID, models.JobStatusAnalyzing, models.JobStatusEncoding))
	require.NoError(t, repo.MarkProgress(ctx, job2.ID, 99.0))
	require.NoError(t, repo.Transition(ctx, job2.ID, models.JobStatusEncoding, models.JobStatusVerifying))
	require.NoError(t, repo.Transition(ctx, job2.ID, models.JobStatusVerifying, models.JobStatusReverted))

	fresh2, err := repo.GetByID(ctx, job2.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, fresh2.Progress)
}

func TestJobRepoMarkProgressClamped(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	job := insertTestJob(t, repo, "/m/a.mkv", 0)

	require.NoError(t, repo.MarkProgress(ctx, job.ID, 30))
	require.NoError(t, repo.MarkProgress(ctx, job.ID, 20)) // regression ignored
	fresh, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 30.0, fresh.Progress)

	require.NoError(t, repo.MarkProgress(ctx, job.ID, 150)) // clamped to 100
	fresh, err = repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, fresh.Progress)
}

func TestJobRepoRestart(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	job := insertTestJob(t, repo, "/m/a.mkv", 0)

	// Not terminal yet.
	assert.ErrorIs(t, repo.Restart(ctx, job.ID), models.ErrNotTerminal)

	require.NoError(t, repo.IncrementAttempt(ctx, job.ID))
	require.NoError(t, repo.Transition(ctx, job.ID, models.JobStatusQueued, models.JobStatusClaimed))
	require.NoError(t, repo.Transition(ctx, job.ID, models.JobStatusClaimed, models.JobStatusFailed))

	require.NoError(t, repo.Restart(ctx, job.ID))
	fresh, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, fresh.Status)
	assert.Equal(t, 0.0, fresh.Progress)

	// The next attempt increments the counter: one per restart.
	require.NoError(t, repo.IncrementAttempt(ctx, job.ID))
	fresh, err = repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.AttemptCount)
}

func TestJobRepoResetInterrupted(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	encoding := insertTestJob(t, repo, "/m/a.mkv", 0)
	require.NoError(t, repo.Transition(ctx, encoding.ID, models.JobStatusQueued, models.JobStatusClaimed))
	require.NoError(t, repo.Transition(ctx, encoding.ID, models.JobStatusClaimed, models.JobStatusAnalyzing))
	require.NoError(t, repo.Transition(ctx, encoding.ID, models.JobStatusAnalyzing, models.JobStatusEncoding))

	done := insertTestJob(t, repo, "/m/b.mkv", 0)
	require.NoError(t, repo.Transition(ctx, done.ID, models.JobStatusQueued, models.JobStatusClaimed))
	require.NoError(t, repo.Transition(ctx, done.ID, models.JobStatusClaimed, models.JobStatusAnalyzing))
	require.NoError(t, repo.Transition(ctx, done.ID, models.JobStatusAnalyzing, models.JobStatusSkipped))

	reset, err := repo.ResetInterrupted(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, reset)

	fresh, err := repo.GetByID(ctx, encoding.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, fresh.Status)

	freshDone, err := repo.GetByID(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSkipped, freshDone.Status)
}

func TestJobRepoListFilterSearchPagination(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	insertTestJob(t, repo, "/library/shows/alpha.mkv", 0)
	insertTestJob(t, repo, "/library/shows/beta.mkv", 0)
	insertTestJob(t, repo, "/library/movies/Alpha Movie.mp4", 0)

	jobs, total, err := repo.List(ctx, JobFilter{Search: "alpha"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, jobs, 2)

	jobs, total, err = repo.List(ctx, JobFilter{Status: models.JobStatusQueued, Page: 1, PerPage: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, jobs, 2)

	jobs, _, err = repo.List(ctx, JobFilter{Status: models.JobStatusQueued, Page: 2, PerPage: 2})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestJobRepoAggregatedMatchesRows(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	statsRepo := NewEncodeStatsRepository(db)
	ctx := context.Background()

	sizes := []struct {
		in, out int64
	}{
		{5_000_000_000, 2_000_000_000},
		{1_000_000_000, 600_000_000},
	}
	for i, sz := range sizes {
		job := insertTestJob(t, repo, "/m/agg-"+string(rune('a'+i))+".mkv", 0)
		require.NoError(t, repo.Transition(ctx, job.ID, models.JobStatusQueued, models.JobStatusClaimed))
		require.NoError(t, repo.Transition(ctx, job.ID, models.JobStatusClaimed, models.JobStatusAnalyzing))
		require.NoError(t, repo.Transition(ctx, job.ID, models.JobStatusAnalyzing, models.JobStatusEncoding))
		require.NoError(t, repo.Transition(ctx, job.ID, models.JobStatusEncoding, models.JobStatusVerifying))
		require.NoError(t, repo.Transition(ctx, job.ID, models.JobStatusVerifying, models.JobStatusCompleted))

		require.NoError(t, statsRepo.Record(ctx, &models.EncodeStats{
			JobID:             job.ID,
			InputSizeBytes:    sz.in,
			OutputSizeBytes:   sz.out,
			CompressionRatio:  float64(sz.in) / float64(sz.out),
			EncodeTimeSeconds: 100,
			EncodeSpeed:       60,
			AvgBitrateKbps:    4000,
		}))
	}

	agg, err := repo.Aggregated(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, agg.Completed)
	assert.EqualValues(t, 2, agg.TotalJobs)
	assert.EqualValues(t, 6_000_000_000, agg.InputBytes)
	assert.EqualValues(t, 2_600_000_000, agg.OutputBytes)
	assert.EqualValues(t, 3_400_000_000, agg.SavedBytes)
	assert.InDelta(t, 200, agg.TotalEncodeSecs, 0.001)

	daily, err := repo.Daily(ctx, 30, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.EqualValues(t, 2, daily[0].Completed)
	assert.EqualValues(t, 3_400_000_000, daily[0].SavedBytes)
}

func TestEncodeStatsUniquePerJob(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	statsRepo := NewEncodeStatsRepository(db)
	ctx := context.Background()

	job := insertTestJob(t, repo, "/m/a.mkv", 0)

	first := &models.EncodeStats{JobID: job.ID, InputSizeBytes: 10, OutputSizeBytes: 5, CompressionRatio: 2}
	require.NoError(t, statsRepo.Record(ctx, first))

	// A second run for the same job replaces the row instead of duplicating.
	again := &models.EncodeStats{JobID: job.ID, InputSizeBytes: 10, OutputSizeBytes: 6, CompressionRatio: 1.6}
	require.NoError(t, statsRepo.Record(ctx, again))

	var count int64
	require.NoError(t, db.Model(&models.EncodeStats{}).Where("job_id = ?", job.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	stats, err := statsRepo.GetByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 6, stats.OutputSizeBytes)
}

func TestJobRepoDeleteCompleted(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	decisionRepo := NewDecisionRepository(db)
	ctx := context.Background()

	done := insertTestJob(t, repo, "/m/done.mkv", 0)
	require.NoError(t, repo.Transition(ctx, done.ID, models.JobStatusQueued, models.JobStatusClaimed))
	require.NoError(t, repo.Transition(ctx, done.ID, models.JobStatusClaimed, models.JobStatusAnalyzing))
	require.NoError(t, repo.Transition(ctx, done.ID, models.JobStatusAnalyzing, models.JobStatusEncoding))
	require.NoError(t, repo.Transition(ctx, done.ID, models.JobStatusEncoding, models.JobStatusVerifying))
	require.NoError(t, repo.Transition(ctx, done.ID, models.JobStatusVerifying, models.JobStatusCompleted))
	_, err := decisionRepo.Record(ctx, done.ID, models.DecisionEncode, "expected savings 60%")
	require.NoError(t, err)

	insertTestJob(t, repo, "/m/pending.mkv", 0)

	removed, err := repo.DeleteCompleted(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	var jobCount, decisionCount int64
	require.NoError(t, db.Model(&models.Job{}).Count(&jobCount).Error)
	require.NoError(t, db.Model(&models.Decision{}).Count(&decisionCount).Error)
	assert.EqualValues(t, 1, jobCount)
	assert.EqualValues(t, 0, decisionCount)
}

func TestDecisionRepoAppendOnly(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	decisionRepo := NewDecisionRepository(db)
	ctx := context.Background()

	job := insertTestJob(t, repo, "/m/a.mkv", 0)

	_, err := decisionRepo.Record(ctx, job.ID, models.DecisionSkip, "file too small")
	require.NoError(t, err)
	_, err = decisionRepo.Record(ctx, job.ID, models.DecisionEncode, "re-evaluated")
	require.NoError(t, err)

	all, err := decisionRepo.ListByJob(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, models.DecisionSkip, all[0].Action)

	latest, err := decisionRepo.Latest(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionEncode, latest.Action)
}
