package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/bybrooklyn/alchemist/internal/models"
)

// jobRepo implements JobRepository using GORM.
type jobRepo struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) JobRepository {
	return &jobRepo{db: db}
}

// Insert idempotently enqueues a job for a source file.
//
// Semantics:
//   - no existing row: a queued row is created
//   - existing row with the same mtime_hash: no-op
//   - existing row with a different mtime_hash: the source changed, so the
//     row resets to queued with fresh progress; attempt_count is preserved
func (r *jobRepo) Insert(ctx context.Context, inputPath, outputPath, mtimeHash string, priority int) (*models.Job, bool, error) {
	var job *models.Job
	var changed bool

	err := withBusyRetry(ctx, func() error {
		job = nil
		changed = false
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var existing models.Job
			err := tx.Where("input_path = ?", inputPath).First(&existing).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				created := &models.Job{
					InputPath:  inputPath,
					OutputPath: outputPath,
					Status:     models.JobStatusQueued,
					MtimeHash:  mtimeHash,
					Priority:   priority,
				}
				if err := tx.Create(created).Error; err != nil {
					return fmt.Errorf("creating job: %w", err)
				}
				job = created
				changed = true
				return nil
			case err != nil:
				return fmt.Errorf("looking up job: %w", err)
			}

			if existing.MtimeHash == mtimeHash {
				job = &existing
				return nil
			}

			// Source file changed since last observation: re-queue.
			updates := map[string]any{
				"mtime_hash":  mtimeHash,
				"output_path": outputPath,
				"status":      models.JobStatusQueued,
				"progress":    0.0,
				"updated_at":  models.Now(),
			}
			if err := tx.Model(&existing).Updates(updates).Error; err != nil {
				return fmt.Errorf("re-queuing job: %w", err)
			}
			job = &existing
			changed = true
			return nil
		})
	})
	if err != nil {
		return nil, false, err
	}
	return job, changed, nil
}

// ClaimNextEligible atomically claims up to limit queued jobs, skipping
// input paths already in flight in this process. The select and update run
// in one transaction so two claim loops can never take the same row.
func (r *jobRepo) ClaimNextEligible(ctx context.Context, limit int, excluded []string) ([]*models.Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	var claimed []*models.Job
	err := withBusyRetry(ctx, func() error {
		claimed = nil
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var ids []models.ULID
			q := tx.Model(&models.Job{}).
				Where("status = ?", models.JobStatusQueued).
				Order("priority DESC, created_at ASC, id ASC").
				Limit(limit)
			if len(excluded) > 0 {
				q = q.Where("input_path NOT IN ?", excluded)
			}
			if err := q.Pluck("id", &ids).Error; err != nil {
				return fmt.Errorf("selecting eligible jobs: %w", err)
			}
			if len(ids) == 0 {
				return nil
			}

			if err := tx.Model(&models.Job{}).
				Where("id IN ? AND status = ?", ids, models.JobStatusQueued).
				Updates(map[string]any{
					"status":     models.JobStatusClaimed,
					"updated_at": models.Now(),
				}).Error; err != nil {
				return fmt.Errorf("claiming jobs: %w", err)
			}

			if err := tx.Where("id IN ?", ids).
				Order("priority DESC, created_at ASC, id ASC").
				Find(&claimed).Error; err != nil {
				return fmt.Errorf("loading claimed jobs: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Transition moves a job along a legal state-machine edge.
func (r *jobRepo) Transition(ctx context.Context, id models.ULID, from, to models.JobStatus) error {
	if !models.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, to)
	}

	return withBusyRetry(ctx, func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var job models.Job
			if err := tx.Where("id = ?", id).First(&job).Error; err != nil {
				return fmt.Errorf("loading job: %w", err)
			}
			if job.Status != from {
				return fmt.Errorf("%w: job is %s, expected %s", models.ErrInvalidTransition, job.Status, from)
			}

			updates := map[string]any{
				"status":     to,
				"updated_at": models.Now(),
			}
			if to.IsTerminal() {
				updates["progress"] = models.TerminalProgress(to, job.Progress)
			}
			if err := tx.Model(&job).Updates(updates).Error; err != nil {
				return fmt.Errorf("updating job status: %w", err)
			}
			return nil
		})
	})
}

// MarkProgress stores a coalesced progress value, clamped so progress never
// decreases within a run and never exceeds 100.
func (r *jobRepo) MarkProgress(ctx context.Context, id models.ULID, pct float64) error {
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}

	return withBusyRetry(ctx, func() error {
		res := r.db.WithContext(ctx).Model(&models.Job{}).
			Where("id = ? AND progress < ?", id, pct).
			Updates(map[string]any{
				"progress":   pct,
				"updated_at": models.Now(),
			})
		if res.Error != nil {
			return fmt.Errorf("marking progress: %w", res.Error)
		}
		return nil
	})
}

// IncrementAttempt bumps the attempt counter at the start of an attempt.
func (r *jobRepo) IncrementAttempt(ctx context.Context, id models.ULID) error {
	return withBusyRetry(ctx, func() error {
		if err := r.db.WithContext(ctx).Model(&models.Job{}).
			Where("id = ?", id).
			UpdateColumn("attempt_count", gorm.Expr("attempt_count + 1")).Error; err != nil {
			return fmt.Errorf("incrementing attempt count: %w", err)
		}
		return nil
	})
}

// Restart re-queues a terminal job. The next orchestrator attempt bumps
// attempt_count, so each restart increases it by exactly one.
func (r *jobRepo) Restart(ctx context.Context, id models.ULID) error {
	return withBusyRetry(ctx, func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var job models.Job
			if err := tx.Where("id = ?", id).First(&job).Error; err != nil {
				return fmt.Errorf("loading job: %w", err)
			}
			if !job.Status.IsTerminal() {
				return fmt.Errorf("%w: job is %s", models.ErrNotTerminal, job.Status)
			}

			return tx.Model(&job).Updates(map[string]any{
				"status":     models.JobStatusQueued,
				"progress":   0.0,
				"updated_at": models.Now(),
			}).Error
		})
	})
}

// ResetInterrupted re-queues jobs left in flight by a crash. A single
// process owns all in-flight state, so any such row at boot is an orphan.
func (r *jobRepo) ResetInterrupted(ctx context.Context) (int64, error) {
	var affected int64
	err := withBusyRetry(ctx, func() error {
		res := r.db.WithContext(ctx).Model(&models.Job{}).
			Where("status IN ?", []models.JobStatus{
				models.JobStatusClaimed,
				models.JobStatusAnalyzing,
				models.JobStatusEncoding,
				models.JobStatusVerifying,
			}).
			Updates(map[string]any{
				"status":     models.JobStatusQueued,
				"updated_at": models.Now(),
			})
		if res.Error != nil {
			return fmt.Errorf("resetting interrupted jobs: %w", res.Error)
		}
		affected = res.RowsAffected
		return nil
	})
	return affected, err
}

// GetByID retrieves a job by ID. Returns nil when not found.
func (r *jobRepo) GetByID(ctx context.Context, id models.ULID) (*models.Job, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting job by ID: %w", err)
	}
	return &job, nil
}

// GetByInputPath retrieves a job by input path. Returns nil when not found.
func (r *jobRepo) GetByInputPath(ctx context.Context, inputPath string) (*models.Job, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).Where("input_path = ?", inputPath).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting job by input path: %w", err)
	}
	return &job, nil
}

// jobSortColumns whitelists sortable columns.
var jobSortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"priority":   "priority",
	"status":     "status",
	"input_path": "input_path",
}

// List returns a filtered, sorted, paginated job listing and the total count.
func (r *jobRepo) List(ctx context.Context, filter JobFilter) ([]*models.Job, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Job{})

	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		q = q.Where("LOWER(input_path) LIKE ?", "%"+strings.ToLower(filter.Search)+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting jobs: %w", err)
	}

	col, ok := jobSortColumns[filter.SortBy]
	if !ok {
		col = "created_at"
	}
	dir := "ASC"
	if filter.SortDesc {
		dir = "DESC"
	}
	q = q.Order(fmt.Sprintf("%s %s, id ASC", col, dir))

	perPage := filter.PerPage
	if perPage <= 0 || perPage > 500 {
		perPage = 50
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	q = q.Offset((page - 1) * perPage).Limit(perPage)

	var jobs []*models.Job
	if err := q.Find(&jobs).Error; err != nil {
		return nil, 0, fmt.Errorf("listing jobs: %w", err)
	}
	return jobs, total, nil
}

// Detail returns the per-job view. Returns nil when the job does not exist.
func (r *jobRepo) Detail(ctx context.Context, id models.ULID) (*JobDetail, error) {
	job, err := r.GetByID(ctx, id)
	if err != nil || job == nil {
		return nil, err
	}

	detail := &JobDetail{Job: job}

	var stats models.EncodeStats
	err = r.db.WithContext(ctx).Where("job_id = ?", id).First(&stats).Error
	switch {
	case err == nil:
		detail.Stats = &stats
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("loading encode stats: %w", err)
	}

	var decision models.Decision
	err = r.db.WithContext(ctx).Where("job_id = ?", id).
		Order("created_at DESC, id DESC").First(&decision).Error
	switch {
	case err == nil:
		detail.LatestDecision = &decision
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("loading latest decision: %w", err)
	}

	return detail, nil
}

// Delete removes a job and its dependent rows.
func (r *jobRepo) Delete(ctx context.Context, id models.ULID) error {
	return withBusyRetry(ctx, func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("job_id = ?", id).Delete(&models.Decision{}).Error; err != nil {
				return fmt.Errorf("deleting decisions: %w", err)
			}
			if err := tx.Where("job_id = ?", id).Delete(&models.EncodeStats{}).Error; err != nil {
				return fmt.Errorf("deleting encode stats: %w", err)
			}
			if err := tx.Where("id = ?", id).Delete(&models.Job{}).Error; err != nil {
				return fmt.Errorf("deleting job: %w", err)
			}
			return nil
		})
	})
}

// DeleteCompleted bulk-removes completed jobs and their dependent rows.
func (r *jobRepo) DeleteCompleted(ctx context.Context) (int64, error) {
	var affected int64
	err := withBusyRetry(ctx, func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var ids []models.ULID
			if err := tx.Model(&models.Job{}).
				Where("status = ?", models.JobStatusCompleted).
				Pluck("id", &ids).Error; err != nil {
				return fmt.Errorf("selecting completed jobs: %w", err)
			}
			if len(ids) == 0 {
				affected = 0
				return nil
			}
			if err := tx.Where("job_id IN ?", ids).Delete(&models.Decision{}).Error; err != nil {
				return fmt.Errorf("deleting decisions: %w", err)
			}
			if err := tx.Where("job_id IN ?", ids).Delete(&models.EncodeStats{}).Error; err != nil {
				return fmt.Errorf("deleting encode stats: %w", err)
			}
			res := tx.Where("id IN ?", ids).Delete(&models.Job{})
			if res.Error != nil {
				return fmt.Errorf("deleting jobs: %w", res.Error)
			}
			affected = res.RowsAffected
			return nil
		})
	})
	return affected, err
}

// CountByStatus returns the number of jobs in each status.
func (r *jobRepo) CountByStatus(ctx context.Context) (StatusCounts, error) {
	type row struct {
		Status models.JobStatus
		N      int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).Model(&models.Job{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("counting jobs by status: %w", err)
	}

	counts := make(StatusCounts, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}

// Aggregated returns the row-wise aggregate over all jobs and completed
// encode stats.
func (r *jobRepo) Aggregated(ctx context.Context) (*AggregatedStats, error) {
	counts, err := r.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	agg := &AggregatedStats{
		Completed: counts[models.JobStatusCompleted],
		Failed:    counts[models.JobStatusFailed],
		Skipped:   counts[models.JobStatusSkipped],
		Reverted:  counts[models.JobStatusReverted],
		Queued:    counts[models.JobStatusQueued],
	}
	for _, n := range counts {
		agg.TotalJobs += n
	}

	type sums struct {
		InputBytes  int64
		OutputBytes int64
		EncodeSecs  float64
		AvgRatio    float64
	}
	var s sums
	if err := r.db.WithContext(ctx).Model(&models.EncodeStats{}).
		Select("COALESCE(SUM(input_size_bytes),0) AS input_bytes, " +
			"COALESCE(SUM(output_size_bytes),0) AS output_bytes, " +
			"COALESCE(SUM(encode_time_seconds),0) AS encode_secs, " +
			"COALESCE(AVG(compression_ratio),0) AS avg_ratio").
		Scan(&s).Error; err != nil {
		return nil, fmt.Errorf("aggregating encode stats: %w", err)
	}

	agg.InputBytes = s.InputBytes
	agg.OutputBytes = s.OutputBytes
	agg.SavedBytes = s.InputBytes - s.OutputBytes
	agg.TotalEncodeSecs = s.EncodeSecs
	agg.AvgCompression = s.AvgRatio
	return agg, nil
}

// Daily returns per-day completion rollups for the trailing window.
// Aggregation happens in Go to stay portable across drivers.
func (r *jobRepo) Daily(ctx context.Context, days int, now time.Time) ([]DailyStat, error) {
	if days <= 0 {
		days = 30
	}
	since := now.AddDate(0, 0, -days)

	var stats []models.EncodeStats
	if err := r.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Find(&stats).Error; err != nil {
		return nil, fmt.Errorf("loading encode stats: %w", err)
	}

	byDay := make(map[string]*DailyStat, days)
	for _, s := range stats {
		day := s.CreatedAt.UTC().Format("2006-01-02")
		d, ok := byDay[day]
		if !ok {
			d = &DailyStat{Day: day}
			byDay[day] = d
		}
		d.Completed++
		d.SavedBytes += s.SavingsBytes()
	}

	out := make([]DailyStat, 0, len(byDay))
	for _, d := range byDay {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

// RecentCompleted returns the most recently completed jobs with details.
func (r *jobRepo) RecentCompleted(ctx context.Context, limit int) ([]*JobDetail, error) {
	if limit <= 0 {
		limit = 20
	}

	var jobs []*models.Job
	if err := r.db.WithContext(ctx).
		Where("status = ?", models.JobStatusCompleted).
		Order("updated_at DESC, id DESC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("listing recent completed jobs: %w", err)
	}

	details := make([]*JobDetail, 0, len(jobs))
	for _, job := range jobs {
		detail, err := r.Detail(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		if detail != nil {
			details = append(details, detail)
		}
	}
	return details, nil
}
