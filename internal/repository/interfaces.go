// Package repository provides typed data access for alchemist entities.
// Repositories are the only writers of persistent state; they encapsulate
// the job state machine, idempotent enqueueing, and claim atomicity.
package repository

import (
	"context"
	"time"

	"github.com/bybrooklyn/alchemist/internal/models"
)

// JobFilter narrows and orders job listings for the UI.
type JobFilter struct {
	// Status restricts to one status when non-empty.
	Status models.JobStatus
	// Search substring-matches against input_path (case-insensitive).
	Search string
	// SortBy is one of created_at, updated_at, priority, status, input_path.
	SortBy string
	// SortDesc reverses the sort order.
	SortDesc bool
	// Page is 1-based; PerPage caps the page size.
	Page    int
	PerPage int
}

// JobDetail is the per-job view joining the job row with its stats and the
// most recent decision.
type JobDetail struct {
	Job            *models.Job         `json:"job"`
	Stats          *models.EncodeStats `json:"stats,omitempty"`
	LatestDecision *models.Decision    `json:"latest_decision,omitempty"`
}

// AggregatedStats summarizes completed encodes.
type AggregatedStats struct {
	TotalJobs       int64   `json:"total_jobs"`
	Completed       int64   `json:"completed"`
	Failed          int64   `json:"failed"`
	Skipped         int64   `json:"skipped"`
	Reverted        int64   `json:"reverted"`
	Queued          int64   `json:"queued"`
	InputBytes      int64   `json:"input_bytes"`
	OutputBytes     int64   `json:"output_bytes"`
	SavedBytes      int64   `json:"saved_bytes"`
	AvgCompression  float64 `json:"avg_compression"`
	TotalEncodeSecs float64 `json:"total_encode_seconds"`
}

// DailyStat is one day of the trailing-30-day rollup.
type DailyStat struct {
	Day        string `json:"day"` // YYYY-MM-DD
	Completed  int64  `json:"completed"`
	SavedBytes int64  `json:"saved_bytes"`
}

// StatusCounts maps each job status to its row count.
type StatusCounts map[models.JobStatus]int64

// JobRepository is the typed store for jobs and their lifecycle.
type JobRepository interface {
	// Insert idempotently enqueues a job. An existing row with the same
	// fingerprint is untouched; a changed fingerprint re-queues the row
	// preserving attempt_count. Returns the row and whether it was
	// created or re-queued.
	Insert(ctx context.Context, inputPath, outputPath, mtimeHash string, priority int) (*models.Job, bool, error)

	// ClaimNextEligible atomically moves up to limit queued jobs to
	// claimed, ordered by priority DESC, created_at ASC, id ASC, skipping
	// the excluded input paths.
	ClaimNextEligible(ctx context.Context, limit int, excluded []string) ([]*models.Job, error)

	// Transition enforces the state machine; it fails with
	// models.ErrInvalidTransition when the job is not in from or the edge
	// is not legal. Terminal transitions apply their progress side effect.
	Transition(ctx context.Context, id models.ULID, from, to models.JobStatus) error

	// MarkProgress clamps pct into [current, 100] and stores it.
	MarkProgress(ctx context.Context, id models.ULID, pct float64) error

	// IncrementAttempt bumps attempt_count at the start of an attempt.
	IncrementAttempt(ctx context.Context, id models.ULID) error

	// Restart moves a terminal job back to queued.
	Restart(ctx context.Context, id models.ULID) error

	// ResetInterrupted re-queues jobs left in-flight by a crash.
	ResetInterrupted(ctx context.Context) (int64, error)

	GetByID(ctx context.Context, id models.ULID) (*models.Job, error)
	GetByInputPath(ctx context.Context, inputPath string) (*models.Job, error)
	List(ctx context.Context, filter JobFilter) ([]*models.Job, int64, error)
	Detail(ctx context.Context, id models.ULID) (*JobDetail, error)
	Delete(ctx context.Context, id models.ULID) error
	DeleteCompleted(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context) (StatusCounts, error)
	Aggregated(ctx context.Context) (*AggregatedStats, error)
	Daily(ctx context.Context, days int, now time.Time) ([]DailyStat, error)
	RecentCompleted(ctx context.Context, limit int) ([]*JobDetail, error)
}

// DecisionRepository appends and reads audit decisions.
type DecisionRepository interface {
	Record(ctx context.Context, jobID models.ULID, action models.DecisionAction, reason string) (*models.Decision, error)
	ListByJob(ctx context.Context, jobID models.ULID) ([]*models.Decision, error)
	Latest(ctx context.Context, jobID models.ULID) (*models.Decision, error)
}

// EncodeStatsRepository records committed encode outcomes.
type EncodeStatsRepository interface {
	Record(ctx context.Context, stats *models.EncodeStats) error
	GetByJob(ctx context.Context, jobID models.ULID) (*models.EncodeStats, error)
}

// WatchDirRepository manages watched directories.
type WatchDirRepository interface {
	Create(ctx context.Context, dir *models.WatchDir) error
	GetAll(ctx context.Context) ([]*models.WatchDir, error)
	GetEnabled(ctx context.Context) ([]*models.WatchDir, error)
	Delete(ctx context.Context, id models.ULID) error
}

// ScheduleWindowRepository manages active-hours windows.
type ScheduleWindowRepository interface {
	Create(ctx context.Context, window *models.ScheduleWindow) error
	GetAll(ctx context.Context) ([]*models.ScheduleWindow, error)
	GetEnabled(ctx context.Context) ([]*models.ScheduleWindow, error)
	Delete(ctx context.Context, id models.ULID) error
}

// NotificationTargetRepository manages notification endpoints.
type NotificationTargetRepository interface {
	Create(ctx context.Context, target *models.NotificationTarget) error
	GetAll(ctx context.Context) ([]*models.NotificationTarget, error)
	GetEnabled(ctx context.Context) ([]*models.NotificationTarget, error)
	GetByID(ctx context.Context, id models.ULID) (*models.NotificationTarget, error)
	Delete(ctx context.Context, id models.ULID) error
}

// LogRepository appends and pages over dashboard log rows.
type LogRepository interface {
	Record(ctx context.Context, level string, jobID *models.ULID, message string) error
	History(ctx context.Context, page, perPage int) ([]*models.LogEntry, int64, error)
	Clear(ctx context.Context) error
	// Sweep deletes the oldest rows beyond keep.
	Sweep(ctx context.Context, keep int) (int64, error)
}

// SettingsRepository reads and writes persisted runtime settings.
type SettingsRepository interface {
	GetAll(ctx context.Context) (map[string]string, error)
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	SetAll(ctx context.Context, values map[string]string) error
}

// SessionRepository persists opaque auth sessions for the collaborator.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByToken(ctx context.Context, token string) (*models.Session, error)
	Delete(ctx context.Context, id models.ULID) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
