package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// JobStatus represents the current status of a transcode job.
type JobStatus string

const (
	// JobStatusQueued indicates the job is waiting to be claimed.
	JobStatusQueued JobStatus = "queued"
	// JobStatusClaimed indicates the scheduler has taken ownership of the job.
	JobStatusClaimed JobStatus = "claimed"
	// JobStatusAnalyzing indicates the source file is being probed.
	JobStatusAnalyzing JobStatus = "analyzing"
	// JobStatusEncoding indicates ffmpeg is producing the output file.
	JobStatusEncoding JobStatus = "encoding"
	// JobStatusVerifying indicates the output is being gated on size/quality.
	JobStatusVerifying JobStatus = "verifying"
	// JobStatusCompleted indicates the output was committed.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusSkipped indicates the decision engine declined the file.
	JobStatusSkipped JobStatus = "skipped"
	// JobStatusFailed indicates a probe/encode error.
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled indicates the user cancelled the job.
	JobStatusCancelled JobStatus = "cancelled"
	// JobStatusReverted indicates the output failed a gate and was removed.
	JobStatusReverted JobStatus = "reverted"
)

// legalTransitions is the job state-machine graph. Restarting a terminal job
// back to queued is handled separately by Restart, not by Transition.
var legalTransitions = map[JobStatus][]JobStatus{
	JobStatusQueued:    {JobStatusClaimed, JobStatusFailed},
	JobStatusClaimed:   {JobStatusAnalyzing, JobStatusFailed, JobStatusCancelled},
	JobStatusAnalyzing: {JobStatusSkipped, JobStatusEncoding, JobStatusFailed, JobStatusCancelled},
	JobStatusEncoding:  {JobStatusVerifying, JobStatusFailed, JobStatusCancelled},
	JobStatusVerifying: {JobStatusCompleted, JobStatusReverted, JobStatusFailed, JobStatusCancelled},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to JobStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status is terminal.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusSkipped, JobStatusFailed, JobStatusCancelled, JobStatusReverted:
		return true
	}
	return false
}

// IsInFlight reports whether a job in this status counts against the
// concurrent-jobs limit.
func (s JobStatus) IsInFlight() bool {
	switch s {
	case JobStatusClaimed, JobStatusAnalyzing, JobStatusEncoding, JobStatusVerifying:
		return true
	}
	return false
}

// IsValid reports whether the status is a known value.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusQueued, JobStatusClaimed, JobStatusAnalyzing, JobStatusEncoding,
		JobStatusVerifying, JobStatusCompleted, JobStatusSkipped, JobStatusFailed,
		JobStatusCancelled, JobStatusReverted:
		return true
	}
	return false
}

// Job represents one media file's pipeline instance. Exactly one row exists
// per input path; re-observing a file with a changed fingerprint re-queues
// the existing row.
type Job struct {
	BaseModel

	// InputPath is the absolute path of the source media file.
	InputPath string `gorm:"not null;uniqueIndex;size:4096" json:"input_path"`

	// OutputPath is where the transcoded file will be committed.
	OutputPath string `gorm:"not null;size:4096" json:"output_path"`

	// Status is the job's position in the state machine.
	Status JobStatus `gorm:"not null;default:'queued';size:20;index" json:"status"`

	// MtimeHash fingerprints the source file (mtime + size) for idempotent
	// enqueueing.
	MtimeHash string `gorm:"not null;size:64" json:"mtime_hash"`

	// Priority determines claim order (higher first).
	Priority int `gorm:"default:0;index" json:"priority"`

	// Progress is the encode completion percentage (0..100). Monotonically
	// non-decreasing within a single encoding run.
	Progress float64 `gorm:"default:0" json:"progress"`

	// AttemptCount is the number of orchestrator attempts started for this
	// job, regardless of outcome.
	AttemptCount int `gorm:"default:0" json:"attempt_count"`
}

// TableName returns the table name for Job.
func (Job) TableName() string {
	return "jobs"
}

// Validate performs basic validation on the job.
func (j *Job) Validate() error {
	if j.InputPath == "" {
		return ErrInputPathRequired
	}
	if j.OutputPath == "" {
		return ErrOutputPathRequired
	}
	if j.Status != "" && !j.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, j.Status)
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the job and generates its ULID.
func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if err := j.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return j.Validate()
}

// TerminalProgress returns the progress value a terminal status forces, or
// the current value when the status keeps whatever the run reached.
func TerminalProgress(status JobStatus, current float64) float64 {
	switch status {
	case JobStatusCompleted:
		return 100.0
	case JobStatusSkipped, JobStatusReverted:
		return 0.0
	default:
		return current
	}
}

// FingerprintFile computes the mtime hash for a source file from its
// modification time and size.
func FingerprintFile(mtime time.Time, size int64) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%d:%d", mtime.UnixNano(), size))
	return hex.EncodeToString(sum[:16])
}
