package models

import "gorm.io/gorm"

// DecisionAction classifies what the pipeline decided to do with a job.
type DecisionAction string

const (
	// DecisionEncode records that the analyzer approved a transcode.
	DecisionEncode DecisionAction = "encode"
	// DecisionSkip records that the analyzer declined the file.
	DecisionSkip DecisionAction = "skip"
	// DecisionRevert records that a gate rejected the produced output.
	DecisionRevert DecisionAction = "revert"
	// DecisionFail records a probe or encoder error.
	DecisionFail DecisionAction = "fail"
)

// IsValid reports whether the action is a known value.
func (a DecisionAction) IsValid() bool {
	switch a {
	case DecisionEncode, DecisionSkip, DecisionRevert, DecisionFail:
		return true
	}
	return false
}

// Decision is an append-only audit record attached to a job. A job may
// accumulate several decisions across re-evaluations and restarts.
type Decision struct {
	BaseModel

	JobID  ULID           `gorm:"type:varchar(26);not null;index" json:"job_id"`
	Action DecisionAction `gorm:"not null;size:10" json:"action"`
	Reason string         `gorm:"not null;size:1024" json:"reason"`
}

// TableName returns the table name for Decision.
func (Decision) TableName() string {
	return "decisions"
}

// Validate performs basic validation on the decision.
func (d *Decision) Validate() error {
	if d.JobID.IsZero() {
		return ErrJobIDRequired
	}
	if !d.Action.IsValid() {
		return ErrUnknownDecisionAction
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the decision.
func (d *Decision) BeforeCreate(tx *gorm.DB) error {
	if err := d.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return d.Validate()
}
