package models

import "gorm.io/gorm"

// EncodeStats records the outcome of a committed encode. Exactly one row
// exists per completed job.
type EncodeStats struct {
	BaseModel

	JobID ULID `gorm:"type:varchar(26);not null;uniqueIndex" json:"job_id"`

	InputSizeBytes  int64 `gorm:"not null" json:"input_size_bytes"`
	OutputSizeBytes int64 `gorm:"not null" json:"output_size_bytes"`

	// CompressionRatio is input size over output size.
	CompressionRatio float64 `gorm:"not null" json:"compression_ratio"`

	EncodeTimeSeconds float64 `gorm:"not null" json:"encode_time_seconds"`

	// EncodeSpeed is source frames processed per wall-clock second.
	EncodeSpeed float64 `gorm:"not null" json:"encode_speed"`

	// AvgBitrateKbps is derived from the output size and duration.
	AvgBitrateKbps float64 `gorm:"not null" json:"avg_bitrate_kbps"`

	VmafScore *float64 `json:"vmaf_score,omitempty"`
}

// TableName returns the table name for EncodeStats.
func (EncodeStats) TableName() string {
	return "encode_stats"
}

// Validate performs basic validation on the stats row.
func (s *EncodeStats) Validate() error {
	if s.JobID.IsZero() {
		return ErrJobIDRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the stats row.
func (s *EncodeStats) BeforeCreate(tx *gorm.DB) error {
	if err := s.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return s.Validate()
}

// SavingsBytes returns how many bytes the encode saved.
func (s *EncodeStats) SavingsBytes() int64 {
	return s.InputSizeBytes - s.OutputSizeBytes
}
