package models

// LogEntry is a rolling application log row surfaced on the dashboard.
// A periodic sweep bounds the table size.
type LogEntry struct {
	BaseModel

	Level   string `gorm:"not null;size:10;index" json:"level"`
	JobID   *ULID  `gorm:"type:varchar(26);index" json:"job_id,omitempty"`
	Message string `gorm:"not null;size:4096" json:"message"`
}

// TableName returns the table name for LogEntry.
func (LogEntry) TableName() string {
	return "log_entries"
}
