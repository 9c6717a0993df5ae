package models

// SchemaInfo holds schema metadata as key/value pairs. Two keys are
// maintained: schema_version and min_compatible_version. The minimum
// compatible version is never decreased; migrations are strictly additive.
type SchemaInfo struct {
	Key   string `gorm:"primarykey;size:64" json:"key"`
	Value string `gorm:"not null;size:255" json:"value"`
}

// Schema info keys.
const (
	SchemaVersionKey        = "schema_version"
	MinCompatibleVersionKey = "min_compatible_version"
)

// TableName returns the table name for SchemaInfo.
func (SchemaInfo) TableName() string {
	return "schema_info"
}

// Setting is one persisted runtime configuration value, keyed as
// "section.name" (e.g. "transcode.output_codec"). The settings service
// reads these into typed snapshots.
type Setting struct {
	Key       string `gorm:"primarykey;size:128" json:"key"`
	Value     string `gorm:"not null;size:2048" json:"value"`
	UpdatedAt int64  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Setting.
func (Setting) TableName() string {
	return "settings"
}
