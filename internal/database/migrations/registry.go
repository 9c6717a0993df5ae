// Package migrations provides database migration management for alchemist.
package migrations

import (
	"gorm.io/gorm"

	"github.com/bybrooklyn/alchemist/internal/models"
)

// AllMigrations returns all registered migrations in order.
// - 001: Schema creation using GORM AutoMigrate
// - 002: Schema info + default settings seed
// - 003: Add per-directory extension override to watch_dirs
// - 004: Add vmaf_score column to encode_stats
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
		migration002SystemData(),
		migration003WatchDirExtensions(),
		migration004EncodeStatsVmaf(),
	}
}

// migration001Schema creates all tables for a fresh installation.
func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create initial schema",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.Job{},
				&models.Decision{},
				&models.EncodeStats{},
				&models.WatchDir{},
				&models.ScheduleWindow{},
				&models.NotificationTarget{},
				&models.LogEntry{},
				&models.User{},
				&models.Session{},
				&models.SchemaInfo{},
				&models.Setting{},
			)
		},
	}
}

// migration002SystemData seeds schema info and default runtime settings.
// The minimum compatible version is recorded once and never decreased.
func migration002SystemData() Migration {
	return Migration{
		Version:     "002",
		Description: "Seed schema info and default settings",
		Up: func(tx *gorm.DB) error {
			info := []models.SchemaInfo{
				{Key: models.SchemaVersionKey, Value: "2"},
				{Key: models.MinCompatibleVersionKey, Value: "1"},
			}
			for _, row := range info {
				if err := tx.Where("key = ?", row.Key).FirstOrCreate(&row).Error; err != nil {
					return err
				}
			}

			defaults := map[string]string{
				"transcode.output_codec":             "av1",
				"transcode.quality_profile":          "balanced",
				"transcode.size_reduction_threshold": "0.3",
				"transcode.min_bpp_threshold":        "0.10",
				"transcode.min_file_size_mb":         "50",
				"transcode.concurrent_jobs":          "1",
				"transcode.threads":                  "0",
				"transcode.allow_fallback":           "true",
				"transcode.hdr_mode":                 "preserve",
				"transcode.tonemap_algorithm":        "hable",
				"transcode.tonemap_peak":             "100",
				"transcode.tonemap_desat":            "0.5",
				"files.delete_source":                "false",
				"files.output_extension":             "mkv",
				"files.output_suffix":                "-alchemist",
				"hardware.allow_cpu_fallback":        "true",
				"hardware.allow_cpu_encoding":        "true",
				"hardware.cpu_preset":                "medium",
				"scanner.extensions":                 "mkv,mp4,avi,mov,ts,m2ts,webm,wmv",
				"scanner.exclude_patterns":           "sample,.partial",
				"quality.enable_vmaf":                "false",
				"quality.min_vmaf_score":             "90",
				"quality.revert_on_low_quality":      "true",
				"system.monitoring_poll_interval":    "2",
				"system.enable_telemetry":            "false",
				"system.log_retain_rows":             "10000",
			}
			for key, value := range defaults {
				row := models.Setting{Key: key, Value: value}
				if err := tx.Where("key = ?", key).FirstOrCreate(&row).Error; err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// migration003WatchDirExtensions adds the per-directory extension override
// column for databases created before it existed.
func migration003WatchDirExtensions() Migration {
	return Migration{
		Version:     "003",
		Description: "Add extensions column to watch_dirs",
		Up: func(tx *gorm.DB) error {
			if !tx.Migrator().HasColumn("watch_dirs", "extensions") {
				return tx.Exec("ALTER TABLE watch_dirs ADD COLUMN extensions VARCHAR(512) DEFAULT ''").Error
			}
			return nil
		},
	}
}

// migration004EncodeStatsVmaf adds the nullable vmaf_score column.
func migration004EncodeStatsVmaf() Migration {
	return Migration{
		Version:     "004",
		Description: "Add vmaf_score column to encode_stats",
		Up: func(tx *gorm.DB) error {
			if !tx.Migrator().HasColumn("encode_stats", "vmaf_score") {
				return tx.Exec("ALTER TABLE encode_stats ADD COLUMN vmaf_score REAL").Error
			}
			return nil
		},
	}
}
