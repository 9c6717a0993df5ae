package settings

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bybrooklyn/alchemist/internal/config"
	"github.com/bybrooklyn/alchemist/internal/models"
	"github.com/bybrooklyn/alchemist/internal/repository"
)

func setupService(t *testing.T) *Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Setting{}))

	cfg := &config.Config{
		Transcode: config.TranscodeConfig{
			OutputCodec:            config.CodecAV1,
			QualityProfile:         config.ProfileBalanced,
			SizeReductionThreshold: 0.3,
			MinBppThreshold:        0.10,
			MinFileSizeMB:          50,
			ConcurrentJobs:         1,
			AllowFallback:          true,
			HdrMode:                config.HdrPreserve,
		},
		Files:    config.FilesConfig{OutputExtension: "mkv", OutputSuffix: "-alchemist"},
		Hardware: config.HardwareConfig{AllowCpuFallback: true, AllowCpuEncoding: true, CpuPreset: config.PresetMedium},
		Scanner:  config.ScannerConfig{Extensions: []string{"mkv", "mp4"}},
		Quality:  config.QualityConfig{MinVmafScore: 90},
		System:   config.SystemConfig{LogRetainRows: 10000},
	}

	return NewService(repository.NewSettingsRepository(db), cfg)
}

func TestSnapshotDefaultsWhenStoreEmpty(t *testing.T) {
	svc := setupService(t)

	snap, err := svc.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, config.CodecAV1, snap.Transcode.OutputCodec)
	assert.Equal(t, int64(50), snap.Transcode.MinFileSizeMB)
	assert.Equal(t, "-alchemist", snap.Files.OutputSuffix)
	assert.Equal(t, []string{"mkv", "mp4"}, snap.Scanner.Extensions)
}

func TestUpdateOverlaysPersistedValues(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	require.NoError(t, svc.Update(ctx, map[string]string{
		"transcode.output_codec":    "hevc",
		"transcode.concurrent_jobs": "4",
		"files.delete_source":       "true",
		"scanner.extensions":        "mkv, webm",
	}))

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, config.CodecHEVC, snap.Transcode.OutputCodec)
	assert.Equal(t, 4, snap.Transcode.ConcurrentJobs)
	assert.True(t, snap.Files.DeleteSource)
	assert.Equal(t, []string{"mkv", "webm"}, snap.Scanner.Extensions)

	// Untouched keys keep their defaults.
	assert.Equal(t, 0.3, snap.Transcode.SizeReductionThreshold)
}

func TestUpdateRejectsInvalidValues(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	cases := []map[string]string{
		{"transcode.output_codec": "vp9"},
		{"transcode.quality_profile": "ultra"},
		{"transcode.concurrent_jobs": "0"},
		{"transcode.concurrent_jobs": "9"},
		{"transcode.size_reduction_threshold": "1.5"},
		{"transcode.hdr_mode": "strip"},
	}
	for _, values := range cases {
		assert.Error(t, svc.Update(ctx, values), "values %v should be rejected", values)
	}

	// Nothing was persisted by the failed updates.
	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, config.CodecAV1, snap.Transcode.OutputCodec)
	assert.Equal(t, 1, snap.Transcode.ConcurrentJobs)
}

func TestCachedFallsBackToDefaults(t *testing.T) {
	svc := setupService(t)

	snap := svc.Cached()
	assert.Equal(t, config.CodecAV1, snap.Transcode.OutputCodec)

	require.NoError(t, svc.Update(context.Background(), map[string]string{"transcode.output_codec": "h264"}))
	assert.Equal(t, config.CodecH264, svc.Cached().Transcode.OutputCodec)
}

func TestSnapshotIsImmutableCopy(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	first, err := svc.Snapshot(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.Update(ctx, map[string]string{"transcode.output_codec": "hevc"}))

	// The earlier snapshot is unaffected by the live edit.
	assert.Equal(t, config.CodecAV1, first.Transcode.OutputCodec)
}
