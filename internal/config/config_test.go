package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	// A named-but-missing file is an error; no file at all uses defaults.
	assert.Error(t, err)

	cfg, err = Load("")
	require.NoError(t, err)

	assert.Equal(t, 8484, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, CodecAV1, cfg.Transcode.OutputCodec)
	assert.Equal(t, ProfileBalanced, cfg.Transcode.QualityProfile)
	assert.Equal(t, 0.3, cfg.Transcode.SizeReductionThreshold)
	assert.Equal(t, int64(50), cfg.Transcode.MinFileSizeMB)
	assert.Equal(t, 1, cfg.Transcode.ConcurrentJobs)
	assert.True(t, cfg.Transcode.AllowFallback)
	assert.Equal(t, HdrPreserve, cfg.Transcode.HdrMode)
	assert.Equal(t, "mkv", cfg.Files.OutputExtension)
	assert.Equal(t, "-alchemist", cfg.Files.OutputSuffix)
	assert.Equal(t, PresetMedium, cfg.Hardware.CpuPreset)
	assert.Contains(t, cfg.Scanner.Extensions, "mkv")
	assert.False(t, cfg.Quality.EnableVmaf)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9000
transcode:
  output_codec: hevc
  concurrent_jobs: 4
files:
  delete_source: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, CodecHEVC, cfg.Transcode.OutputCodec)
	assert.Equal(t, 4, cfg.Transcode.ConcurrentJobs)
	assert.True(t, cfg.Files.DeleteSource)
	// Unset keys fall back to defaults.
	assert.Equal(t, "mkv", cfg.Files.OutputExtension)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ALCHEMIST_TRANSCODE_OUTPUT_CODEC", "h264")
	t.Setenv("ALCHEMIST_SERVER_PORT", "9191")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, CodecH264, cfg.Transcode.OutputCodec)
	assert.Equal(t, 9191, cfg.Server.Port)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Transcode.OutputCodec = "vp9"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Transcode.ConcurrentJobs = 9
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Transcode.SizeReductionThreshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Database.Driver = "oracle"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Transcode.HdrMode = "strip"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Hardware.CpuPreset = "ludicrous"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Quality.MinVmafScore = 150
	assert.Error(t, cfg.Validate())
}
