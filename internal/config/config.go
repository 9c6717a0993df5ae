// Package config provides configuration management for alchemist using Viper.
// It supports configuration from files, environment variables, and defaults.
//
// Boot-time settings (server, database, logging) live only here. Runtime
// settings (transcode, files, hardware, scanner, quality, system) seed the
// persisted settings store on first start and are edited over the API after
// that; this package's values act as defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort        = 8484
	defaultServerTimeout     = 30 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
	defaultMaxOpenConns      = 25
	defaultMaxIdleConns      = 10
	defaultConnMaxIdleTime   = 30 * time.Minute
	defaultConcurrentJobs    = 1
	defaultMinFileSizeMB     = 50
	defaultSizeReduction     = 0.3
	defaultMinBppThreshold   = 0.10
	defaultProbeTimeout      = 60 * time.Second
	defaultTonemapPeak       = 100.0
	defaultTonemapDesat      = 0.5
	defaultMinVmafScore      = 90.0
	defaultLogRetainRows     = 10000
	defaultMonitoringPollSec = 2.0
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Transcode TranscodeConfig `mapstructure:"transcode"`
	Files     FilesConfig     `mapstructure:"files"`
	Hardware  HardwareConfig  `mapstructure:"hardware"`
	Scanner   ScannerConfig   `mapstructure:"scanner"`
	Quality   QualityConfig   `mapstructure:"quality"`
	System    SystemConfig    `mapstructure:"system"`
	FFmpeg    FFmpegConfig    `mapstructure:"ffmpeg"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// OutputCodec is the preferred target video codec.
type OutputCodec string

// Target codecs, in descending preference of modernity.
const (
	CodecAV1  OutputCodec = "av1"
	CodecHEVC OutputCodec = "hevc"
	CodecH264 OutputCodec = "h264"
)

// IsValid reports whether the codec is a known value.
func (c OutputCodec) IsValid() bool {
	switch c {
	case CodecAV1, CodecHEVC, CodecH264:
		return true
	}
	return false
}

// QualityProfile selects the rate/quality trade-off.
type QualityProfile string

// Quality profiles.
const (
	ProfileSpeed    QualityProfile = "speed"
	ProfileBalanced QualityProfile = "balanced"
	ProfileQuality  QualityProfile = "quality"
)

// IsValid reports whether the profile is a known value.
func (p QualityProfile) IsValid() bool {
	switch p {
	case ProfileSpeed, ProfileBalanced, ProfileQuality:
		return true
	}
	return false
}

// HdrMode selects how HDR sources are handled.
type HdrMode string

// HDR policies.
const (
	HdrPreserve HdrMode = "preserve"
	HdrTonemap  HdrMode = "tonemap"
)

// CpuPreset selects the software encoder speed preset.
type CpuPreset string

// CPU presets, slowest (best compression) first.
const (
	PresetSlow   CpuPreset = "slow"
	PresetMedium CpuPreset = "medium"
	PresetFast   CpuPreset = "fast"
	PresetFaster CpuPreset = "faster"
)

// TranscodeConfig holds the decision-engine and scheduler knobs.
type TranscodeConfig struct {
	OutputCodec    OutputCodec    `mapstructure:"output_codec"`
	QualityProfile QualityProfile `mapstructure:"quality_profile"`

	// SizeReductionThreshold is the required relative savings in [0,1].
	// Output not at least this much smaller than the input is reverted.
	SizeReductionThreshold float64 `mapstructure:"size_reduction_threshold"`

	// MinBppThreshold skips sources whose normalized bits-per-pixel is
	// already below this density.
	MinBppThreshold float64 `mapstructure:"min_bpp_threshold"`

	MinFileSizeMB  int64 `mapstructure:"min_file_size_mb"`
	ConcurrentJobs int   `mapstructure:"concurrent_jobs"`

	// Threads is the software-encoder thread count; 0 means auto.
	Threads int `mapstructure:"threads"`

	AllowFallback bool `mapstructure:"allow_fallback"`

	HdrMode          HdrMode `mapstructure:"hdr_mode"`
	TonemapAlgorithm string  `mapstructure:"tonemap_algorithm"`
	TonemapPeak      float64 `mapstructure:"tonemap_peak"`
	TonemapDesat     float64 `mapstructure:"tonemap_desat"`
}

// FilesConfig holds output file policy.
type FilesConfig struct {
	DeleteSource    bool   `mapstructure:"delete_source"`
	OutputExtension string `mapstructure:"output_extension"`
	OutputSuffix    string `mapstructure:"output_suffix"`
}

// HardwareConfig holds hardware encoder policy.
type HardwareConfig struct {
	PreferredVendor  string    `mapstructure:"preferred_vendor"`
	DevicePath       string    `mapstructure:"device_path"`
	AllowCpuFallback bool      `mapstructure:"allow_cpu_fallback"`
	AllowCpuEncoding bool      `mapstructure:"allow_cpu_encoding"`
	CpuPreset        CpuPreset `mapstructure:"cpu_preset"`
}

// ScannerConfig holds library discovery configuration.
type ScannerConfig struct {
	Directories     []string `mapstructure:"directories"`
	Extensions      []string `mapstructure:"extensions"`
	ExcludePatterns []string `mapstructure:"exclude_patterns"`
}

// QualityConfig holds the VMAF verification gate.
type QualityConfig struct {
	EnableVmaf         bool    `mapstructure:"enable_vmaf"`
	MinVmafScore       float64 `mapstructure:"min_vmaf_score"`
	RevertOnLowQuality bool    `mapstructure:"revert_on_low_quality"`
}

// SystemConfig holds process monitoring and telemetry settings.
type SystemConfig struct {
	MonitoringPollInterval float64 `mapstructure:"monitoring_poll_interval"`
	EnableTelemetry        bool    `mapstructure:"enable_telemetry"`
	LogRetainRows          int     `mapstructure:"log_retain_rows"`
}

// FFmpegConfig holds external tool paths.
type FFmpegConfig struct {
	BinaryPath   string        `mapstructure:"binary_path"` // empty = find on PATH
	ProbePath    string        `mapstructure:"probe_path"`  // empty = find on PATH
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration and are
// prefixed with ALCHEMIST_, using underscores for nesting.
// Example: ALCHEMIST_SERVER_PORT=8484.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/alchemist")
		v.AddConfigPath("$HOME/.alchemist")
	}

	v.SetEnvPrefix("ALCHEMIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config file found is fine; defaults + env apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Database
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "alchemist.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Transcode
	v.SetDefault("transcode.output_codec", string(CodecAV1))
	v.SetDefault("transcode.quality_profile", string(ProfileBalanced))
	v.SetDefault("transcode.size_reduction_threshold", defaultSizeReduction)
	v.SetDefault("transcode.min_bpp_threshold", defaultMinBppThreshold)
	v.SetDefault("transcode.min_file_size_mb", defaultMinFileSizeMB)
	v.SetDefault("transcode.concurrent_jobs", defaultConcurrentJobs)
	v.SetDefault("transcode.threads", 0)
	v.SetDefault("transcode.allow_fallback", true)
	v.SetDefault("transcode.hdr_mode", string(HdrPreserve))
	v.SetDefault("transcode.tonemap_algorithm", "hable")
	v.SetDefault("transcode.tonemap_peak", defaultTonemapPeak)
	v.SetDefault("transcode.tonemap_desat", defaultTonemapDesat)

	// Files
	v.SetDefault("files.delete_source", false)
	v.SetDefault("files.output_extension", "mkv")
	v.SetDefault("files.output_suffix", "-alchemist")

	// Hardware
	v.SetDefault("hardware.allow_cpu_fallback", true)
	v.SetDefault("hardware.allow_cpu_encoding", true)
	v.SetDefault("hardware.cpu_preset", string(PresetMedium))

	// Scanner
	v.SetDefault("scanner.directories", []string{})
	v.SetDefault("scanner.extensions", []string{"mkv", "mp4", "avi", "mov", "ts", "m2ts", "webm", "wmv"})
	v.SetDefault("scanner.exclude_patterns", []string{"sample", ".partial"})

	// Quality
	v.SetDefault("quality.enable_vmaf", false)
	v.SetDefault("quality.min_vmaf_score", defaultMinVmafScore)
	v.SetDefault("quality.revert_on_low_quality", true)

	// System
	v.SetDefault("system.monitoring_poll_interval", defaultMonitoringPollSec)
	v.SetDefault("system.enable_telemetry", false)
	v.SetDefault("system.log_retain_rows", defaultLogRetainRows)

	// FFmpeg
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.probe_timeout", defaultProbeTimeout)
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("database.driver must be sqlite, postgres, or mysql, got %q", c.Database.Driver)
	}

	if !c.Transcode.OutputCodec.IsValid() {
		return fmt.Errorf("transcode.output_codec must be av1, hevc, or h264, got %q", c.Transcode.OutputCodec)
	}
	if !c.Transcode.QualityProfile.IsValid() {
		return fmt.Errorf("transcode.quality_profile must be speed, balanced, or quality, got %q", c.Transcode.QualityProfile)
	}
	if c.Transcode.SizeReductionThreshold < 0 || c.Transcode.SizeReductionThreshold > 1 {
		return fmt.Errorf("transcode.size_reduction_threshold must be in [0,1], got %v", c.Transcode.SizeReductionThreshold)
	}
	if c.Transcode.MinBppThreshold <= 0 {
		return fmt.Errorf("transcode.min_bpp_threshold must be positive, got %v", c.Transcode.MinBppThreshold)
	}
	if c.Transcode.ConcurrentJobs < 1 || c.Transcode.ConcurrentJobs > 8 {
		return fmt.Errorf("transcode.concurrent_jobs must be 1-8, got %d", c.Transcode.ConcurrentJobs)
	}
	if c.Transcode.Threads < 0 {
		return fmt.Errorf("transcode.threads must be >= 0, got %d", c.Transcode.Threads)
	}
	switch c.Transcode.HdrMode {
	case HdrPreserve, HdrTonemap:
	default:
		return fmt.Errorf("transcode.hdr_mode must be preserve or tonemap, got %q", c.Transcode.HdrMode)
	}

	if c.Files.OutputExtension == "" {
		return errors.New("files.output_extension must not be empty")
	}

	switch c.Hardware.CpuPreset {
	case PresetSlow, PresetMedium, PresetFast, PresetFaster:
	default:
		return fmt.Errorf("hardware.cpu_preset must be slow, medium, fast, or faster, got %q", c.Hardware.CpuPreset)
	}

	if c.Quality.MinVmafScore < 0 || c.Quality.MinVmafScore > 100 {
		return fmt.Errorf("quality.min_vmaf_score must be in [0,100], got %v", c.Quality.MinVmafScore)
	}

	return nil
}
