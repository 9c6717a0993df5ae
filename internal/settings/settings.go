// Package settings materializes the persisted key/value settings into typed
// snapshots. Each orchestrator attempt captures one immutable snapshot;
// live edits never perturb in-flight work.
package settings

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/bybrooklyn/alchemist/internal/config"
	"github.com/bybrooklyn/alchemist/internal/repository"
)

// Snapshot is an immutable view of the runtime-editable configuration.
type Snapshot struct {
	Transcode config.TranscodeConfig `json:"transcode"`
	Files     config.FilesConfig     `json:"files"`
	Hardware  config.HardwareConfig  `json:"hardware"`
	Scanner   config.ScannerConfig   `json:"scanner"`
	Quality   config.QualityConfig   `json:"quality"`
	System    config.SystemConfig    `json:"system"`
}

// Service loads and persists runtime settings, with defaults from the boot
// config for keys the store does not hold yet.
type Service struct {
	repo     repository.SettingsRepository
	defaults Snapshot

	mu     sync.RWMutex
	cached *Snapshot
}

// NewService creates a settings service seeded with boot-config defaults.
func NewService(repo repository.SettingsRepository, cfg *config.Config) *Service {
	return &Service{
		repo: repo,
		defaults: Snapshot{
			Transcode: cfg.Transcode,
			Files:     cfg.Files,
			Hardware:  cfg.Hardware,
			Scanner:   cfg.Scanner,
			Quality:   cfg.Quality,
			System:    cfg.System,
		},
	}
}

// Snapshot returns the current settings as an immutable value. The result
// is a copy; callers can hold it for the lifetime of an attempt.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	values, err := s.repo.GetAll(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading settings: %w", err)
	}

	snap := s.fromValues(values)

	s.mu.Lock()
	s.cached = &snap
	s.mu.Unlock()

	return snap, nil
}

// Cached returns the last loaded snapshot without touching the store,
// falling back to defaults before the first load.
func (s *Service) Cached() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cached != nil {
		return *s.cached
	}
	return s.defaults
}

// Update persists a set of key/value edits.
func (s *Service) Update(ctx context.Context, values map[string]string) error {
	if err := validate(values); err != nil {
		return err
	}
	if err := s.repo.SetAll(ctx, values); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}

	// Refresh the cache so status endpoints see the edit immediately.
	_, err := s.Snapshot(ctx)
	return err
}

// fromValues overlays persisted values onto the defaults.
func (s *Service) fromValues(values map[string]string) Snapshot {
	snap := s.defaults

	getStr := func(key, fallback string) string {
		if v, ok := values[key]; ok && v != "" {
			return v
		}
		return fallback
	}
	getBool := func(key string, fallback bool) bool {
		if v, ok := values[key]; ok {
			if b, err := strconv.ParseBool(v); err == nil {
				return b
			}
		}
		return fallback
	}
	getInt := func(key string, fallback int) int {
		if v, ok := values[key]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return fallback
	}
	getInt64 := func(key string, fallback int64) int64 {
		if v, ok := values[key]; ok {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				return n
			}
		}
		return fallback
	}
	getFloat := func(key string, fallback float64) float64 {
		if v, ok := values[key]; ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
		}
		return fallback
	}
	getList := func(key string, fallback []string) []string {
		v, ok := values[key]
		if !ok || strings.TrimSpace(v) == "" {
			return fallback
		}
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}

	snap.Transcode.OutputCodec = config.OutputCodec(getStr("transcode.output_codec", string(snap.Transcode.OutputCodec)))
	snap.Transcode.QualityProfile = config.QualityProfile(getStr("transcode.quality_profile", string(snap.Transcode.QualityProfile)))
	snap.Transcode.SizeReductionThreshold = getFloat("transcode.size_reduction_threshold", snap.Transcode.SizeReductionThreshold)
	snap.Transcode.MinBppThreshold = getFloat("transcode.min_bpp_threshold", snap.Transcode.MinBppThreshold)
	snap.Transcode.MinFileSizeMB = getInt64("transcode.min_file_size_mb", snap.Transcode.MinFileSizeMB)
	snap.Transcode.ConcurrentJobs = getInt("transcode.concurrent_jobs", snap.Transcode.ConcurrentJobs)
	snap.Transcode.Threads = getInt("transcode.threads", snap.Transcode.Threads)
	snap.Transcode.AllowFallback = getBool("transcode.allow_fallback", snap.Transcode.AllowFallback)
	snap.Transcode.HdrMode = config.HdrMode(getStr("transcode.hdr_mode", string(snap.Transcode.HdrMode)))
	snap.Transcode.TonemapAlgorithm = getStr("transcode.tonemap_algorithm", snap.Transcode.TonemapAlgorithm)
	snap.Transcode.TonemapPeak = getFloat("transcode.tonemap_peak", snap.Transcode.TonemapPeak)
	snap.Transcode.TonemapDesat = getFloat("transcode.tonemap_desat", snap.Transcode.TonemapDesat)

	snap.Files.DeleteSource = getBool("files.delete_source", snap.Files.DeleteSource)
	snap.Files.OutputExtension = getStr("files.output_extension", snap.Files.OutputExtension)
	snap.Files.OutputSuffix = getStr("files.output_suffix", snap.Files.OutputSuffix)

	snap.Hardware.PreferredVendor = getStr("hardware.preferred_vendor", snap.Hardware.PreferredVendor)
	snap.Hardware.DevicePath = getStr("hardware.device_path", snap.Hardware.DevicePath)
	snap.Hardware.AllowCpuFallback = getBool("hardware.allow_cpu_fallback", snap.Hardware.AllowCpuFallback)
	snap.Hardware.AllowCpuEncoding = getBool("hardware.allow_cpu_encoding", snap.Hardware.AllowCpuEncoding)
	snap.Hardware.CpuPreset = config.CpuPreset(getStr("hardware.cpu_preset", string(snap.Hardware.CpuPreset)))

	snap.Scanner.Directories = getList("scanner.directories", snap.Scanner.Directories)
	snap.Scanner.Extensions = getList("scanner.extensions", snap.Scanner.Extensions)
	snap.Scanner.ExcludePatterns = getList("scanner.exclude_patterns", snap.Scanner.ExcludePatterns)

	snap.Quality.EnableVmaf = getBool("quality.enable_vmaf", snap.Quality.EnableVmaf)
	snap.Quality.MinVmafScore = getFloat("quality.min_vmaf_score", snap.Quality.MinVmafScore)
	snap.Quality.RevertOnLowQuality = getBool("quality.revert_on_low_quality", snap.Quality.RevertOnLowQuality)

	snap.System.MonitoringPollInterval = getFloat("system.monitoring_poll_interval", snap.System.MonitoringPollInterval)
	snap.System.EnableTelemetry = getBool("system.enable_telemetry", snap.System.EnableTelemetry)
	snap.System.LogRetainRows = getInt("system.log_retain_rows", snap.System.LogRetainRows)

	return snap
}

// validate rejects edits that would put the engine in an unusable state.
func validate(values map[string]string) error {
	if v, ok := values["transcode.output_codec"]; ok {
		if !config.OutputCodec(v).IsValid() {
			return fmt.Errorf("invalid transcode.output_codec: %q", v)
		}
	}
	if v, ok := values["transcode.quality_profile"]; ok {
		if !config.QualityProfile(v).IsValid() {
			return fmt.Errorf("invalid transcode.quality_profile: %q", v)
		}
	}
	if v, ok := values["transcode.concurrent_jobs"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 8 {
			return fmt.Errorf("transcode.concurrent_jobs must be 1-8, got %q", v)
		}
	}
	if v, ok := values["transcode.size_reduction_threshold"]; ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			return fmt.Errorf("transcode.size_reduction_threshold must be in [0,1], got %q", v)
		}
	}
	if v, ok := values["transcode.hdr_mode"]; ok {
		switch config.HdrMode(v) {
		case config.HdrPreserve, config.HdrTonemap:
		default:
			return fmt.Errorf("invalid transcode.hdr_mode: %q", v)
		}
	}
	return nil
}
