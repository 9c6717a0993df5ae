// Package encoder drives a single encode run: encoder path selection,
// temporary output handling, progress reporting, and the commit/revert
// gates.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bybrooklyn/alchemist/internal/analyzer"
	"github.com/bybrooklyn/alchemist/internal/config"
	"github.com/bybrooklyn/alchemist/internal/ffmpeg"
	"github.com/bybrooklyn/alchemist/internal/hardware"
	"github.com/bybrooklyn/alchemist/internal/settings"
)

// ErrNoEncoderAvailable is returned when no permitted encoder path exists
// on this host for the requested codec.
var ErrNoEncoderAvailable = errors.New("no encoder available")

// PartialSuffix is appended to the output path while encoding.
const PartialSuffix = ".partial"

// progressInterval throttles progress callbacks.
const progressInterval = 100 * time.Millisecond

// Runner executes encode runs against the local ffmpeg installation.
type Runner struct {
	binaries *ffmpeg.Binaries
	caps     *ffmpeg.Capabilities
	hw       *hardware.Info
	logger   *slog.Logger
}

// NewRunner creates an encode runner.
func NewRunner(binaries *ffmpeg.Binaries, caps *ffmpeg.Capabilities, hw *hardware.Info, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		binaries: binaries,
		caps:     caps,
		hw:       hw,
		logger:   logger,
	}
}

// Request describes one encode run.
type Request struct {
	InputPath  string
	OutputPath string
	Meta       *analyzer.Metadata
	Snapshot   settings.Snapshot

	// OnProgress receives throttled percentage updates in [0,100].
	OnProgress func(pct float64)
}

// Outcome classifies how a run ended.
type Outcome string

// Run outcomes.
const (
	// OutcomeCommitted means the output passed the gates and was installed.
	OutcomeCommitted Outcome = "committed"
	// OutcomeRevertedSize means the size gate rejected the output.
	OutcomeRevertedSize Outcome = "reverted_size"
	// OutcomeRevertedQuality means the VMAF gate rejected the output.
	OutcomeRevertedQuality Outcome = "reverted_quality"
)

// Result describes a finished encode run.
type Result struct {
	Outcome      Outcome
	Encoder      ffmpeg.EncoderID
	RevertReason string

	InputSizeBytes  int64
	OutputSizeBytes int64
	EncodeTime      time.Duration
	VmafScore       *float64
	SourceDeleted   bool
	StderrTail      string
}

// SelectEncoder picks the first available encoder path for the snapshot's
// codec and hardware policy. The candidate order is deterministic:
// preferred hardware, then software, then fallback codec families.
func (r *Runner) SelectEncoder(snap settings.Snapshot) (ffmpeg.EncoderID, error) {
	vendor := r.hw.Vendor
	if snap.Hardware.PreferredVendor != "" {
		vendor = hardware.Vendor(snap.Hardware.PreferredVendor)
	}

	// CPU paths require software encoding to be enabled; when a hardware
	// vendor is selected they additionally require CPU fallback to be allowed.
	allowCPU := snap.Hardware.AllowCpuEncoding
	if vendor != hardware.VendorCPU && !snap.Hardware.AllowCpuFallback {
		allowCPU = false
	}

	candidates := ffmpeg.Candidates(
		snap.Transcode.OutputCodec,
		vendor,
		snap.Transcode.AllowFallback,
		allowCPU,
	)

	for _, id := range candidates {
		if r.caps.HasVideoEncoder(string(id)) {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: codec %s, vendor %s", ErrNoEncoderAvailable, snap.Transcode.OutputCodec, vendor)
}

// Encode runs ffmpeg producing <output>.partial and returns the raw run
// outcome. Gates and commit happen in VerifyAndCommit so callers can
// persist the verifying transition in between.
//
// Cancellation terminates the child (SIGTERM, then SIGKILL after a grace
// period) and removes the partial before returning the context error. On
// any failure path the partial is removed as well.
func (r *Runner) Encode(ctx context.Context, req Request) (*Result, error) {
	encoderID, err := r.SelectEncoder(req.Snapshot)
	if err != nil {
		return nil, err
	}

	inputInfo, err := os.Stat(req.InputPath)
	if err != nil {
		return nil, fmt.Errorf("stat input: %w", err)
	}

	partialPath := req.OutputPath + PartialSuffix
	if dir := filepath.Dir(req.OutputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}

	cmd, err := r.buildCommand(encoderID, req, partialPath)
	if err != nil {
		return nil, err
	}

	r.logger.Info("starting encode",
		slog.String("input", req.InputPath),
		slog.String("encoder", string(encoderID)),
		slog.Float64("duration_secs", req.Meta.DurationSecs),
	)
	r.logger.Debug("ffmpeg command", slog.String("cmd", cmd.String()))

	started := time.Now()
	totalDuration := time.Duration(req.Meta.DurationSecs * float64(time.Second))

	var lastCallback time.Time
	err = cmd.Run(ctx, func(p ffmpeg.Progress) {
		if req.OnProgress == nil {
			return
		}
		now := time.Now()
		if now.Sub(lastCallback) < progressInterval {
			return
		}
		lastCallback = now
		req.OnProgress(p.Percentage(totalDuration))
	})
	encodeTime := time.Since(started)

	if stats := cmd.Stats(); stats.MemoryRSSBytes > 0 {
		r.logger.Debug("encoder resource usage",
			slog.Float64("cpu_percent", stats.CPUPercent),
			slog.Uint64("rss_bytes", stats.MemoryRSSBytes),
		)
	}

	if err != nil {
		_ = os.Remove(partialPath)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &Result{
			Encoder:        encoderID,
			InputSizeBytes: inputInfo.Size(),
			EncodeTime:     encodeTime,
			StderrTail:     cmd.StderrTail(),
		}, fmt.Errorf("encoder crashed: %w", err)
	}

	result := &Result{
		Encoder:        encoderID,
		InputSizeBytes: inputInfo.Size(),
		EncodeTime:     encodeTime,
		StderrTail:     cmd.StderrTail(),
	}

	outputInfo, err := os.Stat(partialPath)
	if err != nil {
		return result, fmt.Errorf("output missing after encode: %w", err)
	}
	result.OutputSizeBytes = outputInfo.Size()
	if result.OutputSizeBytes == 0 {
		_ = os.Remove(partialPath)
		return result, errors.New("output corrupt: zero-byte file")
	}

	return result, nil
}

// CleanupPartial removes any temporary output for a job.
func CleanupPartial(outputPath string) {
	_ = os.Remove(outputPath + PartialSuffix)
}

// Cleanup removes any temporary output for a job. Used on failure and
// cancellation paths.
func (r *Runner) Cleanup(outputPath string) {
	CleanupPartial(outputPath)
}

// VerifyAndCommit applies the size and quality gates to the partial output,
// then installs or removes it. The final output path only ever holds a
// committed file; a gate failure leaves the source untouched.
func (r *Runner) VerifyAndCommit(ctx context.Context, req Request, result *Result) (*Result, error) {
	partialPath := req.OutputPath + PartialSuffix
	threshold := req.Snapshot.Transcode.SizeReductionThreshold
	reduction := 1.0 - float64(result.OutputSizeBytes)/float64(result.InputSizeBytes)

	if float64(result.OutputSizeBytes) >= (1.0-threshold)*float64(result.InputSizeBytes) {
		if err := os.Remove(partialPath); err != nil && !os.IsNotExist(err) {
			return result, fmt.Errorf("removing rejected output: %w", err)
		}
		result.Outcome = OutcomeRevertedSize
		result.RevertReason = fmt.Sprintf("insufficient size reduction: %.0f%%<%.0f%%",
			reduction*100, threshold*100)
		r.logger.Warn("size gate failed, reverting",
			slog.String("input", req.InputPath),
			slog.String("reason", result.RevertReason),
		)
		return result, nil
	}

	// Quality gate is best-effort: an unavailable or failed VMAF
	// computation is ignored, never a revert.
	if req.Snapshot.Quality.EnableVmaf && r.caps.HasFilter("libvmaf") {
		score, err := ffmpeg.ComputeVMAF(ctx, r.binaries.FFmpegPath, req.InputPath, partialPath)
		if err != nil {
			if ctx.Err() != nil {
				_ = os.Remove(partialPath)
				return nil, ctx.Err()
			}
			r.logger.Warn("vmaf computation failed, ignoring",
				slog.String("input", req.InputPath),
				slog.String("error", err.Error()),
			)
		} else if score.Vmaf != nil {
			result.VmafScore = score.Vmaf
			minScore := req.Snapshot.Quality.MinVmafScore
			if req.Snapshot.Quality.RevertOnLowQuality && *score.Vmaf < minScore {
				if err := os.Remove(partialPath); err != nil && !os.IsNotExist(err) {
					return result, fmt.Errorf("removing rejected output: %w", err)
				}
				result.Outcome = OutcomeRevertedQuality
				result.RevertReason = fmt.Sprintf("quality below floor: VMAF %.2f<%.2f", *score.Vmaf, minScore)
				r.logger.Warn("quality gate failed, reverting",
					slog.String("input", req.InputPath),
					slog.String("reason", result.RevertReason),
				)
				return result, nil
			}
		}
	}

	if err := os.Rename(partialPath, req.OutputPath); err != nil {
		_ = os.Remove(partialPath)
		return result, fmt.Errorf("committing output: %w", err)
	}
	result.Outcome = OutcomeCommitted

	if req.Snapshot.Files.DeleteSource {
		if err := os.Remove(req.InputPath); err != nil {
			r.logger.Error("failed to delete source after commit",
				slog.String("input", req.InputPath),
				slog.String("error", err.Error()),
			)
		} else {
			result.SourceDeleted = true
		}
	}

	r.logger.Info("encode committed",
		slog.String("output", req.OutputPath),
		slog.Int64("input_bytes", result.InputSizeBytes),
		slog.Int64("output_bytes", result.OutputSizeBytes),
		slog.Duration("encode_time", result.EncodeTime),
	)
	return result, nil
}

// buildCommand assembles the ffmpeg invocation for an encoder path.
func (r *Runner) buildCommand(encoderID ffmpeg.EncoderID, req Request, partialPath string) (*ffmpeg.Command, error) {
	spec, ok := ffmpeg.Spec(encoderID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown encoder %s", ErrNoEncoderAvailable, encoderID)
	}

	devicePath := req.Snapshot.Hardware.DevicePath
	if devicePath == "" {
		devicePath = r.hw.DevicePath
	}

	params := ffmpeg.FlagParams{
		Quality:    ffmpeg.QualityFor(req.Snapshot.Transcode.QualityProfile, encoderID),
		Preset:     ffmpeg.PresetFor(req.Snapshot.Transcode.QualityProfile, req.Snapshot.Hardware.CpuPreset, encoderID),
		DevicePath: devicePath,
	}

	b := ffmpeg.NewCommandBuilder(r.binaries.FFmpegPath).
		LogLevel("error").
		HideBanner().
		Stats().
		Overwrite().
		GlobalArgs(spec.GlobalArgs(params)...).
		Input(req.InputPath).
		OutputArgs(spec.OutputArgs(params)...)

	applyHdrSettings(b, req.Meta, req.Snapshot.Transcode)

	if !spec.Hardware {
		b.Threads(req.Snapshot.Transcode.Threads)
	}

	b.CopyAudio().CopySubtitles().Output(partialPath)

	return b.Build(), nil
}

// applyHdrSettings preserves or tonemaps HDR metadata. SDR sources pass
// their color tags through untouched.
func applyHdrSettings(b *ffmpeg.CommandBuilder, meta *analyzer.Metadata, cfg config.TranscodeConfig) {
	if meta.DynamicRange.IsHDR() && cfg.HdrMode == config.HdrTonemap {
		filter := fmt.Sprintf(
			"zscale=t=linear:npl=%g,tonemap=tonemap=%s:desat=%g,zscale=t=bt709:m=bt709:r=tv,format=yuv420p",
			cfg.TonemapPeak, cfg.TonemapAlgorithm, cfg.TonemapDesat,
		)
		b.VideoFilter(filter)
		b.OutputArgs(
			"-color_primaries", "bt709",
			"-color_trc", "bt709",
			"-colorspace", "bt709",
			"-color_range", "tv",
		)
		return
	}

	if meta.ColorPrimaries != "" {
		b.OutputArgs("-color_primaries", meta.ColorPrimaries)
	}
	if meta.ColorTransfer != "" {
		b.OutputArgs("-color_trc", meta.ColorTransfer)
	}
	if meta.ColorSpace != "" {
		b.OutputArgs("-colorspace", meta.ColorSpace)
	}
	if meta.ColorRange != "" {
		b.OutputArgs("-color_range", meta.ColorRange)
	}
}
