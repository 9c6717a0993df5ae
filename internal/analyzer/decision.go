package analyzer

import (
	"errors"
	"fmt"

	"github.com/bybrooklyn/alchemist/internal/config"
)

// ErrNoVideoStream is returned when a probed file has no video stream.
var ErrNoVideoStream = errors.New("no video stream found")

// Action is the analyzer's verdict for a file.
type Action string

// Verdicts.
const (
	ActionEncode Action = "encode"
	ActionSkip   Action = "skip"
)

// Decision is the analyzer's verdict with its reasoning.
type Decision struct {
	Action Action `json:"action"`
	Reason string `json:"reason"`

	// EstimatedSavingsPct is set for encode decisions.
	EstimatedSavingsPct float64 `json:"estimated_savings_pct,omitempty"`
}

// codecFamilies maps each target codec onto the source codec names that
// already belong to it.
var codecFamilies = map[config.OutputCodec][]string{
	config.CodecAV1:  {"av1"},
	config.CodecHEVC: {"hevc", "h265"},
	config.CodecH264: {"h264", "avc"},
}

// inTargetFamily reports whether the source codec already matches the
// target family.
func inTargetFamily(codecName string, target config.OutputCodec) bool {
	for _, name := range codecFamilies[target] {
		if codecName == name {
			return true
		}
	}
	return false
}

// Bpp computes bits per pixel: bitrate / (width * height * fps).
func (m *Metadata) Bpp() float64 {
	if m.Width <= 0 || m.Height <= 0 || m.Fps <= 0 {
		return 0
	}
	bitrate := m.VideoBitrateBps
	if bitrate <= 0 {
		bitrate = m.ContainerBitrateBps
	}
	if bitrate <= 0 {
		return 0
	}
	return float64(bitrate) / (float64(m.Width) * float64(m.Height) * m.Fps)
}

// NormalizedBpp applies a resolution correction: high resolutions need less
// BPP for the same perceptual quality.
func (m *Metadata) NormalizedBpp() float64 {
	correction := 1.0
	switch {
	case m.Width >= 3840:
		correction = 0.6
	case m.Width >= 1920:
		correction = 0.8
	}
	return m.Bpp() * correction
}

// targetBpp estimates the density a modern encode of this codec/profile
// lands at. Used only for the savings estimate, never as a gate.
func targetBpp(codec config.OutputCodec, profile config.QualityProfile) float64 {
	base := 0.05
	switch codec {
	case config.CodecHEVC:
		base = 0.07
	case config.CodecH264:
		base = 0.10
	}

	switch profile {
	case config.ProfileSpeed:
		return base * 0.9
	case config.ProfileQuality:
		return base * 1.2
	default:
		return base
	}
}

// Decide evaluates the transcode rules in order; the first match wins.
// All comparisons use the config snapshot valid at decision time.
func Decide(meta *Metadata, cfg config.TranscodeConfig) Decision {
	minSizeBytes := cfg.MinFileSizeMB * 1024 * 1024
	if meta.SizeBytes < minSizeBytes {
		return Decision{
			Action: ActionSkip,
			Reason: fmt.Sprintf("file too small (%dMB < %dMB)",
				meta.SizeBytes/1024/1024, cfg.MinFileSizeMB),
		}
	}

	bpp := meta.NormalizedBpp()
	if inTargetFamily(meta.CodecName, cfg.OutputCodec) && bpp > 0 && bpp < cfg.MinBppThreshold {
		return Decision{
			Action: ActionSkip,
			Reason: fmt.Sprintf("already %s and efficient (%.4f bpp < %.2f)",
				cfg.OutputCodec, bpp, cfg.MinBppThreshold),
		}
	}

	if meta.DurationSecs <= 0 || meta.Width <= 0 || meta.Height <= 0 || meta.Bpp() <= 0 {
		return Decision{
			Action: ActionSkip,
			Reason: "unsupported source (missing duration, dimensions, or bitrate)",
		}
	}

	// Re-encoding a file whose bitrate is already low buys nothing even across codecs.
	if bpp < cfg.MinBppThreshold {
		return Decision{
			Action: ActionSkip,
			Reason: fmt.Sprintf("bitrate already efficient (%.4f bpp < %.2f)",
				bpp, cfg.MinBppThreshold),
		}
	}

	savings := estimatedSavings(meta, cfg)
	return Decision{
		Action: ActionEncode,
		Reason: fmt.Sprintf("expected savings %.0f%% (%s -> %s, %.4f bpp)",
			savings, meta.CodecName, cfg.OutputCodec, meta.Bpp()),
		EstimatedSavingsPct: savings,
	}
}

// estimatedSavings projects the relative size reduction from the current
// density to the target profile's density, clamped to [0, 95].
func estimatedSavings(meta *Metadata, cfg config.TranscodeConfig) float64 {
	current := meta.Bpp()
	if current <= 0 {
		return 0
	}
	target := targetBpp(cfg.OutputCodec, cfg.QualityProfile)
	savings := (1 - target/current) * 100
	if savings < 0 {
		return 0
	}
	if savings > 95 {
		return 95
	}
	return savings
}
