package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Capabilities lists what the installed ffmpeg build supports.
type Capabilities struct {
	HWAccels      map[string]bool `json:"hw_accels"`
	VideoEncoders map[string]bool `json:"video_encoders"`
	AudioEncoders map[string]bool `json:"audio_encoders"`
	Filters       map[string]bool `json:"filters"`
}

// HasHWAccel reports whether a hardware acceleration method is available.
func (c *Capabilities) HasHWAccel(name string) bool {
	return c.HWAccels[name]
}

// HasVideoEncoder reports whether a video encoder is available.
func (c *Capabilities) HasVideoEncoder(name string) bool {
	return c.VideoEncoders[name]
}

// HasFilter reports whether a filter is available.
func (c *Capabilities) HasFilter(name string) bool {
	return c.Filters[name]
}

// DetectCapabilities queries the ffmpeg binary for supported hardware
// accelerators, encoders, and filters.
func DetectCapabilities(ctx context.Context, ffmpegPath string) (*Capabilities, error) {
	caps := &Capabilities{
		HWAccels:      make(map[string]bool),
		VideoEncoders: make(map[string]bool),
		AudioEncoders: make(map[string]bool),
		Filters:       make(map[string]bool),
	}

	out, err := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-hwaccels").Output()
	if err != nil {
		return nil, fmt.Errorf("listing hwaccels: %w", err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasSuffix(line, ":") {
			continue
		}
		caps.HWAccels[line] = true
	}

	out, err = exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-encoders").Output()
	if err != nil {
		return nil, fmt.Errorf("listing encoders: %w", err)
	}
	parseEncoderList(string(out), caps)

	// Filter detection is best-effort; VMAF support depends on it.
	if out, err := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-filters").Output(); err == nil {
		parseFilterList(string(out), caps)
	}

	return caps, nil
}

// parseEncoderList parses `ffmpeg -encoders` output. Each entry line starts
// with a six-character flag field; V/A prefixes mark video/audio encoders.
func parseEncoderList(out string, caps *Capabilities) {
	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "Encoders:") {
			continue
		}

		fields := strings.Fields(trimmed)
		if len(fields) < 2 || len(fields[0]) != 6 {
			continue
		}

		switch fields[0][0] {
		case 'V':
			caps.VideoEncoders[fields[1]] = true
		case 'A':
			caps.AudioEncoders[fields[1]] = true
		}
	}
}

// parseFilterList parses `ffmpeg -filters` output. Entry lines carry a
// three-character flag field followed by the filter name.
func parseFilterList(out string, caps *Capabilities) {
	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "Filters:") || strings.HasPrefix(trimmed, "-") {
			continue
		}

		fields := strings.Fields(trimmed)
		if len(fields) < 2 || len(fields[0]) != 3 || fields[1] == "=" {
			continue
		}
		caps.Filters[fields[1]] = true
	}
}
