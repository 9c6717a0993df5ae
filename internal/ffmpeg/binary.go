// Package ffmpeg provides FFmpeg/FFprobe binary detection, typed command
// construction, progress parsing, and capability detection.
package ffmpeg

import (
	"fmt"
	"os/exec"
)

// Binaries holds the resolved paths of the external tools.
type Binaries struct {
	FFmpegPath  string `json:"ffmpeg_path"`
	FFprobePath string `json:"ffprobe_path"`
}

// ResolveBinaries locates ffmpeg and ffprobe. Explicit paths win; empty
// values fall back to PATH lookup.
func ResolveBinaries(ffmpegPath, ffprobePath string) (*Binaries, error) {
	b := &Binaries{
		FFmpegPath:  ffmpegPath,
		FFprobePath: ffprobePath,
	}

	if b.FFmpegPath == "" {
		path, err := exec.LookPath("ffmpeg")
		if err != nil {
			return nil, fmt.Errorf("ffmpeg not found on PATH: %w", err)
		}
		b.FFmpegPath = path
	}

	if b.FFprobePath == "" {
		path, err := exec.LookPath("ffprobe")
		if err != nil {
			return nil, fmt.Errorf("ffprobe not found on PATH: %w", err)
		}
		b.FFprobePath = path
	}

	return b, nil
}
