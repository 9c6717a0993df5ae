package ffmpeg

import (
	"regexp"
	"strconv"
	"time"
)

// Progress represents FFmpeg progress information parsed from stderr.
type Progress struct {
	Frame     int64         `json:"frame"`
	FPS       float64       `json:"fps"`
	Bitrate   string        `json:"bitrate"`
	TotalSize int64         `json:"total_size"`
	Time      time.Duration `json:"time"`
	Speed     float64       `json:"speed"`
}

// Regex patterns for parsing FFmpeg stats lines.
var (
	frameRe = regexp.MustCompile(`frame=\s*(\d+)`)
	fpsRe   = regexp.MustCompile(`fps=\s*([\d.]+)`)
	brRe    = regexp.MustCompile(`bitrate=\s*([\d.]+\s*\w+/s)`)
	sizeRe  = regexp.MustCompile(`size=\s*(\d+)`)
	timeRe  = regexp.MustCompile(`time=(\d+):(\d+):(\d+)\.(\d+)`)
	speedRe = regexp.MustCompile(`speed=\s*([\d.]+)x`)
)

// ParseProgressLine parses one FFmpeg stderr line. Returns nil when the
// line carries no progress information.
func ParseProgressLine(line string) *Progress {
	m := timeRe.FindStringSubmatch(line)
	if len(m) < 5 {
		return nil
	}

	progress := &Progress{}

	hours, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	secs, _ := strconv.Atoi(m[3])
	centis, _ := strconv.Atoi(m[4])
	progress.Time = time.Duration(hours)*time.Hour +
		time.Duration(mins)*time.Minute +
		time.Duration(secs)*time.Second +
		time.Duration(centis)*10*time.Millisecond

	if m := frameRe.FindStringSubmatch(line); len(m) > 1 {
		progress.Frame, _ = strconv.ParseInt(m[1], 10, 64)
	}
	if m := fpsRe.FindStringSubmatch(line); len(m) > 1 {
		progress.FPS, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := brRe.FindStringSubmatch(line); len(m) > 1 {
		progress.Bitrate = m[1]
	}
	if m := sizeRe.FindStringSubmatch(line); len(m) > 1 {
		progress.TotalSize, _ = strconv.ParseInt(m[1], 10, 64)
	}
	if m := speedRe.FindStringSubmatch(line); len(m) > 1 {
		progress.Speed, _ = strconv.ParseFloat(m[1], 64)
	}

	return progress
}

// Percentage converts processed time into percent of the source duration,
// clamped to [0, 100].
func (p *Progress) Percentage(totalDuration time.Duration) float64 {
	if totalDuration <= 0 {
		return 0
	}
	pct := float64(p.Time) / float64(totalDuration) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
