package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"
)

// ProbeResult contains the ffprobe output for a media file.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat contains container format information.
type ProbeFormat struct {
	Filename       string `json:"filename"`
	FormatName     string `json:"format_name"`
	FormatLongName string `json:"format_long_name"`
	Duration       string `json:"duration"`
	Size           string `json:"size"`
	BitRate        string `json:"bit_rate"`
}

// ProbeStream contains per-stream information.
type ProbeStream struct {
	Index            int               `json:"index"`
	CodecName        string            `json:"codec_name"`
	CodecType        string            `json:"codec_type"` // video, audio, subtitle, data
	PixFmt           string            `json:"pix_fmt,omitempty"`
	Width            int               `json:"width,omitempty"`
	Height           int               `json:"height,omitempty"`
	CodedWidth       int               `json:"coded_width,omitempty"`
	CodedHeight      int               `json:"coded_height,omitempty"`
	BitRate          string            `json:"bit_rate,omitempty"`
	BitsPerRawSample string            `json:"bits_per_raw_sample,omitempty"`
	ChannelLayout    string            `json:"channel_layout,omitempty"`
	Channels         int               `json:"channels,omitempty"`
	AvgFrameRate     string            `json:"avg_frame_rate,omitempty"`
	RFrameRate       string            `json:"r_frame_rate,omitempty"`
	NumFrames        string            `json:"nb_frames,omitempty"`
	Duration         string            `json:"duration,omitempty"`
	ColorRange       string            `json:"color_range,omitempty"`
	ColorSpace       string            `json:"color_space,omitempty"`
	ColorTransfer    string            `json:"color_transfer,omitempty"`
	ColorPrimaries   string            `json:"color_primaries,omitempty"`
	Disposition      ProbeDisposition  `json:"disposition,omitempty"`
	Tags             map[string]string `json:"tags,omitempty"`
}

// ProbeDisposition contains stream disposition flags.
type ProbeDisposition struct {
	Default int `json:"default"`
	Forced  int `json:"forced"`
}

// DefaultProbeTimeout bounds a single ffprobe invocation.
const DefaultProbeTimeout = 60 * time.Second

// probeEntries limits ffprobe output to the fields the analyzer consumes.
const probeEntries = "format=duration,size,bit_rate,format_name,format_long_name:" +
	"stream=index,codec_type,codec_name,pix_fmt,width,height,coded_width,coded_height," +
	"bit_rate,bits_per_raw_sample,channel_layout,channels,avg_frame_rate,r_frame_rate," +
	"nb_frames,duration,disposition,color_primaries,color_transfer,color_space,color_range"

// Prober runs ffprobe against local media files.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
}

// NewProber creates a new media file prober.
func NewProber(ffprobePath string) *Prober {
	return &Prober{
		ffprobePath: ffprobePath,
		timeout:     DefaultProbeTimeout,
	}
}

// WithTimeout sets the probe timeout.
func (p *Prober) WithTimeout(timeout time.Duration) *Prober {
	p.timeout = timeout
	return p
}

// Probe inspects a media file and returns the parsed ffprobe output.
// Expiry of the wall-clock timeout is reported as a failure.
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-analyzeduration", "1M",
		"-probesize", "1M",
		"-print_format", "json",
		"-show_entries", probeEntries,
		path,
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("probe timeout after %v", p.timeout)
		}
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("ffprobe failed: %s", string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parsing ffprobe output: %w", err)
	}

	return &result, nil
}

// VideoStream selects the primary video stream: the default-flagged one,
// else the one with the most pixels.
func (r *ProbeResult) VideoStream() *ProbeStream {
	var best *ProbeStream
	var bestPixels int64
	bestDefault := false

	for i := range r.Streams {
		s := &r.Streams[i]
		if s.CodecType != "video" {
			continue
		}
		isDefault := s.Disposition.Default == 1
		w := int64(s.Width)
		if w == 0 {
			w = int64(s.CodedWidth)
		}
		h := int64(s.Height)
		if h == 0 {
			h = int64(s.CodedHeight)
		}
		pixels := w * h

		if best == nil ||
			(isDefault && !bestDefault) ||
			(isDefault == bestDefault && pixels > bestPixels) {
			best = s
			bestPixels = pixels
			bestDefault = isDefault
		}
	}
	return best
}

// AudioStream returns the first audio stream, or nil.
func (r *ProbeResult) AudioStream() *ProbeStream {
	for i := range r.Streams {
		if r.Streams[i].CodecType == "audio" {
			return &r.Streams[i]
		}
	}
	return nil
}
