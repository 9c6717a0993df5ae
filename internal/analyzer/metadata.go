// Package analyzer turns ffprobe output into typed metadata and decides
// whether a file is worth re-encoding.
package analyzer

import (
	"strconv"
	"strings"

	"github.com/bybrooklyn/alchemist/internal/ffmpeg"
)

// DynamicRange classifies the source's transfer characteristics.
type DynamicRange string

// Dynamic range classes.
const (
	RangeSDR     DynamicRange = "sdr"
	RangeHDR10   DynamicRange = "hdr10"
	RangeHLG     DynamicRange = "hlg"
	RangeUnknown DynamicRange = "unknown"
)

// IsHDR reports whether the source carries HDR transfer characteristics.
func (r DynamicRange) IsHDR() bool {
	return r == RangeHDR10 || r == RangeHLG
}

// Warning flags a gap in the probed metadata.
type Warning string

// Metadata warnings.
const (
	WarnMissingVideoBitrate     Warning = "missing_video_bitrate"
	WarnMissingContainerBitrate Warning = "missing_container_bitrate"
	WarnMissingDuration         Warning = "missing_duration"
	WarnMissingFps              Warning = "missing_fps"
	WarnMissingBitDepth         Warning = "missing_bit_depth"
)

// Confidence grades how complete the probed metadata is.
type Confidence string

// Confidence grades.
const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Metadata is the analyzer's view of a media file.
type Metadata struct {
	Path         string       `json:"path"`
	Container    string       `json:"container"`
	DurationSecs float64      `json:"duration_secs"`
	CodecName    string       `json:"codec_name"`
	Width        int          `json:"width"`
	Height       int          `json:"height"`
	BitDepth     int          `json:"bit_depth,omitempty"` // 0 = unknown
	Fps          float64      `json:"fps"`
	SizeBytes    int64        `json:"size_bytes"`

	// VideoBitrateBps is the video stream bitrate; 0 when the container
	// does not report it.
	VideoBitrateBps     int64 `json:"video_bitrate_bps"`
	ContainerBitrateBps int64 `json:"container_bitrate_bps"`

	ColorPrimaries string       `json:"color_primaries,omitempty"`
	ColorTransfer  string       `json:"color_transfer,omitempty"`
	ColorSpace     string       `json:"color_space,omitempty"`
	ColorRange     string       `json:"color_range,omitempty"`
	DynamicRange   DynamicRange `json:"dynamic_range"`

	AudioCodec    string `json:"audio_codec,omitempty"`
	AudioChannels int    `json:"audio_channels,omitempty"`
}

// Analysis bundles metadata with completeness grading.
type Analysis struct {
	Metadata   Metadata   `json:"metadata"`
	Warnings   []Warning  `json:"warnings,omitempty"`
	Confidence Confidence `json:"confidence"`
}

// FromProbe converts a raw probe result into an Analysis. The video stream
// is the default-flagged one, else the largest.
func FromProbe(path string, probe *ffmpeg.ProbeResult) (*Analysis, error) {
	video := probe.VideoStream()
	if video == nil {
		return nil, ErrNoVideoStream
	}
	audio := probe.AudioStream()

	meta := Metadata{
		Path:           path,
		Container:      probe.Format.FormatName,
		CodecName:      video.CodecName,
		ColorPrimaries: video.ColorPrimaries,
		ColorTransfer:  video.ColorTransfer,
		ColorSpace:     video.ColorSpace,
		ColorRange:     video.ColorRange,
		DynamicRange:   detectDynamicRange(video.ColorTransfer, video.ColorPrimaries),
	}

	meta.Width = video.Width
	if meta.Width == 0 {
		meta.Width = video.CodedWidth
	}
	meta.Height = video.Height
	if meta.Height == 0 {
		meta.Height = video.CodedHeight
	}

	meta.SizeBytes = parseInt(probe.Format.Size)
	meta.VideoBitrateBps = parseInt(video.BitRate)
	meta.ContainerBitrateBps = parseInt(probe.Format.BitRate)
	meta.BitDepth = inferBitDepth(video)

	frames := parseFloat(video.NumFrames)

	meta.Fps = ParseFps(firstNonEmpty(video.AvgFrameRate, video.RFrameRate))
	meta.DurationSecs = parseFloat(probe.Format.Duration)
	if meta.DurationSecs <= 0 {
		meta.DurationSecs = parseFloat(video.Duration)
	}
	if meta.Fps <= 0 && meta.DurationSecs > 0 && frames > 0 {
		meta.Fps = frames / meta.DurationSecs
	}
	if meta.DurationSecs <= 0 && meta.Fps > 0 && frames > 0 {
		meta.DurationSecs = frames / meta.Fps
	}

	if audio != nil {
		meta.AudioCodec = audio.CodecName
		meta.AudioChannels = audio.Channels
	}

	var warnings []Warning
	if meta.VideoBitrateBps <= 0 {
		warnings = append(warnings, WarnMissingVideoBitrate)
	}
	if meta.ContainerBitrateBps <= 0 {
		warnings = append(warnings, WarnMissingContainerBitrate)
	}
	if meta.DurationSecs <= 0 {
		warnings = append(warnings, WarnMissingDuration)
	}
	if meta.Fps <= 0 {
		warnings = append(warnings, WarnMissingFps)
	}
	if meta.BitDepth == 0 {
		warnings = append(warnings, WarnMissingBitDepth)
	}

	confidence := ConfidenceHigh
	switch {
	case len(warnings) >= 3:
		confidence = ConfidenceLow
	case len(warnings) > 0:
		confidence = ConfidenceMedium
	}

	return &Analysis{
		Metadata:   meta,
		Warnings:   warnings,
		Confidence: confidence,
	}, nil
}

// ParseFps parses an ffprobe frame rate, either "num/den" or a bare float.
func ParseFps(s string) float64 {
	if s == "" {
		return 0
	}
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0
		}
		return n / d
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// detectDynamicRange maps transfer characteristics onto an HDR class.
// smpte2084 is PQ (HDR10); arib-std-b67 is HLG. A bt2020 source with no
// transfer tag is ambiguous.
func detectDynamicRange(transfer, primaries string) DynamicRange {
	switch transfer {
	case "smpte2084":
		return RangeHDR10
	case "arib-std-b67":
		return RangeHLG
	case "":
		if primaries == "bt2020" {
			return RangeUnknown
		}
		return RangeSDR
	default:
		return RangeSDR
	}
}

// bitDepthPatterns maps pixel-format substrings to bit depths, checked
// deepest first.
var bitDepthPatterns = []struct {
	depth    int
	patterns []string
}{
	{16, []string{"p16", "p016", "16le", "16be"}},
	{14, []string{"p14", "p014", "14le", "14be"}},
	{12, []string{"p12", "p012", "12le", "12be"}},
	{10, []string{"p10", "p010", "10le", "10be"}},
	{9, []string{"p09", "p9", "9le", "9be"}},
	{8, []string{"p08", "p8", "8le", "8be"}},
}

// inferBitDepth derives bit depth from the pixel format, falling back to
// bits_per_raw_sample. Returns 0 when unknown. Plain 8-bit formats like
// yuv420p carry no depth suffix, so absence of a match is not 8.
func inferBitDepth(stream *ffmpeg.ProbeStream) int {
	fmtName := strings.ToLower(stream.PixFmt)
	if fmtName != "" {
		for _, candidate := range bitDepthPatterns {
			for _, pattern := range candidate.patterns {
				if strings.Contains(fmtName, pattern) {
					return candidate.depth
				}
			}
		}
		// Common 8-bit formats without a depth marker.
		switch fmtName {
		case "yuv420p", "yuv422p", "yuv444p", "nv12", "nv21":
			return 8
		}
	}

	if d, err := strconv.Atoi(stream.BitsPerRawSample); err == nil && d > 0 {
		return d
	}
	return 0
}

func parseInt(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
