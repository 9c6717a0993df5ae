package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bybrooklyn/alchemist/internal/ffmpeg"
)

func sampleProbe() *ffmpeg.ProbeResult {
	return &ffmpeg.ProbeResult{
		Format: ffmpeg.ProbeFormat{
			FormatName: "matroska,webm",
			Duration:   "3600.0",
			Size:       "5368709120",
			BitRate:    "11930464",
		},
		Streams: []ffmpeg.ProbeStream{
			{
				Index:          0,
				CodecType:      "video",
				CodecName:      "h264",
				PixFmt:         "yuv420p",
				Width:          1920,
				Height:         1080,
				BitRate:        "10368000",
				AvgFrameRate:   "25/1",
				ColorPrimaries: "bt709",
				ColorTransfer:  "bt709",
			},
			{
				Index:     1,
				CodecType: "audio",
				CodecName: "ac3",
				Channels:  6,
			},
		},
	}
}

func TestFromProbe(t *testing.T) {
	analysis, err := FromProbe("/m/b.mkv", sampleProbe())
	require.NoError(t, err)

	meta := analysis.Metadata
	assert.Equal(t, "h264", meta.CodecName)
	assert.Equal(t, 1920, meta.Width)
	assert.Equal(t, 1080, meta.Height)
	assert.Equal(t, 25.0, meta.Fps)
	assert.Equal(t, 3600.0, meta.DurationSecs)
	assert.EqualValues(t, 5368709120, meta.SizeBytes)
	assert.EqualValues(t, 10368000, meta.VideoBitrateBps)
	assert.Equal(t, 8, meta.BitDepth)
	assert.Equal(t, RangeSDR, meta.DynamicRange)
	assert.Equal(t, "ac3", meta.AudioCodec)
	assert.Equal(t, 6, meta.AudioChannels)
	assert.Equal(t, ConfidenceHigh, analysis.Confidence)
	assert.Empty(t, analysis.Warnings)

	// BPP = 10368000 / (1920*1080*25) = 0.2
	assert.InDelta(t, 0.2, meta.Bpp(), 0.0001)
	// 1080p correction 0.8 -> 0.16 normalized.
	assert.InDelta(t, 0.16, meta.NormalizedBpp(), 0.0001)
}

func TestFromProbeNoVideoStream(t *testing.T) {
	probe := &ffmpeg.ProbeResult{
		Streams: []ffmpeg.ProbeStream{{CodecType: "audio", CodecName: "flac"}},
	}
	_, err := FromProbe("/m/audio.flac", probe)
	assert.ErrorIs(t, err, ErrNoVideoStream)
}

func TestFromProbeFallbacks(t *testing.T) {
	probe := sampleProbe()
	probe.Format.Duration = ""
	probe.Streams[0].AvgFrameRate = ""
	probe.Streams[0].RFrameRate = ""
	probe.Streams[0].Duration = "1200"
	probe.Streams[0].NumFrames = "30000"

	analysis, err := FromProbe("/m/b.mkv", probe)
	require.NoError(t, err)

	// Duration from stream, fps from frames/duration.
	assert.Equal(t, 1200.0, analysis.Metadata.DurationSecs)
	assert.InDelta(t, 25.0, analysis.Metadata.Fps, 0.001)
}

func TestFromProbeWarningsGrading(t *testing.T) {
	probe := sampleProbe()
	probe.Streams[0].BitRate = ""
	probe.Format.BitRate = ""

	analysis, err := FromProbe("/m/b.mkv", probe)
	require.NoError(t, err)
	assert.Contains(t, analysis.Warnings, WarnMissingVideoBitrate)
	assert.Contains(t, analysis.Warnings, WarnMissingContainerBitrate)
	assert.Equal(t, ConfidenceMedium, analysis.Confidence)

	probe.Streams[0].PixFmt = "something_odd"
	probe.Streams[0].AvgFrameRate = ""
	probe.Streams[0].RFrameRate = ""
	probe.Format.Duration = ""
	analysis, err = FromProbe("/m/b.mkv", probe)
	require.NoError(t, err)
	assert.Equal(t, ConfidenceLow, analysis.Confidence)
}

func TestParseFps(t *testing.T) {
	assert.Equal(t, 24.0, ParseFps("24/1"))
	assert.Equal(t, 23.976, ParseFps("23.976"))
	assert.InDelta(t, 59.94, ParseFps("60000/1001"), 0.001)
	assert.Equal(t, 0.0, ParseFps("24/0"))
	assert.Equal(t, 0.0, ParseFps("invalid"))
	assert.Equal(t, 0.0, ParseFps(""))
}

func TestDetectDynamicRange(t *testing.T) {
	assert.Equal(t, RangeHDR10, detectDynamicRange("smpte2084", "bt2020"))
	assert.Equal(t, RangeHLG, detectDynamicRange("arib-std-b67", "bt2020"))
	assert.Equal(t, RangeSDR, detectDynamicRange("bt709", "bt709"))
	assert.Equal(t, RangeUnknown, detectDynamicRange("", "bt2020"))
	assert.Equal(t, RangeSDR, detectDynamicRange("", "bt709"))

	assert.True(t, RangeHDR10.IsHDR())
	assert.True(t, RangeHLG.IsHDR())
	assert.False(t, RangeSDR.IsHDR())
}

func TestInferBitDepth(t *testing.T) {
	cases := []struct {
		pixFmt string
		raw    string
		want   int
	}{
		{"yuv420p10le", "", 10},
		{"p010le", "", 10},
		{"yuv420p12le", "", 12},
		{"yuv420p", "", 8},
		{"nv12", "", 8},
		{"weird_fmt", "10", 10},
		{"weird_fmt", "", 0},
	}
	for _, tc := range cases {
		stream := &ffmpeg.ProbeStream{PixFmt: tc.pixFmt, BitsPerRawSample: tc.raw}
		assert.Equal(t, tc.want, inferBitDepth(stream), "pix_fmt=%s raw=%s", tc.pixFmt, tc.raw)
	}
}
