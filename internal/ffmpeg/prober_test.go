package ffmpeg

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProbeJSON = `{
  "format": {
    "filename": "/library/movie.mkv",
    "format_name": "matroska,webm",
    "format_long_name": "Matroska / WebM",
    "duration": "5400.125000",
    "size": "5368709120",
    "bit_rate": "7952374"
  },
  "streams": [
    {
      "index": 0,
      "codec_name": "h264",
      "codec_type": "video",
      "pix_fmt": "yuv420p",
      "width": 1920,
      "height": 1080,
      "bit_rate": "7500000",
      "avg_frame_rate": "24000/1001",
      "r_frame_rate": "24000/1001",
      "nb_frames": "129432",
      "color_primaries": "bt709",
      "color_transfer": "bt709",
      "color_space": "bt709",
      "color_range": "tv",
      "disposition": {"default": 1}
    },
    {
      "index": 1,
      "codec_name": "mjpeg",
      "codec_type": "video",
      "width": 600,
      "height": 882,
      "disposition": {"default": 0, "attached_pic": 1}
    },
    {
      "index": 2,
      "codec_name": "eac3",
      "codec_type": "audio",
      "channels": 6,
      "channel_layout": "5.1",
      "bit_rate": "640000"
    },
    {
      "index": 3,
      "codec_name": "subrip",
      "codec_type": "subtitle"
    }
  ]
}`

func TestProbeResultParsing(t *testing.T) {
	var result ProbeResult
	require.NoError(t, json.Unmarshal([]byte(sampleProbeJSON), &result))

	assert.Equal(t, "matroska,webm", result.Format.FormatName)
	assert.Equal(t, "5368709120", result.Format.Size)
	assert.Len(t, result.Streams, 4)
}

func TestVideoStreamSelection(t *testing.T) {
	var result ProbeResult
	require.NoError(t, json.Unmarshal([]byte(sampleProbeJSON), &result))

	// The default-flagged h264 stream wins over the attached-pic mjpeg.
	video := result.VideoStream()
	require.NotNil(t, video)
	assert.Equal(t, "h264", video.CodecName)
	assert.Equal(t, 1920, video.Width)
}

func TestVideoStreamPrefersLargest(t *testing.T) {
	result := ProbeResult{
		Streams: []ProbeStream{
			{Index: 0, CodecType: "video", CodecName: "h264", Width: 640, Height: 480},
			{Index: 1, CodecType: "video", CodecName: "hevc", Width: 3840, Height: 2160},
		},
	}

	video := result.VideoStream()
	require.NotNil(t, video)
	assert.Equal(t, "hevc", video.CodecName)
}

func TestVideoStreamCodedDimensionFallback(t *testing.T) {
	result := ProbeResult{
		Streams: []ProbeStream{
			{Index: 0, CodecType: "video", CodecName: "h264", CodedWidth: 1920, CodedHeight: 1088},
		},
	}

	video := result.VideoStream()
	require.NotNil(t, video)
	assert.Equal(t, "h264", video.CodecName)
}

func TestAudioStream(t *testing.T) {
	var result ProbeResult
	require.NoError(t, json.Unmarshal([]byte(sampleProbeJSON), &result))

	audio := result.AudioStream()
	require.NotNil(t, audio)
	assert.Equal(t, "eac3", audio.CodecName)
	assert.Equal(t, 6, audio.Channels)

	empty := ProbeResult{}
	assert.Nil(t, empty.AudioStream())
	assert.Nil(t, empty.VideoStream())
}
