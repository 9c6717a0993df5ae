package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bybrooklyn/alchemist/internal/config"
	"github.com/bybrooklyn/alchemist/internal/hardware"
)

func TestEncoderSpecFlagTables(t *testing.T) {
	tests := []struct {
		id         EncoderID
		params     FlagParams
		wantGlobal []string
		wantOutput []string
	}{
		{
			id:         Av1Qsv,
			params:     FlagParams{Quality: 25, DevicePath: "/dev/dri/renderD128"},
			wantGlobal: []string{"-init_hw_device", "qsv=qsv:/dev/dri/renderD128", "-filter_hw_device", "qsv"},
			wantOutput: []string{"-c:v", "av1_qsv", "-global_quality", "25", "-look_ahead", "1"},
		},
		{
			id:         HevcNvenc,
			params:     FlagParams{Quality: 25, Preset: "p4"},
			wantGlobal: nil,
			wantOutput: []string{"-c:v", "hevc_nvenc", "-preset", "p4", "-cq", "25"},
		},
		{
			id:         Av1Vaapi,
			params:     FlagParams{DevicePath: "/dev/dri/renderD128"},
			wantGlobal: []string{"-vaapi_device", "/dev/dri/renderD128"},
			wantOutput: []string{"-c:v", "av1_vaapi"},
		},
		{
			id:         HevcAmf,
			params:     FlagParams{},
			wantGlobal: nil,
			wantOutput: []string{"-c:v", "hevc_amf"},
		},
		{
			id:         HevcVideotoolbox,
			params:     FlagParams{Quality: 65},
			wantGlobal: nil,
			wantOutput: []string{"-c:v", "hevc_videotoolbox", "-b:v", "0", "-q:v", "65", "-tag:v", "hvc1"},
		},
		{
			id:         Av1Svt,
			params:     FlagParams{Quality: 28, Preset: "8"},
			wantGlobal: nil,
			wantOutput: []string{"-c:v", "libsvtav1", "-preset", "8", "-crf", "28"},
		},
		{
			id:         Av1Aom,
			params:     FlagParams{Quality: 32},
			wantGlobal: nil,
			wantOutput: []string{"-c:v", "libaom-av1", "-crf", "32", "-cpu-used", "6"},
		},
		{
			id:         HevcX265,
			params:     FlagParams{Quality: 24, Preset: "medium"},
			wantGlobal: nil,
			wantOutput: []string{"-c:v", "libx265", "-preset", "medium", "-crf", "24", "-tag:v", "hvc1"},
		},
		{
			id:         H264X264,
			params:     FlagParams{Quality: 21, Preset: "medium"},
			wantGlobal: nil,
			wantOutput: []string{"-c:v", "libx264", "-preset", "medium", "-crf", "21"},
		},
	}

	for _, tc := range tests {
		t.Run(string(tc.id), func(t *testing.T) {
			spec, ok := Spec(tc.id)
			require.True(t, ok)
			assert.Equal(t, tc.wantGlobal, spec.GlobalArgs(tc.params))
			assert.Equal(t, tc.wantOutput, spec.OutputArgs(tc.params))
		})
	}
}

func TestQsvArgsWithoutDevice(t *testing.T) {
	spec, ok := Spec(HevcQsv)
	require.True(t, ok)
	assert.Nil(t, spec.GlobalArgs(FlagParams{Quality: 25}))
}

func TestQualityFor(t *testing.T) {
	assert.Equal(t, 20, QualityFor(config.ProfileQuality, Av1Qsv))
	assert.Equal(t, 25, QualityFor(config.ProfileBalanced, Av1Qsv))
	assert.Equal(t, 30, QualityFor(config.ProfileSpeed, Av1Qsv))

	assert.Equal(t, 24, QualityFor(config.ProfileQuality, Av1Svt))
	assert.Equal(t, 28, QualityFor(config.ProfileBalanced, Av1Svt))
	assert.Equal(t, 32, QualityFor(config.ProfileSpeed, Av1Svt))

	assert.Equal(t, 21, QualityFor(config.ProfileBalanced, H264X264))
}

func TestPresetFor(t *testing.T) {
	assert.Equal(t, "p7", PresetFor(config.ProfileQuality, config.PresetMedium, HevcNvenc))
	assert.Equal(t, "p4", PresetFor(config.ProfileBalanced, config.PresetMedium, HevcNvenc))
	assert.Equal(t, "p1", PresetFor(config.ProfileSpeed, config.PresetMedium, HevcNvenc))

	assert.Equal(t, "8", PresetFor(config.ProfileBalanced, config.PresetMedium, Av1Svt))
	assert.Equal(t, "4", PresetFor(config.ProfileBalanced, config.PresetSlow, Av1Svt))
	assert.Equal(t, "13", PresetFor(config.ProfileBalanced, config.PresetFaster, Av1Svt))

	assert.Equal(t, "fast", PresetFor(config.ProfileBalanced, config.PresetFast, HevcX265))
	assert.Equal(t, "", PresetFor(config.ProfileBalanced, config.PresetMedium, Av1Vaapi))
}

func TestCandidatesOrdering(t *testing.T) {
	t.Run("nvidia av1 with fallback", func(t *testing.T) {
		got := Candidates(config.CodecAV1, hardware.VendorNvidia, true, true)
		want := []EncoderID{
			Av1Nvenc, Av1Svt, Av1Aom,
			HevcNvenc, HevcX265,
			H264Nvenc, H264X264,
		}
		assert.Equal(t, want, got)
	})

	t.Run("no fallback stays in family", func(t *testing.T) {
		got := Candidates(config.CodecAV1, hardware.VendorNvidia, false, true)
		assert.Equal(t, []EncoderID{Av1Nvenc, Av1Svt, Av1Aom}, got)
	})

	t.Run("hardware only", func(t *testing.T) {
		got := Candidates(config.CodecHEVC, hardware.VendorIntel, false, false)
		assert.Equal(t, []EncoderID{HevcQsv}, got)
	})

	t.Run("cpu vendor has no hardware entries", func(t *testing.T) {
		got := Candidates(config.CodecHEVC, hardware.VendorCPU, false, true)
		assert.Equal(t, []EncoderID{HevcX265}, got)
	})

	t.Run("h264 falls back to hevc", func(t *testing.T) {
		got := Candidates(config.CodecH264, hardware.VendorCPU, true, true)
		assert.Equal(t, []EncoderID{H264X264, HevcX265}, got)
	})
}

func TestCapabilitiesParsing(t *testing.T) {
	encodersOut := `Encoders:
 V..... = Video
 A..... = Audio
 ------
 V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC
 V....D libsvtav1            SVT-AV1(Scalable Video Technology for AV1) encoder
 V....D hevc_nvenc           NVIDIA NVENC hevc encoder
 A....D aac                  AAC (Advanced Audio Coding)
`
	caps := &Capabilities{
		VideoEncoders: make(map[string]bool),
		AudioEncoders: make(map[string]bool),
		Filters:       make(map[string]bool),
	}
	parseEncoderList(encodersOut, caps)

	assert.True(t, caps.HasVideoEncoder("libx264"))
	assert.True(t, caps.HasVideoEncoder("libsvtav1"))
	assert.True(t, caps.HasVideoEncoder("hevc_nvenc"))
	assert.False(t, caps.HasVideoEncoder("aac"))
	assert.True(t, caps.AudioEncoders["aac"])

	filtersOut := `Filters:
  T.. = Timeline support
 ... scale             V->V       Scale the input video size.
 ... libvmaf           VV->V      Calculate the VMAF between two video streams.
`
	parseFilterList(filtersOut, caps)
	assert.True(t, caps.HasFilter("libvmaf"))
	assert.True(t, caps.HasFilter("scale"))
}
