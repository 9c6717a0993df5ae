package ffmpeg

import (
	"fmt"
	"runtime"
	"strconv"

	"github.com/bybrooklyn/alchemist/internal/config"
	"github.com/bybrooklyn/alchemist/internal/hardware"
)

// EncoderID identifies one concrete encoder path (codec × backend).
type EncoderID string

// Known encoder paths.
const (
	Av1Qsv          EncoderID = "av1_qsv"
	Av1Nvenc        EncoderID = "av1_nvenc"
	Av1Vaapi        EncoderID = "av1_vaapi"
	Av1Amf          EncoderID = "av1_amf"
	Av1Videotoolbox EncoderID = "av1_videotoolbox"
	Av1Svt          EncoderID = "libsvtav1"
	Av1Aom          EncoderID = "libaom-av1"

	HevcQsv          EncoderID = "hevc_qsv"
	HevcNvenc        EncoderID = "hevc_nvenc"
	HevcVaapi        EncoderID = "hevc_vaapi"
	HevcAmf          EncoderID = "hevc_amf"
	HevcVideotoolbox EncoderID = "hevc_videotoolbox"
	HevcX265         EncoderID = "libx265"

	H264Qsv          EncoderID = "h264_qsv"
	H264Nvenc        EncoderID = "h264_nvenc"
	H264Vaapi        EncoderID = "h264_vaapi"
	H264Amf          EncoderID = "h264_amf"
	H264Videotoolbox EncoderID = "h264_videotoolbox"
	H264X264         EncoderID = "libx264"
)

// FlagParams feeds the flag tables when rendering an encoder's arguments.
type FlagParams struct {
	// Quality is the CRF/CQ/global_quality value for the rate control mode
	// the encoder uses.
	Quality int
	// Preset is the encoder-specific preset string.
	Preset string
	// DevicePath is the render node for QSV/VAAPI paths.
	DevicePath string
}

// EncoderSpec describes one encoder path: which codec it produces, which
// hardware it needs, and its flag tables.
type EncoderSpec struct {
	ID       EncoderID
	Codec    config.OutputCodec
	Vendor   hardware.Vendor
	Hardware bool

	// GlobalArgs are placed before -i (device initialization).
	GlobalArgs func(p FlagParams) []string
	// OutputArgs select the codec and rate control on the output side.
	OutputArgs func(p FlagParams) []string
}

func noGlobalArgs(FlagParams) []string { return nil }

func qsvGlobalArgs(p FlagParams) []string {
	if p.DevicePath == "" {
		return nil
	}
	return []string{
		"-init_hw_device", fmt.Sprintf("qsv=qsv:%s", p.DevicePath),
		"-filter_hw_device", "qsv",
	}
}

func vaapiGlobalArgs(p FlagParams) []string {
	if p.DevicePath == "" {
		return nil
	}
	return []string{"-vaapi_device", p.DevicePath}
}

func qsvOutputArgs(name string) func(FlagParams) []string {
	return func(p FlagParams) []string {
		return []string{
			"-c:v", name,
			"-global_quality", strconv.Itoa(p.Quality),
			"-look_ahead", "1",
		}
	}
}

func nvencOutputArgs(name string) func(FlagParams) []string {
	return func(p FlagParams) []string {
		return []string{
			"-c:v", name,
			"-preset", p.Preset,
			"-cq", strconv.Itoa(p.Quality),
		}
	}
}

func vaapiOutputArgs(name string) func(FlagParams) []string {
	return func(FlagParams) []string {
		return []string{"-c:v", name}
	}
}

func amfOutputArgs(name string) func(FlagParams) []string {
	return func(FlagParams) []string {
		return []string{"-c:v", name}
	}
}

func videotoolboxOutputArgs(name string, tagHvc1 bool) func(FlagParams) []string {
	return func(p FlagParams) []string {
		args := []string{
			"-c:v", name,
			"-b:v", "0",
			"-q:v", strconv.Itoa(p.Quality),
		}
		if tagHvc1 {
			args = append(args, "-tag:v", "hvc1")
		}
		return args
	}
}

func svtAv1OutputArgs(p FlagParams) []string {
	return []string{
		"-c:v", "libsvtav1",
		"-preset", p.Preset,
		"-crf", strconv.Itoa(p.Quality),
	}
}

func aomOutputArgs(p FlagParams) []string {
	return []string{
		"-c:v", "libaom-av1",
		"-crf", strconv.Itoa(p.Quality),
		"-cpu-used", "6",
	}
}

func x265OutputArgs(p FlagParams) []string {
	return []string{
		"-c:v", "libx265",
		"-preset", p.Preset,
		"-crf", strconv.Itoa(p.Quality),
		"-tag:v", "hvc1",
	}
}

func x264OutputArgs(p FlagParams) []string {
	return []string{
		"-c:v", "libx264",
		"-preset", p.Preset,
		"-crf", strconv.Itoa(p.Quality),
	}
}

// encoderSpecs is the flag table for every encoder path.
var encoderSpecs = map[EncoderID]EncoderSpec{
	Av1Qsv:          {ID: Av1Qsv, Codec: config.CodecAV1, Vendor: hardware.VendorIntel, Hardware: true, GlobalArgs: qsvGlobalArgs, OutputArgs: qsvOutputArgs("av1_qsv")},
	HevcQsv:         {ID: HevcQsv, Codec: config.CodecHEVC, Vendor: hardware.VendorIntel, Hardware: true, GlobalArgs: qsvGlobalArgs, OutputArgs: qsvOutputArgs("hevc_qsv")},
	H264Qsv:         {ID: H264Qsv, Codec: config.CodecH264, Vendor: hardware.VendorIntel, Hardware: true, GlobalArgs: qsvGlobalArgs, OutputArgs: qsvOutputArgs("h264_qsv")},
	Av1Nvenc:        {ID: Av1Nvenc, Codec: config.CodecAV1, Vendor: hardware.VendorNvidia, Hardware: true, GlobalArgs: noGlobalArgs, OutputArgs: nvencOutputArgs("av1_nvenc")},
	HevcNvenc:       {ID: HevcNvenc, Codec: config.CodecHEVC, Vendor: hardware.VendorNvidia, Hardware: true, GlobalArgs: noGlobalArgs, OutputArgs: nvencOutputArgs("hevc_nvenc")},
	H264Nvenc:       {ID: H264Nvenc, Codec: config.CodecH264, Vendor: hardware.VendorNvidia, Hardware: true, GlobalArgs: noGlobalArgs, OutputArgs: nvencOutputArgs("h264_nvenc")},
	Av1Vaapi:        {ID: Av1Vaapi, Codec: config.CodecAV1, Vendor: hardware.VendorAmd, Hardware: true, GlobalArgs: vaapiGlobalArgs, OutputArgs: vaapiOutputArgs("av1_vaapi")},
	HevcVaapi:       {ID: HevcVaapi, Codec: config.CodecHEVC, Vendor: hardware.VendorAmd, Hardware: true, GlobalArgs: vaapiGlobalArgs, OutputArgs: vaapiOutputArgs("hevc_vaapi")},
	H264Vaapi:       {ID: H264Vaapi, Codec: config.CodecH264, Vendor: hardware.VendorAmd, Hardware: true, GlobalArgs: vaapiGlobalArgs, OutputArgs: vaapiOutputArgs("h264_vaapi")},
	Av1Amf:          {ID: Av1Amf, Codec: config.CodecAV1, Vendor: hardware.VendorAmd, Hardware: true, GlobalArgs: noGlobalArgs, OutputArgs: amfOutputArgs("av1_amf")},
	HevcAmf:         {ID: HevcAmf, Codec: config.CodecHEVC, Vendor: hardware.VendorAmd, Hardware: true, GlobalArgs: noGlobalArgs, OutputArgs: amfOutputArgs("hevc_amf")},
	H264Amf:         {ID: H264Amf, Codec: config.CodecH264, Vendor: hardware.VendorAmd, Hardware: true, GlobalArgs: noGlobalArgs, OutputArgs: amfOutputArgs("h264_amf")},
	Av1Videotoolbox: {ID: Av1Videotoolbox, Codec: config.CodecAV1, Vendor: hardware.VendorApple, Hardware: true, GlobalArgs: noGlobalArgs, OutputArgs: videotoolboxOutputArgs("av1_videotoolbox", false)},
	HevcVideotoolbox: {ID: HevcVideotoolbox, Codec: config.CodecHEVC, Vendor: hardware.VendorApple, Hardware: true, GlobalArgs: noGlobalArgs, OutputArgs: videotoolboxOutputArgs("hevc_videotoolbox", true)},
	H264Videotoolbox: {ID: H264Videotoolbox, Codec: config.CodecH264, Vendor: hardware.VendorApple, Hardware: true, GlobalArgs: noGlobalArgs, OutputArgs: videotoolboxOutputArgs("h264_videotoolbox", false)},
	Av1Svt:          {ID: Av1Svt, Codec: config.CodecAV1, Vendor: hardware.VendorCPU, GlobalArgs: noGlobalArgs, OutputArgs: svtAv1OutputArgs},
	Av1Aom:          {ID: Av1Aom, Codec: config.CodecAV1, Vendor: hardware.VendorCPU, GlobalArgs: noGlobalArgs, OutputArgs: aomOutputArgs},
	HevcX265:        {ID: HevcX265, Codec: config.CodecHEVC, Vendor: hardware.VendorCPU, GlobalArgs: noGlobalArgs, OutputArgs: x265OutputArgs},
	H264X264:        {ID: H264X264, Codec: config.CodecH264, Vendor: hardware.VendorCPU, GlobalArgs: noGlobalArgs, OutputArgs: x264OutputArgs},
}

// Spec returns the spec for an encoder path.
func Spec(id EncoderID) (EncoderSpec, bool) {
	spec, ok := encoderSpecs[id]
	return spec, ok
}

// QualityFor returns the rate-control value a profile implies for an
// encoder path.
func QualityFor(profile config.QualityProfile, id EncoderID) int {
	switch id {
	case Av1Qsv, HevcQsv, H264Qsv:
		switch profile {
		case config.ProfileQuality:
			return 20
		case config.ProfileSpeed:
			return 30
		default:
			return 25
		}
	case Av1Nvenc, HevcNvenc, H264Nvenc:
		switch profile {
		case config.ProfileQuality:
			return 21
		case config.ProfileSpeed:
			return 30
		default:
			return 25
		}
	case Av1Videotoolbox, HevcVideotoolbox, H264Videotoolbox:
		switch profile {
		case config.ProfileQuality:
			return 75
		case config.ProfileSpeed:
			return 50
		default:
			return 65
		}
	case Av1Svt:
		switch profile {
		case config.ProfileQuality:
			return 24
		case config.ProfileSpeed:
			return 32
		default:
			return 28
		}
	case Av1Aom:
		return 32
	case HevcX265:
		switch profile {
		case config.ProfileQuality:
			return 20
		case config.ProfileSpeed:
			return 26
		default:
			return 24
		}
	case H264X264:
		switch profile {
		case config.ProfileQuality:
			return 18
		case config.ProfileSpeed:
			return 23
		default:
			return 21
		}
	default:
		return 25
	}
}

// PresetFor returns the preset string a profile implies for an encoder path.
// SVT-AV1 uses numeric presets; NVENC uses p1..p7; x264/x265 use the named
// CPU preset.
func PresetFor(profile config.QualityProfile, cpuPreset config.CpuPreset, id EncoderID) string {
	switch id {
	case Av1Nvenc, HevcNvenc, H264Nvenc:
		switch profile {
		case config.ProfileQuality:
			return "p7"
		case config.ProfileSpeed:
			return "p1"
		default:
			return "p4"
		}
	case Av1Svt:
		switch cpuPreset {
		case config.PresetSlow:
			return "4"
		case config.PresetFast:
			return "12"
		case config.PresetFaster:
			return "13"
		default:
			return "8"
		}
	case HevcX265, H264X264:
		return string(cpuPreset)
	default:
		return ""
	}
}

// amdEncoder picks AMF on Windows and VAAPI elsewhere for an AMD GPU.
func amdEncoder(amf, vaapi EncoderID) EncoderID {
	if runtime.GOOS == "windows" {
		return amf
	}
	return vaapi
}

// hardwareCandidate returns the vendor's encoder path for a codec, or ""
// when the vendor has none.
func hardwareCandidate(codec config.OutputCodec, vendor hardware.Vendor) EncoderID {
	switch vendor {
	case hardware.VendorIntel:
		switch codec {
		case config.CodecAV1:
			return Av1Qsv
		case config.CodecHEVC:
			return HevcQsv
		default:
			return H264Qsv
		}
	case hardware.VendorNvidia:
		switch codec {
		case config.CodecAV1:
			return Av1Nvenc
		case config.CodecHEVC:
			return HevcNvenc
		default:
			return H264Nvenc
		}
	case hardware.VendorAmd:
		switch codec {
		case config.CodecAV1:
			return amdEncoder(Av1Amf, Av1Vaapi)
		case config.CodecHEVC:
			return amdEncoder(HevcAmf, HevcVaapi)
		default:
			return amdEncoder(H264Amf, H264Vaapi)
		}
	case hardware.VendorApple:
		switch codec {
		case config.CodecAV1:
			return Av1Videotoolbox
		case config.CodecHEVC:
			return HevcVideotoolbox
		default:
			return H264Videotoolbox
		}
	}
	return ""
}

// softwareCandidates returns the CPU encoder paths for a codec, best first.
func softwareCandidates(codec config.OutputCodec) []EncoderID {
	switch codec {
	case config.CodecAV1:
		return []EncoderID{Av1Svt, Av1Aom}
	case config.CodecHEVC:
		return []EncoderID{HevcX265}
	default:
		return []EncoderID{H264X264}
	}
}

// fallbackOrder lists the codec families tried after the preferred one when
// fallback is allowed. The order is deterministic: stay as modern as
// possible, then degrade.
func fallbackOrder(codec config.OutputCodec) []config.OutputCodec {
	switch codec {
	case config.CodecAV1:
		return []config.OutputCodec{config.CodecHEVC, config.CodecH264}
	case config.CodecHEVC:
		return []config.OutputCodec{config.CodecH264}
	default:
		return []config.OutputCodec{config.CodecHEVC}
	}
}

// Candidates returns the ordered encoder paths to try for a target codec on
// the given hardware. Hardware paths come before software; alternate codec
// families are appended only when allowFallback is set. Software paths are
// included only when allowCPU is set.
func Candidates(codec config.OutputCodec, vendor hardware.Vendor, allowFallback, allowCPU bool) []EncoderID {
	codecs := []config.OutputCodec{codec}
	if allowFallback {
		codecs = append(codecs, fallbackOrder(codec)...)
	}

	var out []EncoderID
	for _, c := range codecs {
		if id := hardwareCandidate(c, vendor); id != "" {
			out = append(out, id)
		}
		if allowCPU {
			out = append(out, softwareCandidates(c)...)
		}
	}
	return out
}
