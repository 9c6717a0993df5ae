package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/bybrooklyn/alchemist/internal/ffmpeg"
	"github.com/bybrooklyn/alchemist/internal/hardware"
)

// detectCmd probes the host for encoding capabilities.
var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect hardware and ffmpeg capabilities",
	Long: `Probes the host for a usable GPU vendor and queries the installed
ffmpeg build for available hardware accelerators and video encoders.`,
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)
}

func runDetect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogger(cfg)

	hw := hardware.Detect(slog.Default())
	fmt.Printf("Hardware: %s\n", hw.Vendor)
	if hw.DevicePath != "" {
		fmt.Printf("Device:   %s\n", hw.DevicePath)
	}

	binaries, err := ffmpeg.ResolveBinaries(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath)
	if err != nil {
		return err
	}
	fmt.Printf("ffmpeg:   %s\n", binaries.FFmpegPath)
	fmt.Printf("ffprobe:  %s\n", binaries.FFprobePath)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	caps, err := ffmpeg.DetectCapabilities(ctx, binaries.FFmpegPath)
	if err != nil {
		return fmt.Errorf("detecting capabilities: %w", err)
	}

	accels := make([]string, 0, len(caps.HWAccels))
	for name := range caps.HWAccels {
		accels = append(accels, name)
	}
	sort.Strings(accels)
	fmt.Printf("Accelerators: %v\n", accels)

	fmt.Println("Relevant encoders:")
	for _, id := range []ffmpeg.EncoderID{
		ffmpeg.Av1Qsv, ffmpeg.Av1Nvenc, ffmpeg.Av1Vaapi, ffmpeg.Av1Amf, ffmpeg.Av1Videotoolbox,
		ffmpeg.Av1Svt, ffmpeg.Av1Aom,
		ffmpeg.HevcQsv, ffmpeg.HevcNvenc, ffmpeg.HevcVaapi, ffmpeg.HevcAmf, ffmpeg.HevcVideotoolbox,
		ffmpeg.HevcX265,
		ffmpeg.H264Qsv, ffmpeg.H264Nvenc, ffmpeg.H264Vaapi, ffmpeg.H264Amf, ffmpeg.H264Videotoolbox,
		ffmpeg.H264X264,
	} {
		marker := " "
		if caps.HasVideoEncoder(string(id)) {
			marker = "x"
		}
		fmt.Printf("  [%s] %s\n", marker, id)
	}

	if caps.HasFilter("libvmaf") {
		fmt.Println("VMAF: available")
	} else {
		fmt.Println("VMAF: not available")
	}
	return nil
}
