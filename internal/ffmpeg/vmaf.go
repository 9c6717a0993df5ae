package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// QualityScore holds perceptual quality metrics for an encoded file.
type QualityScore struct {
	Vmaf *float64 `json:"vmaf,omitempty"`
}

// ComputeVMAF runs the libvmaf filter comparing the encoded file against
// the original and returns the mean score. Callers should treat a nil
// score or an error as "quality unknown", not as a gate failure.
func ComputeVMAF(ctx context.Context, ffmpegPath, original, encoded string) (*QualityScore, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-hide_banner",
		"-i", encoded,
		"-i", original,
		"-lavfi", "libvmaf=log_fmt=json:log_path=-",
		"-f", "null", "-",
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("running libvmaf: %w", err)
	}

	text := string(output)
	score := extractVmafJSON(text)
	if score == nil {
		score = extractVmafText(text)
	}

	return &QualityScore{Vmaf: score}, nil
}

// extractVmafJSON pulls the pooled mean from libvmaf's JSON log.
func extractVmafJSON(output string) *float64 {
	start := strings.Index(output, "{")
	end := strings.LastIndex(output, "}")
	if start < 0 || end <= start {
		return nil
	}

	var doc struct {
		PooledMetrics struct {
			Vmaf struct {
				Mean float64 `json:"mean"`
			} `json:"vmaf"`
		} `json:"pooled_metrics"`
	}
	if err := json.Unmarshal([]byte(output[start:end+1]), &doc); err != nil {
		return nil
	}
	if doc.PooledMetrics.Vmaf.Mean == 0 {
		return nil
	}
	mean := doc.PooledMetrics.Vmaf.Mean
	return &mean
}

// extractVmafText falls back to the "VMAF score:" summary line older builds
// print on stderr.
func extractVmafText(output string) *float64 {
	for _, line := range strings.Split(output, "\n") {
		idx := strings.Index(line, "VMAF score:")
		if idx < 0 {
			continue
		}
		val, err := strconv.ParseFloat(strings.TrimSpace(line[idx+len("VMAF score:"):]), 64)
		if err == nil {
			return &val
		}
	}
	return nil
}
