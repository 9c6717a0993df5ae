package ffmpeg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProgressLine(t *testing.T) {
	line := "frame= 1234 fps= 48.5 q=28.0 size=  102400KiB time=00:12:34.56 bitrate=1024.5kbits/s speed=1.95x"

	progress := ParseProgressLine(line)
	require.NotNil(t, progress)

	assert.EqualValues(t, 1234, progress.Frame)
	assert.Equal(t, 48.5, progress.FPS)
	assert.Equal(t, 1.95, progress.Speed)

	expected := 12*time.Minute + 34*time.Second + 560*time.Millisecond
	assert.Equal(t, expected, progress.Time)
}

func TestParseProgressLineNoProgress(t *testing.T) {
	lines := []string{
		"",
		"Stream mapping:",
		"  Stream #0:0 -> #0:0 (h264 (native) -> av1 (libsvtav1))",
		"[libsvtav1 @ 0x55e] Svt[info]: SVT [version]",
	}
	for _, line := range lines {
		assert.Nil(t, ParseProgressLine(line), "line %q should carry no progress", line)
	}
}

func TestProgressPercentage(t *testing.T) {
	p := &Progress{Time: 30 * time.Minute}

	assert.InDelta(t, 50.0, p.Percentage(time.Hour), 0.001)
	assert.Equal(t, 0.0, p.Percentage(0), "unknown duration yields zero")

	over := &Progress{Time: 2 * time.Hour}
	assert.Equal(t, 100.0, over.Percentage(time.Hour), "clamped at 100")
}
