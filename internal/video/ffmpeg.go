package video

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpegEncoder shells out to ffmpeg with H.264 baseline settings that
// play in browsers and on phones.
type FFmpegEncoder struct {
	Path string
}

// NewFFmpegEncoder uses path, or "ffmpeg" from PATH when empty.
func NewFFmpegEncoder(path string) *FFmpegEncoder {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpegEncoder{Path: path}
}

func (e *FFmpegEncoder) Name() string { return "ffmpeg" }

// Available runs "ffmpeg -version".
func (e *FFmpegEncoder) Available(ctx context.Context) bool {
	return exec.CommandContext(ctx, e.Path, "-version").Run() == nil
}

// Args returns the ffmpeg command line for frames.
func (e *FFmpegEncoder) Args(frames FrameSet, fps float64, out string) []string {
	return []string{
		"-y",
		"-framerate", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", frames.Pattern(),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-profile:v", "baseline",
		"-level", "3.0",
		"-crf", "23",
		"-preset", "medium",
		"-movflags", "+faststart",
		out,
	}
}

func (e *FFmpegEncoder) Encode(ctx context.Context, frames FrameSet, fps float64, out string) error {
	cmd := exec.CommandContext(ctx, e.Path, e.Args(frames, fps, out)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w: %s", err, tail(stderr.String(), 500))
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
