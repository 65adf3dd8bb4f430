//go:build !nogocv

package video

import (
	"context"
	"fmt"
	"image"
	"os"

	"gocv.io/x/gocv"

	"solarimager/internal/logger"
)

// fallbackCodecs are tried in order until a VideoWriter opens.
var fallbackCodecs = []string{"avc1", "mp4v", "MJPG"}

// GoCVEncoder writes frames with OpenCV's VideoWriter when ffmpeg is not
// installed.
type GoCVEncoder struct {
	log *logger.Logger
}

func NewGoCVEncoder() *GoCVEncoder {
	return &GoCVEncoder{log: logger.WithComponent("video")}
}

func (e *GoCVEncoder) Name() string { return "opencv" }

func (e *GoCVEncoder) Available(ctx context.Context) bool { return true }

func (e *GoCVEncoder) open(out string, fps float64, w, h int) (*gocv.VideoWriter, string, error) {
	for _, codec := range fallbackCodecs {
		writer, err := gocv.VideoWriterFile(out, codec, fps, w, h, true)
		if err == nil && writer.IsOpened() {
			return writer, codec, nil
		}
		if writer != nil {
			writer.Close()
		}
		os.Remove(out)
		e.log.Debug("codec unavailable", map[string]interface{}{"codec": codec})
	}
	return nil, "", fmt.Errorf("no OpenCV codec among %v could open %s", fallbackCodecs, out)
}

// Encode writes every frame, resizing any that differ from the set size.
// A failure part way leaves the partial file in place.
func (e *GoCVEncoder) Encode(ctx context.Context, frames FrameSet, fps float64, out string) error {
	writer, codec, err := e.open(out, fps, frames.Width, frames.Height)
	if err != nil {
		return err
	}
	defer writer.Close()
	e.log.Info("encoding with OpenCV", map[string]interface{}{"codec": codec, "frames": frames.Count})

	size := image.Pt(frames.Width, frames.Height)
	for i := 0; i < frames.Count; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.writeFrame(writer, frames.Path(i), size); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return nil
}

func (e *GoCVEncoder) writeFrame(writer *gocv.VideoWriter, path string, size image.Point) error {
	img := gocv.IMRead(path, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return fmt.Errorf("failed to read %s", path)
	}
	if img.Cols() != size.X || img.Rows() != size.Y {
		resized := gocv.NewMat()
		defer resized.Close()
		if err := gocv.Resize(img, &resized, size, 0, 0, gocv.InterpolationLinear); err != nil {
			return fmt.Errorf("resize %s: %w", path, err)
		}
		return writer.Write(resized)
	}
	return writer.Write(img)
}
