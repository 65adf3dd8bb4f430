// Package video assembles stored images into MP4 time-lapses.
package video

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
)

// ErrNoEncoder is returned when neither ffmpeg nor OpenCV can be used.
var ErrNoEncoder = errors.New("no video encoder available")

// FramePattern is the printf pattern staged frames are named with.
const FramePattern = "frame_%06d.jpg"

// FrameSet is a directory of sequentially numbered, equally sized JPEG
// frames.
type FrameSet struct {
	Dir    string
	Count  int
	Width  int
	Height int
}

// Path returns the i-th frame, counting from zero.
func (f FrameSet) Path(i int) string {
	return filepath.Join(f.Dir, fmt.Sprintf(FramePattern, i))
}

// Pattern returns the ffmpeg input pattern for the set.
func (f FrameSet) Pattern() string {
	return filepath.Join(f.Dir, FramePattern)
}

// Encoder turns a frame set into a video file.
type Encoder interface {
	Name() string
	Available(ctx context.Context) bool
	Encode(ctx context.Context, frames FrameSet, fps float64, out string) error
}
