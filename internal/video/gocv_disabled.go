//go:build nogocv

package video

import (
	"context"
	"errors"
)

// GoCVEncoder is compiled out with the nogocv tag and never available.
type GoCVEncoder struct{}

func NewGoCVEncoder() *GoCVEncoder { return &GoCVEncoder{} }

func (e *GoCVEncoder) Name() string { return "opencv" }

func (e *GoCVEncoder) Available(ctx context.Context) bool { return false }

func (e *GoCVEncoder) Encode(ctx context.Context, frames FrameSet, fps float64, out string) error {
	return errors.New("built without OpenCV support")
}
