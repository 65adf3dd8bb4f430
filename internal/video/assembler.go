package video

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"solarimager/internal/logger"
	"solarimager/internal/metrics"
)

// Request describes one video.
type Request struct {
	Frames  []Frame
	FPS     float64
	Output  string // full path of the MP4 to write
	Label   bool   // stamp the date on every frame
	Caption string // appended to the date label
}

// Result describes a written video.
type Result struct {
	Output   string        `json:"output"`
	Encoder  string        `json:"encoder"`
	Frames   int           `json:"frames"`
	Skipped  int           `json:"skipped"`
	FPS      float64       `json:"fps"`
	Duration time.Duration `json:"duration"` // expected playback length
	Bytes    int64         `json:"bytes"`
}

// Assembler prepares frames and hands them to the first available encoder.
type Assembler struct {
	encoders []Encoder
	tempDir  string
	log      *logger.Logger
}

// NewAssembler stages frames under tempDir. Encoders are tried in order.
func NewAssembler(tempDir string, encoders ...Encoder) *Assembler {
	return &Assembler{encoders: encoders, tempDir: tempDir, log: logger.WithComponent("video")}
}

// DefaultEncoders returns ffmpeg followed by the OpenCV fallback.
func DefaultEncoders(ffmpegPath string) []Encoder {
	return []Encoder{NewFFmpegEncoder(ffmpegPath), NewGoCVEncoder()}
}

// Select returns the first available encoder.
func (a *Assembler) Select(ctx context.Context) (Encoder, error) {
	for _, e := range a.encoders {
		if e.Available(ctx) {
			return e, nil
		}
		a.log.Warn("encoder unavailable", map[string]interface{}{"encoder": e.Name()})
	}
	return nil, ErrNoEncoder
}

// Assemble writes req.Output. Staged frames are removed afterwards; a
// failed encode may leave a partial output file.
func (a *Assembler) Assemble(ctx context.Context, req Request) (*Result, error) {
	if len(req.Frames) == 0 {
		return nil, errors.New("no frames to assemble")
	}
	if req.FPS <= 0 {
		return nil, fmt.Errorf("invalid frame rate %v", req.FPS)
	}
	if req.Output == "" {
		return nil, errors.New("output path is required")
	}

	enc, err := a.Select(ctx)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(a.tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	scratch, err := os.MkdirTemp(a.tempDir, "video_*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	release := holdScratch(scratch)
	defer func() {
		os.RemoveAll(scratch)
		release()
	}()

	set, skipped, err := stageFrames(scratch, req.Frames, req.Caption, req.Label)
	if err != nil {
		return nil, err
	}
	for _, e := range skipped {
		a.log.Warn("skipping frame", map[string]interface{}{"reason": e.Error()})
	}
	if set.Count == 0 {
		return nil, errors.New("no readable frames")
	}

	if err := os.MkdirAll(filepath.Dir(req.Output), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	a.log.Info("encoding video", map[string]interface{}{
		"encoder": enc.Name(),
		"frames":  set.Count,
		"fps":     req.FPS,
		"size":    fmt.Sprintf("%dx%d", set.Width, set.Height),
		"output":  req.Output,
	})
	start := time.Now()
	os.Chtimes(scratch, start, start)
	err = enc.Encode(ctx, set, req.FPS, req.Output)
	metrics.ObserveVideoEncode(enc.Name(), err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%s encode failed: %w", enc.Name(), err)
	}

	info, err := os.Stat(req.Output)
	if err != nil {
		return nil, fmt.Errorf("encoder reported success but output is missing: %w", err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("encoder produced an empty file %s", req.Output)
	}

	return &Result{
		Output:   req.Output,
		Encoder:  enc.Name(),
		Frames:   set.Count,
		Skipped:  len(skipped),
		FPS:      req.FPS,
		Duration: ExpectedDuration(set.Count, req.FPS),
		Bytes:    info.Size(),
	}, nil
}
