package video

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// activeScratch holds the scratch directories of encodes in progress.
var activeScratch sync.Map

func scratchKey(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return filepath.Clean(dir)
}

// holdScratch keeps CleanupTemp away from dir until the returned release
// func is called.
func holdScratch(dir string) (release func()) {
	key := scratchKey(dir)
	activeScratch.Store(key, struct{}{})
	return func() { activeScratch.Delete(key) }
}

// OutputName names a video after its date range and filter.
func OutputName(start, end time.Time, filter string) string {
	s, e := start.UTC().Format("20060102"), end.UTC().Format("20060102")
	if s == e {
		return fmt.Sprintf("nasa_solar_%s_%s.mp4", s, filter)
	}
	return fmt.Sprintf("nasa_solar_%s_to_%s_%s.mp4", s, e, filter)
}

// ExpectedDuration is the playback length of n frames at fps.
func ExpectedDuration(n int, fps float64) time.Duration {
	if fps <= 0 || n <= 0 {
		return 0
	}
	return time.Duration(float64(n) / fps * float64(time.Second))
}

// CleanupTemp removes entries of dir older than maxAge and returns how
// many were removed. Scratch directories of running encodes are skipped
// whatever their age.
func CleanupTemp(dir string, maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	removed := 0
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < maxAge {
			continue
		}
		if _, busy := activeScratch.Load(scratchKey(filepath.Join(dir, e.Name()))); busy {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// InstallGuidance explains how to install ffmpeg on the current OS.
func InstallGuidance() string {
	return installGuidance(runtime.GOOS)
}

func installGuidance(goos string) string {
	switch goos {
	case "darwin":
		return "ffmpeg not found. Install it with Homebrew:\n  brew install ffmpeg"
	case "windows":
		return "ffmpeg not found. Install it with one of:\n  winget install Gyan.FFmpeg\n  choco install ffmpeg\nor download a build from https://ffmpeg.org/download.html and add its bin folder to PATH."
	default:
		return "ffmpeg not found. Install it with your package manager, for example:\n  sudo apt install ffmpeg      (Debian/Ubuntu)\n  sudo dnf install ffmpeg      (Fedora)\n  sudo pacman -S ffmpeg        (Arch)"
	}
}
