package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStorageClient handles local file system storage operations
type LocalStorageClient struct {
	baseDir string
}

// NewLocalStorageClient creates a new local storage client
func NewLocalStorageClient(baseDir string) (*LocalStorageClient, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory %s: %w", baseDir, err)
	}
	return &LocalStorageClient{baseDir: baseDir}, nil
}

// Close is a no-op for local storage
func (l *LocalStorageClient) Close() error {
	return nil
}

// BaseDir returns the root directory.
func (l *LocalStorageClient) BaseDir() string {
	return l.baseDir
}

// resolve maps a relative object path into baseDir, refusing escapes.
func (l *LocalStorageClient) resolve(p string) (string, error) {
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return "", fmt.Errorf("invalid path %q", p)
		}
	}
	clean := filepath.Clean("/" + filepath.FromSlash(p))
	return filepath.Join(l.baseDir, clean), nil
}

// StoreFile writes via a temp file and rename so readers never see a
// partial file.
func (l *LocalStorageClient) StoreFile(ctx context.Context, path string, data []byte) error {
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	return writeFileAtomic(full, data)
}

// GetFile reads a file relative to the base directory
func (l *LocalStorageClient) GetFile(ctx context.Context, path string) ([]byte, error) {
	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", full, err)
	}
	return data, nil
}

// Open opens a regular file relative to the base directory for streaming.
func (l *LocalStorageClient) Open(path string) (*os.File, os.FileInfo, error) {
	full, err := l.resolve(path)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file %s: %w", full, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to stat file %s: %w", full, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, fmt.Errorf("%s is a directory: %w", path, ErrNotFound)
	}
	return f, info, nil
}

// ListDir lists files (not directories) under prefix, sorted.
func (l *LocalStorageClient) ListDir(ctx context.Context, prefix string, recursive bool) ([]string, error) {
	root, err := l.resolve(prefix)
	if err != nil {
		return nil, err
	}

	var paths []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if p != root && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		rel, _ := filepath.Rel(l.baseDir, p)
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", root, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// FileExists checks whether a regular file exists at path
func (l *LocalStorageClient) FileExists(ctx context.Context, path string) (bool, error) {
	full, err := l.resolve(path)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// Delete removes a file
func (l *LocalStorageClient) Delete(ctx context.Context, path string) error {
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", full, err)
	}
	return nil
}

// writeFileAtomic writes data to a sibling temp file, checks the written
// size and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	n, err := tmp.Write(data)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if n != len(data) {
		return fmt.Errorf("short write for %s: %d of %d bytes", path, n, len(data))
	}
	info, err := os.Stat(tmpName)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", tmpName, err)
	}
	if info.Size() != int64(len(data)) {
		return fmt.Errorf("size mismatch for %s: wrote %d, expected %d", path, info.Size(), len(data))
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
