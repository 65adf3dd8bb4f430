package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an object or file does not exist.
var ErrNotFound = errors.New("storage: not found")

// StorageClient is the minimal object store used for mirroring downloaded
// assets and finished videos, and for serving files to the web front end.
// Paths are slash-separated and relative to the client's root.
type StorageClient interface {
	// Close releases the client
	Close() error

	// StoreFile writes data at path, creating parents as needed
	StoreFile(ctx context.Context, path string, data []byte) error

	// GetFile reads the object at path
	GetFile(ctx context.Context, path string) ([]byte, error)

	// ListDir lists object paths under prefix
	ListDir(ctx context.Context, prefix string, recursive bool) ([]string, error)

	// FileExists reports whether path exists
	FileExists(ctx context.Context, path string) (bool, error)

	// Delete removes path; deleting a missing path is not an error
	Delete(ctx context.Context, path string) error
}
