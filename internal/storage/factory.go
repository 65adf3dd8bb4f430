package storage

import (
	"context"
	"fmt"
)

// DeploymentMode represents the deployment environment
type DeploymentMode string

const (
	DeploymentLocal DeploymentMode = "local"
	DeploymentGCS   DeploymentMode = "gcs"
)

// MirrorOptions configure the off-site copy of downloaded assets.
type MirrorOptions struct {
	Mode      DeploymentMode
	LocalDir  string // target directory for local mode; empty disables mirroring
	GCSBucket string
	GCSPrefix string
}

// NewStorageClient creates a storage client based on deployment mode. It
// returns nil, nil when local mode has no target directory.
func NewStorageClient(ctx context.Context, opts MirrorOptions) (StorageClient, error) {
	switch opts.Mode {
	case DeploymentLocal, "":
		if opts.LocalDir == "" {
			return nil, nil
		}
		client, err := NewLocalStorageClient(opts.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local storage client: %w", err)
		}
		return client, nil

	case DeploymentGCS:
		client, err := NewGCSClient(ctx, opts.GCSBucket, opts.GCSPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize GCS client: %w", err)
		}
		return client, nil

	default:
		return nil, fmt.Errorf("unsupported deployment mode: %s", opts.Mode)
	}
}
