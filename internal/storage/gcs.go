package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"solarimager/internal/logger"
)

// GCSClient handles Google Cloud Storage operations
type GCSClient struct {
	client *storage.Client
	bucket string
	prefix string
	log    *logger.Logger
}

// NewGCSClient creates a client for bucket. Objects are written under
// prefix when it is non-empty.
func NewGCSClient(ctx context.Context, bucketName, prefix string) (*GCSClient, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSClient{
		client: client,
		bucket: bucketName,
		prefix: strings.Trim(prefix, "/"),
		log:    logger.WithComponent("gcs"),
	}, nil
}

// Close closes the GCS client
func (g *GCSClient) Close() error {
	return g.client.Close()
}

func (g *GCSClient) objectName(p string) string {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if g.prefix == "" {
		return p
	}
	return g.prefix + "/" + p
}

// StoreFile uploads data with a content type derived from the extension.
func (g *GCSClient) StoreFile(ctx context.Context, filePath string, data []byte) error {
	name := g.objectName(filePath)
	g.log.Debug("storing object", map[string]interface{}{"bucket": g.bucket, "object": name, "bytes": len(data)})

	writer := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = GetContentType(filePath)
	writer.CacheControl = "public, max-age=86400"
	writer.Metadata = map[string]string{
		"uploaded-at": time.Now().UTC().Format(time.RFC3339),
	}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write gs://%s/%s: %w", g.bucket, name, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize gs://%s/%s: %w", g.bucket, name, err)
	}
	return nil
}

// GetFile downloads an object
func (g *GCSClient) GetFile(ctx context.Context, filePath string) ([]byte, error) {
	name := g.objectName(filePath)
	reader, err := g.client.Bucket(g.bucket).Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%s: %w", filePath, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", g.bucket, name, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", g.bucket, name, err)
	}
	return data, nil
}

// ListDir lists object names under prefix relative to the client prefix.
func (g *GCSClient) ListDir(ctx context.Context, dirPath string, recursive bool) ([]string, error) {
	query := &storage.Query{Prefix: g.objectName(dirPath)}
	if query.Prefix != "" && !strings.HasSuffix(query.Prefix, "/") {
		query.Prefix += "/"
	}
	if !recursive {
		query.Delimiter = "/"
	}

	var names []string
	it := g.client.Bucket(g.bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		if attrs.Name == "" {
			continue // synthetic directory entry when a delimiter is set
		}
		name := attrs.Name
		if g.prefix != "" {
			name = strings.TrimPrefix(name, g.prefix+"/")
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// FileExists checks object attributes
func (g *GCSClient) FileExists(ctx context.Context, filePath string) (bool, error) {
	_, err := g.client.Bucket(g.bucket).Object(g.objectName(filePath)).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat object: %w", err)
	}
	return true, nil
}

// Delete removes an object; a missing object is not an error
func (g *GCSClient) Delete(ctx context.Context, filePath string) error {
	err := g.client.Bucket(g.bucket).Object(g.objectName(filePath)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}
