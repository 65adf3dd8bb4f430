package storage

import (
	"path/filepath"
	"strings"
)

var contentTypes = map[string]string{
	".json":    "application/json",
	".txt":     "text/plain",
	".html":    "text/html",
	".css":     "text/css",
	".md":      "text/markdown",
	".csv":     "text/csv",
	".png":     "image/png",
	".jpg":     "image/jpeg",
	".jpeg":    "image/jpeg",
	".gif":     "image/gif",
	".mp4":     "video/mp4",
	".parquet": "application/vnd.apache.parquet",
	".gz":      "application/gzip",
	".zst":     "application/zstd",
}

// GetContentType determines the MIME content type based on file extension
func GetContentType(filename string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}
