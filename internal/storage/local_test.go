package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestClient(t *testing.T) *LocalStorageClient {
	t.Helper()
	client, err := NewLocalStorageClient(filepath.Join(t.TempDir(), "mirror"))
	if err != nil {
		t.Fatalf("Failed to create LocalStorageClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNewLocalStorageClient(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "mirror")
	client, err := NewLocalStorageClient(dir)
	if err != nil {
		t.Fatalf("Failed to create LocalStorageClient: %v", err)
	}
	if client.BaseDir() != dir {
		t.Errorf("Expected base dir %s, got %s", dir, client.BaseDir())
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("Base directory was not created: %v", err)
	}

	if _, err := NewLocalStorageClient(""); err == nil {
		t.Error("Expected error for empty base directory")
	}
}

func TestLocalStorageClient_StoreAndGet(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	data := []byte("solar image bytes")
	if err := client.StoreFile(ctx, "0171/2024-01-15.jpg", data); err != nil {
		t.Fatalf("StoreFile failed: %v", err)
	}

	got, err := client.GetFile(ctx, "0171/2024-01-15.jpg")
	if err != nil {
		t.Fatalf("GetFile failed: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("Expected %q, got %q", data, got)
	}

	// no temp files left behind
	entries, _ := os.ReadDir(filepath.Join(client.BaseDir(), "0171"))
	if len(entries) != 1 {
		t.Errorf("Expected exactly one file in directory, got %d", len(entries))
	}
}

func TestLocalStorageClient_GetMissing(t *testing.T) {
	client := newTestClient(t)
	_, err := client.GetFile(context.Background(), "0171/missing.jpg")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestLocalStorageClient_Open(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	if err := client.StoreFile(ctx, "video/out.mp4", []byte("mp4")); err != nil {
		t.Fatalf("StoreFile failed: %v", err)
	}

	f, info, err := client.Open("video/out.mp4")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	f.Close()
	if info.Size() != 3 {
		t.Errorf("Expected size 3, got %d", info.Size())
	}

	for _, p := range []string{"video", "video/missing.mp4"} {
		if _, _, err := client.Open(p); !errors.Is(err, ErrNotFound) {
			t.Errorf("Open(%q): expected ErrNotFound, got %v", p, err)
		}
	}
	if _, _, err := client.Open("../etc/passwd"); err == nil {
		t.Error("Expected traversal to be rejected")
	}
}

func TestLocalStorageClient_RejectsTraversal(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	paths := []string{"../escape.jpg", "0171/../../escape.jpg", `0171\..\..\escape.jpg`}
	for _, p := range paths {
		if err := client.StoreFile(ctx, p, []byte("x")); err == nil {
			t.Errorf("Expected StoreFile(%q) to fail", p)
		}
		if _, err := client.GetFile(ctx, p); err == nil {
			t.Errorf("Expected GetFile(%q) to fail", p)
		}
	}
}

func TestLocalStorageClient_AllowsDotsInNames(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	for _, p := range []string{"a..b.jpg", "0171/2024-01-01..v2.jpg", "./0171/x.jpg"} {
		if err := client.StoreFile(ctx, p, []byte("x")); err != nil {
			t.Errorf("StoreFile(%q) failed: %v", p, err)
			continue
		}
		if data, err := client.GetFile(ctx, p); err != nil || string(data) != "x" {
			t.Errorf("GetFile(%q) = %q, %v", p, data, err)
		}
	}
}

func TestLocalStorageClient_ListDir(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	files := []string{"0171/2024-01-02.jpg", "0171/2024-01-01.jpg", "0171/sub/deep.jpg", "0304/2024-01-01.jpg"}
	for _, f := range files {
		if err := client.StoreFile(ctx, f, []byte("data")); err != nil {
			t.Fatalf("StoreFile(%s) failed: %v", f, err)
		}
	}

	tests := []struct {
		name      string
		prefix    string
		recursive bool
		want      []string
	}{
		{"flat", "0171", false, []string{"0171/2024-01-01.jpg", "0171/2024-01-02.jpg"}},
		{"recursive", "0171", true, []string{"0171/2024-01-01.jpg", "0171/2024-01-02.jpg", "0171/sub/deep.jpg"}},
		{"missing prefix", "1600", false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := client.ListDir(ctx, tt.prefix, tt.recursive)
			if err != nil {
				t.Fatalf("ListDir failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Entry %d: expected %s, got %s", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestLocalStorageClient_ExistsAndDelete(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	if err := client.StoreFile(ctx, "0211/2024-01-01.jpg", []byte("data")); err != nil {
		t.Fatalf("StoreFile failed: %v", err)
	}
	exists, err := client.FileExists(ctx, "0211/2024-01-01.jpg")
	if err != nil || !exists {
		t.Fatalf("Expected file to exist, got %v, %v", exists, err)
	}
	if exists, _ := client.FileExists(ctx, "0211"); exists {
		t.Error("Directories must not be reported as files")
	}

	if err := client.Delete(ctx, "0211/2024-01-01.jpg"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if exists, _ := client.FileExists(ctx, "0211/2024-01-01.jpg"); exists {
		t.Error("Expected file to be deleted")
	}
	if err := client.Delete(ctx, "0211/2024-01-01.jpg"); err != nil {
		t.Errorf("Deleting a missing file should succeed, got %v", err)
	}
}

func TestNewStorageClient(t *testing.T) {
	ctx := context.Background()

	client, err := NewStorageClient(ctx, MirrorOptions{Mode: DeploymentLocal})
	if err != nil || client != nil {
		t.Errorf("Expected no mirror without a directory, got %v, %v", client, err)
	}

	client, err = NewStorageClient(ctx, MirrorOptions{Mode: DeploymentLocal, LocalDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewStorageClient failed: %v", err)
	}
	if _, ok := client.(*LocalStorageClient); !ok {
		t.Errorf("Expected *LocalStorageClient, got %T", client)
	}

	if _, err := NewStorageClient(ctx, MirrorOptions{Mode: DeploymentGCS}); err == nil {
		t.Error("Expected error for gcs mode without bucket")
	}
	if _, err := NewStorageClient(ctx, MirrorOptions{Mode: "ftp"}); err == nil {
		t.Error("Expected error for unknown mode")
	}
}

func TestGetContentType(t *testing.T) {
	tests := map[string]string{
		"0171/2024-01-01.jpg":   "image/jpeg",
		"charts/speed.png":      "image/png",
		"video/out.mp4":         "video/mp4",
		"export/wind.parquet":   "application/vnd.apache.parquet",
		"export/wind.csv":       "text/csv",
		"unknown.bin":           "application/octet-stream",
		"charts/dashboard.html": "text/html",
	}
	for path, want := range tests {
		if got := GetContentType(path); got != want {
			t.Errorf("GetContentType(%s) = %s, want %s", path, got, want)
		}
	}
}
