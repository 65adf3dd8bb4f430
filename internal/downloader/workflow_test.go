package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"solarimager/internal/imagery"
	"solarimager/internal/models"
	"solarimager/internal/storage"
)

// fakeSource serves generated JPEGs and counts requests per code.
type fakeSource struct {
	mu       sync.Mutex
	calls    []string
	combined bool
	fail     map[string]error // key: date/code
	payload  []byte
}

func newFakeSource(t *testing.T) *fakeSource {
	img := image.NewRGBA(image.Rect(0, 0, 48, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 48; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 5), uint8(y * 5), uint8(x ^ y), 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}
	return &fakeSource{payload: buf.Bytes(), fail: map[string]error{}, combined: true}
}

func (f *fakeSource) Name() string           { return "fake" }
func (f *fakeSource) SupportsCombined() bool { return f.combined }

func (f *fakeSource) Fetch(ctx context.Context, date time.Time, code string, resolution int) (*imagery.Image, error) {
	key := date.Format(models.DateLayout) + "/" + code
	f.mu.Lock()
	f.calls = append(f.calls, key)
	err := f.fail[key]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &imagery.Image{Data: f.payload, Captured: date.Add(12 * time.Hour), URL: "fake://" + key}, nil
}

func (f *fakeSource) requests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newOrganizer(t *testing.T) *storage.Organizer {
	t.Helper()
	org, err := storage.NewOrganizer(filepath.Join(t.TempDir(), "data"), 200)
	if err != nil {
		t.Fatalf("NewOrganizer failed: %v", err)
	}
	return org
}

func day(s string) time.Time {
	d, err := models.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestRunDownloadsRange(t *testing.T) {
	src := newFakeSource(t)
	org := newOrganizer(t)
	var progress []string
	w := New(src, org, Options{Progress: func(done, total int, msg string) {
		progress = append(progress, fmt.Sprintf("%d/%d", done, total))
	}})

	s, err := w.Run(context.Background(), Request{Start: day("2024-01-01"), End: day("2024-01-03"), Filter: "0171", Resolution: 1024})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if s.Requested != 3 || s.Downloaded != 3 || s.Skipped != 0 || s.Failed != 0 {
		t.Errorf("Unexpected summary %+v", s)
	}
	if s.Bytes != int64(3*len(src.payload)) {
		t.Errorf("Expected %d bytes, got %d", 3*len(src.payload), s.Bytes)
	}
	if len(progress) != 3 || progress[2] != "3/3" {
		t.Errorf("Unexpected progress %v", progress)
	}
	dates, _ := org.ListDates("0171")
	if len(dates) != 3 {
		t.Errorf("Expected 3 stored dates, got %v", dates)
	}
}

func TestRerunMakesNoRequests(t *testing.T) {
	src := newFakeSource(t)
	org := newOrganizer(t)
	w := New(src, org, Options{RateLimitDelay: time.Hour})
	req := Request{Start: day("2024-02-01"), End: day("2024-02-01"), Filter: "0304", Resolution: 1024}

	if _, err := w.Run(context.Background(), req); err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	before := src.requests()

	// One hour of rate-limit delay would hang the test if skips waited.
	s, err := w.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if src.requests() != before {
		t.Errorf("Expected zero requests on re-run, got %d", src.requests()-before)
	}
	if s.Skipped != 1 || s.Downloaded != 0 {
		t.Errorf("Expected one skip, got %+v", s)
	}
}

func TestRunReplacesCorruptedFiles(t *testing.T) {
	src := newFakeSource(t)
	org := newOrganizer(t)
	d := day("2024-03-01")

	bad := org.Path("0193", "0193", d, "jpg")
	os.MkdirAll(filepath.Dir(bad), 0755)
	os.WriteFile(bad, []byte("tiny"), 0644)

	w := New(src, org, Options{})
	s, err := w.Run(context.Background(), Request{Start: d, End: d, Filter: "0193", Resolution: 1024})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if s.Deleted != 1 || s.Downloaded != 1 {
		t.Errorf("Expected corrupted file deleted and re-fetched, got %+v", s)
	}
	info, err := os.Stat(bad)
	if err != nil || info.Size() != int64(len(src.payload)) {
		t.Errorf("Expected fresh file at %s, got %v, %v", bad, info, err)
	}
}

func TestCompositeSeparateIsUnionOfConstituents(t *testing.T) {
	ctx := context.Background()
	req := func(filter string) Request {
		return Request{Start: day("2024-04-01"), End: day("2024-04-02"), Filter: filter, Resolution: 1024}
	}

	compOrg := newOrganizer(t)
	compSrc := newFakeSource(t)
	if _, err := New(compSrc, compOrg, Options{}).Run(ctx, req("304211171")); err != nil {
		t.Fatalf("Composite run failed: %v", err)
	}

	bandSrc := newFakeSource(t)
	var union []string
	for _, band := range []string{"0304", "0211", "0171"} {
		org := newOrganizer(t)
		if _, err := New(bandSrc, org, Options{}).Run(ctx, req(band)); err != nil {
			t.Fatalf("Band run %s failed: %v", band, err)
		}
		images, _ := org.ListImages(band, time.Time{}, time.Time{})
		for _, a := range images {
			union = append(union, a.Date.Format(models.DateLayout)+"_"+a.Constituent)
		}
	}

	images, _ := compOrg.ListImages("304211171", time.Time{}, time.Time{})
	var got []string
	for _, a := range images {
		got = append(got, a.Date.Format(models.DateLayout)+"_"+a.Constituent)
	}
	sort.Strings(union)
	sort.Strings(got)
	if fmt.Sprint(got) != fmt.Sprint(union) {
		t.Errorf("Composite assets %v differ from constituent union %v", got, union)
	}
	if len(got) != 6 {
		t.Errorf("Expected 6 assets, got %d", len(got))
	}
}

func TestCompositeCombined(t *testing.T) {
	src := newFakeSource(t)
	org := newOrganizer(t)
	w := New(src, org, Options{CompositeMode: CompositeCombined})

	s, err := w.Run(context.Background(), Request{Start: day("2024-04-01"), End: day("2024-04-01"), Filter: "211193171", Resolution: 2048})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if s.Requested != 1 || src.calls[0] != "2024-04-01/211193171" {
		t.Errorf("Expected one combined fetch, got %+v calls=%v", s, src.calls)
	}

	// sources without combined support fall back to separate fetches
	src2 := newFakeSource(t)
	src2.combined = false
	s, _ = New(src2, newOrganizer(t), Options{CompositeMode: CompositeCombined}).Run(context.Background(),
		Request{Start: day("2024-04-01"), End: day("2024-04-01"), Filter: "211193171", Resolution: 2048})
	if s.Requested != 3 {
		t.Errorf("Expected fallback to three fetches, got %d", s.Requested)
	}
}

func TestRunContinuesAfterFailures(t *testing.T) {
	src := newFakeSource(t)
	src.fail["2024-05-02/0171"] = fmt.Errorf("download: %w", imagery.ErrNotFound)
	src.fail["2024-05-03/0171"] = errors.New("connection reset")
	org := newOrganizer(t)

	s, err := New(src, org, Options{}).Run(context.Background(),
		Request{Start: day("2024-05-01"), End: day("2024-05-04"), Filter: "0171", Resolution: 1024})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if s.Downloaded != 2 || s.Failed != 2 || len(s.Errors) != 2 {
		t.Errorf("Unexpected summary %+v", s)
	}
	if src.requests() != 4 {
		t.Errorf("Expected every date attempted, got %d requests", src.requests())
	}
}

func TestRunRejectsPlaceholder(t *testing.T) {
	src := newFakeSource(t)
	src.payload = bytes.Repeat([]byte("<html>rate limited</html>"), 20)

	s, err := New(src, newOrganizer(t), Options{}).Run(context.Background(),
		Request{Start: day("2024-05-01"), End: day("2024-05-01"), Filter: "0171", Resolution: 1024})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if s.Failed != 1 || s.Downloaded != 0 {
		t.Errorf("Expected placeholder rejected, got %+v", s)
	}
}

func TestRunInvalidRequests(t *testing.T) {
	w := New(newFakeSource(t), newOrganizer(t), Options{})
	tests := []struct {
		name string
		req  Request
	}{
		{"unknown filter", Request{Start: day("2024-01-01"), End: day("2024-01-01"), Filter: "0999", Resolution: 1024}},
		{"bad resolution", Request{Start: day("2024-01-01"), End: day("2024-01-01"), Filter: "0171", Resolution: 512}},
		{"reversed range", Request{Start: day("2024-01-05"), End: day("2024-01-01"), Filter: "0171", Resolution: 1024}},
		{"missing dates", Request{Filter: "0171", Resolution: 1024}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := w.Validate(tt.req); err == nil {
				t.Error("Expected Validate error")
			}
			if _, err := w.Run(context.Background(), tt.req); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestCancelStopsBetweenAssets(t *testing.T) {
	src := newFakeSource(t)
	var w *Workflow
	w = New(src, newOrganizer(t), Options{Progress: func(done, total int, msg string) {
		if done == 2 {
			w.Cancel()
		}
	}})

	s, err := w.Run(context.Background(), Request{Start: day("2024-06-01"), End: day("2024-06-10"), Filter: "0171", Resolution: 1024})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !s.Cancelled || len(s.Results) != 2 || src.requests() != 2 {
		t.Errorf("Expected cancel after two assets, got cancelled=%v results=%d requests=%d", s.Cancelled, len(s.Results), src.requests())
	}
}

func TestContextCancelDuringDelay(t *testing.T) {
	src := newFakeSource(t)
	ctx, cancel := context.WithCancel(context.Background())
	w := New(src, newOrganizer(t), Options{RateLimitDelay: time.Hour, Progress: func(done, total int, msg string) {
		cancel()
	}})

	s, err := w.Run(ctx, Request{Start: day("2024-06-01"), End: day("2024-06-03"), Filter: "0171", Resolution: 1024})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !s.Cancelled || src.requests() != 1 {
		t.Errorf("Expected cancellation after first fetch, got %+v", s)
	}
}

type recordingMirror struct {
	*storage.LocalStorageClient
	fail bool
}

func (m *recordingMirror) StoreFile(ctx context.Context, path string, data []byte) error {
	if m.fail {
		return errors.New("bucket unavailable")
	}
	return m.LocalStorageClient.StoreFile(ctx, path, data)
}

func TestMirrorUploads(t *testing.T) {
	local, err := storage.NewLocalStorageClient(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorageClient failed: %v", err)
	}
	mirror := &recordingMirror{LocalStorageClient: local}
	req := Request{Start: day("2024-07-01"), End: day("2024-07-01"), Filter: "0171", Resolution: 1024}

	if _, err := New(newFakeSource(t), newOrganizer(t), Options{Mirror: mirror}).Run(context.Background(), req); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if ok, _ := local.FileExists(context.Background(), "0171/2024-07-01.jpg"); !ok {
		t.Error("Expected mirrored copy")
	}

	mirror.fail = true
	s, err := New(newFakeSource(t), newOrganizer(t), Options{Mirror: mirror}).Run(context.Background(), req)
	if err != nil || s.Downloaded != 1 {
		t.Errorf("Mirror failure must not fail the date, got %+v, %v", s, err)
	}
}

func TestMonitorRunsUntilCancelled(t *testing.T) {
	src := newFakeSource(t)
	ctx, cancel := context.WithCancel(context.Background())
	now := func() time.Time { return time.Date(2024, 8, 1, 15, 0, 0, 0, time.UTC) }
	w := New(src, newOrganizer(t), Options{Now: now})

	cycles := 0
	err := w.Monitor(ctx, "0171", 1024, 10*time.Millisecond, func(s *Summary) {
		cycles++
		if cycles == 3 {
			cancel()
		}
	})
	if err != nil {
		t.Fatalf("Monitor failed: %v", err)
	}
	if cycles < 3 {
		t.Errorf("Expected at least 3 cycles, got %d", cycles)
	}
	if src.requests() != 1 {
		t.Errorf("Expected today's image fetched once, got %d requests", src.requests())
	}

	if err := w.Monitor(context.Background(), "bogus", 1024, time.Millisecond, nil); err == nil {
		t.Error("Expected invalid filter to stop the monitor")
	}
}
