package charts

import (
	"bytes"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"solarimager/internal/models"
	"solarimager/internal/solarwind"
)

func sampleDataset() *solarwind.Dataset {
	end := time.Date(2024, 5, 10, 18, 0, 0, 0, time.UTC)
	return solarwind.Synthetic(end, solarwind.Range24h, "feed unavailable")
}

func realDataset() *solarwind.Dataset {
	ds := sampleDataset()
	ds.Synthetic = false
	ds.Reason = ""
	for i := range ds.Samples {
		ds.Samples[i].Synthetic = false
	}
	return ds
}

type stubBackend struct {
	name     string
	supports map[models.AnalysisType]bool
}

func (s stubBackend) Name() string                        { return s.name }
func (s stubBackend) Supports(t models.AnalysisType) bool { return s.supports[t] }
func (s stubBackend) Render(*solarwind.Dataset, models.AnalysisType, string) (string, error) {
	return s.name, nil
}

func TestSelect(t *testing.T) {
	all := map[models.AnalysisType]bool{}
	for _, a := range models.AnalysisTypes {
		all[a] = true
	}
	noCorr := map[models.AnalysisType]bool{models.AnalysisTimeSeries: true}
	png := stubBackend{"png", noCorr}
	html := stubBackend{"html", all}

	tests := []struct {
		name      string
		backends  []Backend
		preferred string
		analysis  models.AnalysisType
		want      string
		wantErr   bool
	}{
		{"preferred supports type", []Backend{png, html}, "png", models.AnalysisTimeSeries, "png", false},
		{"preferred lacks type", []Backend{png, html}, "png", models.AnalysisCorrelation, "html", false},
		{"preferred not enabled", []Backend{png}, "html", models.AnalysisTimeSeries, "png", false},
		{"no preference takes first", []Backend{html, png}, "", models.AnalysisTimeSeries, "html", false},
		{"nobody supports type", []Backend{png}, "png", models.AnalysisCorrelation, "", true},
		{"no backends", nil, "png", models.AnalysisTimeSeries, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Select(tt.backends, tt.preferred, tt.analysis)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupported) {
					t.Fatalf("Expected ErrUnsupported, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Select failed: %v", err)
			}
			if b.Name() != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, b.Name())
			}
		})
	}
}

func TestNewBackends(t *testing.T) {
	backends, err := NewBackends([]string{"HTML", " png", "html", ""})
	if err != nil {
		t.Fatalf("NewBackends failed: %v", err)
	}
	if len(backends) != 2 || backends[0].Name() != "html" || backends[1].Name() != "png" {
		t.Errorf("Unexpected backends: %v", backends)
	}
	if _, err := NewBackends([]string{"svg"}); err == nil {
		t.Error("Expected error for unknown backend")
	}
	if _, err := NewBackends(nil); err == nil {
		t.Error("Expected error for empty backend list")
	}
}

func TestTitleMarksSampleData(t *testing.T) {
	if got := title(sampleDataset(), models.AnalysisRegression); !strings.HasPrefix(got, "SAMPLE DATA") {
		t.Errorf("Synthetic title should be marked, got %q", got)
	}
	if got := title(realDataset(), models.AnalysisRegression); strings.Contains(got, "SAMPLE") {
		t.Errorf("Real title should not be marked, got %q", got)
	}
}

func TestPNGBackendSupports(t *testing.T) {
	b := NewPNGBackend()
	for _, a := range models.AnalysisTypes {
		want := a != models.AnalysisCorrelation
		if got := b.Supports(a); got != want {
			t.Errorf("Supports(%s) = %v, want %v", a, got, want)
		}
	}
	_, err := b.Render(sampleDataset(), models.AnalysisCorrelation, t.TempDir())
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported, got %v", err)
	}
}

func TestPNGBackendRender(t *testing.T) {
	b := NewPNGBackend()
	dir := t.TempDir()
	for _, a := range []models.AnalysisType{
		models.AnalysisTimeSeries,
		models.AnalysisDistribution,
		models.AnalysisStatistical,
		models.AnalysisRegression,
	} {
		t.Run(string(a), func(t *testing.T) {
			path, err := b.Render(sampleDataset(), a, dir)
			if err != nil {
				t.Fatalf("Render failed: %v", err)
			}
			if filepath.Ext(path) != ".png" || filepath.Dir(path) != dir {
				t.Errorf("Unexpected path %s", path)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("Failed to read chart: %v", err)
			}
			img, err := png.Decode(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("Chart is not a PNG: %v", err)
			}
			if img.Bounds().Dx() != panelWidth || img.Bounds().Dy() < 2*panelHeight {
				t.Errorf("Unexpected chart size %v", img.Bounds())
			}
		})
	}
}

func TestHTMLBackendRender(t *testing.T) {
	b := NewHTMLBackend()
	dir := t.TempDir()
	for _, a := range models.AnalysisTypes {
		t.Run(string(a), func(t *testing.T) {
			path, err := b.Render(sampleDataset(), a, dir)
			if err != nil {
				t.Fatalf("Render failed: %v", err)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("Failed to read chart: %v", err)
			}
			html := string(data)
			if !strings.Contains(html, "echarts") {
				t.Error("Expected an ECharts page")
			}
			if !strings.Contains(html, "SAMPLE DATA") {
				t.Error("Expected synthetic data to be labeled")
			}
		})
	}

	path, err := b.Render(realDataset(), models.AnalysisCorrelation, dir)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "heatmap") {
		t.Error("Expected correlation to render as a heatmap")
	}
	if strings.Contains(string(data), "SAMPLE DATA") {
		t.Error("Real data should not be labeled as sample")
	}
}

func TestRenderRejectsEmptyDataset(t *testing.T) {
	empty := &solarwind.Dataset{Range: solarwind.Range6h}
	for _, b := range []Backend{NewPNGBackend(), NewHTMLBackend()} {
		if _, err := b.Render(empty, models.AnalysisTimeSeries, t.TempDir()); err == nil {
			t.Errorf("%s: expected error for empty dataset", b.Name())
		}
	}
}

func TestRenderFallsBack(t *testing.T) {
	backends, err := NewBackends([]string{"png", "html"})
	if err != nil {
		t.Fatal(err)
	}
	path, b, err := Render(backends, "png", sampleDataset(), models.AnalysisCorrelation, t.TempDir())
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if b.Name() != "html" || filepath.Ext(path) != ".html" {
		t.Errorf("Expected html fallback, got %s at %s", b.Name(), path)
	}
}

type failingBackend struct{ stubBackend }

func (f failingBackend) Render(*solarwind.Dataset, models.AnalysisType, string) (string, error) {
	return "", errors.New("renderer crashed")
}

func TestRenderTriesNextBackendOnFailure(t *testing.T) {
	all := map[models.AnalysisType]bool{models.AnalysisTimeSeries: true}
	broken := failingBackend{stubBackend{"html", all}}
	working := stubBackend{"png", all}

	path, b, err := Render([]Backend{broken, working}, "html", sampleDataset(), models.AnalysisTimeSeries, t.TempDir())
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if b.Name() != "png" || path != "png" {
		t.Errorf("Expected png fallback, got %s (%s)", b.Name(), path)
	}

	if _, _, err := Render([]Backend{broken}, "html", sampleDataset(), models.AnalysisTimeSeries, t.TempDir()); err == nil {
		t.Error("Expected error when every backend fails")
	}
}
