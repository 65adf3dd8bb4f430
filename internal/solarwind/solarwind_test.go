package solarwind

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"solarimager/internal/imagery"
	"solarimager/internal/models"
)

var feedEnd = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

// magFeed and plasmaFeed produce n one-minute rows ending at feedEnd.
// Plasma columns are deliberately reordered to prove lookup by header.
func magFeed(n int, bz func(i int) string) string {
	var b strings.Builder
	b.WriteString(`[["time_tag","bx_gsm","by_gsm","bz_gsm","lon_gsm","lat_gsm","bt"]`)
	for i := 0; i < n; i++ {
		ts := feedEnd.Add(-time.Duration(n-1-i) * time.Minute).Format(noaaTimeLayout)
		fmt.Fprintf(&b, `,["%s","1.5","-2.0","%s","120.0","-10.0","%d"]`, ts, bz(i), 5+i%3)
	}
	b.WriteString("]")
	return b.String()
}

func plasmaFeed(n int) string {
	var b strings.Builder
	b.WriteString(`[["time_tag","speed","density","temperature"]`)
	for i := 0; i < n; i++ {
		ts := feedEnd.Add(-time.Duration(n-1-i) * time.Minute).Format(noaaTimeLayout)
		temp := fmt.Sprintf(`"%d"`, 90000+i*100)
		if i%2 == 1 {
			temp = "null"
		}
		fmt.Fprintf(&b, `,["%s","%d","%.1f",%s]`, ts, 400+i, 5+float64(i)/10, temp)
	}
	b.WriteString("]")
	return b.String()
}

func newFeedServer(t *testing.T, mag, plasma string, magStatus int) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/mag-1-day.json", func(w http.ResponseWriter, r *http.Request) {
		if magStatus != 0 {
			http.Error(w, "unavailable", magStatus)
			return
		}
		fmt.Fprint(w, mag)
	})
	mux.HandleFunc("/plasma-1-day.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, plasma)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestLoader(url string) *Loader {
	opts := imagery.DefaultClientOptions()
	opts.Retries = 0
	opts.Timeout = 5 * time.Second
	l := NewLoader(NewFetcher(imagery.NewHTTPClient(opts), url))
	l.now = func() time.Time { return feedEnd.Add(time.Minute) }
	return l
}

func TestClassify(t *testing.T) {
	tests := []struct {
		bz   float64
		want models.StormLevel
	}{
		{3, models.StormNormal},
		{-4.99, models.StormNormal},
		{-5, models.StormMinor},
		{-9.99, models.StormMinor},
		{-10, models.StormMajor},
		{-25, models.StormMajor},
	}
	for _, tt := range tests {
		if got := Classify(tt.bz); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.bz, got, tt.want)
		}
	}
}

func TestDeriveTemperature(t *testing.T) {
	if got := DeriveTemperature(400); got != 68000 {
		t.Errorf("Expected 68000 K at 400 km/s, got %v", got)
	}
	if got := DeriveTemperature(-100); got != 5000 {
		t.Errorf("Expected lower clamp, got %v", got)
	}
	if got := DeriveTemperature(5000); got != 300000 {
		t.Errorf("Expected upper clamp, got %v", got)
	}
}

func TestParseRange(t *testing.T) {
	for _, r := range Ranges {
		got, err := ParseRange(string(r))
		if err != nil || got != r {
			t.Errorf("ParseRange(%s) = %s, %v", r, got, err)
		}
	}
	if r, _ := ParseRange(""); r != Range24h {
		t.Errorf("Expected empty range to default to 24h, got %s", r)
	}
	if _, err := ParseRange("2w"); err == nil {
		t.Error("Expected error for unsupported range")
	}
	if Range3d.feed() != "3-day" || Range12h.feed() != "1-day" || Range7d.feed() != "7-day" {
		t.Error("Unexpected feed mapping")
	}
}

func TestLoadJoinsFeeds(t *testing.T) {
	bz := func(i int) string {
		switch i {
		case 3:
			return "" // dropped
		case 5:
			return "-12.5"
		case 6:
			return "-6"
		}
		return "2.0"
	}
	srv := newFeedServer(t, magFeed(30, bz), plasmaFeed(30), 0)

	ds := newTestLoader(srv.URL).Load(context.Background(), Range6h)
	if ds.Synthetic {
		t.Fatalf("Expected real data, got synthetic: %s", ds.Reason)
	}
	if len(ds.Samples) != 29 {
		t.Fatalf("Expected 29 joined samples, got %d", len(ds.Samples))
	}
	for i := 1; i < len(ds.Samples); i++ {
		if !ds.Samples[i-1].Time.Before(ds.Samples[i].Time) {
			t.Fatalf("Samples out of order at %d", i)
		}
	}

	first := ds.Samples[0]
	if first.Speed != 400 || first.Temperature != 90000 || first.Bx != 1.5 {
		t.Errorf("Unexpected first sample %+v", first)
	}
	// odd rows have null temperature and fall back to the speed estimate
	if got := ds.Samples[1].Temperature; got != DeriveTemperature(401) {
		t.Errorf("Expected derived temperature, got %v", got)
	}

	counts := StormCounts(ds.Samples)
	if counts[models.StormMajor] != 1 || counts[models.StormMinor] != 1 {
		t.Errorf("Unexpected storm counts %v", counts)
	}
	for _, s := range ds.Samples {
		if s.Synthetic {
			t.Fatal("Real dataset contains synthetic rows")
		}
	}
}

func TestLoadWindowsToRange(t *testing.T) {
	// 8 hours of minute data trimmed to 6h
	srv := newFeedServer(t, magFeed(480, func(int) string { return "1" }), plasmaFeed(480), 0)
	ds := newTestLoader(srv.URL).Load(context.Background(), Range6h)
	if ds.Synthetic {
		t.Fatalf("Expected real data: %s", ds.Reason)
	}
	span := ds.Samples[len(ds.Samples)-1].Time.Sub(ds.Samples[0].Time)
	if span > 6*time.Hour {
		t.Errorf("Expected at most 6h of data, got %v", span)
	}
}

func TestLoadFallsBackToSynthetic(t *testing.T) {
	tests := []struct {
		name   string
		mag    string
		plasma string
		status int
	}{
		{"mag feed down", "", plasmaFeed(30), http.StatusServiceUnavailable},
		{"too few rows", magFeed(5, func(int) string { return "1" }), plasmaFeed(5), 0},
		{"garbage", "not json", plasmaFeed(30), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFeedServer(t, tt.mag, tt.plasma, tt.status)
			ds := newTestLoader(srv.URL).Load(context.Background(), Range24h)
			if !ds.Synthetic || ds.Reason == "" {
				t.Fatalf("Expected flagged synthetic dataset, got synthetic=%v reason=%q", ds.Synthetic, ds.Reason)
			}
			for _, s := range ds.Samples {
				if !s.Synthetic {
					t.Fatal("Synthetic dataset contains a real row")
				}
			}
		})
	}
}

func TestSyntheticIsDeterministic(t *testing.T) {
	a := Synthetic(feedEnd, Range24h, "test")
	b := Synthetic(feedEnd, Range24h, "test")
	if len(a.Samples) != 100 {
		t.Fatalf("Expected 100 points, got %d", len(a.Samples))
	}
	for i := range a.Samples {
		if a.Samples[i] != b.Samples[i] {
			t.Fatalf("Sample %d differs between runs", i)
		}
	}
	if got := a.Samples[1].Time.Sub(a.Samples[0].Time); got != 15*time.Minute {
		t.Errorf("Expected 15 minute spacing, got %v", got)
	}
	if !a.Samples[99].Time.Equal(feedEnd) {
		t.Errorf("Expected series to end at %v, got %v", feedEnd, a.Samples[99].Time)
	}
}

func sampleDataset(xs []float64) *Dataset {
	d := &Dataset{}
	for i, x := range xs {
		d.Samples = append(d.Samples, models.SolarWindSample{
			Time:        feedEnd.Add(time.Duration(i) * time.Minute),
			Bz:          -x,
			Bt:          x,
			Speed:       300 + 50*x,
			Density:     10 - x,
			Temperature: DeriveTemperature(300 + 50*x),
			StormLevel:  Classify(-x),
		})
	}
	return d
}

func TestStatistics(t *testing.T) {
	d := sampleDataset([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	stats := d.Statistics()
	bt := stats[1]
	if bt.Param != "bt" || bt.Count != 8 || bt.Mean != 5 || bt.Min != 2 || bt.Max != 9 {
		t.Errorf("Unexpected bt stats %+v", bt)
	}
	if math.Abs(bt.Std-2.1381) > 1e-3 {
		t.Errorf("Expected sample std 2.138, got %v", bt.Std)
	}
}

func TestCorrelationAndRegression(t *testing.T) {
	d := sampleDataset([]float64{1, 2, 3, 4, 5, 6})
	m := d.Correlation()
	if len(m.Labels) != 5 || m.Labels[0] != "Bz" {
		t.Fatalf("Unexpected labels %v", m.Labels)
	}
	// Bz = -Bt exactly, Speed = 300 + 50*Bt
	if math.Abs(m.Values[0][1]+1) > 1e-9 || math.Abs(m.Values[1][2]-1) > 1e-9 {
		t.Errorf("Unexpected correlations %v", m.Values)
	}

	fits := d.Regression()
	if len(fits) != 3 {
		t.Fatalf("Expected 3 fits, got %d", len(fits))
	}
	speedBt := fits[0]
	if speedBt.X != "bt" || speedBt.Y != "speed" {
		t.Errorf("Unexpected first pair %s~%s", speedBt.Y, speedBt.X)
	}
	if math.Abs(speedBt.Slope-50) > 1e-9 || math.Abs(speedBt.Intercept-300) > 1e-9 || math.Abs(speedBt.R2-1) > 1e-9 {
		t.Errorf("Unexpected fit %+v", speedBt)
	}

	if Pearson([]float64{1, 1, 1}, []float64{1, 2, 3}) != 0 {
		t.Error("Constant column should correlate as 0")
	}
}

func TestDistribution(t *testing.T) {
	d := sampleDataset([]float64{0, 1, 2, 3, 6, 7, 11, 12})
	dist := d.Distribution(4)
	if len(dist.Histograms) != len(Params) {
		t.Fatalf("Expected a histogram per parameter, got %d", len(dist.Histograms))
	}
	total := 0
	for _, c := range dist.Histograms[1].Counts {
		total += c
	}
	if total != 8 || len(dist.Histograms[1].Edges) != 5 {
		t.Errorf("Unexpected bt histogram %+v", dist.Histograms[1])
	}
	want := map[models.StormLevel]int{models.StormNormal: 4, models.StormMinor: 2, models.StormMajor: 2}
	for level, n := range want {
		if dist.StormCounts[level] != n {
			t.Errorf("Expected %d %s samples, got %d", n, level, dist.StormCounts[level])
		}
	}
}

func TestCurrent(t *testing.T) {
	d := sampleDataset([]float64{1, 12})
	c, err := d.Current()
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if !strings.Contains(c.Alert, "Major storm") {
		t.Errorf("Expected major storm alert, got %q", c.Alert)
	}
	if c.Sample.Bt != 12 {
		t.Errorf("Expected latest sample, got %+v", c.Sample)
	}

	calm, _ := sampleDataset([]float64{1}).Current()
	if calm.Alert != "" {
		t.Errorf("Expected no alert, got %q", calm.Alert)
	}
	if _, err := (&Dataset{}).Current(); err == nil {
		t.Error("Expected error for empty dataset")
	}
}

func TestPercentile(t *testing.T) {
	xs := []float64{5, 1, 3, 2, 4}
	if got := Percentile(xs, 50); got != 3 {
		t.Errorf("Expected median 3, got %v", got)
	}
	if got := Percentile(xs, 25); got != 2 {
		t.Errorf("Expected Q1 2, got %v", got)
	}
	if Percentile(xs, 0) != 1 || Percentile(xs, 100) != 5 {
		t.Error("Unexpected extremes")
	}
}

func TestExportFormats(t *testing.T) {
	d := Synthetic(feedEnd, Range24h, "feeds unavailable")
	dir := t.TempDir()

	for _, name := range []string{"wind.json", "wind.csv", "wind.csv.gz", "wind.csv.zst", "wind.parquet"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := Export(d, path); err != nil {
				t.Fatalf("Export failed: %v", err)
			}
			got, err := Import(path)
			if err != nil {
				t.Fatalf("Import failed: %v", err)
			}
			if len(got.Samples) != len(d.Samples) || !got.Synthetic {
				t.Fatalf("Expected %d synthetic samples, got %d (synthetic=%v)", len(d.Samples), len(got.Samples), got.Synthetic)
			}
			last := got.Samples[len(got.Samples)-1]
			want := d.Samples[len(d.Samples)-1]
			if !last.Time.Equal(want.Time) || math.Abs(last.Bz-want.Bz) > 1e-9 || last.StormLevel != want.StormLevel {
				t.Errorf("Last sample mismatch: got %+v want %+v", last, want)
			}
		})
	}

	if err := Export(d, filepath.Join(dir, "wind.xlsx")); err == nil {
		t.Error("Expected error for unsupported extension")
	}
}
