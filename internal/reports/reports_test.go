package reports

import (
	"strings"
	"testing"
	"time"

	"solarimager/internal/models"
	"solarimager/internal/solarwind"
)

func TestSolarWindSummary(t *testing.T) {
	ds := solarwind.Synthetic(time.Date(2024, 5, 10, 18, 0, 0, 0, time.UTC), solarwind.Range12h, "feed unavailable")
	links := []ChartLink{{Analysis: models.AnalysisCorrelation, Backend: "html", URL: "/files/charts/c.html"}}

	r := SolarWindSummary(ds, links)
	if !r.Synthetic {
		t.Error("Report should carry the synthetic flag")
	}
	for _, want := range []string{
		"SAMPLE DATA",
		"## Statistics",
		"| Bz | nT | 100 |",
		"| Normal |",
		"Speed ~ Bt",
		"[correlation (html)](/files/charts/c.html)",
	} {
		if !strings.Contains(r.Markdown, want) {
			t.Errorf("Expected markdown to contain %q", want)
		}
	}
}

func TestBuildPage(t *testing.T) {
	ds := solarwind.Synthetic(time.Date(2024, 5, 10, 18, 0, 0, 0, time.UTC), solarwind.Range6h, "offline")
	page, err := NewHTMLBuilder().BuildPage(SolarWindSummary(ds, nil))
	if err != nil {
		t.Fatalf("BuildPage failed: %v", err)
	}
	for _, want := range []string{"<!DOCTYPE html>", "<table>", "<h2 id=\"statistics\">Statistics</h2>", "class=\"sample\""} {
		if !strings.Contains(page, want) {
			t.Errorf("Expected page to contain %q", want)
		}
	}
}

func TestStrongest(t *testing.T) {
	m := solarwind.Matrix{
		Labels: []string{"a", "b", "c"},
		Values: [][]float64{
			{1, 0.2, -0.9},
			{0.2, 1, 0.5},
			{-0.9, 0.5, 1},
		},
	}
	got := strongest(m, 2)
	if len(got) != 2 || got[0] != [2]int{0, 2} || got[1] != [2]int{1, 2} {
		t.Errorf("Unexpected order %v", got)
	}
}
