package models

import (
	"testing"
	"time"
)

func TestNewImageRequestTruncatesToUTCDay(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	req := NewImageRequest(time.Date(2024, 3, 9, 22, 30, 0, 0, loc), "0171", 1024)

	if got := req.DayString(); got != "2024-03-10" {
		t.Errorf("Expected UTC day 2024-03-10, got %s", got)
	}
	if req.String() != "0171/2024-03-10@1024" {
		t.Errorf("Unexpected String(): %s", req.String())
	}
}

func TestDays(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		want       int
	}{
		{"single day", "2024-01-01", "2024-01-01", 1},
		{"week", "2024-01-01", "2024-01-07", 7},
		{"across leap day", "2024-02-28", "2024-03-01", 3},
		{"reversed range", "2024-01-05", "2024-01-01", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, _ := ParseDay(tt.start)
			end, _ := ParseDay(tt.end)
			if got := Days(start, end); len(got) != tt.want {
				t.Errorf("Days(%s, %s) = %d days, want %d", tt.start, tt.end, len(got), tt.want)
			}
		})
	}
}

func TestParseDayRejectsGarbage(t *testing.T) {
	if _, err := ParseDay("2024/01/01"); err == nil {
		t.Error("Expected error for slash-separated date")
	}
}

func TestParseAnalysisType(t *testing.T) {
	for _, at := range AnalysisTypes {
		if got, ok := ParseAnalysisType(string(at)); !ok || got != at {
			t.Errorf("ParseAnalysisType(%q) = %q, %v", at, got, ok)
		}
	}
	if _, ok := ParseAnalysisType("spectral"); ok {
		t.Error("Expected unknown analysis type to be rejected")
	}
}

func TestJobStatusTerminal(t *testing.T) {
	terminal := map[JobStatus]bool{
		JobPending:   false,
		JobRunning:   false,
		JobCompleted: true,
		JobFailed:    true,
		JobCancelled: true,
	}
	for status, want := range terminal {
		if status.Terminal() != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, !want, want)
		}
	}
}
