package models

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-day format used in file names and APIs.
const DateLayout = "2006-01-02"

// ImageRequest identifies one image to fetch. It is never mutated after
// construction.
type ImageRequest struct {
	Date       time.Time `json:"date"`       // UTC calendar day
	Filter     string    `json:"filter"`     // wavelength code or composite id
	Resolution int       `json:"resolution"` // 1024, 2048 or 4096
}

// NewImageRequest truncates date to its UTC day.
func NewImageRequest(date time.Time, filter string, resolution int) ImageRequest {
	return ImageRequest{Date: TruncateDay(date), Filter: filter, Resolution: resolution}
}

// DayString returns the request date as YYYY-MM-DD.
func (r ImageRequest) DayString() string {
	return r.Date.Format(DateLayout)
}

func (r ImageRequest) String() string {
	return fmt.Sprintf("%s/%s@%d", r.Filter, r.DayString(), r.Resolution)
}

// DownloadResult reports the outcome for one stored asset.
type DownloadResult struct {
	Request     ImageRequest `json:"request"`
	Constituent string       `json:"constituent"` // wavelength actually fetched; equals Filter for single bands
	Path        string       `json:"path,omitempty"`
	Success     bool         `json:"success"`
	Skipped     bool         `json:"skipped"` // already present on disk, no request made
	Bytes       int64        `json:"bytes"`
	Timestamp   time.Time    `json:"timestamp"`
	Error       string       `json:"error,omitempty"`
}

// ImageAsset is a stored image as seen by directory listing.
type ImageAsset struct {
	Filter      string    `json:"filter"`
	Constituent string    `json:"constituent"`
	Date        time.Time `json:"date"`
	Path        string    `json:"path"`
	Bytes       int64     `json:"bytes"`
}

// TruncateDay returns midnight UTC of t's UTC day.
func TruncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDay parses YYYY-MM-DD as a UTC day.
func ParseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// Days lists each UTC day from start to end inclusive.
func Days(start, end time.Time) []time.Time {
	start, end = TruncateDay(start), TruncateDay(end)
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}
