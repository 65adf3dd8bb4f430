// Package solarwind loads NOAA SWPC real-time solar wind data and runs the
// statistical analyses behind the charts.
package solarwind

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"solarimager/internal/logger"
)

// noaaTimeLayout is the time_tag format of the SWPC product feeds.
const noaaTimeLayout = "2006-01-02 15:04:05.000"

// TimeRange is a lookback window offered in the UI.
type TimeRange string

const (
	Range6h  TimeRange = "6h"
	Range12h TimeRange = "12h"
	Range24h TimeRange = "24h"
	Range3d  TimeRange = "3d"
	Range7d  TimeRange = "7d"
)

// Ranges lists the valid windows, shortest first.
var Ranges = []TimeRange{Range6h, Range12h, Range24h, Range3d, Range7d}

// ParseRange validates s; an empty string means 24h.
func ParseRange(s string) (TimeRange, error) {
	if s == "" {
		return Range24h, nil
	}
	for _, r := range Ranges {
		if string(r) == strings.ToLower(s) {
			return r, nil
		}
	}
	return "", fmt.Errorf("invalid time range %q: must be one of 6h, 12h, 24h, 3d, 7d", s)
}

// Duration is the window length.
func (r TimeRange) Duration() time.Duration {
	switch r {
	case Range6h:
		return 6 * time.Hour
	case Range12h:
		return 12 * time.Hour
	case Range3d:
		return 72 * time.Hour
	case Range7d:
		return 7 * 24 * time.Hour
	}
	return 24 * time.Hour
}

// feed is the SWPC product suffix covering the window.
func (r TimeRange) feed() string {
	switch r {
	case Range3d:
		return "3-day"
	case Range7d:
		return "7-day"
	}
	return "1-day"
}

// table is a header-row JSON product with columns resolved by name.
type table struct {
	columns map[string]int
	rows    [][]string
}

func (t *table) value(row []string, column string) (string, bool) {
	i, ok := t.columns[column]
	if !ok || i >= len(row) {
		return "", false
	}
	return row[i], row[i] != ""
}

func (t *table) float(row []string, column string) (float64, bool) {
	s, ok := t.value(row, column)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// parseTable decodes [[header...], [row...], ...]. Cells may be strings,
// numbers or null.
func parseTable(body []byte) (*table, error) {
	var raw [][]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse product: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty product")
	}

	t := &table{columns: make(map[string]int)}
	for i, h := range raw[0] {
		if name, ok := h.(string); ok {
			t.columns[strings.ToLower(name)] = i
		}
	}
	if _, ok := t.columns["time_tag"]; !ok {
		return nil, fmt.Errorf("product has no time_tag column")
	}
	for _, r := range raw[1:] {
		row := make([]string, len(r))
		for i, cell := range r {
			switch v := cell.(type) {
			case string:
				row[i] = strings.TrimSpace(v)
			case float64:
				row[i] = strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

func parseTime(s string) (time.Time, bool) {
	t, err := time.ParseInLocation(noaaTimeLayout, s, time.UTC)
	if err != nil {
		// some mirrors drop the milliseconds
		t, err = time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC)
	}
	return t, err == nil
}

// magRow and plasmaRow record which cells parsed.
type magRow struct {
	bx, by, bz, bt          float64
	hasBx, hasBy, hasBz, ok bool
}

type plasmaRow struct {
	density, speed, temperature  float64
	hasDensity, hasSpeed, hasTmp bool
}

// Fetcher downloads the SWPC magnetic field and plasma products.
type Fetcher struct {
	client  *resty.Client
	baseURL string
	log     *logger.Logger
}

// NewFetcher creates a fetcher for baseURL, normally
// https://services.swpc.noaa.gov/products/solar-wind.
func NewFetcher(client *resty.Client, baseURL string) *Fetcher {
	return &Fetcher{client: client, baseURL: strings.TrimRight(baseURL, "/"), log: logger.WithComponent("solarwind")}
}

func (f *Fetcher) get(ctx context.Context, product string) (*table, error) {
	url := fmt.Sprintf("%s/%s.json", f.baseURL, product)
	resp, err := f.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", product, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("%s returned status %d", product, resp.StatusCode())
	}
	t, err := parseTable(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", product, err)
	}
	f.log.Debug("fetched product", map[string]interface{}{"product": product, "rows": len(t.rows)})
	return t, nil
}

// FetchMag returns magnetic field rows keyed by timestamp.
func (f *Fetcher) FetchMag(ctx context.Context, r TimeRange) (map[time.Time]magRow, error) {
	t, err := f.get(ctx, "mag-"+r.feed())
	if err != nil {
		return nil, err
	}
	out := make(map[time.Time]magRow, len(t.rows))
	for _, row := range t.rows {
		ts, ok := t.value(row, "time_tag")
		if !ok {
			continue
		}
		when, ok := parseTime(ts)
		if !ok {
			continue
		}
		var m magRow
		m.bx, m.hasBx = t.float(row, "bx_gsm")
		m.by, m.hasBy = t.float(row, "by_gsm")
		m.bz, m.hasBz = t.float(row, "bz_gsm")
		var hasBt bool
		m.bt, hasBt = t.float(row, "bt")
		m.ok = m.hasBz && hasBt
		out[when] = m
	}
	return out, nil
}

// FetchPlasma returns plasma rows keyed by timestamp.
func (f *Fetcher) FetchPlasma(ctx context.Context, r TimeRange) (map[time.Time]plasmaRow, error) {
	t, err := f.get(ctx, "plasma-"+r.feed())
	if err != nil {
		return nil, err
	}
	out := make(map[time.Time]plasmaRow, len(t.rows))
	for _, row := range t.rows {
		ts, ok := t.value(row, "time_tag")
		if !ok {
			continue
		}
		when, ok := parseTime(ts)
		if !ok {
			continue
		}
		var p plasmaRow
		p.density, p.hasDensity = t.float(row, "density")
		p.speed, p.hasSpeed = t.float(row, "speed")
		p.temperature, p.hasTmp = t.float(row, "temperature")
		out[when] = p
	}
	return out, nil
}
