package imagery

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"solarimager/internal/logger"
)

var sdoNamePattern = regexp.MustCompile(`(\d{8})_(\d{6})_(\d{3,4})_([0-9A-Za-z]+)\.jpg`)

// SDOSource scrapes the NASA SDO browse archive. Day listings live at
// <base>/YYYY/MM/DD/ and images are named YYYYMMDD_HHMMSS_<res>_<code>.jpg.
type SDOSource struct {
	client    *resty.Client
	baseURL   string
	preferred time.Duration
	log       *logger.Logger
}

// NewSDOSource creates a browse-archive source aiming for the preferred
// time of day, given as an offset from midnight UTC.
func NewSDOSource(client *resty.Client, baseURL string, preferred time.Duration) *SDOSource {
	return &SDOSource{
		client:    client,
		baseURL:   strings.TrimRight(baseURL, "/"),
		preferred: preferred,
		log:       logger.WithComponent("sdo"),
	}
}

func (s *SDOSource) Name() string { return "sdo" }

// SupportsCombined is true: the archive publishes pre-composed products
// under the composite code.
func (s *SDOSource) SupportsCombined() bool { return true }

// Listing is one image advertised by a day listing.
type Listing struct {
	Name     string
	Captured time.Time
}

func (s *SDOSource) dayURL(date time.Time) string {
	return fmt.Sprintf("%s/%s/", s.baseURL, date.UTC().Format("2006/01/02"))
}

// List returns the images for code at resolution on date, sorted by
// capture time. A missing day directory yields ErrNotFound.
func (s *SDOSource) List(ctx context.Context, date time.Time, code string, resolution int) ([]Listing, error) {
	url := s.dayURL(date)
	resp, err := s.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing %s: %w", url, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", url, ErrNotFound)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("listing %s returned status %d", url, resp.StatusCode())
	}
	return parseListing(resp.String(), code, resolution), nil
}

func parseListing(body, code string, resolution int) []Listing {
	res := fmt.Sprintf("%d", resolution)
	seen := make(map[string]bool)
	var out []Listing
	for _, m := range sdoNamePattern.FindAllStringSubmatch(body, -1) {
		if m[3] != res || !strings.EqualFold(m[4], code) || seen[m[0]] {
			continue
		}
		captured, err := time.ParseInLocation("20060102150405", m[1]+m[2], time.UTC)
		if err != nil {
			continue
		}
		seen[m[0]] = true
		out = append(out, Listing{Name: m[0], Captured: captured})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Captured.Before(out[j].Captured) })
	return out
}

// closest picks the listing nearest target. Ties go to the earlier image.
func closest(listings []Listing, target time.Time) Listing {
	best := listings[0]
	bestDiff := absDuration(best.Captured.Sub(target))
	for _, l := range listings[1:] {
		if d := absDuration(l.Captured.Sub(target)); d < bestDiff {
			best, bestDiff = l, d
		}
	}
	return best
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// Fetch downloads the image closest to the preferred time on date.
func (s *SDOSource) Fetch(ctx context.Context, date time.Time, code string, resolution int) (*Image, error) {
	listings, err := s.List(ctx, date, code, resolution)
	if err != nil {
		return nil, err
	}
	if len(listings) == 0 {
		return nil, fmt.Errorf("%s %s@%d: %w", date.Format("2006-01-02"), code, resolution, ErrNotFound)
	}

	pick := closest(listings, observationTime(date, s.preferred))
	url := s.dayURL(date) + pick.Name
	s.log.Debug("downloading image", map[string]interface{}{"url": url, "captured": pick.Captured.Format(time.RFC3339)})

	resp, err := s.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", url, ErrNotFound)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("download %s returned status %d", url, resp.StatusCode())
	}
	return &Image{Data: resp.Body(), Captured: pick.Captured, URL: url}, nil
}
