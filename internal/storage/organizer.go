package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"solarimager/internal/logger"
	"solarimager/internal/models"
)

// imageExts are the extensions the organizer treats as stored images.
var imageExts = []string{".jpg", ".jpeg", ".png"}

// Organizer owns the on-disk image layout:
//
//	<root>/<filter>/<date>.<ext>                 single band or combined composite
//	<root>/<filter>/<date>_<constituent>.<ext>   composite stored as separate bands
//
// Nothing is indexed; every query re-reads the directory.
type Organizer struct {
	root     string
	minBytes int64
	log      *logger.Logger
}

// FilterStats summarizes one filter directory.
type FilterStats struct {
	Files int   `json:"files"`
	Bytes int64 `json:"bytes"`
	Dates int   `json:"dates"`
}

// NewOrganizer creates root if needed. Files smaller than minBytes are
// treated as corrupted.
func NewOrganizer(root string, minBytes int64) (*Organizer, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", root, err)
	}
	return &Organizer{root: root, minBytes: minBytes, log: logger.WithComponent("storage")}, nil
}

// Root returns the data directory.
func (o *Organizer) Root() string { return o.root }

// MinBytes returns the corruption threshold.
func (o *Organizer) MinBytes() int64 { return o.minBytes }

// Path returns where an asset is stored.
func (o *Organizer) Path(filter, constituent string, date time.Time, ext string) string {
	return filepath.Join(o.root, filter, assetName(filter, constituent, date, ext))
}

// RelPath returns Path relative to the data root with forward slashes.
func (o *Organizer) RelPath(path string) string {
	rel, err := filepath.Rel(o.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func assetName(filter, constituent string, date time.Time, ext string) string {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	name := date.UTC().Format(models.DateLayout)
	if constituent != "" && constituent != filter {
		name += "_" + constituent
	}
	return name + strings.ToLower(ext)
}

// parseAssetName is the inverse of assetName. ok is false for files that are
// not part of the layout.
func parseAssetName(filter, name string) (date time.Time, constituent string, ok bool) {
	ext := strings.ToLower(filepath.Ext(name))
	if !isImageExt(ext) {
		return time.Time{}, "", false
	}
	base := strings.TrimSuffix(name, filepath.Ext(name))
	datePart, part, hasPart := strings.Cut(base, "_")
	d, err := models.ParseDay(datePart)
	if err != nil {
		return time.Time{}, "", false
	}
	if !hasPart {
		return d, filter, true
	}
	if part == "" {
		return time.Time{}, "", false
	}
	return d, part, true
}

func isImageExt(ext string) bool {
	for _, e := range imageExts {
		if e == ext {
			return true
		}
	}
	return false
}

// scan lists layout files of one filter directory with their sizes.
func (o *Organizer) scan(filter string) ([]models.ImageAsset, error) {
	dir := filepath.Join(o.root, filter)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var assets []models.ImageAsset
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		date, constituent, ok := parseAssetName(filter, e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // removed while scanning
		}
		assets = append(assets, models.ImageAsset{
			Filter:      filter,
			Constituent: constituent,
			Date:        date,
			Path:        filepath.Join(dir, e.Name()),
			Bytes:       info.Size(),
		})
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].Path < assets[j].Path })
	return assets, nil
}

// Filters lists the filter directories present under root.
func (o *Organizer) Filters() ([]string, error) {
	entries, err := os.ReadDir(o.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", o.root, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Valid reports whether a stored file meets the size threshold.
func (o *Organizer) Valid(a models.ImageAsset) bool {
	return a.Bytes >= o.minBytes && a.Bytes > 0
}

// Find returns the largest valid stored asset for filter/constituent/date.
func (o *Organizer) Find(filter, constituent string, date time.Time) (models.ImageAsset, bool, error) {
	day := models.TruncateDay(date)
	var best models.ImageAsset
	found := false
	for _, ext := range imageExts {
		p := o.Path(filter, constituent, day, ext)
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		a := models.ImageAsset{Filter: filter, Constituent: constituent, Date: day, Path: p, Bytes: info.Size()}
		if !o.Valid(a) {
			continue
		}
		if !found || a.Bytes > best.Bytes {
			best, found = a, true
		}
	}
	return best, found, nil
}

// Save stores data atomically. The resulting file size is checked against
// the payload.
func (o *Organizer) Save(filter, constituent string, date time.Time, ext string, data []byte) (models.ImageAsset, error) {
	day := models.TruncateDay(date)
	p := o.Path(filter, constituent, day, ext)
	if err := writeFileAtomic(p, data); err != nil {
		return models.ImageAsset{}, err
	}
	return models.ImageAsset{Filter: filter, Constituent: constituent, Date: day, Path: p, Bytes: int64(len(data))}, nil
}

// CleanupCorrupted deletes files below the size threshold. An empty filter
// cleans every filter directory. It returns the deleted paths.
func (o *Organizer) CleanupCorrupted(filter string) ([]string, error) {
	targets, err := o.targets(filter)
	if err != nil {
		return nil, err
	}

	var deleted []string
	for _, f := range targets {
		assets, err := o.scan(f)
		if err != nil {
			return deleted, err
		}
		for _, a := range assets {
			if o.Valid(a) {
				continue
			}
			if err := os.Remove(a.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return deleted, fmt.Errorf("failed to delete corrupted file %s: %w", a.Path, err)
			}
			o.log.Warn("deleted corrupted file", map[string]interface{}{"path": a.Path, "bytes": a.Bytes, "min_bytes": o.minBytes})
			deleted = append(deleted, a.Path)
		}
	}
	return deleted, nil
}

// targets expands an empty filter to every filter directory.
func (o *Organizer) targets(filter string) ([]string, error) {
	if filter != "" {
		return []string{filter}, nil
	}
	return o.Filters()
}

// Deduplicate keeps the largest file when one date/constituent is stored
// under several extensions, deleting the others. An empty filter covers
// every filter directory.
func (o *Organizer) Deduplicate(filter string) ([]string, error) {
	targets, err := o.targets(filter)
	if err != nil {
		return nil, err
	}
	var deleted []string
	for _, f := range targets {
		removed, err := o.deduplicate(f)
		deleted = append(deleted, removed...)
		if err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}

func (o *Organizer) deduplicate(filter string) ([]string, error) {
	assets, err := o.scan(filter)
	if err != nil {
		return nil, err
	}
	type key struct {
		date        time.Time
		constituent string
	}
	groups := make(map[key][]models.ImageAsset)
	var order []key
	for _, a := range assets {
		k := key{a.Date, a.Constituent}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], a)
	}

	var deleted []string
	for _, k := range order {
		group := groups[k]
		if len(group) < 2 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool { return group[i].Bytes > group[j].Bytes })
		for _, dup := range group[1:] {
			if err := os.Remove(dup.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return deleted, fmt.Errorf("failed to delete duplicate %s: %w", dup.Path, err)
			}
			deleted = append(deleted, dup.Path)
		}
	}
	return deleted, nil
}

// ListDates returns the sorted unique dates that have at least one valid file.
func (o *Organizer) ListDates(filter string) ([]time.Time, error) {
	assets, err := o.scan(filter)
	if err != nil {
		return nil, err
	}
	seen := make(map[time.Time]bool)
	var dates []time.Time
	for _, a := range assets {
		if o.Valid(a) && !seen[a.Date] {
			seen[a.Date] = true
			dates = append(dates, a.Date)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// ListImages returns valid assets dated within [start, end], ordered by date
// then constituent. Zero times leave that side open.
func (o *Organizer) ListImages(filter string, start, end time.Time) ([]models.ImageAsset, error) {
	assets, err := o.scan(filter)
	if err != nil {
		return nil, err
	}
	var out []models.ImageAsset
	for _, a := range assets {
		if !o.Valid(a) {
			continue
		}
		if !start.IsZero() && a.Date.Before(models.TruncateDay(start)) {
			continue
		}
		if !end.IsZero() && a.Date.After(models.TruncateDay(end)) {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Constituent < out[j].Constituent
	})
	return out, nil
}

// FrameGroup is the set of files that make up one date's frame.
type FrameGroup struct {
	Date  time.Time
	Paths []string // one path, or one per constituent in constituent order
}

// Frames groups stored images into per-date frames. For a composite stored
// as separate bands, only dates with every constituent present are
// returned; a combined composite file is preferred when one exists.
func (o *Organizer) Frames(filter string, constituents []string, start, end time.Time) ([]FrameGroup, error) {
	assets, err := o.ListImages(filter, start, end)
	if err != nil {
		return nil, err
	}
	byDate := make(map[time.Time]map[string]string)
	var dates []time.Time
	for _, a := range assets {
		m, ok := byDate[a.Date]
		if !ok {
			m = make(map[string]string)
			byDate[a.Date] = m
			dates = append(dates, a.Date)
		}
		if prev, dup := m[a.Constituent]; !dup || a.Path < prev {
			m[a.Constituent] = a.Path
		}
	}

	var groups []FrameGroup
	for _, d := range dates {
		m := byDate[d]
		if p, ok := m[filter]; ok {
			groups = append(groups, FrameGroup{Date: d, Paths: []string{p}})
			continue
		}
		paths := make([]string, 0, len(constituents))
		for _, c := range constituents {
			if p, ok := m[c]; ok {
				paths = append(paths, p)
			}
		}
		if len(constituents) > 0 && len(paths) == len(constituents) {
			groups = append(groups, FrameGroup{Date: d, Paths: paths})
		}
	}
	return groups, nil
}

// Stats reports file counts, bytes and distinct dates per filter.
func (o *Organizer) Stats() (map[string]FilterStats, error) {
	names, err := o.Filters()
	if err != nil {
		return nil, err
	}
	stats := make(map[string]FilterStats, len(names))
	for _, name := range names {
		assets, err := o.scan(name)
		if err != nil {
			return nil, err
		}
		var s FilterStats
		dates := make(map[time.Time]bool)
		for _, a := range assets {
			s.Files++
			s.Bytes += a.Bytes
			if o.Valid(a) {
				dates[a.Date] = true
			}
		}
		s.Dates = len(dates)
		stats[name] = s
	}
	return stats, nil
}
