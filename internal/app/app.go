// Package app wires configuration into the download, video and analysis
// operations shared by the web server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"solarimager/internal/charts"
	"solarimager/internal/config"
	"solarimager/internal/downloader"
	"solarimager/internal/filters"
	"solarimager/internal/imagery"
	"solarimager/internal/logger"
	"solarimager/internal/models"
	"solarimager/internal/reports"
	"solarimager/internal/solarwind"
	"solarimager/internal/storage"
	"solarimager/internal/video"
)

// App holds the long-lived components built from a Config.
type App struct {
	Config    *config.Config
	Organizer *storage.Organizer
	Source    imagery.Source
	Assembler *video.Assembler
	Loader    *solarwind.Loader
	Backends  []charts.Backend
	Mirror    storage.StorageClient

	log *logger.Logger
	now func() time.Time
}

// New builds every component. Only configuration and filesystem errors
// are returned; optional pieces such as ffmpeg are probed when used.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	for _, dir := range []string{cfg.DataDir, cfg.VideoDir, cfg.TempVideosDir, cfg.ChartsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	org, err := storage.NewOrganizer(cfg.DataDir, cfg.MinFileBytes)
	if err != nil {
		return nil, err
	}

	client := imagery.NewHTTPClient(imagery.DefaultClientOptions())
	source, err := imagery.NewSource(cfg.ImageSource, client, cfg.SDOBrowseURL, cfg.HelioviewerURL, cfg.PreferredTimeOfDay())
	if err != nil {
		return nil, err
	}

	backends, err := charts.NewBackends(cfg.EnabledChartBackends())
	if err != nil {
		return nil, err
	}

	var mirror storage.StorageClient
	if cfg.DeploymentMode == string(storage.DeploymentGCS) {
		mirror, err = storage.NewStorageClient(ctx, storage.MirrorOptions{
			Mode:      storage.DeploymentGCS,
			GCSBucket: cfg.GCSBucket,
		})
		if err != nil {
			return nil, err
		}
	}

	return &App{
		Config:    cfg,
		Organizer: org,
		Source:    source,
		Assembler: video.NewAssembler(cfg.TempVideosDir, video.DefaultEncoders(cfg.FFmpegPath)...),
		Loader:    solarwind.NewLoader(solarwind.NewFetcher(client, cfg.NOAASolarWindURL)),
		Backends:  backends,
		Mirror:    mirror,
		log:       logger.WithComponent("app"),
		now:       time.Now,
	}, nil
}

// Close releases the mirror client.
func (a *App) Close() error {
	if a.Mirror != nil {
		return a.Mirror.Close()
	}
	return nil
}

// NewWorkflow returns a workflow reporting to progress. Each run gets its
// own workflow so its cancel flag belongs to that run.
func (a *App) NewWorkflow(progress downloader.ProgressFunc) *downloader.Workflow {
	return downloader.New(a.Source, a.Organizer, downloader.Options{
		CompositeMode:  a.Config.CompositeMode,
		RateLimitDelay: a.Config.RateLimitDelay,
		Progress:       progress,
		Mirror:         a.Mirror,
	})
}

// DefaultRequest fills empty request fields from the configuration. A
// missing end date means a single day.
func (a *App) DefaultRequest(req downloader.Request) downloader.Request {
	if req.Filter == "" {
		req.Filter = a.Config.DefaultFilter
	}
	if req.Resolution == 0 {
		req.Resolution = a.Config.Resolution
	}
	if req.End.IsZero() {
		req.End = req.Start
	}
	return req
}

// VideoRequest selects stored images for a video.
type VideoRequest struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Filter string    `json:"filter"`
	FPS    float64   `json:"fps"`
}

// MakeVideo assembles the stored frames of one filter over a date range
// into VIDEO_DIR. The finished file is mirrored when a mirror is set.
func (a *App) MakeVideo(ctx context.Context, req VideoRequest) (*video.Result, error) {
	if req.Filter == "" {
		req.Filter = a.Config.DefaultFilter
	}
	if req.FPS <= 0 {
		req.FPS = a.Config.DefaultFPS
	}
	if req.End.IsZero() {
		req.End = req.Start
	}
	if req.Start.IsZero() {
		return nil, errors.New("start date is required")
	}
	if req.End.Before(req.Start) {
		return nil, fmt.Errorf("end date %s is before start date %s",
			req.End.Format(models.DateLayout), req.Start.Format(models.DateLayout))
	}
	f, ok := filters.Lookup(req.Filter)
	if !ok {
		return nil, fmt.Errorf("unknown filter %q", req.Filter)
	}

	groups, err := a.Organizer.Frames(f.Code, filters.Constituents(f.Code), req.Start, req.End)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("no stored images for %s between %s and %s", f.Code,
			req.Start.Format(models.DateLayout), req.End.Format(models.DateLayout))
	}
	frames := make([]video.Frame, len(groups))
	for i, g := range groups {
		frames[i] = video.Frame{Date: g.Date, Paths: g.Paths}
	}

	out := filepath.Join(a.Config.VideoDir, video.OutputName(req.Start, req.End, f.Code))
	res, err := a.Assembler.Assemble(ctx, video.Request{
		Frames:  frames,
		FPS:     req.FPS,
		Output:  out,
		Label:   a.Config.LabelFrames,
		Caption: f.Name,
	})
	if err != nil {
		return nil, err
	}

	if a.Mirror != nil {
		if data, err := os.ReadFile(res.Output); err != nil {
			a.log.Warn("failed to read video for mirroring", map[string]interface{}{"reason": err.Error()})
		} else if err := a.Mirror.StoreFile(ctx, "videos/"+filepath.Base(res.Output), data); err != nil {
			a.log.Warn("failed to mirror video", map[string]interface{}{"reason": err.Error()})
		}
	}
	return res, nil
}

// AnalysisRequest selects a solar wind window and the charts to draw.
type AnalysisRequest struct {
	Range    solarwind.TimeRange   `json:"range"`
	Analyses []models.AnalysisType `json:"analyses"`
	Export   string                `json:"export,omitempty"` // file name under CHARTS_DIR, format by extension
}

// AnalysisResult describes what an analysis produced.
type AnalysisResult struct {
	Range      solarwind.TimeRange   `json:"range"`
	Samples    int                   `json:"samples"`
	Synthetic  bool                  `json:"synthetic"`
	Reason     string                `json:"reason,omitempty"`
	Conditions *solarwind.Conditions `json:"conditions,omitempty"`
	Statistics []solarwind.Stats     `json:"statistics"`
	Charts     []reports.ChartLink   `json:"charts"`
	Errors     []string              `json:"errors,omitempty"`
	Summary    string                `json:"summary,omitempty"` // URL of the HTML summary
	Export     string                `json:"export,omitempty"`  // URL of the exported table
}

// Analyze loads the solar wind dataset and renders the requested charts.
// Chart failures are collected; the analysis itself only fails on bad
// input because the loader always yields data.
func (a *App) Analyze(ctx context.Context, req AnalysisRequest, status func(string)) (*AnalysisResult, *solarwind.Dataset, error) {
	if status == nil {
		status = func(string) {}
	}
	if req.Range == "" {
		req.Range = solarwind.Range24h
	}
	if _, err := solarwind.ParseRange(string(req.Range)); err != nil {
		return nil, nil, err
	}
	if len(req.Analyses) == 0 {
		req.Analyses = models.AnalysisTypes
	}
	for _, t := range req.Analyses {
		if _, ok := models.ParseAnalysisType(string(t)); !ok {
			return nil, nil, fmt.Errorf("unknown analysis type %q", t)
		}
	}

	status(fmt.Sprintf("Fetching solar wind data (%s)...", req.Range))
	ds := a.Loader.Load(ctx, req.Range)
	if ds.Synthetic {
		status("Live data unavailable, using SAMPLE DATA: " + ds.Reason)
	}

	res := &AnalysisResult{
		Range:      ds.Range,
		Samples:    len(ds.Samples),
		Synthetic:  ds.Synthetic,
		Reason:     ds.Reason,
		Statistics: ds.Statistics(),
	}
	if c, err := ds.Current(); err == nil {
		res.Conditions = &c
	}

	for _, t := range req.Analyses {
		if err := ctx.Err(); err != nil {
			return res, ds, err
		}
		status(fmt.Sprintf("Rendering %s chart...", t))
		path, b, err := charts.Render(a.Backends, a.Config.PreferredChart, ds, t, a.Config.ChartsDir)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", t, err))
			continue
		}
		res.Charts = append(res.Charts, reports.ChartLink{Analysis: t, Backend: b.Name(), URL: ChartURL(path)})
	}

	summary, err := a.WriteSummary(ds, res.Charts)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
	} else {
		res.Summary = ChartURL(summary)
	}

	if req.Export != "" {
		name := filepath.Base(req.Export)
		path := filepath.Join(a.Config.ChartsDir, name)
		if err := solarwind.Export(ds, path); err != nil {
			res.Errors = append(res.Errors, err.Error())
		} else {
			res.Export = ChartURL(path)
		}
	}
	return res, ds, nil
}

// WriteSummary renders the markdown summary of ds to an HTML page in
// CHARTS_DIR and returns its path.
func (a *App) WriteSummary(ds *solarwind.Dataset, links []reports.ChartLink) (string, error) {
	page, err := reports.NewHTMLBuilder().BuildPage(reports.SolarWindSummary(ds, links))
	if err != nil {
		return "", err
	}
	path := filepath.Join(a.Config.ChartsDir, fmt.Sprintf("solarwind_%s_summary.html", ds.Range))
	if err := os.WriteFile(path, []byte(page), 0644); err != nil {
		return "", fmt.Errorf("failed to write summary: %w", err)
	}
	return path, nil
}

// CleanupResult lists what a cleanup pass removed.
type CleanupResult struct {
	Corrupted   []string `json:"corrupted"`
	Duplicates  []string `json:"duplicates"`
	TempRemoved int      `json:"temp_removed"`
}

// Cleanup deletes corrupted and duplicate images for filter (all filters
// when empty) and stale video scratch directories.
func (a *App) Cleanup(filter string) (*CleanupResult, error) {
	res := &CleanupResult{}
	var err error
	if res.Corrupted, err = a.Organizer.CleanupCorrupted(filter); err != nil {
		return res, err
	}
	if res.Duplicates, err = a.Organizer.Deduplicate(filter); err != nil {
		return res, err
	}
	if res.TempRemoved, err = video.CleanupTemp(a.Config.TempVideosDir, a.Config.TempVideoMaxAge, a.now()); err != nil {
		return res, err
	}
	a.log.Info("cleanup finished", map[string]interface{}{
		"corrupted":  len(res.Corrupted),
		"duplicates": len(res.Duplicates),
		"temp":       res.TempRemoved,
	})
	return res, nil
}

// File URL prefixes served by the web front end.
const (
	DataURLPrefix   = "/files/data/"
	VideoURLPrefix  = "/files/video/"
	ChartsURLPrefix = "/files/charts/"
)

// ChartURL maps a file in CHARTS_DIR to its URL.
func ChartURL(path string) string { return ChartsURLPrefix + filepath.Base(path) }

// VideoURL maps a file in VIDEO_DIR to its URL.
func VideoURL(path string) string { return VideoURLPrefix + filepath.Base(path) }

// ImageURL maps a stored image to its URL.
func (a *App) ImageURL(path string) string {
	return DataURLPrefix + strings.TrimPrefix(a.Organizer.RelPath(path), "/")
}
