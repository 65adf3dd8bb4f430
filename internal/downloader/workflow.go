// Package downloader runs the download-and-organize workflow: one image
// per date per band, skipping what is already stored.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"solarimager/internal/filters"
	"solarimager/internal/imagery"
	"solarimager/internal/logger"
	"solarimager/internal/metrics"
	"solarimager/internal/models"
	"solarimager/internal/storage"
)

// Composite storage modes.
const (
	CompositeSeparate = "separate"
	CompositeCombined = "combined"
)

// ProgressFunc receives a status line after each processed asset.
type ProgressFunc func(done, total int, msg string)

// Options configure a Workflow.
type Options struct {
	CompositeMode  string
	RateLimitDelay time.Duration
	Progress       ProgressFunc
	// Mirror, when set, receives a copy of every saved asset under the
	// same relative path. Upload failures are logged only.
	Mirror storage.StorageClient
	Now    func() time.Time
}

// Request selects what to download.
type Request struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Filter     string    `json:"filter"`
	Resolution int       `json:"resolution"`
}

// Summary aggregates one run.
type Summary struct {
	Requested  int                     `json:"requested"`
	Downloaded int                     `json:"downloaded"`
	Skipped    int                     `json:"skipped"`
	Failed     int                     `json:"failed"`
	Deleted    int                     `json:"deleted"`
	Bytes      int64                   `json:"bytes"`
	Results    []models.DownloadResult `json:"results"`
	Errors     []string                `json:"errors,omitempty"`
	Cancelled  bool                    `json:"cancelled"`
	Duration   time.Duration           `json:"duration"`
}

// Workflow fetches images from a source into an organizer. A Workflow runs
// one request at a time.
type Workflow struct {
	source    imagery.Source
	org       *storage.Organizer
	opts      Options
	log       *logger.Logger
	cancelled atomic.Bool
}

// New creates a workflow. Zero options get the defaults: separate
// composites and a one second delay between requests.
func New(source imagery.Source, org *storage.Organizer, opts Options) *Workflow {
	if opts.CompositeMode == "" {
		opts.CompositeMode = CompositeSeparate
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Workflow{source: source, org: org, opts: opts, log: logger.WithComponent("downloader")}
}

// Cancel stops the current run before its next asset.
func (w *Workflow) Cancel() {
	w.cancelled.Store(true)
}

// Validate checks a request without running it.
func (w *Workflow) Validate(req Request) error {
	_, _, err := w.plan(req)
	return err
}

// task is one asset to fetch.
type task struct {
	req         models.ImageRequest
	constituent string // stored under this name; equals Filter for single assets
	code        string // code passed to the source
}

func (w *Workflow) plan(req Request) (filters.Filter, []task, error) {
	f, ok := filters.Lookup(req.Filter)
	if !ok {
		return f, nil, fmt.Errorf("unknown filter %q", req.Filter)
	}
	if !filters.ValidResolution(req.Resolution) {
		return f, nil, fmt.Errorf("unsupported resolution %d", req.Resolution)
	}
	if req.Start.IsZero() || req.End.IsZero() {
		return f, nil, fmt.Errorf("start and end dates are required")
	}
	if models.TruncateDay(req.End).Before(models.TruncateDay(req.Start)) {
		return f, nil, fmt.Errorf("end date %s is before start date %s",
			req.End.Format(models.DateLayout), req.Start.Format(models.DateLayout))
	}

	combined := f.Composite && w.opts.CompositeMode == CompositeCombined && w.source.SupportsCombined()
	var tasks []task
	for _, d := range models.Days(req.Start, req.End) {
		ir := models.NewImageRequest(d, f.Code, req.Resolution)
		if !f.Composite || combined {
			tasks = append(tasks, task{req: ir, constituent: f.Code, code: f.Code})
			continue
		}
		for _, part := range f.Parts {
			tasks = append(tasks, task{req: ir, constituent: part, code: part})
		}
	}
	return f, tasks, nil
}

// Run downloads every missing asset of req. It only fails for invalid
// input or a failed cleanup; per-asset failures are recorded in the
// summary and the run continues.
func (w *Workflow) Run(ctx context.Context, req Request) (*Summary, error) {
	start := w.opts.Now()
	w.cancelled.Store(false)

	f, tasks, err := w.plan(req)
	if err != nil {
		return nil, err
	}
	req.Filter = f.Code

	deleted, err := w.org.CleanupCorrupted(req.Filter)
	if err != nil {
		return nil, fmt.Errorf("failed to clean corrupted files: %w", err)
	}
	metrics.ObserveCorruptedDeleted(len(deleted))

	s := &Summary{Requested: len(tasks), Deleted: len(deleted)}
	w.log.Info("download started", map[string]interface{}{
		"filter":     req.Filter,
		"start":      req.Start.Format(models.DateLayout),
		"end":        req.End.Format(models.DateLayout),
		"resolution": req.Resolution,
		"assets":     len(tasks),
		"source":     w.source.Name(),
		"deleted":    len(deleted),
	})

	fetched := false
	for i, t := range tasks {
		if w.cancelled.Load() || ctx.Err() != nil {
			s.Cancelled = true
			break
		}

		if fetched && w.opts.RateLimitDelay > 0 {
			if !sleep(ctx, w.opts.RateLimitDelay) {
				s.Cancelled = true
				break
			}
		}

		res, networked := w.process(ctx, t)
		fetched = networked
		s.add(res)

		if w.opts.Progress != nil {
			w.opts.Progress(i+1, len(tasks), progressLine(res))
		}
	}

	s.Duration = w.opts.Now().Sub(start)
	w.log.Info("download finished", map[string]interface{}{
		"filter":     req.Filter,
		"downloaded": s.Downloaded,
		"skipped":    s.Skipped,
		"failed":     s.Failed,
		"bytes":      s.Bytes,
		"cancelled":  s.Cancelled,
		"duration":   s.Duration.String(),
	})
	return s, nil
}

// process handles one asset and reports whether a network request was made.
func (w *Workflow) process(ctx context.Context, t task) (models.DownloadResult, bool) {
	res := models.DownloadResult{Request: t.req, Constituent: t.constituent, Timestamp: w.opts.Now()}

	existing, ok, err := w.org.Find(t.req.Filter, t.constituent, t.req.Date)
	if err == nil && ok {
		res.Success, res.Skipped = true, true
		res.Path, res.Bytes = existing.Path, existing.Bytes
		metrics.ObserveImage(t.req.Filter, metrics.OutcomeSkipped, 0)
		return res, false
	}

	img, err := w.source.Fetch(ctx, t.req.Date, t.code, t.req.Resolution)
	if err != nil {
		return w.fail(res, err), true
	}
	ext, err := imagery.Validate(img.Data, w.org.MinBytes())
	if err != nil {
		return w.fail(res, err), true
	}
	asset, err := w.org.Save(t.req.Filter, t.constituent, t.req.Date, ext, img.Data)
	if err != nil {
		return w.fail(res, err), true
	}

	res.Success = true
	res.Path, res.Bytes = asset.Path, asset.Bytes
	metrics.ObserveImage(t.req.Filter, metrics.OutcomeDownloaded, asset.Bytes)
	w.log.Debug("image saved", map[string]interface{}{"path": asset.Path, "bytes": asset.Bytes, "url": img.URL})

	w.mirror(ctx, asset.Path, img.Data)
	return res, true
}

func (w *Workflow) fail(res models.DownloadResult, err error) models.DownloadResult {
	res.Error = err.Error()
	metrics.ObserveImage(res.Request.Filter, metrics.OutcomeFailed, 0)
	level := w.log.Warn
	if errors.Is(err, imagery.ErrNotFound) {
		level = w.log.Info
	}
	level("image unavailable", map[string]interface{}{
		"request":     res.Request.String(),
		"constituent": res.Constituent,
		"reason":      err.Error(),
	})
	return res
}

func (w *Workflow) mirror(ctx context.Context, path string, data []byte) {
	if w.opts.Mirror == nil {
		return
	}
	rel := w.org.RelPath(path)
	if err := w.opts.Mirror.StoreFile(ctx, rel, data); err != nil {
		w.log.Error("mirror upload failed", err, map[string]interface{}{"path": rel})
	}
}

func (s *Summary) add(r models.DownloadResult) {
	s.Results = append(s.Results, r)
	switch {
	case r.Skipped:
		s.Skipped++
	case r.Success:
		s.Downloaded++
		s.Bytes += r.Bytes
	default:
		s.Failed++
		s.Errors = append(s.Errors, fmt.Sprintf("%s %s: %s", r.Request.DayString(), r.Constituent, r.Error))
	}
}

func progressLine(r models.DownloadResult) string {
	name := r.Request.DayString() + " " + r.Constituent
	switch {
	case r.Skipped:
		return "already have " + name
	case r.Success:
		return fmt.Sprintf("downloaded %s (%d KB)", name, r.Bytes/1024)
	default:
		return "failed " + name + ": " + r.Error
	}
}

// sleep waits d or until ctx is done, reporting whether the full delay
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
