package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"path"
	"time"

	"solarimager/internal/app"
	"solarimager/internal/config"
	"solarimager/internal/downloader"
	"solarimager/internal/filters"
	"solarimager/internal/jobs"
	"solarimager/internal/models"
	"solarimager/internal/reports"
	"solarimager/internal/solarwind"
	"solarimager/internal/storage"
)

// HandleRoot serves the browser form page.
func (s *Server) HandleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := indexData{
		Version:       config.GetVersion(),
		Filters:       filters.All(),
		Resolutions:   filters.Resolutions,
		Ranges:        solarwind.Ranges,
		Analyses:      models.AnalysisTypes,
		DefaultFilter: s.App.Config.DefaultFilter,
		Resolution:    s.App.Config.Resolution,
		FPS:           s.App.Config.DefaultFPS,
		Today:         time.Now().UTC().Format(models.DateLayout),
	}
	if err := indexTemplate.Execute(w, data); err != nil {
		s.log.Error("failed to render index page", err)
	}
}

// HandleHealth provides health check endpoint
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"config": "ok", "ffmpeg": "missing"}
	if _, err := exec.LookPath(s.App.Config.FFmpegPath); err == nil {
		checks["ffmpeg"] = "ok"
	}
	if job, ok := s.Runner.Current(); ok {
		checks["job"] = string(job.Kind)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   config.GetVersion(),
		"source":    s.App.Source.Name(),
		"checks":    checks,
		"clients":   s.Hub.ClientCount(),
	})
}

// HandleFilters lists the wavelength catalog.
func (s *Server) HandleFilters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"filters":     filters.All(),
		"resolutions": filters.Resolutions,
		"default":     s.App.Config.DefaultFilter,
	})
}

// HandleDates lists the stored dates of one filter.
func (s *Server) HandleDates(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("filter")
	if filter == "" {
		filter = s.App.Config.DefaultFilter
	}
	if _, ok := filters.Lookup(filter); !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown filter %q", filter))
		return
	}
	dates, err := s.App.Organizer.ListDates(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format(models.DateLayout)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"filter": filter, "dates": out, "count": len(out)})
}

type imageEntry struct {
	Date        string `json:"date"`
	Constituent string `json:"constituent"`
	Bytes       int64  `json:"bytes"`
	URL         string `json:"url"`
}

// HandleImages lists stored images of one filter within optional dates.
func (s *Server) HandleImages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := q.Get("filter")
	if filter == "" {
		filter = s.App.Config.DefaultFilter
	}
	if _, ok := filters.Lookup(filter); !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown filter %q", filter))
		return
	}
	start, err := parseDay(q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := parseDay(q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	assets, err := s.App.Organizer.ListImages(filter, start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]imageEntry, 0, len(assets))
	for _, a := range assets {
		out = append(out, imageEntry{
			Date:        a.Date.Format(models.DateLayout),
			Constituent: a.Constituent,
			Bytes:       a.Bytes,
			URL:         s.App.ImageURL(a.Path),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"filter": filter, "images": out, "count": len(out)})
}

// HandleStats reports per-filter archive usage.
func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.App.Organizer.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"filters": stats})
}

type downloadBody struct {
	Start      string `json:"start"`
	End        string `json:"end"`
	Filter     string `json:"filter"`
	Resolution int    `json:"resolution"`
}

// HandleDownload starts a download job.
func (s *Server) HandleDownload(w http.ResponseWriter, r *http.Request) {
	var body downloadBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	start, err := parseDay(body.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := parseDay(body.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if start.IsZero() {
		start = models.TruncateDay(time.Now())
	}
	req := s.App.DefaultRequest(downloader.Request{Start: start, End: end, Filter: body.Filter, Resolution: body.Resolution})

	var report jobs.UpdateFunc = func(float64, string) {}
	wf := s.App.NewWorkflow(func(done, total int, msg string) {
		report(float64(done)/float64(total), msg)
	})
	if err := wf.Validate(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.submit(w, jobs.Spec{
		Kind: models.JobDownload,
		Params: map[string]interface{}{
			"start":      req.Start.Format(models.DateLayout),
			"end":        req.End.Format(models.DateLayout),
			"filter":     req.Filter,
			"resolution": req.Resolution,
		},
		OnCancel: wf.Cancel,
		Run: func(ctx context.Context, update jobs.UpdateFunc) (interface{}, error) {
			report = update
			update(0, fmt.Sprintf("Downloading %s from %s...", req.Filter, s.App.Source.Name()))
			summary, err := wf.Run(ctx, req)
			if err != nil {
				return nil, err
			}
			if summary.Cancelled {
				return summary, jobs.ErrCancelled
			}
			update(1, fmt.Sprintf("Done: %d downloaded, %d skipped, %d failed", summary.Downloaded, summary.Skipped, summary.Failed))
			return summary, nil
		},
	})
}

type videoBody struct {
	Start  string  `json:"start"`
	End    string  `json:"end"`
	Filter string  `json:"filter"`
	FPS    float64 `json:"fps"`
}

// HandleVideo starts a video job.
func (s *Server) HandleVideo(w http.ResponseWriter, r *http.Request) {
	var body videoBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	start, err := parseDay(body.Start)
	if err != nil || start.IsZero() {
		writeError(w, http.StatusBadRequest, "a valid start date is required")
		return
	}
	end, err := parseDay(body.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Filter != "" {
		if _, ok := filters.Lookup(body.Filter); !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown filter %q", body.Filter))
			return
		}
	}
	req := app.VideoRequest{Start: start, End: end, Filter: body.Filter, FPS: body.FPS}

	s.submit(w, jobs.Spec{
		Kind:   models.JobVideo,
		Params: map[string]interface{}{"start": body.Start, "end": body.End, "filter": body.Filter, "fps": body.FPS},
		Run: func(ctx context.Context, update jobs.UpdateFunc) (interface{}, error) {
			update(0, "Preparing frames...")
			res, err := s.App.MakeVideo(ctx, req)
			if err != nil {
				return nil, err
			}
			update(1, fmt.Sprintf("Video ready: %d frames with %s", res.Frames, res.Encoder))
			return map[string]interface{}{"video": res, "url": app.VideoURL(res.Output)}, nil
		},
	})
}

type solarWindBody struct {
	Range    string   `json:"range"`
	Analyses []string `json:"analyses"`
	Export   string   `json:"export"`
}

// HandleSolarWind starts an analysis job.
func (s *Server) HandleSolarWind(w http.ResponseWriter, r *http.Request) {
	var body solarWindBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rng, err := solarwind.ParseRange(body.Range)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var analyses []models.AnalysisType
	for _, a := range body.Analyses {
		t, ok := models.ParseAnalysisType(a)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown analysis type %q", a))
			return
		}
		analyses = append(analyses, t)
	}
	req := app.AnalysisRequest{Range: rng, Analyses: analyses}
	if body.Export != "" {
		if _, err := solarwind.FormatFor(body.Export); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Export = path.Base(body.Export)
	}

	s.submit(w, jobs.Spec{
		Kind:   models.JobSolarWind,
		Params: map[string]interface{}{"range": string(rng), "analyses": body.Analyses, "export": body.Export},
		Run: func(ctx context.Context, update jobs.UpdateFunc) (interface{}, error) {
			res, _, err := s.App.Analyze(ctx, req, func(msg string) { update(0, msg) })
			if err != nil {
				return res, err
			}
			update(1, fmt.Sprintf("Rendered %d charts", len(res.Charts)))
			return res, nil
		},
	})
}

// HandleSolarWindCurrent returns the latest reading and alert line.
func (s *Server) HandleSolarWindCurrent(w http.ResponseWriter, r *http.Request) {
	rng, err := solarwind.ParseRange(r.URL.Query().Get("range"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ds := s.App.Loader.Load(r.Context(), rng)
	c, err := ds.Current()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conditions": c,
		"reason":     ds.Reason,
		"fetched_at": ds.FetchedAt,
	})
}

// HandleSolarWindSummary renders the markdown summary as a page.
func (s *Server) HandleSolarWindSummary(w http.ResponseWriter, r *http.Request) {
	rng, err := solarwind.ParseRange(r.URL.Query().Get("range"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ds := s.App.Loader.Load(r.Context(), rng)
	page, err := reports.NewHTMLBuilder().BuildPage(reports.SolarWindSummary(ds, nil))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(page))
}

// HandleCleanup starts a cleanup job.
func (s *Server) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("filter")
	if filter != "" {
		if _, ok := filters.Lookup(filter); !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown filter %q", filter))
			return
		}
	}
	s.submit(w, jobs.Spec{
		Kind:   models.JobCleanup,
		Params: map[string]interface{}{"filter": filter},
		Run: func(ctx context.Context, update jobs.UpdateFunc) (interface{}, error) {
			res, err := s.App.Cleanup(filter)
			if err != nil {
				return res, err
			}
			update(1, fmt.Sprintf("Removed %d corrupted and %d duplicate files", len(res.Corrupted), len(res.Duplicates)))
			return res, nil
		},
	})
}

// HandleCancel cancels the running job, if any.
func (s *Server) HandleCancel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"cancelled": s.Runner.Cancel()})
}

// HandleListJobs lists recent jobs.
func (s *Server) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	list, err := s.Runner.List(parseLimit(r.URL.Query().Get("limit"), 20, 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{"jobs": list, "count": len(list)}
	if job, ok := s.Runner.Current(); ok {
		resp["current"] = job
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGetJob returns one job.
func (s *Server) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.Runner.Get(r.PathValue("id"))
	if errors.Is(err, jobs.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// HandleFile serves data, video and chart files.
func (s *Server) HandleFile(w http.ResponseWriter, r *http.Request) {
	var root *storage.LocalStorageClient
	switch r.PathValue("root") {
	case "data":
		root = s.data
	case "video":
		root = s.videos
	case "charts":
		root = s.charts
	default:
		http.NotFound(w, r)
		return
	}

	f, info, err := root.Open(r.PathValue("path"))
	if errors.Is(err, storage.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid file path")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", storage.GetContentType(info.Name()))
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// submit runs spec and answers 202, or 409 when a job is already active.
func (s *Server) submit(w http.ResponseWriter, spec jobs.Spec) {
	job, err := s.Runner.Submit(spec)
	if errors.Is(err, jobs.ErrBusy) {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":   "operation already in progress",
			"message": fmt.Sprintf("A %s job is running. Wait for it to finish or cancel it.", job.Kind),
			"status":  "conflict",
			"job":     job,
		})
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}
