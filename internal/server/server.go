package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"solarimager/internal/app"
	"solarimager/internal/jobs"
	"solarimager/internal/logger"
	"solarimager/internal/metrics"
	"solarimager/internal/storage"
	"solarimager/internal/video"
)

// Server is the web front end over the shared App.
type Server struct {
	App    *app.App
	Runner *jobs.Runner
	Hub    *Hub

	data   *storage.LocalStorageClient
	videos *storage.LocalStorageClient
	charts *storage.LocalStorageClient

	log        *logger.Logger
	httpServer *http.Server
}

// NewServer creates a server. store may be nil to keep job history in
// memory only.
func NewServer(a *app.App, store *jobs.Store) (*Server, error) {
	s := &Server{
		App: a,
		Hub: NewHub(),
		log: logger.WithComponent("server"),
	}
	s.Runner = jobs.NewRunner(store, s.Hub)

	var err error
	if s.data, err = storage.NewLocalStorageClient(a.Config.DataDir); err != nil {
		return nil, err
	}
	if s.videos, err = storage.NewLocalStorageClient(a.Config.VideoDir); err != nil {
		return nil, err
	}
	if s.charts, err = storage.NewLocalStorageClient(a.Config.ChartsDir); err != nil {
		return nil, err
	}
	return s, nil
}

// SetupRoutes configures HTTP routes for the server
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.HandleHealth)
	mux.HandleFunc("GET /api/filters", s.HandleFilters)
	mux.HandleFunc("GET /api/dates", s.HandleDates)
	mux.HandleFunc("GET /api/images", s.HandleImages)
	mux.HandleFunc("GET /api/stats", s.HandleStats)
	mux.HandleFunc("POST /api/download", s.HandleDownload)
	mux.HandleFunc("POST /api/video", s.HandleVideo)
	mux.HandleFunc("POST /api/solarwind", s.HandleSolarWind)
	mux.HandleFunc("GET /api/solarwind/current", s.HandleSolarWindCurrent)
	mux.HandleFunc("GET /api/solarwind/summary", s.HandleSolarWindSummary)
	mux.HandleFunc("POST /api/cleanup", s.HandleCleanup)
	mux.HandleFunc("POST /api/cancel", s.HandleCancel)
	mux.HandleFunc("GET /api/jobs", s.HandleListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", s.HandleGetJob)
	mux.HandleFunc("GET /ws", s.Hub.HandleWS)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /files/{root}/{path...}", s.HandleFile)
	mux.HandleFunc("GET /{$}", s.HandleRoot)

	return metrics.Middleware(mux)
}

// Start runs the hub and the temp cleanup ticker, then serves HTTP until
// Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	go s.Hub.Run(ctx)
	go s.janitor(ctx, s.App.Config.TempVideoMaxAge)

	s.httpServer = &http.Server{
		Addr:              ":" + s.App.Config.Port,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("server listening", map[string]interface{}{"port": s.App.Config.Port})
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, cancels the running job and waits
// for both, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if err := s.Runner.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("job shutdown: %w", err))
	}
	return errors.Join(errs...)
}

// janitor removes stale video scratch directories on a ticker.
func (s *Server) janitor(ctx context.Context, maxAge time.Duration) {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	interval := maxAge / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := video.CleanupTemp(s.App.Config.TempVideosDir, maxAge, now)
			if err != nil {
				s.log.Warn("temp video cleanup failed", map[string]interface{}{"reason": err.Error()})
			} else if n > 0 {
				s.log.Info("removed stale temp videos", map[string]interface{}{"count": n})
			}
		}
	}
}
