package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"solarimager/internal/app"
	"solarimager/internal/config"
	"solarimager/internal/jobs"
	"solarimager/internal/logger"
	"solarimager/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}
	if err := logger.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
		logger.Fatal("Invalid logger configuration", err)
	}
	log := logger.WithComponent("main")

	log.Info("Starting NASA Solar Imager", map[string]interface{}{
		"version":     config.GetVersion(),
		"port":        cfg.Port,
		"environment": cfg.Environment,
		"source":      cfg.ImageSource,
		"data_dir":    cfg.DataDir,
		"deployment":  cfg.DeploymentMode,
	})

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize application", err)
	}
	defer a.Close()

	store, err := jobs.OpenStore(cfg.JobsDB)
	if err != nil {
		logger.Fatal("Failed to open job store", err, map[string]interface{}{"path": cfg.JobsDB})
	}
	defer store.Close()

	srv, err := server.NewServer(a, store)
	if err != nil {
		logger.Fatal("Failed to create server", err)
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Start(ctx) }()

	select {
	case err := <-errc:
		if err != nil {
			log.Error("Server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", err)
	}
	log.Info("Server stopped")
}
