package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/minitasks/tasktracker/internal/app/export"
	"github.com/minitasks/tasktracker/internal/platform/config"
	"github.com/minitasks/tasktracker/internal/platform/logger"
)

func main() {
	cfg, err := config.LoadExport()
	if err != nil {
		slog.Error("task export config", slog.Any("error", err))
		os.Exit(1)
	}
	// Logs go to stderr so stdout can carry the CSV.
	log := logger.New(cfg.Log.Level, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := &export.Client{BaseURL: cfg.APIBase, HTTP: &http.Client{Timeout: cfg.RequestTimeout}}
	list, err := client.Fetch(ctx)
	if err != nil {
		log.Error("fetch tasks", slog.Any("error", err))
		os.Exit(1)
	}
	if len(list) == 0 {
		log.Info("no tasks to export")
		return
	}

	if cfg.Stdout {
		if err := export.WriteCSV(os.Stdout, list); err != nil {
			log.Error("write csv", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	path := filepath.Join(cfg.OutputDir, export.FileName(time.Now()))
	f, err := os.Create(path)
	if err != nil {
		log.Error("create export file", slog.Any("error", err))
		os.Exit(1)
	}
	if err := export.WriteCSV(f, list); err != nil {
		_ = f.Close()
		log.Error("write csv", slog.Any("error", err))
		os.Exit(1)
	}
	if err := f.Close(); err != nil {
		log.Error("close export file", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("tasks exported", slog.String("path", path), slog.Int("tasks", len(list)))
}
