package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/minitasks/tasktracker/internal/app/reminder"
	"github.com/minitasks/tasktracker/internal/app/taskapi"
	"github.com/minitasks/tasktracker/internal/app/tasks"
	"github.com/minitasks/tasktracker/internal/messaging"
	"github.com/minitasks/tasktracker/internal/platform/config"
	"github.com/minitasks/tasktracker/internal/platform/dbpool"
	"github.com/minitasks/tasktracker/internal/platform/logger"
	"github.com/minitasks/tasktracker/internal/platform/metrics"
	"github.com/minitasks/tasktracker/internal/platform/migrations"
	"github.com/minitasks/tasktracker/internal/platform/natsutil"
)

func main() {
	if err := run(); err != nil {
		slog.Error("task-api stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPI()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, os.Stdout)

	var repo tasks.Repository
	switch cfg.Tasks.StoreDriver {
	case "memory":
		log.Warn("using in-memory task store; data is lost on restart")
		repo = tasks.NewMemoryRepository()
	default:
		pool, err := dbpool.New(runCtx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := migrations.WaitAndUp(runCtx, pool, cfg.Database.ReadyTimeout); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		repo = tasks.NewPostgresRepository(pool)
	}

	var (
		reminders tasks.ReminderPublisher = reminder.Discard
		client    *natsutil.Client
	)
	if cfg.NATS.Enabled {
		client, err = natsutil.ConnectJetStreamWithRetry(runCtx, cfg.NATS.URL, cfg.NATS.ConnectTimeout, messaging.StreamSpec{
			Name:            cfg.Reminder.Stream,
			Subjects:        []string{cfg.Reminder.Subject},
			DuplicateWindow: cfg.Reminder.DuplicateWindow,
		})
		if err != nil {
			return err
		}
		defer client.Close()
		reminders = reminder.NewPublisher(natsutil.JetStreamPublisher{JS: client.JS}, cfg.Reminder.Subject, cfg.Reminder.PublishTimeout)
	} else {
		log.Warn("messaging disabled; reminders are discarded")
	}

	service := tasks.NewService(repo, reminders)
	service.Strict = cfg.Tasks.StrictFields
	handler := taskapi.NewHandler(service, log, cfg.HTTP.CORSOrigins)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := checkReadiness(r.Context(), service, client); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.DefaultHandler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info("task api listening",
		slog.String("addr", cfg.HTTP.Addr),
		slog.String("store", cfg.Tasks.StoreDriver),
		slog.Bool("strict_fields", cfg.Tasks.StrictFields))
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-runCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", slog.Any("error", err))
	}
	return nil
}

func checkReadiness(ctx context.Context, service *tasks.Service, client *natsutil.Client) error {
	if client != nil {
		if err := client.Connected(); err != nil {
			return err
		}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
	defer cancel()
	if err := service.Ready(checkCtx); err != nil {
		return fmt.Errorf("task store not ready: %w", err)
	}
	return nil
}
