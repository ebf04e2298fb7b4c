package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/minitasks/tasktracker/internal/app/reminder"
	"github.com/minitasks/tasktracker/internal/messaging"
	"github.com/minitasks/tasktracker/internal/platform/config"
	"github.com/minitasks/tasktracker/internal/platform/logger"
	"github.com/minitasks/tasktracker/internal/platform/metrics"
	"github.com/minitasks/tasktracker/internal/platform/natsutil"
	"github.com/nats-io/nats.go"
)

var deliveriesTotal = metrics.NewCounterVec(metrics.Opts{
	Name: "reminder_deliveries_total",
	Help: "Reminder deliveries by final action.",
}, []string{"action"})

func init() {
	metrics.Default.MustRegister(deliveriesTotal)
}

func main() {
	if err := run(); err != nil {
		slog.Error("reminder-evaluator stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadEvaluator()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, os.Stdout)

	loc, err := time.LoadLocation(cfg.Reminder.Timezone)
	if err != nil {
		return err
	}

	client, err := natsutil.ConnectJetStreamWithRetry(runCtx, cfg.NATS.URL, cfg.NATS.ConnectTimeout, messaging.StreamSpec{
		Name:            cfg.Reminder.Stream,
		Subjects:        []string{cfg.Reminder.Subject},
		DuplicateWindow: cfg.Reminder.DuplicateWindow,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	evaluator := reminder.NewEvaluator(loc)
	sub, err := client.JS.QueueSubscribe(cfg.Reminder.Subject, cfg.Reminder.QueueGroup, func(msg *nats.Msg) {
		ctx, cancel := context.WithTimeout(logger.WithContext(runCtx, log), cfg.Reminder.HandleTimeout)
		defer cancel()

		_, err := evaluator.Handle(ctx, msg.Data)
		action := reminder.Disposition(err)
		deliveriesTotal.WithLabelValues(action.String()).Inc()
		switch action {
		case reminder.Ack:
			_ = msg.Ack()
		case reminder.Term:
			_ = msg.Term()
		default:
			_ = msg.Nak()
		}
	},
		nats.ManualAck(),
		nats.Durable(cfg.Reminder.QueueGroup),
		nats.MaxDeliver(cfg.Reminder.MaxDeliver),
		nats.AckWait(30*time.Second),
	)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Drain() }()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if err := client.Connected(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.DefaultHandler())
	server := &http.Server{
		Addr:              cfg.Reminder.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", slog.Any("error", err))
		}
	}()

	log.Info("reminder evaluator listening",
		slog.String("subject", sub.Subject),
		slog.String("queue", cfg.Reminder.QueueGroup),
		slog.String("timezone", loc.String()))

	<-runCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	return nil
}
