package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/minitasks/tasktracker/internal/platform/config"
	"github.com/minitasks/tasktracker/internal/platform/logger"
	"github.com/minitasks/tasktracker/internal/platform/metrics"
	"github.com/nats-io/nuid"
)

type runner struct {
	cfg       *config.LoadGen
	apiBase   string
	runID     string
	log       *slog.Logger
	apiClient *http.Client

	requestsSuccess atomic.Int64
	requestsError   atomic.Int64
	activeVUs       atomic.Int64
}

var (
	requestsTotal = metrics.NewCounterVec(metrics.Opts{
		Name: "tasktracker_loadgen_requests_total",
		Help: "Total HTTP requests sent by load generator.",
	}, []string{"endpoint", "method", "status", "outcome"})

	virtualUsersGauge = metrics.NewGauge(metrics.Opts{
		Name: "tasktracker_loadgen_virtual_users",
		Help: "Current number of active virtual users sending requests.",
	})
)

func init() {
	metrics.Default.MustRegister(requestsTotal, virtualUsersGauge)
}

func main() {
	cfg, err := config.LoadLoadGen()
	if err != nil {
		slog.Error("load generator config", slog.Any("error", err))
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, os.Stdout)

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx := baseCtx
	if cfg.Duration > 0 {
		timeoutCtx, cancel := context.WithTimeout(baseCtx, cfg.Duration)
		defer cancel()
		ctx = timeoutCtx
	}

	if cfg.MetricsAddr != "" {
		go runMetricsServer(log, cfg.MetricsAddr)
	}

	r := &runner{
		cfg:     cfg,
		apiBase: strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/"),
		runID:   nuid.Next(),
		apiClient: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.Users * 2,
				MaxIdleConnsPerHost: cfg.Users * 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	r.log = log.With(slog.String("run_id", r.runID))

	if err := r.waitForHTTPStatus(ctx, r.apiBase+"/api/health", http.StatusOK, cfg.StartupWait); err != nil {
		r.log.Error("task api not ready", slog.Any("error", err))
		os.Exit(1)
	}
	r.log.Info("load generator starting",
		slog.Int("users", cfg.Users),
		slog.Duration("duration", cfg.Duration),
		slog.Int("max_task_id", cfg.MaxTaskID))

	go r.logProgress(ctx)

	var wg sync.WaitGroup
	for idx := 0; idx < cfg.Users; idx++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			r.runUser(ctx, index)
		}(idx)
	}

	<-ctx.Done()
	wg.Wait()

	r.log.Info("load test complete",
		slog.Int64("success_requests", r.requestsSuccess.Load()),
		slog.Int64("error_requests", r.requestsError.Load()))
}

func (r *runner) waitForHTTPStatus(ctx context.Context, requestURL string, expectedStatus int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return err
		}
		resp, err := r.apiClient.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(1200 * time.Millisecond)
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode == expectedStatus {
			return nil
		}
		lastErr = fmt.Errorf("status=%d", resp.StatusCode)
		time.Sleep(1200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = errors.New("timeout")
	}
	return lastErr
}

func (r *runner) runUser(ctx context.Context, index int) {
	if r.cfg.RampUp > 0 {
		delay := time.Duration(float64(r.cfg.RampUp) / float64(r.cfg.Users) * float64(index))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(index*7)))
	b := pickBehavior(rng)

	virtualUsersGauge.Inc()
	r.activeVUs.Add(1)
	defer virtualUsersGauge.Dec()
	defer r.activeVUs.Add(-1)

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(b.wait(rng)):
			r.runAction(ctx, b, rng)
		}
	}
}

// runAction mirrors the reference load profile: ids for get, update and
// delete are drawn blindly from 1..MaxTaskID, so 404s are expected.
func (r *runner) runAction(ctx context.Context, b behavior, rng *rand.Rand) {
	taskPath := func() string {
		return "/api/tasks/" + strconv.Itoa(1+rng.Intn(r.cfg.MaxTaskID))
	}
	switch b.name {
	case "create":
		_, _ = r.requestJSON(ctx, "create", http.MethodPost, "/api/tasks", newCreatePayload(rng, time.Now()), http.StatusCreated)
	case "list":
		_, _ = r.requestJSON(ctx, "list", http.MethodGet, listPath(rng), nil, http.StatusOK)
	case "get":
		_, _ = r.requestJSON(ctx, "get", http.MethodGet, taskPath(), nil, http.StatusOK, http.StatusNotFound)
	case "update":
		_, _ = r.requestJSON(ctx, "update", http.MethodPut, taskPath(), newUpdatePayload(rng), http.StatusOK, http.StatusNotFound)
	case "delete":
		_, _ = r.requestJSON(ctx, "delete", http.MethodDelete, taskPath(), nil, http.StatusOK, http.StatusNotFound)
	}
}

func (r *runner) requestJSON(ctx context.Context, endpoint, method, path string, payload any, expectedStatuses ...int) (int, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.apiBase+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", r.runID+"-"+nuid.Next())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.apiClient.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			requestsTotal.WithLabelValues(endpoint, method, "0", "error").Inc()
			r.requestsError.Add(1)
		}
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	statusText := strconv.Itoa(resp.StatusCode)
	for _, expected := range expectedStatuses {
		if resp.StatusCode == expected {
			requestsTotal.WithLabelValues(endpoint, method, statusText, "success").Inc()
			r.requestsSuccess.Add(1)
			return resp.StatusCode, nil
		}
	}
	requestsTotal.WithLabelValues(endpoint, method, statusText, "error").Inc()
	r.requestsError.Add(1)
	return resp.StatusCode, fmt.Errorf("unexpected status=%d", resp.StatusCode)
}

func (r *runner) logProgress(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.log.Info("progress",
				slog.Int64("success_requests", r.requestsSuccess.Load()),
				slog.Int64("error_requests", r.requestsError.Load()),
				slog.Int64("active_vus", r.activeVUs.Load()))
		}
	}
}

func runMetricsServer(log *slog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.DefaultHandler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info("load generator metrics endpoint listening", slog.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("load generator metrics server failed", slog.Any("error", err))
	}
}
