package taskapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/minitasks/tasktracker/internal/app/tasks"
	"github.com/minitasks/tasktracker/internal/platform/logger"
	"github.com/minitasks/tasktracker/internal/platform/metrics"
	"github.com/rs/cors"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	Tasks          *tasks.Service
	Log            *slog.Logger
	AllowedOrigins []string
	Now            func() time.Time
}

func NewHandler(service *tasks.Service, log *slog.Logger, allowedOrigins []string) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		Tasks:          service,
		Log:            log,
		AllowedOrigins: allowedOrigins,
		Now:            func() time.Time { return time.Now().UTC() },
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.Middleware(h.Log, metrics.ObserveHTTP))
	r.Use(middleware.Recoverer)

	r.Get("/api/health", h.handleHealth)
	r.Route("/api/tasks", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/status/{status}", h.handleListByStatus)
		r.Get("/priority/{priority}", h.handleListByPriority)
		r.Get("/{id}", h.handleGet)
		r.Put("/{id}", h.handleUpdate)
		r.Delete("/{id}", h.handleDelete)
	})

	origins := h.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
	}).Handler(r)
}

type taskResponse struct {
	Status  string     `json:"status"`
	Message string     `json:"message,omitempty"`
	Task    tasks.Task `json:"task"`
}

type listResponse struct {
	Status string       `json:"status"`
	Tasks  []tasks.Task `json:"tasks"`
}

type messageResponse struct {
	Status    string     `json:"status"`
	Message   string     `json:"message"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	now := h.Now()
	h.writeJSON(w, http.StatusOK, messageResponse{Status: "success", Message: "API is running", Timestamp: &now})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	var filter tasks.Filter
	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = &status
	}
	if raw := r.URL.Query().Get("priority"); raw != "" {
		priority, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "priority must be an integer")
			return
		}
		filter.Priority = &priority
	}
	h.list(w, r, filter)
}

func (h *Handler) handleListByStatus(w http.ResponseWriter, r *http.Request) {
	status := chi.URLParam(r, "status")
	h.list(w, r, tasks.Filter{Status: &status})
}

func (h *Handler) handleListByPriority(w http.ResponseWriter, r *http.Request) {
	priority, err := strconv.Atoi(chi.URLParam(r, "priority"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "priority must be an integer")
		return
	}
	h.list(w, r, tasks.Filter{Priority: &priority})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, filter tasks.Filter) {
	found, err := h.Tasks.ListTasks(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, listResponse{Status: "success", Tasks: found})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	task, err := h.Tasks.GetTask(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, taskResponse{Status: "success", Task: task})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req tasks.CreateInput
	if !h.decode(w, r, &req) {
		return
	}
	task, err := h.Tasks.CreateTask(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, taskResponse{Status: "success", Message: "Task created successfully", Task: task})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	var patch tasks.Patch
	if !h.decode(w, r, &patch) {
		return
	}
	if patch.Empty() {
		h.writeError(w, http.StatusBadRequest, "No data provided")
		return
	}
	task, err := h.Tasks.UpdateTask(r.Context(), id, patch)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, taskResponse{Status: "success", Message: "Task updated successfully", Task: task})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	if err := h.Tasks.DeleteTask(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, messageResponse{Status: "success", Message: fmt.Sprintf("Task with ID %d deleted successfully", id)})
}

func (h *Handler) taskID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid task id")
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return false
	}
	return true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tasks.ErrValidation):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tasks.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	default:
		logger.FromContext(r.Context()).Error("task request failed", slog.Any("error", err))
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSON replaces an unencodable payload with a 500 error envelope.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		h.Log.Error("encode response", slog.Any("error", err))
		buf.Reset()
		_ = json.NewEncoder(&buf).Encode(messageResponse{Status: "error", Message: "failed to encode response"})
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, messageResponse{Status: "error", Message: msg})
}
