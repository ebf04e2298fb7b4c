package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestFromContext_FallsBackToDefault(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))

	custom := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := WithContext(context.Background(), custom)
	assert.Same(t, custom, FromContext(ctx))
}

func TestMiddleware_LogsRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	var observedRoute string
	var observedStatus int
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(Middleware(base, func(_ string, route string, status int) {
		observedRoute = route
		observedStatus = status
	}))
	r.Get("/api/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.NotSame(t, slog.Default(), FromContext(r.Context()))
		w.WriteHeader(http.StatusNotFound)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/tasks/42", nil))

	assert.Equal(t, "/api/tasks/{id}", observedRoute)
	assert.Equal(t, http.StatusNotFound, observedStatus)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "http request", line["msg"])
	assert.Equal(t, "/api/tasks/42", line["path"])
	assert.EqualValues(t, http.StatusNotFound, line["status"])
	assert.NotEmpty(t, line["request_id"])
}
