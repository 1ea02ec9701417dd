package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/architeacher/svc-event-bus/internal/infrastructure"
)

type recordingMetrics struct {
	infrastructure.NoOpMetrics
	method       string
	path         string
	statusCode   int
	duration     time.Duration
	responseSize int64
}

func (m *recordingMetrics) RecordHTTPRequest(_ context.Context, method, path string, statusCode int, duration time.Duration, _, responseSize int64) {
	m.method = method
	m.path = path
	m.statusCode = statusCode
	m.duration = duration
	m.responseSize = responseSize
}

func TestMetricsMiddleware_Middleware(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		target      string
		statusCode  int
		body        string
		wantPattern string
	}{
		{name: "static route", target: "/readyz", statusCode: http.StatusOK, body: `{"status":"ready"}`, wantPattern: "/readyz"},
		{name: "parameterised route", target: "/debug/queues/task", statusCode: http.StatusAccepted, body: "ok", wantPattern: "/debug/queues/{name}"},
		{name: "unknown route", target: "/missing", statusCode: http.StatusNotFound, wantPattern: "unmatched"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			metrics := new(recordingMetrics)
			handler := func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.statusCode)
				_, _ = w.Write([]byte(tc.body))
			}

			router := chi.NewRouter()
			router.Use(NewMetricsMiddleware(metrics).Middleware)
			router.Get("/readyz", handler)
			router.Get("/debug/queues/{name}", handler)
			router.NotFound(handler)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.target, nil))

			assert.Equal(t, http.MethodGet, metrics.method)
			assert.Equal(t, tc.wantPattern, metrics.path)
			assert.Equal(t, tc.statusCode, metrics.statusCode)
			assert.Equal(t, int64(len(tc.body)), metrics.responseSize)
			assert.Positive(t, metrics.duration)
		})
	}
}
