package middleware

import (
	"net/http"
	"time"

	"github.com/architeacher/svc-event-bus/internal/infrastructure"
	"github.com/go-chi/chi/v5"
)

type MetricsMiddleware struct {
	metrics infrastructure.Metrics
}

func NewMetricsMiddleware(metrics infrastructure.Metrics) *MetricsMiddleware {
	return &MetricsMiddleware{
		metrics: metrics,
	}
}

// Middleware records every request under its route pattern, so path parameters never become labels.
func (m *MetricsMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		wrapped := NewStatusRecorder(w)

		next.ServeHTTP(wrapped, r)

		m.metrics.RecordHTTPRequest(
			r.Context(),
			r.Method,
			routePattern(r),
			wrapped.StatusCode(),
			time.Since(startTime),
			r.ContentLength,
			wrapped.BytesWritten(),
		)
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}

	return "unmatched"
}
