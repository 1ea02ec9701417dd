package middleware

import (
	"net/http"
	"slices"
)

var opsEndpoints = []string{
	"/healthz",
	"/livez",
	"/readyz",
	"/metrics",
}

// HealthCheckFilter keeps health check and scrape traffic out of the access log.
type HealthCheckFilter struct {
	logHealthChecks bool
}

func NewHealthCheckFilter(logHealthChecks bool) *HealthCheckFilter {
	return &HealthCheckFilter{
		logHealthChecks: logHealthChecks,
	}
}

func (h *HealthCheckFilter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.logHealthChecks && slices.Contains(opsEndpoints, r.URL.Path) {
			r = r.WithContext(SkipAccessLog(r.Context()))
		}

		next.ServeHTTP(w, r)
	})
}
