package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type contextKey string

const skipAccessLogKey contextKey = "skip_access_log"

type AccessLogger struct {
	logger zerolog.Logger
}

func NewAccessLogger(logger zerolog.Logger) *AccessLogger {
	return &AccessLogger{
		logger: logger.With().Str("component", "http_access").Logger(),
	}
}

// SkipAccessLog marks the request so the access logger stays quiet for it.
func SkipAccessLog(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipAccessLogKey, true)
}

func shouldSkipAccessLog(ctx context.Context) bool {
	skip, ok := ctx.Value(skipAccessLogKey).(bool)

	return ok && skip
}

func (a *AccessLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shouldSkipAccessLog(r.Context()) {
			next.ServeHTTP(w, r)

			return
		}

		startTime := time.Now()
		wrapped := NewStatusRecorder(w)

		next.ServeHTTP(wrapped, r)

		duration := time.Since(startTime)

		var logEvent *zerolog.Event

		switch status := wrapped.StatusCode(); {
		case status >= http.StatusInternalServerError:
			logEvent = a.logger.Error()
		case status >= http.StatusBadRequest:
			logEvent = a.logger.Warn()
		default:
			logEvent = a.logger.Info()
		}

		logEvent.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("query", r.URL.RawQuery).
			Str("remote_addr", r.RemoteAddr).
			Str("user_agent", r.UserAgent()).
			Str("proto", r.Proto).
			Int("status_code", wrapped.StatusCode()).
			Int64("response_size_bytes", wrapped.BytesWritten()).
			Dur("duration", duration)

		if requestID := r.Header.Get("X-Request-ID"); requestID != "" {
			logEvent.Str("request_id", requestID)
		}

		logEvent.Msg("HTTP request completed")
	})
}
