package infrastructure

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/architeacher/svc-event-bus/internal/config"
	"github.com/rs/zerolog"
)

// Logger wraps zerolog so the rest of the service depends on a single logging type.
type Logger struct {
	zerolog.Logger
}

// New builds the service logger from the logging configuration.
func New(cfg config.LoggingConfig) Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter builds a logger that writes to w.
func NewWithWriter(cfg config.LoggingConfig, w io.Writer) Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	zl := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()

	return Logger{Logger: zl}
}

// NewTestLogger returns a logger that discards everything.
func NewTestLogger() Logger {
	return Logger{Logger: zerolog.Nop()}
}
