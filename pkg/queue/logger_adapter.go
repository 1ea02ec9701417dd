package queue

import (
	"github.com/rs/zerolog"
)

// LoggerAdapter adapts a zerolog.Logger to the queue Logger interface.
type LoggerAdapter struct {
	logger zerolog.Logger
}

// NewLoggerAdapter creates a new logger adapter tagged with the queue component.
func NewLoggerAdapter(logger zerolog.Logger) *LoggerAdapter {
	return &LoggerAdapter{
		logger: logger.With().Str("component", "queue").Logger(),
	}
}

func (l *LoggerAdapter) Info() LogEvent {
	return &LogEventAdapter{event: l.logger.Info()}
}

func (l *LoggerAdapter) Warn() LogEvent {
	return &LogEventAdapter{event: l.logger.Warn()}
}

func (l *LoggerAdapter) Error() LogEvent {
	return &LogEventAdapter{event: l.logger.Error()}
}

func (l *LoggerAdapter) Debug() LogEvent {
	return &LogEventAdapter{event: l.logger.Debug()}
}

// LogEventAdapter adapts a zerolog event to the queue LogEvent interface.
// A nil event, returned by zerolog for disabled levels, is safe to use.
type LogEventAdapter struct {
	event *zerolog.Event
}

func (e *LogEventAdapter) Msg(msg string) {
	e.event.Msg(msg)
}

func (e *LogEventAdapter) Err(err error) LogEvent {
	e.event = e.event.Err(err)

	return e
}

func (e *LogEventAdapter) Str(key, value string) LogEvent {
	e.event = e.event.Str(key, value)

	return e
}

func (e *LogEventAdapter) Int(key string, value int) LogEvent {
	e.event = e.event.Int(key, value)

	return e
}

type (
	nopLogger struct{}

	nopLogEvent struct{}
)

func (nopLogger) Info() LogEvent  { return nopLogEvent{} }
func (nopLogger) Warn() LogEvent  { return nopLogEvent{} }
func (nopLogger) Error() LogEvent { return nopLogEvent{} }
func (nopLogger) Debug() LogEvent { return nopLogEvent{} }

func (nopLogEvent) Msg(string)                    {}
func (e nopLogEvent) Err(error) LogEvent          { return e }
func (e nopLogEvent) Str(string, string) LogEvent { return e }
func (e nopLogEvent) Int(string, int) LogEvent    { return e }
