package queue

// Logger defines a simple logging interface to avoid depending on a concrete logger.
type Logger interface {
	Info() LogEvent
	Warn() LogEvent
	Error() LogEvent
	Debug() LogEvent
}

// LogEvent defines a simple structured log event.
type LogEvent interface {
	Msg(string)
	Err(error) LogEvent
	Str(string, string) LogEvent
	Int(string, int) LogEvent
}
