package cometd

import "log/slog"

// Logger is the structured logging interface used across the module.
// *slog.Logger satisfies it; args are alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// defaultLogger returns the default slog logger from the standard library.
func defaultLogger() Logger {
	return slog.Default()
}

// DefaultLogger returns the logger used when none is configured.
func DefaultLogger() Logger {
	return defaultLogger()
}

// WithFields returns a Logger that appends the given key/value pairs to every record.
func WithFields(l Logger, args ...any) Logger {
	if l == nil {
		l = defaultLogger()
	}
	if len(args) == 0 {
		return l
	}
	if sl, ok := l.(*slog.Logger); ok {
		return sl.With(args...)
	}
	return &fieldLogger{next: l, fields: args}
}

type fieldLogger struct {
	next   Logger
	fields []any
}

func (l *fieldLogger) with(args []any) []any {
	out := make([]any, 0, len(args)+len(l.fields))
	out = append(out, args...)
	return append(out, l.fields...)
}

func (l *fieldLogger) Debug(msg string, args ...any) { l.next.Debug(msg, l.with(args)...) }
func (l *fieldLogger) Info(msg string, args ...any)  { l.next.Info(msg, l.with(args)...) }
func (l *fieldLogger) Warn(msg string, args ...any)  { l.next.Warn(msg, l.with(args)...) }
func (l *fieldLogger) Error(msg string, args ...any) { l.next.Error(msg, l.with(args)...) }
