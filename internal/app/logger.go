package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/m-mizutani/clog"
	"github.com/m-mizutani/masq"
)

// Logger interface for app layer.
// With attaches slog key/value attributes; struct values pass through masq
// in JSON output, so secret fields are redacted before they are written.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	With(args ...interface{}) Logger
}

// Log output formats
const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// slogLogger adapts a slog.Logger to the printf-style Logger interface
type slogLogger struct {
	logger *slog.Logger
}

// NewLogger builds a Logger writing to w.
// format is "console" (clog, colourless) or "json" (secret fields redacted by masq).
// Unknown levels fall back to WARN.
func NewLogger(w io.Writer, format, level string) Logger {
	return &slogLogger{logger: slog.New(NewHandler(w, format, level))}
}

// NewHandler returns the slog handler NewLogger uses, for callers that want structured logging directly
func NewHandler(w io.Writer, format, level string) slog.Handler {
	lvl := ParseLevel(level)

	if strings.EqualFold(format, LogFormatJSON) {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: lvl,
			ReplaceAttr: masq.New(
				masq.WithFieldName("SessionSecret"),
				masq.WithFieldPrefix("secret"),
				masq.WithFieldPrefix("Secret"),
				masq.WithFieldName("StateData"),
			),
		})
	}

	return clog.New(
		clog.WithWriter(w),
		clog.WithLevel(lvl),
		clog.WithColor(false),
	)
}

// ParseLevel maps a config string to a slog level
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func (l *slogLogger) log(level slog.Level, format string, args ...interface{}) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}
	l.logger.Log(ctx, level, fmt.Sprintf(format, args...))
}

func (l *slogLogger) With(args ...interface{}) Logger {
	return &slogLogger{logger: l.logger.With(args...)}
}

func (l *slogLogger) Debug(format string, args ...interface{}) {
	l.log(slog.LevelDebug, format, args...)
}

func (l *slogLogger) Info(format string, args ...interface{}) {
	l.log(slog.LevelInfo, format, args...)
}

func (l *slogLogger) Warn(format string, args ...interface{}) {
	l.log(slog.LevelWarn, format, args...)
}

func (l *slogLogger) Error(format string, args ...interface{}) {
	l.log(slog.LevelError, format, args...)
}

// nopLogger discards everything
type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

func (n nopLogger) With(...interface{}) Logger { return n }

// NopLogger is a Logger that drops all output; used in tests
var NopLogger Logger = nopLogger{}
