// Package logging implements the leveled, structured logging facade used
// by the transfer engine and the CLI that configures it.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Level defines the verbosity of logging, preserving the teacher's
// Silent..Trace taxonomy even though slog itself only has four levels —
// Silent and Trace are mapped onto slog's levels below.
type Level int

const (
	LevelSilent Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

var levelNames = map[Level]string{
	LevelSilent: "SILENT",
	LevelError:  "ERROR",
	LevelWarn:   "WARN",
	LevelInfo:   "INFO",
	LevelDebug:  "DEBUG",
	LevelTrace:  "TRACE",
}

// ParseLevel converts a string to a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToUpper(level) {
	case "SILENT":
		return LevelSilent, nil
	case "ERROR":
		return LevelError, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "INFO":
		return LevelInfo, nil
	case "DEBUG":
		return LevelDebug, nil
	case "TRACE":
		return LevelTrace, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", level)
	}
}

func (l Level) String() string { return levelNames[l] }

func (l Level) slogLevel() slog.Level {
	switch {
	case l >= LevelTrace:
		return slog.LevelDebug - 4
	case l >= LevelDebug:
		return slog.LevelDebug
	case l >= LevelInfo:
		return slog.LevelInfo
	case l >= LevelWarn:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Format selects the slog handler's wire shape.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// Logger wraps an *slog.Logger with the teacher's leveled convenience
// methods, so call sites read the same as the plain-log version while
// gaining structured key-value fields.
type Logger struct {
	level Level
	inner *slog.Logger
}

// New creates a Logger at the given level and format, writing to output
// (os.Stderr if nil), mirroring the teacher's NewLogger(level, output).
func New(level Level, format Format, output io.Writer) *Logger {
	if output == nil {
		output = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level.slogLevel()}
	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}
	return &Logger{level: level, inner: slog.New(handler)}
}

// Level returns the current log level.
func (l *Logger) Level() Level { return l.level }

// With returns a Logger that always includes the given key-value pairs.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{level: l.level, inner: l.inner.With(args...)}
}

func (l *Logger) Error(msg string, args ...any) {
	if l.level >= LevelError {
		l.inner.Error(msg, args...)
	}
}

func (l *Logger) Warn(msg string, args ...any) {
	if l.level >= LevelWarn {
		l.inner.Warn(msg, args...)
	}
}

func (l *Logger) Info(msg string, args ...any) {
	if l.level >= LevelInfo {
		l.inner.Info(msg, args...)
	}
}

func (l *Logger) Debug(msg string, args ...any) {
	if l.level >= LevelDebug {
		l.inner.Debug(msg, args...)
	}
}

// Trace logs at a level more verbose than Debug, used for per-chunk and
// per-step progress detail.
func (l *Logger) Trace(msg string, args ...any) {
	if l.level >= LevelTrace {
		l.inner.Log(context.Background(), slog.LevelDebug-4, msg, args...)
	}
}
