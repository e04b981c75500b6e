package utils

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger provides leveled, printf-style logging throughout the application.
// It is backed by zerolog so that fields attached with With end up as
// structured keys in JSON mode.
type Logger struct {
	zl zerolog.Logger
}

// LogOptions controls where and how log lines are written.
type LogOptions struct {
	Level  string // debug, info, warn, error
	Format string // console or json
	Out    io.Writer
}

// NewLogger creates a colored console Logger writing to stdout at info level.
func NewLogger() *Logger {
	return NewLoggerWithOptions(LogOptions{})
}

// NewLoggerWithOptions builds a Logger from explicit options.
func NewLoggerWithOptions(opts LogOptions) *Logger {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	if !strings.EqualFold(opts.Format, "json") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "2006-01-02 15:04:05"}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	zl := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// With returns a child Logger carrying an extra structured field.
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

func (l *Logger) Info(format string, args ...any) {
	l.zl.Info().Msg(fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(format string, args ...any) {
	l.zl.Warn().Msg(fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...any) {
	l.zl.Error().Msg(fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...any) {
	l.zl.Debug().Msg(fmt.Sprintf(format, args...))
}

// Printf lets the Logger stand in for cron.Logger style printf sinks.
func (l *Logger) Printf(format string, args ...any) {
	l.Debug(format, args...)
}

// Elapsed formats a duration since start rounded to milliseconds.
func Elapsed(start time.Time) string {
	return time.Since(start).Round(time.Millisecond).String()
}
