// Package logging provides leveled, prefixed logging for mosaicfs.
package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger behind the printf-style API used
// throughout the codebase. Sub-loggers carry a "sub" field naming
// the component they log for.
type Logger struct {
	zl zerolog.Logger
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// GetLogger returns the process-wide default logger instance.
func GetLogger() *Logger {
	once.Do(func() {
		zl := zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05",
		}).With().Timestamp().Logger().Level(zerolog.InfoLevel)

		defaultLogger = &Logger{zl: zl}

		// Initial log level from environment, CLI flags may override.
		if level := os.Getenv("MOSAICFS_LOG"); level != "" {
			if err := SetLevel(level); err != nil {
				fmt.Fprintf(os.Stderr, "ignoring MOSAICFS_LOG=%q: %v\n", level, err)
			}
		}
	})
	return defaultLogger
}

// SetLevel sets the global logging level from a level name
// (trace, debug, info, warn, error).
func SetLevel(level string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("unknown log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// WithPrefix returns a logger whose messages carry the given component name.
func (l *Logger) WithPrefix(prefix string) *Logger {
	return &Logger{zl: l.zl.With().Str("sub", prefix).Logger()}
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.zl.Error().Msgf(format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.zl.Warn().Msgf(format, args...)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.zl.Info().Msgf(format, args...)
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.zl.Debug().Msgf(format, args...)
}

// Trace logs a trace message.
func (l *Logger) Trace(format string, args ...interface{}) {
	l.zl.Trace().Msgf(format, args...)
}
