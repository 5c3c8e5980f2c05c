// Package logging provides structured logging for luaproc.
//
// Loggers are cheap to derive: WithField and WithComponent return a new
// Logger sharing the same output and level, so a level change made through
// any of them (for example on config reload) applies to all.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Level represents the severity level of a log message.
type Level int

const (
	// LevelDebug is for detailed debugging information.
	LevelDebug Level = iota
	// LevelInfo is for general informational messages.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLevel parses a string into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func (l Level) logrus() logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Format selects the output encoding.
type Format string

const (
	// FormatText writes key=value lines.
	FormatText Format = "text"
	// FormatJSON writes one JSON object per line.
	FormatJSON Format = "json"
)

// Config configures a Logger.
type Config struct {
	// Level is the minimum log level to output.
	Level Level
	// Format is the output encoding. Defaults to text.
	Format Format
	// Output is where logs are written. Defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Format: FormatText,
		Output: os.Stderr,
	}
}

// Logger is a leveled logger with attached fields.
type Logger struct {
	base  *logrus.Logger
	entry *logrus.Entry
}

// New creates a new logger with the given configuration.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	base := logrus.New()
	base.SetOutput(cfg.Output)
	base.SetLevel(cfg.Level.logrus())
	base.SetFormatter(formatter(cfg.Format))

	return &Logger{base: base, entry: logrus.NewEntry(base)}
}

func formatter(f Format) logrus.Formatter {
	if f == FormatJSON {
		return &logrus.JSONFormatter{}
	}
	return &logrus.TextFormatter{DisableColors: true, FullTimestamp: true}
}

// WithField returns a new logger with the given field added.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{base: l.base, entry: l.entry.WithField(key, value)}
}

// WithFields returns a new logger with the given fields added.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	return &Logger{base: l.base, entry: l.entry.WithFields(logrus.Fields(fields))}
}

// WithComponent returns a new logger with the component field set.
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithField("component", component)
}

// WithError returns a new logger carrying err in the error field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{base: l.base, entry: l.entry.WithError(err)}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.base.SetLevel(level.logrus())
}

// SetFormat switches the output encoding.
func (l *Logger) SetFormat(f Format) {
	l.base.SetFormatter(formatter(f))
}

// SetOutput sets the output writer.
func (l *Logger) SetOutput(w io.Writer) {
	l.base.SetOutput(w)
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return l.base.IsLevelEnabled(level.logrus())
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...any) {
	l.entry.Debugf(msg, args...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, args ...any) {
	l.entry.Infof(msg, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...any) {
	l.entry.Warnf(msg, args...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...any) {
	l.entry.Errorf(msg, args...)
}

// Null returns a logger that discards all output.
func Null() *Logger {
	return New(Config{Level: LevelError, Output: io.Discard})
}
