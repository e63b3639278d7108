package events

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/TheMichaelB/spacesync/internal/config"
)

// LogLevel represents logging severity.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

const timestampFormat = "2006-01-02 15:04:05"

// Logger provides structured logging.
type Logger struct {
	entry *logrus.Entry
}

// NewLogger creates a logger from config.
func NewLogger(cfg *config.LogConfig) (*Logger, error) {
	var output io.Writer = os.Stdout
	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		output = file
	}

	base := newBase(parseLevel(cfg.Level), cfg.Format, cfg.Color, output)

	hostname, _ := os.Hostname()
	return &Logger{entry: base.WithField("hostname", hostname)}, nil
}

// NewTestLogger creates a logger for testing.
func NewTestLogger(level LogLevel, format string, output io.Writer) *Logger {
	base := newBase(level, format, false, output)
	return &Logger{entry: logrus.NewEntry(base)}
}

func newBase(level LogLevel, format string, color bool, output io.Writer) *logrus.Logger {
	base := logrus.New()
	base.SetOutput(output)
	base.SetLevel(toLogrus(level))

	if format == "json" {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
			DisableColors:   !color,
		})
	}
	return base
}

// WithField returns a logger with an additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.logEntry().WithField(key, value)}
}

// WithFields returns a logger with additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{entry: l.logEntry().WithFields(logrus.Fields(fields))}
}

// WithError adds an error field.
func (l *Logger) WithError(err error) *Logger {
	return l.WithField("error", err.Error())
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string) {
	l.logEntry().Debug(msg)
}

// Info logs at info level.
func (l *Logger) Info(msg string) {
	l.logEntry().Info(msg)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string) {
	l.logEntry().Warn(msg)
}

// Error logs at error level.
func (l *Logger) Error(msg string) {
	l.logEntry().Error(msg)
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level LogLevel) bool {
	return l.logEntry().Logger.IsLevelEnabled(toLogrus(level))
}

// logEntry tolerates a zero Logger by falling back to the standard logger.
func (l *Logger) logEntry() *logrus.Entry {
	if l == nil || l.entry == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return l.entry
}

// Helper functions

func parseLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func toLogrus(l LogLevel) logrus.Level {
	switch l {
	case DebugLevel:
		return logrus.DebugLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
