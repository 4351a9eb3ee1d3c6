// Package observability provides the logging and metrics seams used by
// every component of the synchronization core. Hosts embedding the core
// can supply their own implementations; the defaults write to the standard
// log package and an in-memory counter set.
package observability

import (
	"fmt"
	"log"
	"os"
	"sort"
	"time"
)

// LogLevel defines log message severity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
	LogLevelFatal LogLevel = "FATAL"
)

// Logger is the structured logging interface used across the core.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	WithPrefix(prefix string) Logger
}

// StandardLogger writes through the standard log package.
type StandardLogger struct {
	prefix string
	level  LogLevel
}

// NewLogger creates a StandardLogger with the given prefix at INFO level.
func NewLogger(prefix string) Logger {
	return &StandardLogger{prefix: prefix, level: LogLevelInfo}
}

// NewLoggerWithLevel creates a StandardLogger with an explicit minimum level.
func NewLoggerWithLevel(prefix string, level LogLevel) Logger {
	return &StandardLogger{prefix: prefix, level: level}
}

var levelRank = map[LogLevel]int{
	LogLevelDebug: 0,
	LogLevelInfo:  1,
	LogLevelWarn:  2,
	LogLevelError: 3,
	LogLevelFatal: 4,
}

func (l *StandardLogger) enabled(level LogLevel) bool {
	return levelRank[level] >= levelRank[l.level]
}

func (l *StandardLogger) log(level LogLevel, msg string, fields map[string]interface{}) {
	timestamp := time.Now().Format("2006-01-02T15:04:05.000Z07:00")
	log.Printf("%s [%s] [%s] %s%s", timestamp, level, l.prefix, msg, formatFields(fields))
	if level == LogLevelFatal {
		os.Exit(1)
	}
}

// Debug logs a debug message.
func (l *StandardLogger) Debug(msg string, fields map[string]interface{}) {
	if l.enabled(LogLevelDebug) {
		l.log(LogLevelDebug, msg, fields)
	}
}

// Info logs an info message.
func (l *StandardLogger) Info(msg string, fields map[string]interface{}) {
	if l.enabled(LogLevelInfo) {
		l.log(LogLevelInfo, msg, fields)
	}
}

// Warn logs a warning message.
func (l *StandardLogger) Warn(msg string, fields map[string]interface{}) {
	if l.enabled(LogLevelWarn) {
		l.log(LogLevelWarn, msg, fields)
	}
}

// Error logs an error message.
func (l *StandardLogger) Error(msg string, fields map[string]interface{}) {
	l.log(LogLevelError, msg, fields)
}

// WithPrefix returns a new logger with the given prefix.
func (l *StandardLogger) WithPrefix(prefix string) Logger {
	return &StandardLogger{prefix: prefix, level: l.level}
}

// formatFields renders fields as sorted key=value pairs so log lines are
// stable under test comparison.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	result := ""
	for _, k := range keys {
		result += fmt.Sprintf(" %s=%v", k, fields[k])
	}
	return result
}

// NoopLogger discards everything.
type NoopLogger struct{}

// NewNoopLogger creates a logger that discards everything.
func NewNoopLogger() Logger { return &NoopLogger{} }

func (l *NoopLogger) Debug(msg string, fields map[string]interface{}) {}
func (l *NoopLogger) Info(msg string, fields map[string]interface{})  {}
func (l *NoopLogger) Warn(msg string, fields map[string]interface{})  {}
func (l *NoopLogger) Error(msg string, fields map[string]interface{}) {}

// WithPrefix implements Logger.WithPrefix.
func (l *NoopLogger) WithPrefix(prefix string) Logger { return l }
