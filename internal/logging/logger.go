// Package logging provides structured logging for the swarm control plane
// and sprite runtime. It wraps the standard log package with leveled output
// and key-value context fields so coordinator decisions and sprite lifecycle
// events can be correlated by tenant and sprite id.
package logging

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
)

// Level represents a log level.
type Level int

const (
	// LevelDebug is for verbose debugging information.
	LevelDebug Level = iota
	// LevelInfo is for lifecycle and routing events.
	LevelInfo
	// LevelWarn is for recoverable errors and dropped messages.
	LevelWarn
	// LevelError is for failures that lose work or capacity.
	LevelError
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

// ParseLevel converts a level name ("debug", "info", "warn", "error") to a
// Level. Unknown names fall back to LevelInfo.
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger provides structured logging with context fields.
type Logger struct {
	mu       sync.RWMutex
	minLevel Level
	fields   map[string]interface{}
	output   *log.Logger
}

var defaultLogger = New()

// New creates a new Logger writing to stderr at info level. The SWARM_LOG
// environment variable, when set, overrides the initial level.
func New() *Logger {
	level := LevelInfo
	if env := os.Getenv("SWARM_LOG"); env != "" {
		level = ParseLevel(env)
	}
	return &Logger{
		minLevel: level,
		fields:   make(map[string]interface{}),
		output:   log.New(os.Stderr, "", log.LstdFlags),
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
}

// SetOutput sets the output logger.
func (l *Logger) SetOutput(output *log.Logger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = output
}

// With returns a new Logger carrying one additional context field.
func (l *Logger) With(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a new Logger carrying additional context fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	return &Logger{
		minLevel: l.minLevel,
		fields:   merged,
		output:   l.output,
	}
}

// log writes a log entry at the given level. Fields are emitted in sorted
// key order so output is stable for tests and grepping.
func (l *Logger) log(level Level, msg string, keyVals ...interface{}) {
	l.mu.RLock()
	minLevel := l.minLevel
	output := l.output
	fields := l.fields
	l.mu.RUnlock()

	if level < minLevel {
		return
	}

	all := make(map[string]interface{}, len(fields)+len(keyVals)/2)
	for k, v := range fields {
		all[k] = v
	}
	for i := 0; i+1 < len(keyVals); i += 2 {
		if key, ok := keyVals[i].(string); ok {
			all[key] = keyVals[i+1]
		}
	}

	var sb strings.Builder
	sb.WriteString(levelNames[level])
	sb.WriteString(": ")
	sb.WriteString(msg)

	if len(all) > 0 {
		keys := make([]string, 0, len(all))
		for k := range all {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" |")
		for _, k := range keys {
			sb.WriteString(" ")
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(formatValue(all[k]))
		}
	}

	output.Print(sb.String())
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		if strings.ContainsAny(val, " \t\n") {
			return fmt.Sprintf("%q", val)
		}
		return val
	case error:
		return fmt.Sprintf("%q", val.Error())
	default:
		return fmt.Sprint(v)
	}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, keyVals ...interface{}) {
	l.log(LevelDebug, msg, keyVals...)
}

// Info logs at info level.
func (l *Logger) Info(msg string, keyVals ...interface{}) {
	l.log(LevelInfo, msg, keyVals...)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, keyVals ...interface{}) {
	l.log(LevelWarn, msg, keyVals...)
}

// Error logs at error level.
func (l *Logger) Error(msg string, keyVals ...interface{}) {
	l.log(LevelError, msg, keyVals...)
}

// Package-level functions that use the default logger.

// SetLevel sets the minimum log level for the default logger.
func SetLevel(level Level) {
	defaultLogger.SetLevel(level)
}

// SetOutput sets the output for the default logger.
func SetOutput(output *log.Logger) {
	defaultLogger.SetOutput(output)
}

// With returns a Logger derived from the default logger with one field.
func With(key string, value interface{}) *Logger {
	return defaultLogger.With(key, value)
}

// WithFields returns a Logger derived from the default logger.
func WithFields(fields map[string]interface{}) *Logger {
	return defaultLogger.WithFields(fields)
}

// Debug logs at debug level using the default logger.
func Debug(msg string, keyVals ...interface{}) {
	defaultLogger.Debug(msg, keyVals...)
}

// Info logs at info level using the default logger.
func Info(msg string, keyVals ...interface{}) {
	defaultLogger.Info(msg, keyVals...)
}

// Warn logs at warn level using the default logger.
func Warn(msg string, keyVals ...interface{}) {
	defaultLogger.Warn(msg, keyVals...)
}

// Error logs at error level using the default logger.
func Error(msg string, keyVals ...interface{}) {
	defaultLogger.Error(msg, keyVals...)
}
