package logging

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		minLevel  Level
		logLevel  Level
		shouldLog bool
	}{
		{"debug allowed at debug", LevelDebug, LevelDebug, true},
		{"info allowed at debug", LevelDebug, LevelInfo, true},
		{"debug blocked at info", LevelInfo, LevelDebug, false},
		{"warn allowed at info", LevelInfo, LevelWarn, true},
		{"info blocked at warn", LevelWarn, LevelInfo, false},
		{"error allowed at warn", LevelWarn, LevelError, true},
		{"warn blocked at error", LevelError, LevelWarn, false},
		{"error allowed at error", LevelError, LevelError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New()
			logger.SetLevel(tt.minLevel)
			logger.SetOutput(log.New(&buf, "", 0))

			switch tt.logLevel {
			case LevelDebug:
				logger.Debug("test message")
			case LevelInfo:
				logger.Info("test message")
			case LevelWarn:
				logger.Warn("test message")
			case LevelError:
				logger.Error("test message")
			}

			if tt.shouldLog {
				assert.Contains(t, buf.String(), "test message")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("info"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetLevel(LevelDebug)
	logger.SetOutput(log.New(&buf, "", 0))

	child := logger.With("sprite", "sprite-abc123")
	child.Warn("heartbeat missed")

	output := buf.String()
	assert.Contains(t, output, "WARN: heartbeat missed")
	assert.Contains(t, output, "sprite=sprite-abc123")
}

func TestLoggerFieldsSorted(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetLevel(LevelDebug)
	logger.SetOutput(log.New(&buf, "", 0))

	logger.WithFields(map[string]interface{}{
		"tenant": "acme",
		"agent":  "copywriter",
	}).Info("spawn")

	output := strings.TrimSpace(buf.String())
	assert.Equal(t, "INFO: spawn | agent=copywriter tenant=acme", output)
}

func TestLoggerInlineKeyVals(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetLevel(LevelDebug)
	logger.SetOutput(log.New(&buf, "", 0))

	logger.Warn("publish failed", "error", errors.New("timeout"), "attempt", 2)

	output := buf.String()
	assert.Contains(t, output, "WARN: publish failed")
	assert.Contains(t, output, `error="timeout"`)
	assert.Contains(t, output, "attempt=2")
}

func TestLoggerChainingPreservesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetLevel(LevelDebug)
	logger.SetOutput(log.New(&buf, "", 0))

	tenantLogger := logger.With("tenant", "acme")
	spriteLogger := tenantLogger.With("sprite", "sprite-1")
	spriteLogger.Info("assigned")

	output := buf.String()
	assert.Contains(t, output, "tenant=acme")
	assert.Contains(t, output, "sprite=sprite-1")
}

func TestLoggerOriginalUnmodified(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetLevel(LevelDebug)
	logger.SetOutput(log.New(&buf, "", 0))

	_ = logger.With("tenant", "acme")
	logger.Info("original logger")

	assert.NotContains(t, buf.String(), "tenant=acme")
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected string
	}{
		{"simple string", "hello", "hello"},
		{"string with spaces", "hello world", `"hello world"`},
		{"integer", 42, "42"},
		{"error", errors.New("oops"), `"oops"`},
		{"bool", true, "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatValue(tt.input))
		})
	}
}

func TestDefaultLogger(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(log.New(&buf, "", 0))
	SetLevel(LevelWarn)

	Debug("debug message")
	assert.Empty(t, buf.String())

	Warn("warn message")
	assert.Contains(t, buf.String(), "WARN: warn message")

	buf.Reset()

	child := With("component", "coordinator")
	child.Error("error message")
	assert.Contains(t, buf.String(), "component=coordinator")
}
