package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/nerrad567/roomsync-core/internal/infrastructure/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected slog.Level
	}{
		{
			name:     "debug level",
			input:    "debug",
			expected: slog.LevelDebug,
		},
		{
			name:     "info level",
			input:    "info",
			expected: slog.LevelInfo,
		},
		{
			name:     "warn level",
			input:    "warn",
			expected: slog.LevelWarn,
		},
		{
			name:     "warning level",
			input:    "warning",
			expected: slog.LevelWarn,
		},
		{
			name:     "error level",
			input:    "error",
			expected: slog.LevelError,
		},
		{
			name:     "unknown defaults to info",
			input:    "unknown",
			expected: slog.LevelInfo,
		},
		{
			name:     "empty defaults to info",
			input:    "",
			expected: slog.LevelInfo,
		},
		{
			name:     "case insensitive",
			input:    "DEBUG",
			expected: slog.LevelDebug,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestLogger_WithSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "info", Format: "text"}, "test", &buf)
	child := logger.With("component", "engine")

	child.Debug("before")
	logger.SetLevel("debug")
	child.Debug("after")

	output := buf.String()
	if strings.Contains(output, "before") {
		t.Error("debug message logged before SetLevel(debug)")
	}
	if !strings.Contains(output, "after") || !strings.Contains(output, "component=engine") {
		t.Errorf("child logger output = %q, want the debug line with component=engine", output)
	}
	if child.Level() != slog.LevelDebug {
		t.Errorf("child.Level() = %v, want %v", child.Level(), slog.LevelDebug)
	}
}

func TestLogger_Component(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "test", &buf)
	logger.Component("mqtt").Info("connected")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}
	if entry["component"] != "mqtt" {
		t.Errorf("component = %v, want mqtt", entry["component"])
	}
}

func TestRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "test", &buf)
	logger.Info("broker auth configured", "username", "alice", "password", "hunter2", "Token", "abc")

	output := buf.String()
	if strings.Contains(output, "hunter2") || strings.Contains(output, "abc") {
		t.Errorf("output leaked a secret: %s", output)
	}
	if !strings.Contains(output, "alice") {
		t.Errorf("output = %s, want the username kept", output)
	}
	if strings.Count(output, redacted) != 2 {
		t.Errorf("output = %s, want two redacted values", output)
	}
}

func TestDefault(t *testing.T) {
	logger := Default()

	if logger == nil {
		t.Fatal("expected non-nil default logger")
	}
}

func TestNew_DiscardOutput(t *testing.T) {
	logger := New(config.LoggingConfig{Level: "debug", Output: "discard"}, "1.0.0")
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	// Must not panic or write anywhere.
	logger.Debug("dropped", "key", "value")
}

func TestNewWithWriter_OutputContainsDefaultFields(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "test", &buf)
	logger.Info("test message", "key", "value")

	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}

	if logEntry["service"] != "roomsync" {
		t.Errorf("expected service='roomsync', got %v", logEntry["service"])
	}

	if logEntry["version"] != "test" {
		t.Errorf("expected version='test', got %v", logEntry["version"])
	}

	if logEntry["msg"] != "test message" {
		t.Errorf("expected msg='test message', got %v", logEntry["msg"])
	}

	if logEntry["key"] != "value" {
		t.Errorf("expected key='value', got %v", logEntry["key"])
	}
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(config.LoggingConfig{Level: "warn", Format: "text"}, "test", &buf)
	logger.Info("hidden")
	logger.Warn("shown")

	output := buf.String()
	if strings.Contains(output, "hidden") {
		t.Error("expected info message to be filtered at warn level")
	}
	if !strings.Contains(output, "shown") {
		t.Error("expected warn message in output")
	}
}
