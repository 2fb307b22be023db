package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/michalvitousek/miot/internal/infrastructure/config"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON output %q: %v", buf.String(), err)
	}
	return entry
}

func TestNew_ReturnsLogger(t *testing.T) {
	for _, cfg := range []config.LoggingConfig{
		{Level: "info", Format: "json", Output: "stdout"},
		{Level: "debug", Format: "text", Output: "stderr"},
	} {
		if New(cfg, "1.0.0") == nil {
			t.Fatalf("New(%+v) returned nil", cfg)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelDebug},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNewWithWriter_DefaultFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "1.2.3", &buf)

	logger.Info("actuation", "state", "High")

	entry := decodeLine(t, &buf)
	if entry["service"] != "miot-relay" {
		t.Errorf("service = %v, want miot-relay", entry["service"])
	}
	if entry["version"] != "1.2.3" {
		t.Errorf("version = %v, want 1.2.3", entry["version"])
	}
	if entry["msg"] != "actuation" || entry["state"] != "High" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "warn", Format: "json"}, "test", &buf)

	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info record written at warn level: %q", buf.String())
	}

	logger.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Error("warn record missing")
	}
}

func TestNewWithWriter_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "info", Format: "text"}, "test", &buf)

	logger.Info("connected", "broker", "tcp://localhost:1883")

	out := buf.String()
	if !strings.Contains(out, "msg=connected") || !strings.Contains(out, "service=miot-relay") {
		t.Errorf("unexpected text output: %q", out)
	}
}

func TestNewWithWriter_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "test", &buf)

	logger.Info("connecting", "password", "hunter2", "token", "abc", "username", "relay")

	if strings.Contains(buf.String(), "hunter2") || strings.Contains(buf.String(), "abc\"") {
		t.Fatalf("secret leaked: %q", buf.String())
	}
	entry := decodeLine(t, &buf)
	if entry["password"] != "[REDACTED]" || entry["token"] != "[REDACTED]" {
		t.Errorf("secrets not redacted: %v", entry)
	}
	if entry["username"] != "relay" {
		t.Errorf("username = %v, want relay", entry["username"])
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "info"}, "test", &buf)
	child := logger.With("component", "mqtt")

	if child == logger {
		t.Error("expected child logger to be different from parent")
	}

	child.Info("connected")
	if entry := decodeLine(t, &buf); entry["component"] != "mqtt" {
		t.Errorf("component = %v, want mqtt", entry["component"])
	}
}
