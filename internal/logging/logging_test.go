package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fprime-community/fprime-amsat-reference/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"loud", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.name); got != tt.expected {
			t.Errorf("ParseLevel(%s): expected %v, got %v", tt.name, tt.expected, got)
		}
	}
}

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("dropped")
	logger.Warn("kept", slog.Int("audio_level", 230))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line, got %d: %s", len(lines), buf.String())
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Expected JSON output, got %v", err)
	}
	if entry["msg"] != "kept" || entry["level"] != "WARN" || entry["audio_level"] != float64(230) {
		t.Errorf("Unexpected entry %v", entry)
	}
	if _, ok := entry["source"]; ok {
		t.Error("Expected no source outside debug level")
	}
}

func TestNewWithWriterDebugAddsSource(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "debug", Format: "text"}, &buf)

	logger.Debug("block", slog.Int("frames", 1024))

	out := buf.String()
	if !strings.Contains(out, "source=") || !strings.Contains(out, "frames=1024") {
		t.Errorf("Expected debug text entry with source, got: %s", out)
	}
}

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")
	logger, closer := New(config.LoggingConfig{Level: "info", Format: "text", Output: path})

	logger.Info("to file")
	if err := closer.Close(); err != nil {
		t.Fatalf("Expected no error closing log file, got %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "msg=\"to file\"") {
		t.Errorf("Expected entry in log file, got: %s", data)
	}
}
