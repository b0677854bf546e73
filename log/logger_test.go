package log_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mwantia/vfsindex/log"
)

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewLoggerWithOptions("test", log.LoggerOptions{
		Level:  log.Warn,
		Writer: &buf,
	})

	logger.Debug("debug %d", 1)
	logger.Info("info %d", 2)
	logger.Warn("warn %d", 3)

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Fatalf("Expected debug and info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "warn 3") {
		t.Fatalf("Expected warn line, got %q", out)
	}

	logger.SetLevel(log.Debug)
	logger.Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Fatalf("Expected debug line after SetLevel, got %q", buf.String())
	}
}

func TestLogger_NamedSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	root := log.NewLoggerWithOptions("vfs", log.LoggerOptions{
		Level:  log.Info,
		Writer: &buf,
	})
	child := root.Named("scanner").With("path", "/data")

	child.Info("scanned")
	if !strings.Contains(buf.String(), "[vfs/scanner] scanned path=/data") {
		t.Fatalf("Unexpected output %q", buf.String())
	}

	root.SetLevel(log.Error)
	buf.Reset()
	child.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("Expected child to follow parent level, got %q", buf.String())
	}
}

func TestLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewLoggerWithOptions("vfs", log.LoggerOptions{
		Level:  log.Debug,
		JSON:   true,
		Writer: &buf,
	}).With("generation", 3)

	logger.Info("committed")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to decode json line: %v", err)
	}
	if entry["message"] != "committed" || entry["level"] != "INFO" || entry["service"] != "vfs" {
		t.Fatalf("Unexpected entry %v", entry)
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["generation"] != float64(3) {
		t.Fatalf("Expected generation field, got %v", entry["fields"])
	}
}

func TestParse(t *testing.T) {
	tests := map[string]log.LogLevel{
		"debug": log.Debug,
		"INFO":  log.Info,
		"warn":  log.Warn,
		"Error": log.Error,
		"":      log.Info,
	}
	for input, want := range tests {
		got, err := log.Parse(input)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", input, err)
		}
		if got != want {
			t.Fatalf("Parse(%q) = %v, want %v", input, got, want)
		}
	}

	if _, err := log.Parse("loud"); err == nil {
		t.Fatalf("Expected error for unknown level")
	}
}
