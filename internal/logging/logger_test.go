package logging

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"comic2kindle/internal/services"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := parseLevel(tc.in); got != tc.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected unsupported format to be rejected")
	}
}

func TestJSONLoggerWritesNormalizedRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	logger, err := New(Options{Level: "debug", Format: "json", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("conversion started", String(FieldJobID, "job-1"), Int("files", 2))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, data)
	}
	if record["msg"] != "conversion started" || record["level"] != "info" {
		t.Fatalf("unexpected record: %v", record)
	}
	if record[FieldJobID] != "job-1" {
		t.Fatalf("attribute lost: %v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("timestamp key missing: %v", record)
	}
}

func TestLevelFiltersRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	logger, err := New(Options{Level: "warn", Format: "json", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("quiet")
	logger.Warn("loud")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if strings.Contains(string(data), "quiet") || !strings.Contains(string(data), "loud") {
		t.Fatalf("level filter not applied:\n%s", data)
	}
}

func TestNewComponentLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	base, err := New(Options{Format: "json", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	NewComponentLogger(base, "workflow").Info("tick")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"component":"workflow"`) {
		t.Fatalf("component attribute missing:\n%s", data)
	}

	// A nil base must not panic and must stay silent.
	NewComponentLogger(nil, "workflow").Info("dropped")
}

func TestWithContextAddsStandardFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	base, err := New(Options{Format: "json", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := services.WithJobID(context.Background(), "job-7")
	ctx = services.WithStage(ctx, "processing")
	WithContext(ctx, base).Info("page done")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, `"job_id":"job-7"`) || !strings.Contains(line, `"stage":"processing"`) {
		t.Fatalf("context fields missing:\n%s", line)
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := NewNop()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("nop logger must report disabled")
	}
	logger.Error("ignored", Error(nil))
}
