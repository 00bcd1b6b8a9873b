package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{"info", "info", slog.LevelInfo},
		{"debug", "debug", slog.LevelDebug},
		{"trace", "trace", LevelTrace},
		{"warn", "warn", slog.LevelWarn},
		{"warning alias", "warning", slog.LevelWarn},
		{"error", "error", slog.LevelError},
		{"uppercase INFO", "INFO", slog.LevelInfo},
		{"uppercase TRACE", "TRACE", LevelTrace},
		{"mixed case Debug", "Debug", slog.LevelDebug},
		{"unknown defaults to info", "unknown", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name       string
		level      string
		logAtTrace bool
		logAtDebug bool
		logAtInfo  bool
	}{
		{"warn filters info", "warn", false, false, false},
		{"info filters debug", "info", false, false, true},
		{"debug passes debug", "debug", false, true, true},
		{"trace passes trace", "trace", true, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)

			logger.Log(t.Context(), LevelTrace, "trace message")
			if got := strings.Contains(buf.String(), "trace message"); got != tt.logAtTrace {
				t.Errorf("trace message visible = %v, want %v (buf: %q)", got, tt.logAtTrace, buf.String())
			}

			buf.Reset()
			logger.Debug("debug message")
			if got := strings.Contains(buf.String(), "debug message"); got != tt.logAtDebug {
				t.Errorf("debug message visible = %v, want %v (buf: %q)", got, tt.logAtDebug, buf.String())
			}

			buf.Reset()
			logger.Info("info message")
			if got := strings.Contains(buf.String(), "info message"); got != tt.logAtInfo {
				t.Errorf("info message visible = %v, want %v (buf: %q)", got, tt.logAtInfo, buf.String())
			}
		})
	}
}

func TestNewLogger_TraceLabel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("trace", &buf)
	logger.Log(t.Context(), LevelTrace, "subject simulated")

	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("expected TRACE label, got %q", buf.String())
	}
}

func TestLevelTrace(t *testing.T) {
	if LevelTrace >= slog.LevelDebug {
		t.Errorf("LevelTrace (%d) should be less than LevelDebug (%d)", LevelTrace, slog.LevelDebug)
	}
}

func TestEventsPath(t *testing.T) {
	got := EventsPath("/data/out.csv")
	if got != "/data/out.csv.events.jsonl" {
		t.Errorf("EventsPath = %q", got)
	}
}

func TestNewEventLogger_InfoLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.events.jsonl")
	el := NewEventLogger(path, "info")

	if el != nil {
		t.Error("expected nil EventLogger at info level")
	}

	// Nil logger should still be safe to use
	el.Log(map[string]any{"event": "test"})
	el.SubjectDone(0, "A", 10, time.Millisecond)

	if _, err := os.Stat(path); err == nil {
		t.Error("event log should not exist at info level")
	}
}

func TestNewEventLogger_DebugLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.events.jsonl")
	el := NewEventLogger(path, "debug")
	defer el.Close()

	el.Log(map[string]any{"event": "run_started", "subjects": 500})
	// Per-subject events are trace-only.
	el.SubjectDone(3, "B", 120, time.Millisecond)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read event log: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), string(data))
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("failed to parse JSONL entry: %v", err)
	}
	if entry["event"] != "run_started" {
		t.Errorf("event = %v, want run_started", entry["event"])
	}
	if entry["subjects"] != float64(500) {
		t.Errorf("subjects = %v, want 500", entry["subjects"])
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected 'time' field in event entry")
	}
}

func TestNewEventLogger_TraceLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.events.jsonl")
	el := NewEventLogger(path, "trace")
	defer el.Close()

	if !el.Trace() {
		t.Fatal("expected Trace() at trace level")
	}
	el.SubjectDone(3, "B", 120, 2*time.Millisecond)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read event log: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("failed to parse JSONL entry: %v", err)
	}
	if entry["event"] != "subject_done" || entry["archetype"] != "B" || entry["subject_id"] != float64(3) {
		t.Errorf("unexpected entry: %v", entry)
	}
	if entry["elapsed_ms"] != float64(2) {
		t.Errorf("elapsed_ms = %v, want 2", entry["elapsed_ms"])
	}
}

func TestEventLogger_NilSafety(t *testing.T) {
	var el *EventLogger
	el.Log(map[string]any{"event": "should_not_panic"})
	el.SubjectDone(0, "A", 1, 0)
	if el.Trace() {
		t.Error("nil logger should not trace")
	}
	el.Close()
}

func TestEventLogger_DoesNotMutateCallerMap(t *testing.T) {
	el := NewEventLogger(filepath.Join(t.TempDir(), "e.jsonl"), "debug")
	defer el.Close()

	event := map[string]any{"event": "test"}
	el.Log(event)

	if _, hasTime := event["time"]; hasTime {
		t.Error("Log() should not mutate caller's map, but 'time' was injected")
	}
}

func TestEventLogger_LogAfterClose(t *testing.T) {
	el := NewEventLogger(filepath.Join(t.TempDir(), "e.jsonl"), "debug")

	el.Log(map[string]any{"event": "before_close"})
	el.Close()

	// Should be a no-op, not panic or error
	el.Log(map[string]any{"event": "after_close"})
	el.Close()
}

func TestNewEventLogger_MissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "e.jsonl")
	if el := NewEventLogger(path, "debug"); el != nil {
		el.Close()
		t.Error("expected nil EventLogger when the directory does not exist")
	}
}

func TestEventLogger_FilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "e.jsonl")
	el := NewEventLogger(path, "debug")
	defer el.Close()

	el.Log(map[string]any{"event": "perm_test"})

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("failed to stat event log: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
}
