// Package logging provides leveled logging and run event tracing for lifesim.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - An EventLogger for structured JSONL run events (<output>.events.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// LevelTrace is a custom slog level below Debug. At this level every
// simulated subject is logged individually.
const LevelTrace = slog.LevelDebug - 4

// EventsSuffix is appended to an output path to name its event log.
const EventsSuffix = ".events.jsonl"

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "error", "warn", "info", "debug", "trace"
// (case-insensitive). Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Label the custom trace level
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// EventsPath returns the event log path that accompanies an output file.
func EventsPath(output string) string {
	return output + EventsSuffix
}

// EventLogger writes structured run events to a JSONL file.
// It is safe for concurrent use. A nil EventLogger is safe to use;
// all methods are no-ops on nil receiver.
type EventLogger struct {
	mu    sync.Mutex
	file  *os.File
	trace bool
}

// NewEventLogger creates an event logger appending to path.
// At "info" level and above (the default), returns nil and no file is
// created. At "debug" or "trace" level the file is opened for append.
// Returns nil if the file cannot be opened. All methods are nil-safe.
func NewEventLogger(path string, level string) *EventLogger {
	lvl := ParseLevel(level)
	if lvl >= slog.LevelInfo {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &EventLogger{file: f, trace: lvl <= LevelTrace}
}

// Trace reports whether per-subject events should be recorded.
func (el *EventLogger) Trace() bool {
	return el != nil && el.trace
}

// Log writes an event as a single JSONL line.
// A "time" field is added automatically. The caller's map is not mutated.
// Safe to call on nil receiver.
func (el *EventLogger) Log(event map[string]any) {
	if el == nil {
		return
	}

	// Copy to avoid mutating caller's map
	entry := make(map[string]any, len(event)+1)
	for k, v := range event {
		entry[k] = v
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	el.mu.Lock()
	defer el.mu.Unlock()
	if el.file == nil {
		return
	}
	_, _ = el.file.Write(data)
}

// SubjectDone records a per-subject event when tracing. It satisfies the
// simulation observer interface.
func (el *EventLogger) SubjectDone(subjectID int, archetype string, days int, elapsed time.Duration) {
	if !el.Trace() {
		return
	}
	el.Log(map[string]any{
		"event":      "subject_done",
		"subject_id": subjectID,
		"archetype":  archetype,
		"days":       days,
		"elapsed_ms": float64(elapsed.Microseconds()) / 1000,
	})
}

// Close closes the underlying file. Safe to call on nil receiver.
func (el *EventLogger) Close() {
	if el == nil {
		return
	}

	el.mu.Lock()
	defer el.mu.Unlock()

	if el.file != nil {
		el.file.Close()
		el.file = nil
	}
}
