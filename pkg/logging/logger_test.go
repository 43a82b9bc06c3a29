package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		baseDir   string
		sessionID string
	}{
		{name: "valid directory and session ID", baseDir: t.TempDir(), sessionID: "tab-123"},
		{name: "creates directories if not exist", baseDir: filepath.Join(t.TempDir(), "nested", "path"), sessionID: "tab-456"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.baseDir, tt.sessionID)
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}
			defer logger.Close()

			if logger.minLevel != LevelInfo {
				t.Errorf("minLevel = %v, want %v", logger.minLevel, LevelInfo)
			}

			for _, path := range []string{
				filepath.Join(tt.baseDir, "sessions", tt.sessionID+".jsonl"),
				filepath.Join(tt.baseDir, "errors.jsonl"),
				filepath.Join(tt.baseDir, "telemetry.jsonl"),
			} {
				if _, err := os.Stat(path); os.IsNotExist(err) {
					t.Errorf("%s not created", path)
				}
			}
		})
	}
}

func TestNewLoggerInvalidDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if _, err := NewLogger(filepath.Join(file, "logs"), "s"); err == nil {
		t.Fatal("expected error when base dir is under a regular file")
	}
}

func TestLogRoutesByLevelAndCategory(t *testing.T) {
	baseDir := t.TempDir()
	logger, err := NewLogger(baseDir, "tab-1")
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	logger.Info(CategorySession, "send", "message received", nil)
	logger.Error(CategoryState, "codegen_failed", "backend failed", map[string]any{"attempt": 1})
	logger.Warn(CategoryTelemetry, "submit_failed", "telemetry dropped", nil)

	sessionEvents, err := ReadRecentEvents(filepath.Join(baseDir, "sessions", "tab-1.jsonl"), 10)
	if err != nil {
		t.Fatalf("ReadRecentEvents failed: %v", err)
	}
	if len(sessionEvents) != 3 {
		t.Fatalf("session log has %d events, want 3", len(sessionEvents))
	}
	if sessionEvents[0].SessionID != "tab-1" {
		t.Errorf("SessionID = %q, want tab-1", sessionEvents[0].SessionID)
	}

	errorEvents, _ := ReadRecentEvents(filepath.Join(baseDir, "errors.jsonl"), 10)
	if len(errorEvents) != 1 || errorEvents[0].EventType != "codegen_failed" {
		t.Errorf("error log = %+v, want only codegen_failed", errorEvents)
	}

	telemetryEvents, _ := ReadRecentEvents(filepath.Join(baseDir, "telemetry.jsonl"), 10)
	if len(telemetryEvents) != 1 || telemetryEvents[0].Category != CategoryTelemetry {
		t.Errorf("telemetry log = %+v, want only the telemetry event", telemetryEvents)
	}
}

func TestSetMinLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, "s")
	logger.SetMinLevel(LevelWarn)

	logger.Debug(CategorySession, "d", "", nil)
	logger.Info(CategorySession, "i", "", nil)
	logger.Warn(CategorySession, "w", "", nil)
	logger.Error(CategorySession, "e", "", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), buf.String())
	}
}

func TestSessionAndTabIDStamped(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, "")
	logger.SetSessionID("conv-1")
	logger.SetTabID("tab-9")
	logger.Info(CategorySession, "ready", "", nil)

	var event Event
	if err := json.Unmarshal(buf.Bytes(), &event); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if event.SessionID != "conv-1" || event.TabID != "tab-9" {
		t.Errorf("event ids = %q/%q, want conv-1/tab-9", event.SessionID, event.TabID)
	}
	if event.Timestamp.IsZero() {
		t.Error("timestamp should be set automatically")
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	logger := Nop()
	logger.SetMinLevel(LevelDebug)
	logger.SetSessionID("x")
	if err := logger.Info(CategorySession, "noop", "", nil); err != nil {
		t.Fatalf("nil logger returned error: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("nil logger Close returned error: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"debug": LevelDebug, "warn": LevelWarn, "": LevelInfo, "loud": LevelInfo}
	for raw, want := range cases {
		if got := ParseLevel(raw); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestReadRecentEvents(t *testing.T) {
	baseDir := t.TempDir()
	logger, err := NewLogger(baseDir, "s")
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	for i := 0; i < 10; i++ {
		logger.Info(CategorySession, "test", "", map[string]any{"seq": float64(i)})
	}

	sessionFile := filepath.Join(baseDir, "sessions", "s.jsonl")
	tests := []struct {
		name      string
		count     int
		wantCount int
	}{
		{"read last 5", 5, 5},
		{"read more than exist", 20, 10},
		{"read 0", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := ReadRecentEvents(sessionFile, tt.count)
			if err != nil {
				t.Fatalf("ReadRecentEvents failed: %v", err)
			}
			if len(events) != tt.wantCount {
				t.Fatalf("got %d events, want %d", len(events), tt.wantCount)
			}
			if tt.wantCount > 0 && events[len(events)-1].Details["seq"] != float64(9) {
				t.Errorf("last event seq = %v, want 9", events[len(events)-1].Details["seq"])
			}
		})
	}
}

func TestReadRecentEventsNonexistent(t *testing.T) {
	if _, err := ReadRecentEvents("/nonexistent/path/file.jsonl", 10); err == nil {
		t.Error("expected error for nonexistent file, got nil")
	}
}

func TestConcurrentWrites(t *testing.T) {
	baseDir := t.TempDir()
	logger, err := NewLogger(baseDir, "s")
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(id int) {
			for j := 0; j < 10; j++ {
				logger.Info(CategorySession, "concurrent", "", map[string]any{"goroutine": id, "iteration": j})
			}
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	events, err := ReadRecentEvents(filepath.Join(baseDir, "sessions", "s.jsonl"), 200)
	if err != nil {
		t.Fatalf("ReadRecentEvents failed: %v", err)
	}
	if len(events) != 100 {
		t.Errorf("expected 100 events, got %d", len(events))
	}
}
