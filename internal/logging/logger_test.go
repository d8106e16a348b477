package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"synthprod/internal/config"
)

// TestColorLineWriter_HighlightsLevelAndTokens verifies level and token coloring.
// Params: testing.T for assertions.
// Returns: none.
func TestColorLineWriter_HighlightsLevelAndTokens(t *testing.T) {
	var dst bytes.Buffer
	writer := &colorLineWriter{dst: &dst}

	line := `level=INFO msg="hello" peer=10.20.30.40 retries=3`
	if _, err := writer.Write([]byte(line)); err != nil {
		t.Fatalf("write: %v", err)
	}

	rendered := dst.String()
	if !strings.HasPrefix(rendered, ansiBlue) {
		t.Fatalf("expected INFO line base color")
	}
	if !strings.Contains(rendered, ansiGreen+`"hello"`+ansiReset+ansiBlue) {
		t.Fatalf("expected quoted string token color")
	}
	if !strings.Contains(rendered, ansiCyan+`10.20.30.40`+ansiReset+ansiBlue) {
		t.Fatalf("expected IP token color")
	}
	if !strings.Contains(rendered, ansiYellow+`3`+ansiReset+ansiBlue) {
		t.Fatalf("expected number token color")
	}
	if !strings.HasSuffix(rendered, ansiReset) {
		t.Fatalf("expected trailing reset sequence")
	}
}

// TestColorLineWriter_NoLevelColor verifies passthrough for unknown levels.
// Params: testing.T for assertions.
// Returns: none.
func TestColorLineWriter_NoLevelColor(t *testing.T) {
	var dst bytes.Buffer
	writer := &colorLineWriter{dst: &dst}

	line := `msg="plain" value=42`
	if _, err := writer.Write([]byte(line)); err != nil {
		t.Fatalf("write: %v", err)
	}

	if got := dst.String(); got != line {
		t.Fatalf("expected passthrough line, got %q", got)
	}
}

// TestColorLineWriter_PreservesNewline verifies newline placement after the reset sequence.
// Params: testing.T for assertions.
// Returns: none.
func TestColorLineWriter_PreservesNewline(t *testing.T) {
	var dst bytes.Buffer
	writer := &colorLineWriter{dst: &dst}

	line := "level=WARN msg=\"retrying\" attempt=2\n"
	n, err := writer.Write([]byte(line))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if n != len(line) {
		t.Fatalf("written=%d, want=%d", n, len(line))
	}
	if !strings.HasSuffix(dst.String(), ansiReset+"\n") {
		t.Fatalf("expected reset before newline, got %q", dst.String())
	}
}

// TestParseLevel_KnownAndUnknown verifies level name mapping.
// Params: testing.T for assertions.
// Returns: none.
func TestParseLevel_KnownAndUnknown(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"panic": LevelPanic,
	}
	for name, want := range cases {
		got, err := ParseLevel(name)
		if err != nil {
			t.Fatalf("parse %q: %v", name, err)
		}
		if got != want {
			t.Fatalf("parse %q = %v, want %v", name, got, want)
		}
	}

	if _, err := ParseLevel("trace"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

// TestNew_FileSinkWritesJSON verifies file sink output and level filtering.
// Params: testing.T for assertions.
// Returns: none.
func TestNew_FileSinkWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "synthprod.log")

	logger, closeFn, err := New(config.LogConfig{
		File: config.LogSinkConfig{Enabled: true, Level: "warn", Format: "json", Path: path},
	})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	logger.Info("dropped by level")
	logger.Warn("batch dropped", "records", 3)
	logger.Log(context.Background(), LevelPanic, "fatal condition")
	closeFn()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(data)
	if strings.Contains(text, "dropped by level") {
		t.Fatalf("info record must be filtered: %s", text)
	}
	if !strings.Contains(text, `"msg":"batch dropped"`) || !strings.Contains(text, `"records":3`) {
		t.Fatalf("missing warn record: %s", text)
	}
	if !strings.Contains(text, `"level":"PANIC"`) {
		t.Fatalf("expected PANIC level name: %s", text)
	}
}

// TestNew_RejectsUnknownFormat verifies format validation in handler setup.
// Params: testing.T for assertions.
// Returns: none.
func TestNew_RejectsUnknownFormat(t *testing.T) {
	_, _, err := New(config.LogConfig{
		Console: config.LogSinkConfig{Enabled: true, Level: "info", Format: "xml"},
	})
	if err == nil || !strings.Contains(err.Error(), "log.console") {
		t.Fatalf("expected console format error, got %v", err)
	}
}

// TestFanoutHandler_RoutesByLevel verifies each child receives records it accepts.
// Params: testing.T for assertions.
// Returns: none.
func TestFanoutHandler_RoutesByLevel(t *testing.T) {
	var debugOut, errorOut bytes.Buffer
	handler := &fanoutHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&debugOut, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&errorOut, &slog.HandlerOptions{Level: slog.LevelError}),
	}}
	logger := slog.New(handler).With("component", "producer")

	logger.Debug("tick")
	logger.Error("upload failed")

	if !strings.Contains(debugOut.String(), "msg=tick") || !strings.Contains(debugOut.String(), "component=producer") {
		t.Fatalf("debug sink missing records: %q", debugOut.String())
	}
	if strings.Contains(errorOut.String(), "msg=tick") {
		t.Fatalf("error sink must not receive debug: %q", errorOut.String())
	}
	if !strings.Contains(errorOut.String(), `msg="upload failed"`) {
		t.Fatalf("error sink missing record: %q", errorOut.String())
	}
}
