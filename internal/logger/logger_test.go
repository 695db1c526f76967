package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestInitWriter_JSONWithService(t *testing.T) {
	var buf bytes.Buffer
	l := InitWriter(&buf, "blotter-test", slog.LevelInfo)
	l.Debug("hidden")
	l.Info("[portfolio] Position updated")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line should be filtered at info level: %s", out)
	}
	if !strings.Contains(out, `"service":"blotter-test"`) {
		t.Errorf("expected service attribute, got %s", out)
	}
	if !strings.Contains(out, "Position updated") {
		t.Errorf("expected message, got %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q): expected %v, got %v", in, want, got)
		}
	}
}

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := context.Background()
	if tid := TraceID(ctx); tid != "" {
		t.Errorf("expected empty trace id, got %q", tid)
	}

	ctx = WithTraceID(ctx, "positions:updates-42")
	if tid := TraceID(ctx); tid != "positions:updates-42" {
		t.Errorf("expected 'positions:updates-42', got %q", tid)
	}
}

func TestGenerateTraceID(t *testing.T) {
	ts := time.Date(2026, 3, 2, 14, 30, 0, 123456789, time.UTC)
	tid := GenerateTraceID("marketdata:updates", ts)

	if !strings.HasPrefix(tid, "marketdata:updates-") {
		t.Errorf("expected channel prefix, got %s", tid)
	}
	if !strings.HasSuffix(tid, "123456789") {
		t.Errorf("expected nanosecond suffix, got %s", tid)
	}
}

func TestLogWithTrace(t *testing.T) {
	if attrs := LogWithTrace(context.Background()); attrs != nil {
		t.Errorf("expected nil attrs when no trace id, got %v", attrs)
	}

	attrs := LogWithTrace(WithTraceID(context.Background(), "abc-123"))
	if len(attrs) != 1 {
		t.Fatalf("expected one attr, got %v", attrs)
	}
}
