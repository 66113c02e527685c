package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func captureJSON(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()

	prev := Logger
	t.Cleanup(func() {
		Logger = prev
		if prev != nil {
			slog.SetDefault(prev)
		}
	})

	var buf bytes.Buffer
	InitWithHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: level}))
	return &buf
}

func decode(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var e map[string]any
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("Unmarshal %q: %v", line, err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestComponent(t *testing.T) {
	buf := captureJSON(t, slog.LevelInfo)

	Component("ingestion").Info("stream complete", "rows", 9357)

	entries := decode(t, buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0]["component"] != "ingestion" {
		t.Errorf("expected component=ingestion, got %v", entries[0]["component"])
	}
	if entries[0]["rows"] != float64(9357) {
		t.Errorf("expected rows=9357, got %v", entries[0]["rows"])
	}
}

func TestFromContext(t *testing.T) {
	buf := captureJSON(t, slog.LevelInfo)

	ctx := ContextWithIngestID(context.Background(), 7)
	ctx = ContextWithSource(ctx, "AirQualityUCI.csv")
	ctx = ContextWithQueryKind(ctx, "series")

	WithContext(ctx).Info("hello")

	e := decode(t, buf)[0]
	if e["ingest_id"] != float64(7) {
		t.Errorf("expected ingest_id=7, got %v", e["ingest_id"])
	}
	if e["source"] != "AirQualityUCI.csv" {
		t.Errorf("expected source, got %v", e["source"])
	}
	if e["query"] != "series" {
		t.Errorf("expected query=series, got %v", e["query"])
	}
}

func TestFromContextEmpty(t *testing.T) {
	buf := captureJSON(t, slog.LevelInfo)

	FromContext(context.Background(), Logger).Info("plain")

	e := decode(t, buf)[0]
	for _, key := range []string{"ingest_id", "source", "query"} {
		if _, ok := e[key]; ok {
			t.Errorf("unexpected key %s", key)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := captureJSON(t, slog.LevelWarn)

	Debug("debug")
	Info("info")
	Warn("warn")
	Error("error")

	entries := decode(t, buf)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries at warn level, got %d", len(entries))
	}
	if entries[0]["msg"] != "warn" || entries[1]["msg"] != "error" {
		t.Errorf("expected warn and error, got %v and %v", entries[0]["msg"], entries[1]["msg"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
