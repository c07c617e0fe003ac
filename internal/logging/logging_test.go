package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewDynamicLevelCanBeChanged(t *testing.T) {
	log, level := NewDynamic(Config{Level: "info"})
	if log == nil || level == nil {
		t.Fatal("NewDynamic returned nil")
	}
	if got := level.Level(); got != slog.LevelInfo {
		t.Fatalf("initial level = %v, want info", got)
	}

	level.Set(ParseLevel("debug"))
	if got := level.Level(); got != slog.LevelDebug {
		t.Fatalf("level after Set = %v, want debug", got)
	}
}

func TestWithCorrelationLogger(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "tx-1")
	if got := CorrelationIDFromContext(ctx); got != "tx-1" {
		t.Fatalf("CorrelationIDFromContext = %q, want tx-1", got)
	}
	if got := CorrelationIDFromContext(context.Background()); got != "" {
		t.Fatalf("CorrelationIDFromContext without id = %q, want empty", got)
	}
	if l := WithCorrelationLogger(ctx, nil); l == nil {
		t.Fatal("WithCorrelationLogger returned nil")
	}
}
