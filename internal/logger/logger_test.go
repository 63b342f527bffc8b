package logger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/gavelhq/gavel/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewReturnsLogger(t *testing.T) {
	l := New(config.Logging{Level: "debug", Service: "test"})
	if l == nil {
		t.Fatal("New returned nil")
	}
}

func TestReviewIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := ReviewID(ctx); got != "" {
		t.Errorf("ReviewID on empty context = %q", got)
	}
	ctx = WithReviewID(ctx, "rev-123")
	if got := ReviewID(ctx); got != "rev-123" {
		t.Errorf("ReviewID = %q, want rev-123", got)
	}
}
