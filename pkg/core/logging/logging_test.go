package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{"ERROR", slog.LevelError},
		{"WARNING", slog.LevelWarn},
		{"WARN", slog.LevelWarn},
		{"INFO", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
		{"TRACE", LevelTrace},
		{"trace", LevelTrace},
		{"  info  ", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.input); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	logger := NewLogger("DEBUG")
	if logger == nil {
		t.Fatal("expected a logger")
	}
	ctx := context.Background()
	if !logger.Enabled(ctx, slog.LevelDebug) {
		t.Error("DEBUG logger should enable debug records")
	}
	if logger.Enabled(ctx, LevelTrace) {
		t.Error("DEBUG logger should not enable trace records")
	}
}
