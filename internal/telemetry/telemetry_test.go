package telemetry

import (
	"context"
	"log/slog"
	"testing"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := LogLevel(tt.in); got != tt.want {
			t.Errorf("LogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFromContext(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	ctx := WithLogger(context.Background(), logger)

	if FromContext(ctx) != logger {
		t.Error("FromContext must return the stored logger")
	}
	if FromContext(context.Background()) != slog.Default() {
		t.Error("FromContext without logger must return the default logger")
	}
}

func TestStatusClass(t *testing.T) {
	tests := map[int]string{
		200: "2xx",
		201: "2xx",
		302: "3xx",
		404: "4xx",
		503: "5xx",
		101: "other",
	}
	for status, want := range tests {
		if got := statusClass(status); got != want {
			t.Errorf("statusClass(%d) = %q, want %q", status, got, want)
		}
	}
}
