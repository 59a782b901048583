package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"verbose", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	use(zap.New(core))
	defer use(zap.NewNop())

	Debug("hidden %d", 1)
	Info("hidden %d", 2)
	Warn("rotation %s has %d groups", "opener", 3)
	Error("failed: %v", "boom")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Message != "rotation opener has 3 groups" {
		t.Errorf("Unexpected message: %q", entries[0].Message)
	}
	if entries[1].Level != zapcore.ErrorLevel {
		t.Errorf("Expected error level, got %v", entries[1].Level)
	}
}

func TestNoopBeforeInit(t *testing.T) {
	// must not panic
	Debug("x")
	Info("x")
	Warn("x")
	Error("x")
	Sync()
}

func TestInit(t *testing.T) {
	defer use(zap.NewNop())
	for _, format := range []string{"json", "text"} {
		Init("debug", format)
		if !defaultLogger.Desugar().Core().Enabled(zapcore.DebugLevel) {
			t.Errorf("format %s: debug level should be enabled", format)
		}
	}

	Init("error", "text")
	if defaultLogger.Desugar().Core().Enabled(zapcore.WarnLevel) {
		t.Error("warn level should be disabled at error level")
	}
}
