package logger

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tc := range tests {
		if got := parseLevel(tc.level); got != tc.expected {
			t.Errorf("parseLevel(%q) = %v, expected %v", tc.level, got, tc.expected)
		}
	}
}

func TestInitWithFileConfig(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")

	err := InitWithFileConfig("debug", DefaultFileConfig(logFile), false)
	if err != nil {
		t.Fatalf("InitWithFileConfig failed: %v", err)
	}

	if Log == nil || Sugar == nil {
		t.Fatal("expected logger instances to be set")
	}

	Info("test message")
	Sync()
}

func TestLogBeforeInit(t *testing.T) {
	// the package-level logger must be safe to use without Init
	Debug("no-op")
	Info("no-op")
	Warn("no-op")
	Error("no-op")
}
