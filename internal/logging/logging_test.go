package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level   string
		enabled zapcore.Level
		muted   zapcore.Level
	}{
		{"debug", zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"info", zapcore.InfoLevel, zapcore.DebugLevel},
		{"", zapcore.InfoLevel, zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel, zapcore.InfoLevel},
		{"error", zapcore.ErrorLevel, zapcore.WarnLevel},
	}

	for _, tt := range tests {
		logger, err := New(tt.level)
		if err != nil {
			t.Errorf("New(%q) error = %v", tt.level, err)
			continue
		}
		if !logger.Core().Enabled(tt.enabled) {
			t.Errorf("New(%q) should log at %v", tt.level, tt.enabled)
		}
		if logger.Core().Enabled(tt.muted) {
			t.Errorf("New(%q) should not log at %v", tt.level, tt.muted)
		}
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("loud"); err == nil {
		t.Error("New(loud) should fail")
	}
}
