package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		level       string
		wantEnabled zapcore.Level
		wantSkipped zapcore.Level
	}{
		{level: "debug", wantEnabled: zapcore.DebugLevel},
		{level: "info", wantEnabled: zapcore.InfoLevel, wantSkipped: zapcore.DebugLevel},
		{level: "WARN", wantEnabled: zapcore.WarnLevel, wantSkipped: zapcore.InfoLevel},
		{level: "bogus", wantEnabled: zapcore.InfoLevel, wantSkipped: zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := New(tt.level)
			if err != nil {
				t.Fatalf("New(%q) failed: %v", tt.level, err)
			}
			core := logger.Core()
			if !core.Enabled(tt.wantEnabled) {
				t.Errorf("Expected %s enabled", tt.wantEnabled)
			}
			if tt.level != "debug" && core.Enabled(tt.wantSkipped) {
				t.Errorf("Expected %s disabled", tt.wantSkipped)
			}
		})
	}
}
