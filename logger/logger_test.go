package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestVerbosityToLevel(t *testing.T) {
	tests := []struct {
		verbosity int
		want      zapcore.Level
	}{
		{0, zapcore.WarnLevel},
		{1, zapcore.InfoLevel},
		{2, zapcore.DebugLevel},
		{3, zapcore.DebugLevel},
	}
	for _, tt := range tests {
		if got := VerbosityToLevel(tt.verbosity); got != tt.want {
			t.Errorf("VerbosityToLevel(%d) = %v, want %v", tt.verbosity, got, tt.want)
		}
	}
}

func TestLoggerIsSafeBeforeInitialize(t *testing.T) {
	// The package-level no-op logger must never panic.
	Logger.Debugw("pre-init message", FieldComponent, "test")
	ComponentLogger("eav.test").Infow("named pre-init message")
}

func TestInitializeJSON(t *testing.T) {
	if err := Initialize(true, VerbosityInfo); err != nil {
		t.Fatalf("Initialize(json) error: %v", err)
	}
	if !JSONOutput {
		t.Error("JSONOutput = false after JSON Initialize")
	}
	Logger.Infow("json logger works", FieldOperation, "test")
}

func TestInitializeConsole(t *testing.T) {
	if err := Initialize(false, VerbosityDebug); err != nil {
		t.Fatalf("Initialize(console) error: %v", err)
	}
	if JSONOutput {
		t.Error("JSONOutput = true after console Initialize")
	}
	Logger.Debugw("console logger works", FieldCacheHit, true)
}
