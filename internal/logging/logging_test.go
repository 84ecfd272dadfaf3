package logging

import "testing"

func TestSetLevel(t *testing.T) {
	orig := GetLevel()
	defer SetLevel(orig)

	SetLevel(LevelDebug)
	if !IsDebugEnabled() {
		t.Error("debug should be enabled after SetLevel(LevelDebug)")
	}

	SetLevel(LevelError)
	if IsDebugEnabled() {
		t.Error("debug should be disabled after SetLevel(LevelError)")
	}
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
		{LogLevel(42), "unknown(42)"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("LogLevel(%d).String() = %q, want %q", tt.level, got, tt.expected)
		}
	}
}
