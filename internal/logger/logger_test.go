package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"leadboard/api/internal/config"
)

func TestNewFallsBackToInfoOnBadLevel(t *testing.T) {
	l, err := New(config.LogConfig{Level: "loud", Encoding: "json"})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if l.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("expected debug to be disabled at fallback info level")
	}
	if !l.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("expected info to be enabled")
	}
}

func TestNewConsoleDebug(t *testing.T) {
	l, err := New(config.LogConfig{Level: "DEBUG", Encoding: "console", Development: true})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if !l.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("expected debug level")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("expected nop logger")
	}
}
