package observability

import (
	"context"
	"os"
	"syscall"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TestParseLogLevel verifies that parseLogLevel correctly parses log level
// strings from environment variables, handling case-insensitivity and whitespace.
func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		env    string
		expect zapcore.Level
	}{
		{"", zap.InfoLevel},
		{"INFO", zap.InfoLevel},
		{"DEBUG", zap.DebugLevel},
		{"WARN", zap.WarnLevel},
		{"ERROR", zap.ErrorLevel},
		{"debug", zap.DebugLevel},
		{"  warn  ", zap.WarnLevel},
		{"invalid", zap.InfoLevel},
	}
	for _, tt := range tests {
		level := parseLogLevel(tt.env)
		if got := level.Level(); got != tt.expect {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.env, got, tt.expect)
		}
	}
}

type syncErrCore struct {
	zapcore.Core
	err error
}

func (c syncErrCore) Sync() error { return c.err }

func TestFlushTelemetry(t *testing.T) {
	tests := []struct {
		name    string
		syncErr error
		wantErr bool
	}{
		{"ok", nil, false},
		{"terminal EINVAL ignored", &os.PathError{Op: "sync", Path: "/dev/stderr", Err: syscall.EINVAL}, false},
		{"ENOTTY ignored", &os.PathError{Op: "sync", Path: "/dev/stdout", Err: syscall.ENOTTY}, false},
		{"disk error surfaced", &os.PathError{Op: "sync", Path: "/var/log/app.log", Err: syscall.EIO}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := zap.New(syncErrCore{Core: zapcore.NewNopCore(), err: tt.syncErr})
			err := FlushTelemetry(context.Background(), logger)
			if (err != nil) != tt.wantErr {
				t.Errorf("FlushTelemetry() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if err := FlushTelemetry(context.Background(), nil); err != nil {
		t.Errorf("FlushTelemetry(nil) = %v", err)
	}
}

// TestLoggerContext verifies the logger and correlation ID round-trip through a context.
func TestLoggerContext(t *testing.T) {
	ctx := context.Background()
	if LoggerFromContext(ctx) != nil {
		t.Fatal("expected nil logger on empty context")
	}
	if LoggerOrNop(ctx) == nil {
		t.Fatal("LoggerOrNop returned nil")
	}

	l := zap.NewExample()
	ctx = WithLogger(WithCorrelationID(ctx, "abc-123"), l)

	if LoggerFromContext(ctx) != l {
		t.Error("LoggerFromContext did not return stored logger")
	}
	if got := CorrelationID(ctx); got != "abc-123" {
		t.Errorf("CorrelationID = %q, want abc-123", got)
	}
}
