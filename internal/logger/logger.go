// Package logger builds the zap logger shared by the watchdog components.
package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log levels accepted by New.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

// defaultLevel is used when an unknown level string is provided.
const defaultLevel = zapcore.InfoLevel

// New returns a console logger writing to stdout at the given level.
func New(level string) *zap.SugaredLogger {
	return NewWithWriter(level, os.Stdout)
}

// NewWithWriter returns a console logger writing to w. Useful for tests.
func NewWithWriter(level string, w io.Writer) *zap.SugaredLogger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg),
		zapcore.Lock(zapcore.AddSync(w)),
		zap.NewAtomicLevelAt(ParseLevel(level)),
	)
	return zap.New(core).Sugar()
}

// ParseLevel converts a textual level to a zapcore.Level.
func ParseLevel(s string) zapcore.Level {
	switch s {
	case DebugLevel:
		return zapcore.DebugLevel
	case InfoLevel:
		return zapcore.InfoLevel
	case WarnLevel, "warning":
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return defaultLevel
	}
}

// Cron adapts a sugared logger to the robfig/cron Logger interface.
// Scheduler chatter goes to debug; scheduler errors stay errors.
type Cron struct {
	L *zap.SugaredLogger
}

// Info logs routine scheduler messages at debug level.
func (c Cron) Info(msg string, keysAndValues ...interface{}) {
	c.L.Debugw("cron: "+msg, keysAndValues...)
}

// Error logs scheduler errors.
func (c Cron) Error(err error, msg string, keysAndValues ...interface{}) {
	c.L.With("err", err).Errorw("cron: "+msg, keysAndValues...)
}
