// Package logging wraps zap behind package-level helpers so call sites stay
// compact. The level comes from the --log-level flag or the
// COLLABBOARD_LOG_LEVEL environment variable; with neither set, output goes
// to stdout at info level.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LevelEnvVar controls logging verbosity when no explicit level is given.
const LevelEnvVar = "COLLABBOARD_LOG_LEVEL"

var logger = zap.NewNop()

// Initialize builds the process logger at the given level. An empty level
// falls back to COLLABBOARD_LOG_LEVEL, then to "info".
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LevelEnvVar)
	}
	if level == "" {
		level = "info"
	}

	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	case "silent":
		logger = zap.NewNop()
		return nil
	default:
		return fmt.Errorf("unknown log level %q", level)
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	built, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	logger = built
	return nil
}

// L returns the process logger.
func L() *zap.Logger { return logger }

// Debug logs at debug level.
func Debug(msg string, fields ...zap.Field) { logger.Debug(msg, fields...) }

// Info logs at info level.
func Info(msg string, fields ...zap.Field) { logger.Info(msg, fields...) }

// Warn logs at warn level.
func Warn(msg string, fields ...zap.Field) { logger.Warn(msg, fields...) }

// Error logs at error level.
func Error(msg string, fields ...zap.Field) { logger.Error(msg, fields...) }

// Sync flushes buffered entries.
func Sync() { _ = logger.Sync() }
